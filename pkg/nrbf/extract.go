package nrbf

import (
	"fmt"
)

// minPlausibleText is the shortest text length accepted as a real document
// body. Short strings under the target name are placeholders, not content.
const minPlausibleText = 100

// ExtractField decodes data and returns the text value of the first member
// named field that passes the plausibility threshold.
//
// The record walk is the primary path. If it ends without a capture —
// whether cleanly or on a decode error — every completed object in the
// table is scanned in decode order as a fallback, with reference chains
// resolved. A decode error is reported only when the fallback also comes
// up empty; a clean walk with no capture anywhere reports ErrFieldNotFound.
func ExtractField(data []byte, field string) (string, error) {
	d := NewDecoder(data, field)
	runErr := d.Run()

	if text, ok := d.Found(); ok {
		return text, nil
	}
	if text, ok := d.salvage(); ok {
		return text, nil
	}
	if runErr != nil {
		return "", fmt.Errorf("decode records: %w", runErr)
	}
	return "", fmt.Errorf("member %q: %w", field, ErrFieldNotFound)
}

// salvage scans completed objects in first-stored order for a plausible
// text value under the target member, following references through the
// object table.
func (d *Decoder) salvage() (string, bool) {
	for _, id := range d.objOrder {
		v := d.objects[id]
		if v.Kind != KindObject {
			continue
		}
		fv, ok := v.Obj.Fields[d.target]
		if !ok {
			continue
		}
		if r := d.Resolve(fv); r.IsText(minPlausibleText) {
			return r.Text, true
		}
	}
	return "", false
}
