// Package bld recovers the embedded compliance XML document from .bld
// project containers. The container carries a serialized object graph; the
// document lives in one well-known member of it. A structured record
// decode is the primary path, with a raw compressed-payload scan covering
// containers whose graph is damaged or whose document was stored deflated.
package bld

import (
	"fmt"
	"os"

	"github.com/ddilanchi/t24-streamline/pkg/carve"
	"github.com/ddilanchi/t24-streamline/pkg/nrbf"
)

// TargetField is the member name that carries the compliance XML inside
// the container's object graph.
const TargetField = "<ComplianceXML>k__BackingField"

// XMLAnchors mark recovered plaintext as the report document.
var XMLAnchors = []string{"<?xml", "<Title24"}

// Source identifies which recovery path produced a result.
type Source int

const (
	SourceRecords    Source = iota // structured record decode
	SourceCompressed               // compressed-payload scan
)

func (s Source) String() string {
	switch s {
	case SourceRecords:
		return "records"
	case SourceCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Result is one recovered document.
type Result struct {
	XML    string
	Source Source
}

// Extract recovers the compliance document from container bytes. The
// record decode runs first; the scan covers both a failed decode and a
// clean decode that never saw the field. When the scan also misses, the
// decode's own outcome is reported, so callers can tell a structural
// failure from a container whose document member is simply null
// (nrbf.ErrFieldNotFound).
func Extract(data []byte) (*Result, error) {
	xml, err := nrbf.ExtractField(data, TargetField)
	if err == nil {
		return &Result{XML: xml, Source: SourceRecords}, nil
	}
	if xml, ok := carve.Scan(data, XMLAnchors); ok {
		return &Result{XML: xml, Source: SourceCompressed}, nil
	}
	return nil, err
}

// ExtractFile reads the container at path in one shot and extracts from
// the bytes.
func ExtractFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	return Extract(data)
}
