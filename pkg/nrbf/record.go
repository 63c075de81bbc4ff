package nrbf

import (
	"fmt"
	"sort"
)

// maxNestingDepth caps how deep class and array records may nest. Real
// containers nest a handful of levels; a stream past this bound would
// otherwise recurse until the stack gave out.
const maxNestingDepth = 10000

// Decoder decodes one container's record stream while watching for a
// single distinguished member name. All session state — schema table,
// object table, library table, captured target — lives on the Decoder,
// so concurrent sessions over different buffers never interfere.
type Decoder struct {
	cur    cursor
	target string
	depth  int

	schemas   map[int32]*ClassSchema
	objects   map[int32]Value
	objOrder  []int32 // ids in first-stored order, for deterministic scans
	libraries map[int32]string

	rootID   int32
	found    string
	hasFound bool
}

// NewDecoder prepares a decode session over data. target is the member
// name whose text value the session watches for.
func NewDecoder(data []byte, target string) *Decoder {
	return &Decoder{
		cur:       cursor{buf: data},
		target:    target,
		schemas:   make(map[int32]*ClassSchema),
		objects:   make(map[int32]Value),
		libraries: make(map[int32]string),
	}
}

// step is the outcome of decoding one record. end marks the terminal end
// marker. isRun marks a null run: the record stands for nullRun null member
// slots and the requesting caller must consume exactly that many, never one.
type step struct {
	val     Value
	nullRun int
	isRun   bool
	end     bool
}

// Run decodes records from the current position until the end marker, a
// captured target value, or an error. The capture check sits between
// top-level records, so a capture made inside a nested structure stops
// the session once the enclosing record completes.
func (d *Decoder) Run() error {
	for {
		st, err := d.readRecord()
		if err != nil {
			return err
		}
		if st.end {
			return nil
		}
		if d.hasFound {
			return nil
		}
	}
}

// Found returns the captured target value, if any. The capture is
// write-once: the first plausible value wins.
func (d *Decoder) Found() (string, bool) {
	return d.found, d.hasFound
}

// RootID returns the root object id announced by the stream header.
func (d *Decoder) RootID() int32 {
	return d.rootID
}

// ObjectCount returns the number of ids assigned in the object table.
func (d *Decoder) ObjectCount() int {
	return len(d.objOrder)
}

// LibraryInfo names one declared library.
type LibraryInfo struct {
	ID   int32
	Name string
}

// Libraries lists declared libraries in ascending id order.
func (d *Decoder) Libraries() []LibraryInfo {
	out := make([]LibraryInfo, 0, len(d.libraries))
	for id, name := range d.libraries {
		out = append(out, LibraryInfo{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClassInfo summarizes one registered class schema.
type ClassInfo struct {
	ID      int32
	Name    string
	Members int
}

// Classes lists registered schemas in ascending id order.
func (d *Decoder) Classes() []ClassInfo {
	out := make([]ClassInfo, 0, len(d.schemas))
	for id, s := range d.schemas {
		out = append(out, ClassInfo{ID: id, Name: s.Name, Members: len(s.Members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// store assigns a value to an object id, tracking first-stored order.
// Reassignment is format-invalid but tolerated; the original position in
// the scan order is kept.
func (d *Decoder) store(id int32, v Value) {
	if _, ok := d.objects[id]; !ok {
		d.objOrder = append(d.objOrder, id)
	}
	d.objects[id] = v
}

// readRecord reads the tag byte at the cursor and decodes one record.
// Library declarations are transparent: they register the library and the
// following record is decoded in their place.
func (d *Decoder) readRecord() (step, error) {
	for {
		at := d.cur.off
		tag, err := d.cur.u8()
		if err != nil {
			return step{}, err
		}

		switch rt := recordType(tag); rt {
		case rtLibrary:
			if err := d.readLibrary(); err != nil {
				return step{}, err
			}
			// Transparent: loop to decode the record it precedes.

		case rtHeader:
			return d.readHeader()

		case rtEnd:
			return step{end: true}, nil

		case rtNull:
			return step{val: nullValue()}, nil

		case rtNullRun256:
			n, err := d.cur.u8()
			if err != nil {
				return step{}, err
			}
			return step{isRun: true, nullRun: int(n)}, nil

		case rtNullRun:
			n, err := d.cur.i32()
			if err != nil {
				return step{}, err
			}
			if n < 0 {
				return step{}, fmt.Errorf("null run count %d at offset %d: %w", n, at, ErrMalformed)
			}
			return step{isRun: true, nullRun: int(n)}, nil

		case rtString:
			id, err := d.cur.i32()
			if err != nil {
				return step{}, err
			}
			s, err := d.cur.lps()
			if err != nil {
				return step{}, err
			}
			v := textValue(s)
			d.store(id, v)
			return step{val: v}, nil

		case rtPrimitiveTyped:
			tc, err := d.cur.u8()
			if err != nil {
				return step{}, err
			}
			v, err := d.cur.primitive(primitiveType(tc))
			if err != nil {
				return step{}, err
			}
			return step{val: v}, nil

		case rtReference:
			id, err := d.cur.i32()
			if err != nil {
				return step{}, err
			}
			return step{val: refValue(id)}, nil

		case rtClassTyped:
			return d.readClass(true, false)
		case rtSystemClassTyped:
			return d.readClass(true, true)
		case rtClass:
			return d.readClass(false, false)
		case rtSystemClass:
			return d.readClass(false, true)

		case rtClassWithID:
			return d.readClassWithID(at)

		case rtBinaryArray:
			return d.readBinaryArray(at)

		case rtArrayPrimitive, rtArrayObject, rtArrayString:
			return d.readSingleArray(rt, at)

		default:
			return step{}, fmt.Errorf("record type %d at offset %d: %w", tag, at, ErrUnknownRecord)
		}
	}
}

// readNested decodes one record below the top level, enforcing the
// nesting bound.
func (d *Decoder) readNested(at int) (step, error) {
	if d.depth >= maxNestingDepth {
		return step{}, fmt.Errorf("record nesting beyond %d levels at offset %d: %w", maxNestingDepth, at, ErrMalformed)
	}
	d.depth++
	st, err := d.readRecord()
	d.depth--
	return st, err
}

// readHeader consumes the stream header: root object id plus a reserved
// 12-byte block. Informational only; no value is produced.
func (d *Decoder) readHeader() (step, error) {
	root, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	if _, err := d.cur.take(12); err != nil {
		return step{}, err
	}
	d.rootID = root
	return step{val: nullValue()}, nil
}

// readLibrary registers a library declaration.
func (d *Decoder) readLibrary() error {
	id, err := d.cur.i32()
	if err != nil {
		return err
	}
	name, err := d.cur.lps()
	if err != nil {
		return err
	}
	d.libraries[id] = name
	return nil
}

// readTypeDesc decodes the additional info attached to a member type tag.
func (d *Decoder) readTypeDesc(mt memberType, at int) (TypeDesc, error) {
	switch mt {
	case mtPrimitive, mtPrimitiveArray:
		tc, err := d.cur.u8()
		if err != nil {
			return TypeDesc{}, err
		}
		return TypeDesc{Member: mt, Primitive: primitiveType(tc)}, nil
	case mtString, mtObject, mtObjectArray, mtStringArray:
		return TypeDesc{Member: mt}, nil
	case mtSystemClass:
		name, err := d.cur.lps()
		if err != nil {
			return TypeDesc{}, err
		}
		return TypeDesc{Member: mt, ClassName: name}, nil
	case mtClass:
		name, err := d.cur.lps()
		if err != nil {
			return TypeDesc{}, err
		}
		lib, err := d.cur.i32()
		if err != nil {
			return TypeDesc{}, err
		}
		return TypeDesc{Member: mt, ClassName: name, LibraryID: lib}, nil
	default:
		return TypeDesc{}, fmt.Errorf("member type %d at offset %d: %w", mt, at, ErrMalformed)
	}
}

// readClass decodes one of the four class-definition variants: member types
// inline or omitted, system or application class. The schema is registered
// under the record's object id before member values decode, then member
// values follow in declared order.
func (d *Decoder) readClass(withTypes, system bool) (step, error) {
	id, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	name, err := d.cur.lps()
	if err != nil {
		return step{}, err
	}
	at := d.cur.off
	count, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	if count < 0 {
		return step{}, fmt.Errorf("member count %d at offset %d: %w", count, at, ErrMalformed)
	}

	schema := &ClassSchema{Name: name}
	for i := int32(0); i < count; i++ {
		member, err := d.cur.lps()
		if err != nil {
			return step{}, err
		}
		schema.Members = append(schema.Members, member)
	}

	if withTypes {
		// Member type tags come first as a block, then the additional
		// info for each tag in the same order.
		tags := make([]memberType, 0, len(schema.Members))
		for range schema.Members {
			t, err := d.cur.u8()
			if err != nil {
				return step{}, err
			}
			tags = append(tags, memberType(t))
		}
		for _, t := range tags {
			td, err := d.readTypeDesc(t, d.cur.off)
			if err != nil {
				return step{}, err
			}
			schema.Types = append(schema.Types, td)
		}
	} else {
		// Without inline types every member decodes as a nested record.
		for range schema.Members {
			schema.Types = append(schema.Types, TypeDesc{Member: mtObject})
		}
	}

	if !system {
		// Trailing library id; consumed but not needed to locate the target.
		if _, err := d.cur.i32(); err != nil {
			return step{}, err
		}
	}

	d.schemas[id] = schema
	return d.readMembers(id, schema)
}

// readClassWithID decodes an object that reuses a previously registered
// schema by metadata id.
func (d *Decoder) readClassWithID(at int) (step, error) {
	id, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	metaID, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	schema, ok := d.schemas[metaID]
	if !ok {
		return step{}, fmt.Errorf("class at offset %d references schema id %d: %w", at, metaID, ErrUnknownSchema)
	}
	return d.readMembers(id, schema)
}

// readMembers decodes member values for schema in declared order and
// registers the completed object under id. Inline primitives read
// directly off the cursor; everything else decodes as a nested record.
// A null run of N fills exactly N member slots. The object enters the
// object table only once every member has decoded, so the salvage scan
// over the table sees completed objects only.
func (d *Decoder) readMembers(id int32, schema *ClassSchema) (step, error) {
	obj := &Object{
		ID:     id,
		Class:  schema.Name,
		Fields: make(map[string]Value, len(schema.Members)),
	}

	i := 0
	for i < len(schema.Members) {
		td := schema.Types[i]
		if td.Member == mtPrimitive {
			v, err := d.cur.primitive(td.Primitive)
			if err != nil {
				return step{}, err
			}
			d.assignField(obj, schema.Members[i], v)
			i++
			continue
		}

		at := d.cur.off
		st, err := d.readNested(at)
		if err != nil {
			return step{}, err
		}
		if st.end {
			return step{}, fmt.Errorf("end marker inside class %q at offset %d: %w", schema.Name, at, ErrMalformed)
		}
		if st.isRun {
			for k := 0; k < st.nullRun && i < len(schema.Members); k++ {
				d.assignField(obj, schema.Members[i], nullValue())
				i++
			}
			continue
		}
		d.assignField(obj, schema.Members[i], st.val)
		i++
	}

	v := Value{Kind: KindObject, Obj: obj}
	d.store(id, v)
	return step{val: v}, nil
}

// assignField records a member value and checks it against the target:
// the first text value longer than the plausibility threshold under the
// target name is captured and never overwritten.
func (d *Decoder) assignField(obj *Object, name string, v Value) {
	obj.Fields[name] = v
	if d.hasFound || name != d.target {
		return
	}
	if v.IsText(minPlausibleText) {
		d.found = v.Text
		d.hasFound = true
	}
}

// readBinaryArray decodes the general array record: array kind, rank,
// per-rank lengths, optional per-rank lower bounds, then one element type
// descriptor. Primitive elements are consumed as a single opaque run of
// count x width bytes; other element kinds decode count nested records.
func (d *Decoder) readBinaryArray(at int) (step, error) {
	id, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	kind, err := d.cur.u8()
	if err != nil {
		return step{}, err
	}
	rank, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	if rank < 0 {
		return step{}, fmt.Errorf("array rank %d at offset %d: %w", rank, at, ErrMalformed)
	}

	total := int64(1)
	for i := int32(0); i < rank; i++ {
		l, err := d.cur.i32()
		if err != nil {
			return step{}, err
		}
		if l < 0 {
			return step{}, fmt.Errorf("array length %d at offset %d: %w", l, at, ErrMalformed)
		}
		total *= int64(l)
		if total < 0 {
			return step{}, fmt.Errorf("array element count overflow at offset %d: %w", at, ErrMalformed)
		}
	}

	// Kinds 3, 4, 5 are the lower-bound offset variants.
	if kind >= 3 && kind <= 5 {
		for i := int32(0); i < rank; i++ {
			if _, err := d.cur.i32(); err != nil {
				return step{}, err
			}
		}
	}

	tag, err := d.cur.u8()
	if err != nil {
		return step{}, err
	}
	td, err := d.readTypeDesc(memberType(tag), d.cur.off)
	if err != nil {
		return step{}, err
	}

	if td.Member == mtPrimitive {
		return d.readPrimitiveRun(id, td.Primitive, total, at)
	}

	vals, err := d.readElements(total)
	if err != nil {
		return step{}, err
	}
	v := listValue(vals)
	d.store(id, v)
	return step{val: v}, nil
}

// readSingleArray decodes the three rank-1 array records.
func (d *Decoder) readSingleArray(rt recordType, at int) (step, error) {
	id, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	length, err := d.cur.i32()
	if err != nil {
		return step{}, err
	}
	if length < 0 {
		return step{}, fmt.Errorf("array length %d at offset %d: %w", length, at, ErrMalformed)
	}

	if rt == rtArrayPrimitive {
		tc, err := d.cur.u8()
		if err != nil {
			return step{}, err
		}
		return d.readPrimitiveRun(id, primitiveType(tc), int64(length), at)
	}

	vals, err := d.readElements(int64(length))
	if err != nil {
		return step{}, err
	}
	v := listValue(vals)
	d.store(id, v)
	return step{val: v}, nil
}

// readPrimitiveRun consumes count elements of a fixed-width primitive type
// as one opaque byte run. Content is never interpreted; only the byte
// length matters for cursor advancement. The count is checked against the
// remaining buffer before the byte-size multiply so declared sizes near
// the int64 limit cannot wrap.
func (d *Decoder) readPrimitiveRun(id int32, pt primitiveType, count int64, at int) (step, error) {
	w, ok := primitiveWidth(pt)
	if !ok {
		return step{}, fmt.Errorf("variable-width primitive %d as array element at offset %d: %w", pt, at, ErrMalformed)
	}
	if w > 0 && count > int64(d.cur.remaining())/int64(w) {
		return step{}, fmt.Errorf("need %d element(s) of width %d at offset %d, have %d byte(s): %w",
			count, w, at, d.cur.remaining(), ErrTruncated)
	}
	raw, err := d.cur.take(int(count * int64(w)))
	if err != nil {
		return step{}, err
	}
	v := bytesValue(raw)
	d.store(id, v)
	return step{val: v}, nil
}

// readElements decodes count nested records as array elements, honoring
// null-run compaction exactly as member decoding does.
func (d *Decoder) readElements(count int64) ([]Value, error) {
	var out []Value
	for int64(len(out)) < count {
		at := d.cur.off
		st, err := d.readNested(at)
		if err != nil {
			return nil, err
		}
		if st.end {
			return nil, fmt.Errorf("end marker inside array at offset %d: %w", at, ErrMalformed)
		}
		if st.isRun {
			for k := 0; k < st.nullRun && int64(len(out)) < count; k++ {
				out = append(out, nullValue())
			}
			continue
		}
		out = append(out, st.val)
	}
	return out, nil
}
