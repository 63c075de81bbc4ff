package nrbf

import (
	"errors"
	"strings"
	"testing"
)

func TestRunCapturesTargetMember(t *testing.T) {
	body := strings.Repeat("<Line/>", 20)

	var sb streamBuilder
	sb.header(1)
	sb.library(2, "Reporting.Core")
	sb.classTyped(1, "ReportDoc", 2,
		memberSpec{name: "Version", mt: mtPrimitive, prim: ptInt32},
		memberSpec{name: "Body", mt: mtString},
	)
	sb.rawi32(7) // Version
	sb.stringRec(3, body)
	sb.end()

	d := NewDecoder(sb.data(), "Body")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := d.Found()
	if !ok {
		t.Fatal("expected a captured value")
	}
	if got != body {
		t.Fatalf("Found = %q, want %q", got, body)
	}
	if d.RootID() != 1 {
		t.Fatalf("RootID = %d, want 1", d.RootID())
	}

	libs := d.Libraries()
	if len(libs) != 1 || libs[0].ID != 2 || libs[0].Name != "Reporting.Core" {
		t.Fatalf("Libraries = %+v", libs)
	}
	classes := d.Classes()
	if len(classes) != 1 || classes[0].Name != "ReportDoc" || classes[0].Members != 2 {
		t.Fatalf("Classes = %+v", classes)
	}
}

func TestRunCaptureIsWriteOnce(t *testing.T) {
	first := strings.Repeat("a", 150)
	second := strings.Repeat("b", 150)

	// Both documents sit inside one outer record, so the second Body
	// assignment happens before the capture check can stop the walk.
	var sb streamBuilder
	sb.classTyped(1, "Pair", 9,
		memberSpec{name: "L", mt: mtObject},
		memberSpec{name: "R", mt: mtObject},
	)
	sb.classTyped(2, "Doc", 9, memberSpec{name: "Body", mt: mtString})
	sb.stringRec(3, first)
	sb.classWithID(4, 2)
	sb.stringRec(5, second)
	sb.end()

	d := NewDecoder(sb.data(), "Body")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, _ := d.Found(); got != first {
		t.Fatalf("Found = %q, want first value", got)
	}
	if got := d.objects[4].Obj.Fields["Body"].Text; got != second {
		t.Fatalf("second Body = %q, want %q", got, second)
	}
}

func TestRunStopsAfterCapture(t *testing.T) {
	body := strings.Repeat("x", 120)

	var sb streamBuilder
	sb.classTyped(1, "Doc", 9, memberSpec{name: "Body", mt: mtString})
	sb.stringRec(2, body)
	sb.raw(0xee, 0xee, 0xee) // never reached

	d := NewDecoder(sb.data(), "Body")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := d.Found(); !ok {
		t.Fatal("expected a captured value")
	}
}

func TestNullRunFillsExactSlots(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9,
		memberSpec{name: "A", mt: mtObject},
		memberSpec{name: "B", mt: mtObject},
		memberSpec{name: "C", mt: mtObject},
		memberSpec{name: "D", mt: mtObject},
		memberSpec{name: "E", mt: mtObject},
	)
	sb.nullRun(3)
	sb.stringRec(2, "value")
	sb.null()
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := d.objects[1].Obj
	for _, name := range []string{"A", "B", "C", "E"} {
		if got := obj.Fields[name].Kind; got != KindNull {
			t.Fatalf("field %s Kind = %d, want KindNull", name, got)
		}
	}
	if got := obj.Fields["D"]; got.Kind != KindText || got.Text != "value" {
		t.Fatalf("field D = %+v, want text %q", got, "value")
	}
}

func TestNullRunOfZeroFillsNoSlot(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Only", mt: mtObject})
	sb.nullRun(0)
	sb.stringRec(2, "kept")
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[1].Obj.Fields["Only"]
	if got.Kind != KindText || got.Text != "kept" {
		t.Fatalf("field Only = %+v, want text %q", got, "kept")
	}
}

func TestNullRunOverflowIsDiscarded(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Pair", 9,
		memberSpec{name: "A", mt: mtObject},
		memberSpec{name: "B", mt: mtObject},
	)
	sb.nullRun256(200)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := d.objects[1].Obj
	if obj.Fields["A"].Kind != KindNull || obj.Fields["B"].Kind != KindNull {
		t.Fatalf("fields = %+v, want both null", obj.Fields)
	}
}

func TestNegativeNullRunMalformed(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Only", mt: mtObject})
	sb.raw(byte(rtNullRun))
	sb.rawi32(-5)

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Run error = %v, want ErrMalformed", err)
	}
}

func TestClassWithIDReusesSchema(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Doc", 9, memberSpec{name: "Body", mt: mtString})
	sb.stringRec(2, "first")
	sb.classWithID(3, 1)
	sb.stringRec(4, "second")
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.ObjectCount() != 4 {
		t.Fatalf("ObjectCount = %d, want 4", d.ObjectCount())
	}
	reused := d.objects[3].Obj
	if reused.Class != "Doc" {
		t.Fatalf("reused class = %q, want %q", reused.Class, "Doc")
	}
	if got := reused.Fields["Body"]; got.Text != "second" {
		t.Fatalf("reused Body = %+v, want text %q", got, "second")
	}
}

func TestClassWithIDUnknownSchema(t *testing.T) {
	var sb streamBuilder
	sb.classWithID(3, 99)

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("Run error = %v, want ErrUnknownSchema", err)
	}
}

func TestUnknownRecordTag(t *testing.T) {
	var sb streamBuilder
	sb.raw(0x2a)

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("Run error = %v, want ErrUnknownRecord", err)
	}
}

func TestEndMarkerInsideMembersMalformed(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Only", mt: mtObject})
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Run error = %v, want ErrMalformed", err)
	}
}

func TestLibraryTransparentInsideMembers(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Payload", mt: mtObject})
	sb.library(3, "Late.Lib")
	sb.stringRec(4, "v")
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.objects[1].Obj.Fields["Payload"]; got.Text != "v" {
		t.Fatalf("Payload = %+v, want text %q", got, "v")
	}
	libs := d.Libraries()
	if len(libs) != 1 || libs[0].Name != "Late.Lib" {
		t.Fatalf("Libraries = %+v", libs)
	}
}

func TestClassUntypedMembersDecodeAsRecords(t *testing.T) {
	var sb streamBuilder
	sb.classPlain(1, "Legacy", 9, "First", "Second")
	sb.stringRec(2, "a")
	sb.null()
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := d.objects[1].Obj
	if obj.Fields["First"].Text != "a" || obj.Fields["Second"].Kind != KindNull {
		t.Fatalf("fields = %+v", obj.Fields)
	}
}

func TestInlinePrimitiveMembers(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Numbers", 9,
		memberSpec{name: "N", mt: mtPrimitive, prim: ptInt32},
		memberSpec{name: "Flag", mt: mtPrimitive, prim: ptBool},
		memberSpec{name: "When", mt: mtPrimitive, prim: ptDateTime},
	)
	sb.rawi32(-7)
	sb.raw(1)
	sb.raw(0, 0, 0, 0, 0, 0, 0, 0)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	obj := d.objects[1].Obj
	if got := obj.Fields["N"]; got.Kind != KindInt || got.Int != -7 {
		t.Fatalf("N = %+v, want -7", got)
	}
	if got := obj.Fields["Flag"]; got.Kind != KindBool || !got.Bool {
		t.Fatalf("Flag = %+v, want true", got)
	}
	if got := obj.Fields["When"]; got.Kind != KindInt || got.Int != 0 {
		t.Fatalf("When = %+v, want 0", got)
	}
}

func TestPrimitiveTypedRecord(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Count", mt: mtObject})
	sb.raw(byte(rtPrimitiveTyped), byte(ptInt32))
	sb.rawi32(41)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.objects[1].Obj.Fields["Count"]; got.Kind != KindInt || got.Int != 41 {
		t.Fatalf("Count = %+v, want 41", got)
	}
}

func TestReferenceMemberStaysLazy(t *testing.T) {
	var sb streamBuilder
	sb.classTyped(1, "Holder", 9, memberSpec{name: "Link", mt: mtObject})
	sb.ref(42)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[1].Obj.Fields["Link"]
	if got.Kind != KindRef || got.Ref != 42 {
		t.Fatalf("Link = %+v, want reference to 42", got)
	}
}

func TestBinaryArrayRectangularPrimitive(t *testing.T) {
	var sb streamBuilder
	sb.binaryArray(4, 2, []int32{2, 3}, nil, memberSpec{mt: mtPrimitive, prim: ptInt32})
	sb.raw(make([]byte, 24)...)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[4]
	if got.Kind != KindBytes || len(got.Bytes) != 24 {
		t.Fatalf("array value = kind %d len %d, want 24 opaque bytes", got.Kind, len(got.Bytes))
	}
}

func TestBinaryArrayWithLowerBounds(t *testing.T) {
	var sb streamBuilder
	sb.binaryArray(4, 3, []int32{2}, []int32{1}, memberSpec{mt: mtString})
	sb.stringRec(5, "a")
	sb.stringRec(6, "b")
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[4]
	if got.Kind != KindList || len(got.List) != 2 {
		t.Fatalf("array value = kind %d len %d, want 2 elements", got.Kind, len(got.List))
	}
	if got.List[0].Text != "a" || got.List[1].Text != "b" {
		t.Fatalf("elements = %+v", got.List)
	}
}

func TestBinaryArrayVarWidthElementMalformed(t *testing.T) {
	var sb streamBuilder
	sb.binaryArray(4, 1, []int32{2}, nil, memberSpec{mt: mtPrimitive, prim: ptString})

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Run error = %v, want ErrMalformed", err)
	}
}

func TestBinaryArrayNegativeLengthMalformed(t *testing.T) {
	var sb streamBuilder
	sb.binaryArray(4, 1, []int32{-3}, nil, memberSpec{mt: mtString})

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Run error = %v, want ErrMalformed", err)
	}
}

func TestBinaryArrayHugeRunTruncated(t *testing.T) {
	// Per-rank lengths whose element count passes the product check but
	// whose byte size wraps int64 when multiplied by the element width.
	cases := []struct {
		name    string
		lengths []int32
	}{
		{name: "byte size wraps to zero", lengths: []int32{1 << 21, 1 << 20, 1 << 20}},
		{name: "byte size wraps negative", lengths: []int32{1 << 20, 1 << 20, 1 << 20}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sb streamBuilder
			sb.binaryArray(4, 2, tc.lengths, nil, memberSpec{mt: mtPrimitive, prim: ptInt64})
			sb.end()

			d := NewDecoder(sb.data(), "none")
			if err := d.Run(); !errors.Is(err, ErrTruncated) {
				t.Fatalf("Run error = %v, want ErrTruncated", err)
			}
			if d.ObjectCount() != 0 {
				t.Fatalf("ObjectCount = %d, want 0", d.ObjectCount())
			}
		})
	}
}

func TestRunawayNestingMalformed(t *testing.T) {
	// Each class's single member is the next class record, so the stream
	// nests one level per header.
	var sb streamBuilder
	for i := 0; i < maxNestingDepth+10; i++ {
		sb.classTyped(int32(i+1), "Node", 9, memberSpec{name: "Child", mt: mtObject})
	}
	sb.null()
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Run error = %v, want ErrMalformed", err)
	}
}

func TestNestingBelowBoundDecodes(t *testing.T) {
	var sb streamBuilder
	const levels = 64
	for i := 0; i < levels; i++ {
		sb.classTyped(int32(i+1), "Node", 9, memberSpec{name: "Child", mt: mtObject})
	}
	sb.null()
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.ObjectCount(); got != levels {
		t.Fatalf("ObjectCount = %d, want %d", got, levels)
	}
}

func TestSingleArrayPrimitiveOpaque(t *testing.T) {
	var sb streamBuilder
	sb.arrayPrimitive(3, 4, ptFloat64)
	sb.raw(make([]byte, 32)...)
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[3]
	if got.Kind != KindBytes || len(got.Bytes) != 32 {
		t.Fatalf("array value = kind %d len %d, want 32 opaque bytes", got.Kind, len(got.Bytes))
	}
}

func TestSingleArrayObjectNullRunCompaction(t *testing.T) {
	var sb streamBuilder
	sb.arrayObject(2, 5)
	sb.nullRun256(3)
	sb.stringRec(9, "s")
	sb.null()
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := d.objects[2]
	if got.Kind != KindList || len(got.List) != 5 {
		t.Fatalf("array value = kind %d len %d, want 5 elements", got.Kind, len(got.List))
	}
	for i := 0; i < 3; i++ {
		if got.List[i].Kind != KindNull {
			t.Fatalf("element %d Kind = %d, want KindNull", i, got.List[i].Kind)
		}
	}
	if got.List[3].Text != "s" || got.List[4].Kind != KindNull {
		t.Fatalf("elements = %+v", got.List)
	}
}

func TestStringRecordEntersObjectTable(t *testing.T) {
	var sb streamBuilder
	sb.stringRec(7, "hello")
	sb.end()

	d := NewDecoder(sb.data(), "none")
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.objects[7]; got.Kind != KindText || got.Text != "hello" {
		t.Fatalf("objects[7] = %+v, want text %q", got, "hello")
	}
}

func TestTruncatedStream(t *testing.T) {
	var sb streamBuilder
	sb.stringRec(1, "hello world")
	data := sb.data()

	d := NewDecoder(data[:5], "none")
	if err := d.Run(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("Run error = %v, want ErrTruncated", err)
	}
}

// streamBuilder assembles synthetic record streams for tests. Methods
// append one record each; data returns the accumulated bytes.
type streamBuilder struct {
	buf []byte
}

// memberSpec describes one member for classTyped: its name, member type
// tag, and the extra info the tag requires.
type memberSpec struct {
	name  string
	mt    memberType
	prim  primitiveType // for mtPrimitive / mtPrimitiveArray
	class string        // for mtSystemClass / mtClass
	lib   int32         // for mtClass
}

func (sb *streamBuilder) data() []byte { return sb.buf }

func (sb *streamBuilder) raw(bs ...byte) { sb.buf = append(sb.buf, bs...) }

func (sb *streamBuilder) rawi32(v int32) {
	u := uint32(v)
	sb.raw(byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

func (sb *streamBuilder) rawstr(s string) {
	n := len(s)
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			sb.raw(c)
			break
		}
		sb.raw(c | 0x80)
	}
	sb.buf = append(sb.buf, s...)
}

func (sb *streamBuilder) header(root int32) {
	sb.raw(byte(rtHeader))
	sb.rawi32(root)
	sb.rawi32(-1) // header id
	sb.rawi32(1)  // major
	sb.rawi32(0)  // minor
}

func (sb *streamBuilder) library(id int32, name string) {
	sb.raw(byte(rtLibrary))
	sb.rawi32(id)
	sb.rawstr(name)
}

func (sb *streamBuilder) end() { sb.raw(byte(rtEnd)) }

func (sb *streamBuilder) null() { sb.raw(byte(rtNull)) }

func (sb *streamBuilder) nullRun256(n byte) {
	sb.raw(byte(rtNullRun256), n)
}

func (sb *streamBuilder) nullRun(n int32) {
	sb.raw(byte(rtNullRun))
	sb.rawi32(n)
}

func (sb *streamBuilder) stringRec(id int32, s string) {
	sb.raw(byte(rtString))
	sb.rawi32(id)
	sb.rawstr(s)
}

func (sb *streamBuilder) ref(id int32) {
	sb.raw(byte(rtReference))
	sb.rawi32(id)
}

func (sb *streamBuilder) memberExtra(m memberSpec) {
	switch m.mt {
	case mtPrimitive, mtPrimitiveArray:
		sb.raw(byte(m.prim))
	case mtSystemClass:
		sb.rawstr(m.class)
	case mtClass:
		sb.rawstr(m.class)
		sb.rawi32(m.lib)
	}
}

// classTyped emits an application class with inline member types followed
// by the trailing library id. Member values must be appended afterwards.
func (sb *streamBuilder) classTyped(id int32, name string, libID int32, members ...memberSpec) {
	sb.raw(byte(rtClassTyped))
	sb.rawi32(id)
	sb.rawstr(name)
	sb.rawi32(int32(len(members)))
	for _, m := range members {
		sb.rawstr(m.name)
	}
	for _, m := range members {
		sb.raw(byte(m.mt))
	}
	for _, m := range members {
		sb.memberExtra(m)
	}
	sb.rawi32(libID)
}

// classPlain emits an application class without member types; every member
// decodes as a nested record.
func (sb *streamBuilder) classPlain(id int32, name string, libID int32, members ...string) {
	sb.raw(byte(rtClass))
	sb.rawi32(id)
	sb.rawstr(name)
	sb.rawi32(int32(len(members)))
	for _, m := range members {
		sb.rawstr(m)
	}
	sb.rawi32(libID)
}

func (sb *streamBuilder) classWithID(id, metaID int32) {
	sb.raw(byte(rtClassWithID))
	sb.rawi32(id)
	sb.rawi32(metaID)
}

// binaryArray emits the general array record header; element payload
// follows separately.
func (sb *streamBuilder) binaryArray(id int32, kind byte, lengths, bounds []int32, elem memberSpec) {
	sb.raw(byte(rtBinaryArray))
	sb.rawi32(id)
	sb.raw(kind)
	sb.rawi32(int32(len(lengths)))
	for _, l := range lengths {
		sb.rawi32(l)
	}
	for _, b := range bounds {
		sb.rawi32(b)
	}
	sb.raw(byte(elem.mt))
	sb.memberExtra(elem)
}

func (sb *streamBuilder) arrayPrimitive(id, n int32, pt primitiveType) {
	sb.raw(byte(rtArrayPrimitive))
	sb.rawi32(id)
	sb.rawi32(n)
	sb.raw(byte(pt))
}

func (sb *streamBuilder) arrayObject(id, n int32) {
	sb.raw(byte(rtArrayObject))
	sb.rawi32(id)
	sb.rawi32(n)
}
