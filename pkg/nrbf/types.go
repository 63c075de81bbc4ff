package nrbf

// recordType is the one-byte tag that opens every record in the stream.
type recordType byte

const (
	rtHeader           recordType = 0  // stream header: root id + reserved block
	rtClassWithID      recordType = 1  // new object reusing a registered schema
	rtSystemClass      recordType = 2  // system class, member types omitted
	rtClass            recordType = 3  // application class, member types omitted
	rtSystemClassTyped recordType = 4  // system class with inline member types
	rtClassTyped       recordType = 5  // application class with inline member types
	rtString           recordType = 6  // inline string object
	rtBinaryArray      recordType = 7  // general array: jagged/rectangular/offset
	rtPrimitiveTyped   recordType = 8  // type code + primitive value
	rtReference        recordType = 9  // back-reference to an assigned object id
	rtNull             recordType = 10 // single null member
	rtEnd              recordType = 11 // terminal end marker
	rtLibrary          recordType = 12 // library declaration, transparent
	rtNullRun256       recordType = 13 // null run, one-byte count
	rtNullRun          recordType = 14 // null run, four-byte count
	rtArrayPrimitive   recordType = 15 // single-dimension primitive array
	rtArrayObject      recordType = 16 // single-dimension object array
	rtArrayString      recordType = 17 // single-dimension string array
)

// primitiveType is the type code carried by typed primitive values,
// inline-primitive member descriptors, and primitive array elements.
type primitiveType byte

const (
	ptBool     primitiveType = 1
	ptByte     primitiveType = 2
	ptChar     primitiveType = 3 // one UTF-16 code unit, kept as an unsigned 16-bit value
	ptDecimal  primitiveType = 5 // stored as its textual representation
	ptFloat64  primitiveType = 6
	ptInt16    primitiveType = 7
	ptInt32    primitiveType = 8
	ptInt64    primitiveType = 9
	ptInt8     primitiveType = 10
	ptFloat32  primitiveType = 11
	ptTimeSpan primitiveType = 12 // tick count, opaque 64-bit
	ptDateTime primitiveType = 13 // tick count, opaque 64-bit
	ptUint16   primitiveType = 14
	ptUint32   primitiveType = 15
	ptUint64   primitiveType = 16
	ptNull     primitiveType = 17
	ptString   primitiveType = 18
)

// primitiveWidth returns the fixed byte width of a primitive type code.
// Variable-width codes (decimal, string) and unknown codes report ok=false.
func primitiveWidth(pt primitiveType) (int, bool) {
	switch pt {
	case ptBool, ptByte, ptInt8:
		return 1, true
	case ptChar, ptInt16, ptUint16:
		return 2, true
	case ptInt32, ptUint32, ptFloat32:
		return 4, true
	case ptInt64, ptUint64, ptFloat64, ptTimeSpan, ptDateTime:
		return 8, true
	case ptNull:
		return 0, true
	default:
		return 0, false
	}
}

// memberType classifies a member type descriptor.
type memberType byte

const (
	mtPrimitive      memberType = 0 // inline primitive, carries a type code
	mtString         memberType = 1
	mtObject         memberType = 2 // any nested record
	mtSystemClass    memberType = 3 // carries a class name
	mtClass          memberType = 4 // carries a class name and library id
	mtObjectArray    memberType = 5
	mtStringArray    memberType = 6
	mtPrimitiveArray memberType = 7 // carries an element type code
)

// TypeDesc describes how to decode the next record (or inline bytes) for
// one member slot.
type TypeDesc struct {
	Member    memberType
	Primitive primitiveType // set for mtPrimitive and mtPrimitiveArray
	ClassName string        // set for mtSystemClass and mtClass
	LibraryID int32         // set for mtClass
}

// ClassSchema is a registered class layout: name plus ordered member
// names and type descriptors. Immutable once registered.
type ClassSchema struct {
	Name    string
	Members []string
	Types   []TypeDesc
}

// Kind discriminates the closed set of decoded value shapes.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindText
	KindBytes   // opaque primitive-array run, content never interpreted
	KindRef     // back-reference, resolved lazily against the object table
	KindObject  // decoded class instance
	KindList    // object/string array body
	KindMissing // resolver sentinel for an id with no table entry
)

// Value is one decoded value. Exactly the field selected by Kind is
// meaningful; integer widths are folded into the 64-bit fields because
// nothing downstream consumes them.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Text  string
	Bytes []byte
	Ref   int32
	Obj   *Object
	List  []Value
}

// IsText reports whether v is a text value of more than n bytes.
func (v Value) IsText(n int) bool {
	return v.Kind == KindText && len(v.Text) > n
}

// Object is a decoded class instance: its session-unique id, class name,
// and member values keyed by member name.
type Object struct {
	ID     int32
	Class  string
	Fields map[string]Value
}

func nullValue() Value           { return Value{Kind: KindNull} }
func textValue(s string) Value   { return Value{Kind: KindText, Text: s} }
func refValue(id int32) Value    { return Value{Kind: KindRef, Ref: id} }
func missingValue() Value        { return Value{Kind: KindMissing} }
func bytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func listValue(vs []Value) Value { return Value{Kind: KindList, List: vs} }
