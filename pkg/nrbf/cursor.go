package nrbf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// cursor is a bounds-checked reader over the in-memory container buffer.
// Every read fails with ErrTruncated when fewer bytes remain than the
// requested width; the offset is left unchanged on failure so error
// messages can report where the stream gave out.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

// take returns the next n bytes without copying and advances the cursor.
func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, fmt.Errorf("need %d byte(s) at offset %d, have %d: %w", n, c.off, c.remaining(), ErrTruncated)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u8() (byte, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

// varLen reads the 7-bits-per-byte length prefix used by strings. The high
// bit of each byte signals continuation; at most five bytes encode a length.
func (c *cursor) varLen() (int, error) {
	var v uint64
	for i := 0; i < 5; i++ {
		b, err := c.u8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("length prefix exceeds 5 bytes at offset %d: %w", c.off, ErrMalformed)
}

// lps reads a length-prefixed UTF-8 string.
func (c *cursor) lps() (string, error) {
	n, err := c.varLen()
	if err != nil {
		return "", err
	}
	b, err := c.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// primitive decodes one value of the given primitive type code at the
// cursor. Fixed-width values are read little-endian; decimal and string
// are read as length-prefixed text; null consumes nothing.
func (c *cursor) primitive(pt primitiveType) (Value, error) {
	switch pt {
	case ptBool:
		b, err := c.u8()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBool, Bool: b != 0}, nil
	case ptByte:
		b, err := c.u8()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindUint, Uint: uint64(b)}, nil
	case ptChar, ptUint16:
		v, err := c.u16()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindUint, Uint: uint64(v)}, nil
	case ptUint32:
		v, err := c.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindUint, Uint: uint64(v)}, nil
	case ptUint64:
		v, err := c.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindUint, Uint: v}, nil
	case ptInt8:
		b, err := c.u8()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(int8(b))}, nil
	case ptInt16:
		v, err := c.u16()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(int16(v))}, nil
	case ptInt32:
		v, err := c.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(int32(v))}, nil
	case ptInt64, ptTimeSpan, ptDateTime:
		v, err := c.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: int64(v)}, nil
	case ptFloat32:
		v, err := c.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: float64(math.Float32frombits(v))}, nil
	case ptFloat64:
		v, err := c.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: math.Float64frombits(v)}, nil
	case ptDecimal, ptString:
		s, err := c.lps()
		if err != nil {
			return Value{}, err
		}
		return textValue(s), nil
	case ptNull:
		return nullValue(), nil
	default:
		return Value{}, fmt.Errorf("primitive type %d at offset %d: %w", pt, c.off, ErrMalformed)
	}
}
