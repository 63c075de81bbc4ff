package nrbf

import "errors"

// ErrTruncated reports that the stream ended before a record's declared
// width or length could be read. It is benign when a target value has
// already been captured and fatal otherwise.
var ErrTruncated = errors.New("truncated stream")

// ErrUnknownRecord reports an unrecognized record tag byte. Fatal to the
// decode session.
var ErrUnknownRecord = errors.New("unknown record type")

// ErrUnknownSchema reports a class-by-id record naming a schema id that was
// never registered. Fatal to the decode session.
var ErrUnknownSchema = errors.New("unregistered schema reference")

// ErrMalformed reports a structurally invalid declaration that is neither
// truncation nor an unknown tag: a length varint over five bytes, an
// unrecognized primitive type code, or a variable-width primitive used as a
// fixed-width array element. Fatal to the decode session.
var ErrMalformed = errors.New("malformed record")

// ErrFieldNotFound reports that a complete decode (including the salvage
// scan over the object table) produced no plausible value for the
// requested field.
var ErrFieldNotFound = errors.New("field not found")
