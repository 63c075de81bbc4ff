// Package carve recovers compressed payloads embedded at unknown offsets
// inside opaque container files. It brute-forces decompression from every
// byte position that looks like a stream start and keeps the first result
// whose plaintext contains a recognized anchor.
package carve

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zlibMagics = [][]byte{
		{0x78, 0x9c}, // default compression
		{0x78, 0x01}, // no/low compression
		{0x78, 0xda}, // best compression
	}
)

// Scan hunts for a compressed payload anywhere in data. It tries gzip at
// every gzip magic offset, then zlib at every offset of each zlib prefix.
// A candidate counts only when it decompresses cleanly and the output
// contains at least one anchor; decompression failures just move the scan
// one byte past the candidate. The second result is false when no
// candidate anywhere in data produces anchored output.
func Scan(data []byte, anchors []string) (string, bool) {
	if out, ok := scanFrom(data, gzipMagic, inflateGzip, anchors); ok {
		return out, true
	}
	for _, magic := range zlibMagics {
		if out, ok := scanFrom(data, magic, inflateZlib, anchors); ok {
			return out, true
		}
	}
	return "", false
}

func scanFrom(data, magic []byte, inflate func([]byte) ([]byte, error), anchors []string) (string, bool) {
	pos := 0
	for {
		i := bytes.Index(data[pos:], magic)
		if i < 0 {
			return "", false
		}
		at := pos + i
		if dec, err := inflate(data[at:]); err == nil && anchored(dec, anchors) {
			return string(dec), true
		}
		pos = at + 1
	}
}

func anchored(dec []byte, anchors []string) bool {
	for _, a := range anchors {
		if bytes.Contains(dec, []byte(a)) {
			return true
		}
	}
	return false
}

// inflateGzip reads one gzip member starting at the head of b. Multistream
// is off so container bytes after the member do not fail the read.
func inflateGzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	zr.Multistream(false)
	return io.ReadAll(zr)
}

// inflateZlib reads one zlib stream starting at the head of b. The reader
// stops at the stream end, so trailing container bytes are ignored.
func inflateZlib(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
