package codegen

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pkt.systems/codeforge/schema"
)

// textDecoder turns network chunks into text. A multi-byte sequence split
// across chunks is held back until the rest of it arrives.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

func newTextDecoder(strict bool) *textDecoder {
	var t transform.Transformer = unicode.UTF8.NewDecoder()
	if strict {
		t = encoding.UTF8Validator
	}
	t.Reset()
	return &textDecoder{t: t}
}

// Decode returns the text completed by chunk. atEOF flushes any held-back
// bytes; an incomplete trailing sequence then decodes as U+FFFD (or fails in
// strict mode).
func (d *textDecoder) Decode(chunk []byte, atEOF bool) (string, error) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return "", nil
	}
	if need := 3*len(src) + utf8.UTFMax; cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	dst := d.buf[:cap(d.buf)]
	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
			return string(out), nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		case errors.Is(err, transform.ErrShortSrc) && !atEOF:
			d.pending = append([]byte(nil), src...)
			return string(out), nil
		default:
			return string(out), &schema.StreamDecodeError{Line: append([]byte(nil), src...), Err: err}
		}
	}
}
