package client

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns arbitrarily split byte segments into text. Incomplete
// multi-byte sequences at the end of a segment are held back until the next
// segment completes them; ill-formed input becomes U+FFFD.
type textDecoder struct {
	t   transform.Transformer
	src []byte
	dst []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode consumes p and returns the text it completes. With atEOF set any
// held-back bytes are flushed as replacement characters.
func (d *textDecoder) Decode(p []byte, atEOF bool) (string, error) {
	d.src = append(d.src, p...)

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, d.src, atEOF)
		out.Write(d.dst[:nDst])
		d.src = d.src[nSrc:]

		switch {
		case err == nil:
			return out.String(), nil
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc) && !atEOF:
			return out.String(), nil
		default:
			return out.String(), err
		}
	}
}
