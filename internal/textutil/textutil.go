// Package textutil turns raw process output into valid UTF-8 text.
package textutil

import (
	"io"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Decode returns b as a string with ill-formed UTF-8 replaced by U+FFFD.
func Decode(b []byte) string {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// NewReader wraps r so that ill-formed UTF-8 is replaced while streaming.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, runes.ReplaceIllFormed())
}
