package codec

import (
	"errors"
	"strings"
)

// DefaultDelimiter separates parameters in the string handed to the
// metadata resolver procedures. The backend splits on it.
const DefaultDelimiter = "\u2502" // │

var ErrDelimiterInValue = errors.New("value contains the parameter delimiter")

// JoinParams serializes escaped parameter values for metadata resolution.
// A value holding the delimiter would shift every later position, so it is
// rejected instead of joined.
func JoinParams(values []string, delim string) (string, error) {
	if delim == "" {
		delim = DefaultDelimiter
	}
	for _, v := range values {
		if strings.Contains(v, delim) {
			return "", ErrDelimiterInValue
		}
	}
	return strings.Join(values, delim), nil
}

// ValidDelimiter reports whether delim is usable: non-empty, and neither an
// escape glyph nor a character the escaper rewrites.
func ValidDelimiter(delim string) bool {
	if delim == "" {
		return false
	}
	if Escape(delim) != delim || ContainsGlyph(delim) {
		return false
	}
	return true
}
