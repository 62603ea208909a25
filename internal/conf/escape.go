package conf

import (
	"fmt"
	"strings"
)

// isPlain reports whether every rune of s is in [0-9A-Za-z]. Plain
// strings are stored as-is; everything else goes through Escape.
func isPlain(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return true
}

// Escape turns arbitrary text into a key-safe token consisting only of
// [0-9A-Za-z_]. Strings made solely of [0-9A-Za-z] are returned
// unchanged; any other rune r becomes "_XXXX" (four lowercase hex
// digits) or "_uXXXXXXXX" for runes above U+FFFF. The underscore is
// always escaped, which keeps the mapping reversible.
func Escape(s string) string {
	if isPlain(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r > 0xffff:
			fmt.Fprintf(&b, "_u%08x", r)
		default:
			fmt.Fprintf(&b, "_%04x", r)
		}
	}
	return b.String()
}

// Unescape inverts Escape. It fails on truncated or malformed escape
// sequences, which only occur if the stored key was corrupted.
func Unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '_') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '_' {
			b.WriteRune(r)
			continue
		}
		width := 4
		if i+1 < len(runes) && runes[i+1] == 'u' {
			i++
			width = 8
		}
		if i+width >= len(runes) {
			return "", fmt.Errorf("conf: truncated escape in %q", s)
		}
		var code rune
		for _, h := range runes[i+1 : i+1+width] {
			v := hexVal(h)
			if v < 0 {
				return "", fmt.Errorf("conf: invalid escape digit %q in %q", h, s)
			}
			code = code<<4 | rune(v)
		}
		b.WriteRune(code)
		i += width
	}
	return b.String(), nil
}

func hexVal(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return -1
	}
}
