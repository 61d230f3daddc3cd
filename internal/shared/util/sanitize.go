package util

import (
	"errors"
	"strings"
	"unicode"
)

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName flattens path separators and drops control characters so a
// client-supplied name is safe to echo in headers.
func SanitizeFileName(name string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if s == "" || s == "." || s == ".." {
		return "", errInvalidFileName
	}
	return s, nil
}
