// Package normalize cleans user-facing names derived from catalog data.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BaseName returns the last path component of ref, treating both '/' and '\'
// as separators. Stored references are never trusted to carry a directory.
func BaseName(ref string) string {
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimSpace(ref)
}

// FileName builds the download file name "<title> - <author>.<ext>".
//
// The result is NFC-normalized, path separators and control characters are
// replaced, and runs of whitespace collapse to one space. An empty author
// drops the " - " part; an empty title falls back to "book".
func FileName(title, author, ext string) string {
	title = component(title)
	author = component(author)
	if title == "" {
		title = "book"
	}

	name := title
	if author != "" {
		name += " - " + author
	}
	if ext != "" {
		name += "." + strings.ToLower(ext)
	}
	return name
}

func component(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
