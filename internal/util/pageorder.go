package util

import (
	"cmp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PageNameLess orders archive entry names the way a reader expects pages
// to follow each other. Digit runs compare by value whatever their length
// or zero padding, letters compare without case, and path separators sort
// before anything else so the pages of one folder stay together.
func PageNameLess(a, b string) bool {
	return ComparePageNames(a, b) < 0
}

// ComparePageNames is the three-way form of PageNameLess. Names that only
// differ in case or padding still get a stable order.
func ComparePageNames(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			ei, ej := digitEnd(a, i), digitEnd(b, j)
			if c := compareDigits(a[i:ei], b[j:ej]); c != 0 {
				return c
			}
			i, j = ei, ej
			continue
		}
		ra, na := utf8.DecodeRuneInString(a[i:])
		rb, nb := utf8.DecodeRuneInString(b[j:])
		if c := cmp.Compare(runeRank(ra), runeRank(rb)); c != 0 {
			return c
		}
		i += na
		j += nb
	}
	if c := cmp.Compare(len(a)-i, len(b)-j); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func digitEnd(s string, start int) int {
	end := start
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	return end
}

// compareDigits compares two digit runs by value without parsing them, so
// long scan numbers cannot overflow.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if c := cmp.Compare(len(x), len(y)); c != 0 {
		return c
	}
	return strings.Compare(x, y)
}

// runeRank puts separators first, then digits, then everything else
// case-folded.
func runeRank(r rune) rune {
	switch {
	case r == '/' || r == '\\':
		return -2
	case r >= '0' && r <= '9':
		return -1
	}
	return unicode.ToLower(r)
}
