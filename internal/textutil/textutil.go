// Package textutil holds the character-counting helpers shared by every budgeted stage.
// Lengths are in runes so truncation never splits a UTF-8 sequence.
package textutil

import "unicode/utf8"

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Head returns the first n characters of s.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Truncate keeps the first limit characters and appends marker when s is longer than limit.
// A non-positive limit disables truncation.
func Truncate(s string, limit int, marker string) string {
	if limit <= 0 || Len(s) <= limit {
		return s
	}
	return Head(s, limit) + marker
}
