package pstool

import "fmt"

// Trim bounds s to max characters, annotating exactly how many were removed.
// Counting is by code point, not byte, so multi-byte output is not split or
// miscounted.
func Trim(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + fmt.Sprintf("\n...[trimmed %d chars]", len(r)-max)
}
