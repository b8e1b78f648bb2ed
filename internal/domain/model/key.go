package model

import (
	"strings"
	"unicode"
)

// Realtime Database key limits.
const (
	MaxKeyBytes       = 768
	forbiddenKeyChars = ".$#[]/"
)

// ValidKey reports whether s can be used as a Realtime Database path
// segment. User ids and event ids both become path segments.
func ValidKey(s string) bool {
	if s == "" || len(s) > MaxKeyBytes || strings.ContainsAny(s, forbiddenKeyChars) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
