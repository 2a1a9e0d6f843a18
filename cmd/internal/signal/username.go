package signal

import (
	"unicode"
	"unicode/utf8"
)

// ValidUsername reports whether s is 3-20 letters or digits, counted in
// runes. Any Unicode letter or number is accepted. Names are case-sensitive
// and never trimmed or normalized.
func ValidUsername(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	n := utf8.RuneCountInString(s)
	if n < minUsernameLen || n > maxUsernameLen {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
