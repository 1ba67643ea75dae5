package fsm

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^(\+380\d{9}|0\d{9})$`)

// NormalizePhone strips separators and validates a Ukrainian phone number in
// the 0XXXXXXXXX or +380XXXXXXXXX form.
func NormalizePhone(raw string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if !phonePattern.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}
