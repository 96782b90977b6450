package util

import (
	"regexp"
	"strings"
	"unicode"
)

var nonDigitPattern = regexp.MustCompile(`\D`)

const phoneCountryPrefix = "+420"

// FormatPhone renders nine national digits as "+420 ddd ddd ddd". Inputs that
// do not hold exactly nine digits (after an optional 420 prefix) are returned
// trimmed and otherwise untouched.
func FormatPhone(input string) string {
	digits := nonDigitPattern.ReplaceAllString(input, "")
	if len(digits) == 12 && strings.HasPrefix(digits, "420") {
		digits = digits[3:]
	}
	if len(digits) != 9 {
		return strings.TrimSpace(input)
	}
	return phoneCountryPrefix + " " + digits[:3] + " " + digits[3:6] + " " + digits[6:]
}

// EmailLocalPart keeps the letters and digits of a display name, lowercased.
func EmailLocalPart(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
