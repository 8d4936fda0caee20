package utils

import (
	"regexp"
	"strings"
)

var (
	rePhoneAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)\.]+$`)
	// + followed by 8..15 digits, no leading 0 after +
	rePhoneE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormalizePhone strips separators and converts a 00 prefix to +. It returns
// "" when the input is not an international number.
func NormalizePhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || !rePhoneAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")
	s = repl.Replace(s)

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	if !rePhoneE164.MatchString(s) {
		return ""
	}
	return s
}
