package directory

import (
	"regexp"
	"strings"
)

var (
	// "S022 - Jane Doe", "S022–Jane Doe", "S022 — Jane Doe"
	separatedIdentity = regexp.MustCompile(`^([A-Za-z]\d{2,})\s*[-–—]\s*`)
	// "S022", "S022 Jane Doe"
	leadingIdentity = regexp.MustCompile(`^([A-Za-z]\d{2,})\b`)
)

// ExtractIdentity reads the identity token that prefixes a display name.
// ok is false when the text does not start with a letter followed by at least two digits.
func ExtractIdentity(displayText string) (token string, ok bool) {
	displayText = strings.TrimSpace(displayText)
	if m := separatedIdentity.FindStringSubmatch(displayText); m != nil {
		return m[1], true
	}
	if m := leadingIdentity.FindStringSubmatch(displayText); m != nil {
		return m[1], true
	}
	return "", false
}
