package extract

import (
	"regexp"
	"strings"
)

// Codes are a closed namespace, so a match inside a longer token is still taken.
var productCodePattern = regexp.MustCompile(`(?i)([a-z]{1,3})-?([0-9]{3,})`)

// ProductCode returns the first product code in text, uppercased and without
// the optional dash: "کد A-0001 رو میخوام" yields "A0001".
func ProductCode(text string) (string, bool) {
	norm := Normalize(text)
	if norm == "" {
		return "", false
	}
	m := productCodePattern.FindStringSubmatch(norm)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1] + m[2]), true
}

func blankProductCodes(norm string) string {
	return productCodePattern.ReplaceAllString(norm, " ")
}
