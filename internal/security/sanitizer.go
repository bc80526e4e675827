// Package security cleans untrusted chat input before it reaches the pipeline.
package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageLength caps the runes kept from one inbound message.
const MaxMessageLength = 2000

var htmlTag = regexp.MustCompile(`<[^<>]*>`)

// SanitizeText strips HTML tags and control characters, keeps line breaks,
// repairs invalid UTF-8 and truncates to MaxMessageLength runes.
func SanitizeText(input string) string {
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	cleaned := htmlTag.ReplaceAllString(input, " ")

	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, cleaned)

	if utf8.RuneCountInString(cleaned) > MaxMessageLength {
		cleaned = string([]rune(cleaned)[:MaxMessageLength])
	}
	return strings.TrimSpace(cleaned)
}
