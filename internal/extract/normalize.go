// Package extract turns raw chat text into typed signals.
//
// Every extractor is a pure function over the message text. Absence of a signal is
// reported through a false ok value, never through an error or a zero value that
// could be mistaken for a real one.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var charReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"ي", "ی", "ى", "ی", "ك", "ک", "أ", "ا", "إ", "ا", "ۀ", "ه",
	"\u200c", " ", "\u200f", "", "\u200e", "",
	"\u064b", "", "\u064e", "", "\u0650", "", "\u064f", "", "\u0651", "",
)

var horizontalSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)

// Normalize folds case, maps Persian and Arabic-Indic digits to ASCII, unifies
// Arabic letter variants with their Persian forms and collapses horizontal
// whitespace. Line breaks are kept because they separate customer fields.
func Normalize(text string) string {
	return lowerSameWidth(fold(text))
}

// fold is Normalize without case folding. Byte offsets into fold(text) and
// Normalize(text) line up, so anchors found in one can slice values from the other.
func fold(text string) string {
	if text == "" {
		return ""
	}
	s := charReplacer.Replace(strings.ToValidUTF8(text, ""))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// lowerSameWidth lowercases runes whose lower form has the same UTF-8 length.
func lowerSameWidth(s string) string {
	return strings.Map(func(r rune) rune {
		l := unicode.ToLower(r)
		if utf8.RuneLen(l) != utf8.RuneLen(r) {
			return r
		}
		return l
	}, s)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// tokens splits normalized text into words. A dash is kept inside tokens so that
// a leading minus sign stays attached to its number.
func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r) && r != '-'
	})
}

// containsSeq reports whether phrase occurs in toks as a contiguous run.
// skip may veto a match starting at index i.
func containsSeq(toks, phrase []string, skip func(i int) bool) bool {
	if len(phrase) == 0 || len(phrase) > len(toks) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(toks); i++ {
		for j, p := range phrase {
			if toks[i+j] != p {
				continue outer
			}
		}
		if skip != nil && skip(i) {
			continue
		}
		return true
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
