package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// QuantitySignal is a parsed quantity. Value may be zero or negative; the
// dialogue engine rejects those. Anchored is set when the number sat next to a
// quantity keyword such as "عدد" or "تا".
type QuantitySignal struct {
	Value    int  `json:"value"`
	Anchored bool `json:"anchored"`
}

var quantityKeywords = map[string]bool{
	"عدد":   true,
	"تا":    true,
	"دونه":  true,
	"دانه":  true,
	"جفت":   true,
	"pcs":   true,
	"items": true,
}

var numberWords = map[string]int{
	"یک":   1,
	"یه":   1,
	"دو":   2,
	"سه":   3,
	"چهار": 4,
	"پنج":  5,
	"شش":   6,
	"شیش":  6,
	"هفت":  7,
	"هشت":  8,
	"نه":   9,
	"ده":   10,
}

var sizeNumberPattern = regexp.MustCompile(`(?:سایز|size)\s*:?\s*[0-9]+`)

const (
	maxBareDigits     = 3
	maxAnchoredDigits = 4
)

// Quantity finds the ordered quantity in text. A number adjacent to a quantity
// keyword wins over a bare number wherever it appears; otherwise the first
// standalone number of at most three digits is used. Digits belonging to
// product codes or to a size ("سایز 42") are never read as quantities.
func Quantity(text string) (QuantitySignal, bool) {
	norm := Normalize(text)
	if norm == "" {
		return QuantitySignal{}, false
	}
	clean := sizeNumberPattern.ReplaceAllString(blankProductCodes(norm), " ")
	toks := tokens(clean)

	var bare *QuantitySignal
	for i, tok := range toks {
		nextIsKeyword := i+1 < len(toks) && quantityKeywords[toks[i+1]]

		if n, rest, digits, ok := leadingNumber(tok); ok {
			if rest != "" {
				if quantityKeywords[rest] && digits <= maxAnchoredDigits {
					return QuantitySignal{Value: n, Anchored: true}, true
				}
				continue
			}
			if nextIsKeyword && digits <= maxAnchoredDigits {
				return QuantitySignal{Value: n, Anchored: true}, true
			}
			if bare == nil && digits <= maxBareDigits {
				bare = &QuantitySignal{Value: n}
			}
			continue
		}

		if n, ok := numberWords[tok]; ok && nextIsKeyword {
			return QuantitySignal{Value: n, Anchored: true}, true
		}
	}
	if bare != nil {
		return *bare, true
	}
	return QuantitySignal{}, false
}

// leadingNumber parses an optional minus sign and a run of digits at the start
// of tok, returning the remainder and the digit count.
func leadingNumber(tok string) (n int, rest string, digits int, ok bool) {
	neg := strings.HasPrefix(tok, "-")
	s := strings.TrimPrefix(tok, "-")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", 0, false
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, "", 0, false
	}
	if neg {
		v = -v
	}
	return v, s[i:], i, true
}
