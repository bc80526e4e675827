package extract

import (
	"strings"
)

// SizeSignal is a garment size token. Anchored is set when the size followed an
// explicit "سایز" or "size" keyword.
type SizeSignal struct {
	Value    string `json:"value"`
	Anchored bool   `json:"anchored"`
}

var sizeKeywords = []string{"سایز", "size"}

var letterSizes = map[string]string{
	"xs":   "XS",
	"s":    "S",
	"m":    "M",
	"l":    "L",
	"xl":   "XL",
	"xxl":  "XXL",
	"xxxl": "XXXL",
	"2xl":  "XXL",
	"3xl":  "XXXL",
	"4xl":  "4XL",
}

var sizeWords = map[string]string{
	"اسمال": "S",
	"مدیوم": "M",
	"لارج":  "L",
	"فری":   "FREE",
	"free":  "FREE",
}

// Size returns the first size in text. A token directly after a size keyword
// wins; otherwise the first standalone letter size or size word is used.
func Size(text string) (SizeSignal, bool) {
	toks := tokens(blankProductCodes(Normalize(text)))
	for i, tok := range toks {
		for _, kw := range sizeKeywords {
			if tok == kw && i+1 < len(toks) {
				if v, ok := canonicalSize(toks[i+1], true); ok {
					return SizeSignal{Value: v, Anchored: true}, true
				}
			}
			if rest := strings.TrimPrefix(tok, kw); rest != tok && rest != "" {
				if v, ok := canonicalSize(rest, true); ok {
					return SizeSignal{Value: v, Anchored: true}, true
				}
			}
		}
	}
	for _, tok := range toks {
		if v, ok := canonicalSize(tok, false); ok {
			return SizeSignal{Value: v}, true
		}
	}
	return SizeSignal{}, false
}

// canonicalSize maps a token to its canonical size. Numeric sizes are only
// accepted after a size keyword, where they cannot be confused with quantities.
func canonicalSize(tok string, anchored bool) (string, bool) {
	if v, ok := letterSizes[tok]; ok {
		return v, true
	}
	if v, ok := sizeWords[tok]; ok {
		return v, true
	}
	if anchored && len(tok) >= 2 && len(tok) <= 3 && digitsOnly(tok) == tok {
		return tok, true
	}
	return "", false
}

var colorWords = map[string]string{
	"مشکی":      "مشکی",
	"سیاه":      "مشکی",
	"سفید":      "سفید",
	"قرمز":      "قرمز",
	"آبی":       "آبی",
	"ابی":       "آبی",
	"سبز":       "سبز",
	"زرد":       "زرد",
	"صورتی":     "صورتی",
	"بنفش":      "بنفش",
	"نارنجی":    "نارنجی",
	"طوسی":      "طوسی",
	"خاکستری":   "طوسی",
	"کرم":       "کرم",
	"زرشکی":     "زرشکی",
	"یاسی":      "یاسی",
	"طلایی":     "طلایی",
	"سرمه ای":   "سرمه‌ای",
	"سرمه‌ای":   "سرمه‌ای",
	"قهوه ای":   "قهوه‌ای",
	"نقره ای":   "نقره‌ای",
	"black":     "مشکی",
	"white":     "سفید",
	"red":       "قرمز",
	"blue":      "آبی",
	"navy":      "سرمه‌ای",
	"green":     "سبز",
	"yellow":    "زرد",
	"pink":      "صورتی",
	"gray":      "طوسی",
	"grey":      "طوسی",
	"brown":     "قهوه‌ای",
}

// Color returns the first known color word in text, in its canonical Persian
// spelling. Two-word colors such as "قهوه ای" are matched before single words.
func Color(text string) (string, bool) {
	toks := tokens(Normalize(text))
	for i, tok := range toks {
		if i+1 < len(toks) {
			if v, ok := colorWords[tok+" "+toks[i+1]]; ok {
				return v, true
			}
		}
		if v, ok := colorWords[tok]; ok {
			return v, true
		}
	}
	return "", false
}
