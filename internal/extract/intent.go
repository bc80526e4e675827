package extract

import "strings"

var affirmativePhrases = phraseSet(
	"تایید",
	"تایید میکنم",
	"تایید می کنم",
	"همینو میخوام",
	"همینو می خوام",
	"همین رو میخوام",
	"همین را میخواهم",
	"بله",
	"بلی",
	"آره",
	"اره",
	"باشه",
	"اوکی",
	"قبول",
	"ثبت کن",
	"ثبتش کن",
	"حله",
	"درسته",
	"ok",
	"okay",
	"yes",
	"confirm",
)

var negativePhrases = phraseSet(
	"نه",
	"خیر",
	"لغو",
	"لغوش کن",
	"انصراف",
	"کنسل",
	"نمیخوام",
	"نمی خوام",
	"نمیخواهم",
	"تایید نمیکنم",
	"تایید نمی کنم",
	"بیخیال",
	"cancel",
	"no",
)

func phraseSet(phrases ...string) [][]string {
	out := make([][]string, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, tokens(Normalize(p)))
	}
	return out
}

// Intent reports whether text carries an affirmation and whether it carries a
// refusal. Phrases match as whole-token runs of the normalized message, so "نه"
// inside "خونه" is not a refusal. Both flags may be set; callers decide
// precedence.
func Intent(text string) (confirm, cancel bool) {
	toks := tokens(Normalize(text))
	if len(toks) == 0 {
		return false, false
	}
	for _, p := range affirmativePhrases {
		if containsSeq(toks, p, nil) {
			confirm = true
			break
		}
	}
	// "نه تا" and "نه عدد" count nine items.
	nineItems := func(i int) bool {
		return toks[i] == "نه" && i+1 < len(toks) && quantityKeywords[toks[i+1]]
	}
	for _, p := range negativePhrases {
		if containsSeq(toks, p, nineItems) {
			cancel = true
			break
		}
	}
	return confirm, cancel
}

var searchStopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`سلام درود وقت بخیر ممنون مرسی لطفا لطفاً میخوام می خوام میخواستم
		خواستم دارید دارین دارن هست هستش است رو را از با یه یک برای من ما شما چی چه چند قیمت
		کد محصول عدد تا سایز رنگ و به در این اون آن همین همینو یدونه سفارش بدم بخرم خرید
		hi hello please want buy the a an`) {
		searchStopwords[w] = true
	}
}

// SearchTerms returns the words of text worth sending to a catalog search:
// at least two runes, not numeric, not a stopword, intent word or color.
func SearchTerms(text string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range tokens(blankProductCodes(Normalize(text))) {
		if len([]rune(tok)) < 2 || searchStopwords[tok] || seen[tok] {
			continue
		}
		if digitsOnly(tok) != "" && !hasLetter(tok) {
			continue
		}
		if _, ok := colorWords[tok]; ok {
			continue
		}
		if c, x := Intent(tok); c || x {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}
