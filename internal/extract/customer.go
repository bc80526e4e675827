package extract

import (
	"regexp"
	"sort"
	"strings"
)

// CustomerFields holds whatever contact details a message carried. Empty
// fields were not found.
type CustomerFields struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Any reports whether at least one field was extracted.
func (c CustomerFields) Any() bool {
	return c.FirstName != "" || c.LastName != "" || c.Phone != "" || c.Address != "" || c.PostalCode != ""
}

type customerField int

const (
	fieldFirstName customerField = iota
	fieldLastName
	fieldPhone
	fieldAddress
	fieldPostalCode
)

type anchor struct {
	word  string
	field customerField
}

var customerAnchors = func() []anchor {
	a := []anchor{
		{"اسمم", fieldFirstName}, {"اسم من", fieldFirstName}, {"اسم", fieldFirstName},
		{"نامم", fieldFirstName}, {"نام من", fieldFirstName}, {"نام", fieldFirstName},
		{"name", fieldFirstName},
		{"نام خانوادگی", fieldLastName}, {"نام خانوادگیم", fieldLastName},
		{"فامیلی", fieldLastName}, {"فامیلیم", fieldLastName}, {"last name", fieldLastName},
		{"شماره تماس", fieldPhone}, {"شماره موبایل", fieldPhone}, {"شماره تلفن", fieldPhone},
		{"شمارم", fieldPhone}, {"شماره ام", fieldPhone}, {"شماره", fieldPhone},
		{"موبایل", fieldPhone}, {"تلفن", fieldPhone}, {"تماس", fieldPhone},
		{"phone", fieldPhone}, {"mobile", fieldPhone},
		{"آدرس", fieldAddress}, {"آدرسم", fieldAddress}, {"ادرس", fieldAddress},
		{"ادرسم", fieldAddress}, {"نشانی", fieldAddress}, {"address", fieldAddress},
		{"کد پستی", fieldPostalCode}, {"کدپستی", fieldPostalCode}, {"کد پستیم", fieldPostalCode},
		{"کدپستیم", fieldPostalCode}, {"postal code", fieldPostalCode}, {"zip", fieldPostalCode},
	}
	// Longest first so "اسمم" is tried before "اسم".
	sort.SliceStable(a, func(i, j int) bool { return len(a[i].word) > len(a[j].word) })
	return a
}()

var fillerWords = map[string]bool{
	"است": true, "هست": true, "هستم": true, "هستش": true, "میباشد": true,
	"هم": true, "is": true, "my": true,
}

var (
	mobilePattern = regexp.MustCompile(`(?:^|[^0-9+])((?:\+98|0098|0)9[0-9]{9})(?:[^0-9]|$)`)
	postalPattern = regexp.MustCompile(`(?:^|[^0-9])([1-9][0-9]{9})(?:[^0-9]|$)`)
)

const segmentSeparators = ",،؛;\n"

type anchorHit struct {
	start, end int
	field      customerField
}

// segment is an anchor plus the value text it claims, as byte offsets.
type segment struct {
	anchorHit
	valueEnd int
}

// customerSegments pairs every anchor in norm with the span of its value. An
// address runs to the next anchor or line break; other fields stop at the first
// separator.
func customerSegments(norm string) []segment {
	hits := findAnchors(norm)
	segs := make([]segment, 0, len(hits))
	for i, h := range hits {
		end := len(norm)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		stop := segmentSeparators
		if h.field == fieldAddress {
			stop = "\n"
		}
		if j := strings.IndexAny(norm[h.end:end], stop); j >= 0 {
			end = h.end + j
		}
		segs = append(segs, segment{anchorHit: h, valueEnd: end})
	}
	return segs
}

// Customer extracts contact details. Keyword anchors split the message into
// segments, one per field; a mobile number or a ten-digit postal code is also
// recognised without an anchor. Each field is judged on its own, so a message
// with only an address yields only an address. Names and addresses keep the
// letter case they were typed in.
func Customer(text string) (CustomerFields, bool) {
	folded := fold(text)
	norm := lowerSameWidth(folded)
	if norm == "" {
		return CustomerFields{}, false
	}

	var out CustomerFields
	for _, seg := range customerSegments(norm) {
		raw := folded[seg.end:seg.valueEnd]
		switch seg.field {
		case fieldFirstName:
			if out.FirstName == "" {
				out.FirstName, out.LastName = splitName(raw, out.LastName)
			}
		case fieldLastName:
			if v := cleanValue(raw); v != "" && !hasDigit(v) {
				out.LastName = v
			}
		case fieldPhone:
			if out.Phone == "" {
				out.Phone = normalizePhone(raw)
			}
		case fieldAddress:
			if out.Address == "" {
				out.Address = cleanAddress(raw)
			}
		case fieldPostalCode:
			if out.PostalCode == "" {
				if d := digitsOnly(raw); len(d) == 10 {
					out.PostalCode = d
				}
			}
		}
	}

	if out.Phone == "" {
		if m := mobilePattern.FindStringSubmatch(norm); m != nil {
			out.Phone = normalizePhone(m[1])
		}
	}
	if out.PostalCode == "" {
		if m := postalPattern.FindStringSubmatch(norm); m != nil {
			out.PostalCode = m[1]
		}
	}
	return out, out.Any()
}

// withoutCustomerSegments returns the normalized text with every anchored
// contact field cut out, so words inside an address are not read as intent.
func withoutCustomerSegments(text string) string {
	norm := Normalize(text)
	var b strings.Builder
	last := 0
	for _, seg := range customerSegments(norm) {
		b.WriteString(norm[last:seg.start])
		b.WriteByte(' ')
		last = seg.valueEnd
	}
	b.WriteString(norm[last:])
	return strings.TrimSpace(b.String())
}

func findAnchors(s string) []anchorHit {
	var hits []anchorHit
	for i := 0; i < len(s); {
		if i > 0 && !boundaryBefore(s, i) {
			i += runeLen(s, i)
			continue
		}
		matched := false
		for _, a := range customerAnchors {
			if !strings.HasPrefix(s[i:], a.word) {
				continue
			}
			end := i + len(a.word)
			if end < len(s) && !boundaryAfter(s, end) {
				continue
			}
			hits = append(hits, anchorHit{start: i, end: end, field: a.field})
			i = end
			matched = true
			break
		}
		if !matched {
			i += runeLen(s, i)
		}
	}
	return hits
}

func boundaryBefore(s string, i int) bool {
	r := []rune(s[:i])
	return !isWordRune(r[len(r)-1])
}

func boundaryAfter(s string, i int) bool {
	for _, r := range s[i:] {
		return !isWordRune(r)
	}
	return true
}

func runeLen(s string, i int) int {
	for j := range s[i:] {
		if j > 0 {
			return j
		}
	}
	return len(s) - i
}

// cleanValue strips separators, a leading colon and filler words such as "است".
func cleanValue(v string) string {
	words := strings.Fields(strings.Trim(v, " :=-"+segmentSeparators))
	for len(words) > 0 && fillerWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && fillerWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Trim(strings.Join(words, " "), " :=-"+segmentSeparators)
}

func splitName(raw, lastName string) (string, string) {
	v := cleanValue(raw)
	if v == "" || hasDigit(v) {
		return "", lastName
	}
	parts := strings.Fields(v)
	if len(parts) > 1 && lastName == "" {
		lastName = strings.Join(parts[1:], " ")
	}
	return parts[0], lastName
}

// normalizePhone reduces a phone number to its national 0-prefixed digits.
func normalizePhone(raw string) string {
	d := digitsOnly(raw)
	switch {
	case strings.HasPrefix(d, "0098"):
		d = "0" + d[4:]
	case strings.HasPrefix(d, "98") && len(d) == 12:
		d = "0" + d[2:]
	case strings.HasPrefix(d, "9") && len(d) == 10:
		d = "0" + d
	}
	if len(d) < 8 || len(d) > 13 {
		return ""
	}
	return d
}

func cleanAddress(raw string) string {
	v := cleanValue(raw)
	if !hasLetter(v) {
		return ""
	}
	return v
}
