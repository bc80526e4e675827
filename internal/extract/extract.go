package extract

// Signals is everything extracted from a single message.
type Signals struct {
	ProductCode string          `json:"product_code,omitempty"`
	Quantity    *QuantitySignal `json:"quantity,omitempty"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	Confirm     bool            `json:"confirm,omitempty"`
	Cancel      bool            `json:"cancel,omitempty"`
	Customer    CustomerFields  `json:"customer,omitempty"`
	SearchTerms []string        `json:"search_terms,omitempty"`
}

// Extract runs every extractor over text. When the message carries contact
// details only keyword-anchored quantity and size signals are kept, color is
// dropped and intent is read outside the contact fields, so house numbers and
// street names are not read as order attributes or as a refusal.
func Extract(text string) Signals {
	var sig Signals
	if Normalize(text) == "" {
		return sig
	}

	sig.ProductCode, _ = ProductCode(text)
	sig.Customer, _ = Customer(text)
	contact := sig.Customer.Any()
	if contact {
		sig.Confirm, sig.Cancel = Intent(withoutCustomerSegments(text))
	} else {
		sig.Confirm, sig.Cancel = Intent(text)
	}

	if q, ok := Quantity(text); ok && (q.Anchored || !contact) {
		sig.Quantity = &q
	}
	if s, ok := Size(text); ok && (s.Anchored || !contact) {
		sig.Size = s.Value
	}
	if !contact {
		sig.Color, _ = Color(text)
		sig.SearchTerms = SearchTerms(text)
	}
	return sig
}
