// Package conversation holds the per-conversation order-intake state and the
// stores that keep it.
package conversation

import (
	"time"
)

// Stage is the named step of a conversation's order intake.
type Stage string

const (
	StageIdle                 Stage = "IDLE"
	StageSearching            Stage = "SEARCHING"
	StageProductSelected      Stage = "PRODUCT_SELECTED"
	StageAwaitingCustomerInfo Stage = "AWAITING_CUSTOMER_INFO"
	StageAwaitingConfirmation Stage = "AWAITING_CONFIRMATION"
)

// CollectingCustomer reports whether the stage is past product selection.
func (s Stage) CollectingCustomer() bool {
	return s == StageAwaitingCustomerInfo || s == StageAwaitingConfirmation
}

// ProductSnapshot is a read-only copy of a product taken when it was selected.
// It is not kept in sync with the catalog; the commit re-validates it.
type ProductSnapshot struct {
	ID              int64    `json:"id"`
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Price           int64    `json:"price"`
	Stock           int      `json:"stock"`
	AvailableSizes  []string `json:"available_sizes,omitempty"`
	AvailableColors []string `json:"available_colors,omitempty"`
}

func (p *ProductSnapshot) clone() *ProductSnapshot {
	if p == nil {
		return nil
	}
	c := *p
	c.AvailableSizes = append([]string(nil), p.AvailableSizes...)
	c.AvailableColors = append([]string(nil), p.AvailableColors...)
	return &c
}

// Wanted is what the customer asked for of the selected product.
type Wanted struct {
	Qty   int    `json:"qty"`
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// DefaultWanted is one item with no size or color.
func DefaultWanted() Wanted {
	return Wanted{Qty: 1}
}

// Field names a required customer detail.
type Field string

const (
	FieldName       Field = "name"
	FieldPhone      Field = "phone"
	FieldAddress    Field = "address"
	FieldPostalCode Field = "postal_code"
)

// CustomerDraft collects contact details across turns. LastName is optional.
type CustomerDraft struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Missing lists the required fields that are still empty, in prompt order.
func (c CustomerDraft) Missing() []Field {
	var out []Field
	if c.FirstName == "" {
		out = append(out, FieldName)
	}
	if c.Phone == "" {
		out = append(out, FieldPhone)
	}
	if c.Address == "" {
		out = append(out, FieldAddress)
	}
	if c.PostalCode == "" {
		out = append(out, FieldPostalCode)
	}
	return out
}

// Complete reports whether every required field is present.
func (c CustomerDraft) Complete() bool {
	return len(c.Missing()) == 0
}

// Overlay returns c with every non-empty field of o written over it.
func (c CustomerDraft) Overlay(o CustomerDraft) CustomerDraft {
	if o.FirstName != "" {
		c.FirstName = o.FirstName
	}
	if o.LastName != "" {
		c.LastName = o.LastName
	}
	if o.Phone != "" {
		c.Phone = o.Phone
	}
	if o.Address != "" {
		c.Address = o.Address
	}
	if o.PostalCode != "" {
		c.PostalCode = o.PostalCode
	}
	return c
}

// FillMissing returns c with its empty fields taken from o.
func (c CustomerDraft) FillMissing(o CustomerDraft) CustomerDraft {
	return o.Overlay(c)
}

// State is the slot-set of one conversation.
type State struct {
	ConversationID  string           `json:"conversation_id"`
	Stage           Stage            `json:"stage"`
	SelectedProduct *ProductSnapshot `json:"selected_product,omitempty"`
	Wanted          Wanted           `json:"wanted"`
	Customer        CustomerDraft    `json:"customer"`
	Candidates      []string         `json:"candidates,omitempty"`
	CommitKey       string           `json:"commit_key,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewState returns the state of a conversation that was never seen.
func NewState(conversationID string) State {
	return State{
		ConversationID: conversationID,
		Stage:          StageIdle,
		Wanted:         DefaultWanted(),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.SelectedProduct = s.SelectedProduct.clone()
	c.Candidates = append([]string(nil), s.Candidates...)
	return c
}

// Patch is a shallow update. Nil fields are left untouched.
type Patch struct {
	Stage           *Stage
	SelectedProduct *ProductSnapshot
	Wanted          *Wanted
	Customer        *CustomerDraft
	Candidates      *[]string
	CommitKey       *string
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Stage == nil && p.SelectedProduct == nil && p.Wanted == nil &&
		p.Customer == nil && p.Candidates == nil && p.CommitKey == nil
}

// Apply merges p into s. A wanted quantity below one is ignored and the prior
// quantity kept.
func (s *State) Apply(p Patch) {
	if p.Stage != nil {
		s.Stage = *p.Stage
	}
	if p.SelectedProduct != nil {
		s.SelectedProduct = p.SelectedProduct.clone()
	}
	if p.Wanted != nil {
		w := *p.Wanted
		if w.Qty < 1 {
			w.Qty = s.Wanted.Qty
		}
		if w.Qty < 1 {
			w.Qty = 1
		}
		s.Wanted = w
	}
	if p.Customer != nil {
		s.Customer = *p.Customer
	}
	if p.Candidates != nil {
		s.Candidates = append([]string(nil), (*p.Candidates)...)
	}
	if p.CommitKey != nil {
		s.CommitKey = *p.CommitKey
	}
}
