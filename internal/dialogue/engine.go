// Package dialogue drives a conversation through order intake: it reads the
// conversation state, applies the signals extracted from one message, writes
// the state back and, on the confirmed edge only, commits the order.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/commit"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/extract"
	"chat-order-service/internal/models"
	"chat-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSearchLimit = 5

// ProductCatalog looks products up. FindByCode wraps apperr.ErrProductNotFound
// on a miss.
type ProductCatalog interface {
	FindByCode(ctx context.Context, code string) (*models.Product, error)
	Search(ctx context.Context, terms []string, limit int) ([]models.Product, error)
}

// Committer creates the order for a confirmed conversation.
type Committer interface {
	Commit(ctx context.Context, req commit.Request) commit.Result
}

// CustomerDirectory finds returning customers. FindByPhone returns nil, nil
// when the phone is unknown.
type CustomerDirectory interface {
	FindByPhone(ctx context.Context, phone string) (*models.Customer, error)
}

// Debug describes how a turn was resolved. It is informational only.
type Debug struct {
	Stage         conversation.Stage `json:"stage"`
	PreviousStage conversation.Stage `json:"previous_stage"`
	Signals       extract.Signals    `json:"signals"`
	Transition    string             `json:"transition"`
}

// Reply is the outcome of one turn.
type Reply struct {
	Text    string `json:"reply"`
	OrderID *int64 `json:"order_id,omitempty"`
	Debug   Debug  `json:"debug"`
}

// EngineOpts configures an Engine. Store, Catalog and Committer are required.
type EngineOpts struct {
	Store     conversation.Store
	Catalog   ProductCatalog
	Committer Committer
	// Customers is optional; without it returning customers are not prefilled.
	Customers CustomerDirectory
	Logger    *zap.Logger
	// SearchLimit caps the candidates offered for a search. Default 5.
	SearchLimit int
	// NewCommitKey mints idempotency keys. Default uuid.NewString.
	NewCommitKey func() string
}

// Engine is the order-intake state machine. It is safe for concurrent use on
// different conversations; turns on the same conversation must be serialized
// by the caller.
type Engine struct {
	store        conversation.Store
	catalog      ProductCatalog
	committer    Committer
	customers    CustomerDirectory
	logger       *zap.Logger
	searchLimit  int
	newCommitKey func() string
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", apperr.ErrValidation)
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", apperr.ErrValidation)
	}
	if opts.Committer == nil {
		return nil, fmt.Errorf("%w: committer is required", apperr.ErrValidation)
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	if opts.NewCommitKey == nil {
		opts.NewCommitKey = uuid.NewString
	}
	return &Engine{
		store:        opts.Store,
		catalog:      opts.Catalog,
		committer:    opts.Committer,
		customers:    opts.Customers,
		logger:       opts.Logger,
		searchLimit:  opts.SearchLimit,
		newCommitKey: opts.NewCommitKey,
	}, nil
}

// turn accumulates the changes of one message against a working copy of the
// state. Nothing reaches the store until the turn is finished.
type turn struct {
	ctx        context.Context
	id         string
	st         conversation.State
	sig        extract.Signals
	patch      conversation.Patch
	reset      bool
	transition string
	orderID    *int64
}

func (t *turn) setStage(s conversation.Stage) {
	t.st.Stage = s
	t.patch.Stage = &s
}

func (t *turn) setSelected(p conversation.ProductSnapshot) {
	t.st.SelectedProduct = &p
	t.patch.SelectedProduct = &p
}

func (t *turn) setWanted(w conversation.Wanted) {
	t.st.Wanted = w
	t.patch.Wanted = &w
}

func (t *turn) setCustomer(c conversation.CustomerDraft) {
	t.st.Customer = c
	t.patch.Customer = &c
}

func (t *turn) setCandidates(codes []string) {
	t.st.Candidates = codes
	t.patch.Candidates = &codes
}

func (t *turn) setCommitKey(k string) {
	t.st.CommitKey = k
	t.patch.CommitKey = &k
}

func (t *turn) resetState() {
	t.reset = true
	t.patch = conversation.Patch{}
	t.st = conversation.NewState(t.id)
}

// HandleMessage runs one turn of conversationID. Internal failures are logged
// and answered with a generic reply, leaving the stored state untouched; the
// returned error is only set for a missing conversation id.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, text string) (Reply, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Reply{}, fmt.Errorf("%w: conversation id is required", apperr.ErrValidation)
	}

	start := time.Now()
	defer func() {
		util.TurnLatency.Observe(time.Since(start).Seconds())
	}()

	sig := extract.Extract(text)
	countSignals(sig)

	st, err := e.store.Get(ctx, conversationID)
	if err != nil {
		return e.internalFailure(conversationID, conversation.StageIdle, sig, err), nil
	}

	t := &turn{ctx: ctx, id: conversationID, st: st.Clone(), sig: sig}
	prev := st.Stage

	replyText, err := e.step(t)
	if err != nil {
		return e.internalFailure(conversationID, prev, sig, err), nil
	}

	if err := e.persist(t); err != nil {
		if t.orderID == nil {
			return e.internalFailure(conversationID, prev, sig, err), nil
		}
		// The order exists; a retried confirmation replays it via the commit key.
		e.logger.Error("Failed to reset conversation after commit",
			zap.String("conversation_id", conversationID),
			zap.Int64("order_id", *t.orderID),
			zap.Error(err))
	}

	if prev != t.st.Stage {
		util.StageTransitionsTotal.WithLabelValues(string(prev), string(t.st.Stage)).Inc()
	}
	util.TurnsTotal.WithLabelValues(string(t.st.Stage), t.transition).Inc()

	e.logger.Debug("Turn handled",
		zap.String("conversation_id", conversationID),
		zap.String("from", string(prev)),
		zap.String("to", string(t.st.Stage)),
		zap.String("transition", t.transition))

	return Reply{
		Text:    replyText,
		OrderID: t.orderID,
		Debug: Debug{
			Stage:         t.st.Stage,
			PreviousStage: prev,
			Signals:       sig,
			Transition:    t.transition,
		},
	}, nil
}

func (e *Engine) persist(t *turn) error {
	if t.reset {
		return e.store.Reset(t.ctx, t.id)
	}
	if t.patch.Empty() {
		return nil
	}
	_, err := e.store.Merge(t.ctx, t.id, t.patch)
	return err
}

func (e *Engine) internalFailure(id string, stage conversation.Stage, sig extract.Signals, err error) Reply {
	e.logger.Error("Turn failed",
		zap.String("conversation_id", id),
		zap.String("stage", string(stage)),
		zap.Error(err))
	util.TurnsTotal.WithLabelValues(string(stage), "internal_error").Inc()
	return Reply{
		Text: msgInternalError,
		Debug: Debug{
			Stage:         stage,
			PreviousStage: stage,
			Signals:       sig,
			Transition:    "internal_error",
		},
	}
}

func countSignals(sig extract.Signals) {
	mark := func(present bool, name string) {
		if present {
			util.SignalsExtractedTotal.WithLabelValues(name).Inc()
		}
	}
	mark(sig.ProductCode != "", "product_code")
	mark(sig.Quantity != nil, "quantity")
	mark(sig.Size != "", "size")
	mark(sig.Color != "", "color")
	mark(sig.Confirm, "confirm")
	mark(sig.Cancel, "cancel")
	mark(sig.Customer.Any(), "customer")
	mark(len(sig.SearchTerms) > 0, "search_terms")
}

func (e *Engine) step(t *turn) (string, error) {
	if t.sig.Cancel {
		return e.cancel(t), nil
	}
	if t.st.Stage.CollectingCustomer() {
		// product codes only switch products before contact details are collected
		t.sig.ProductCode = ""
	}

	if t.st.Stage != conversation.StageIdle && t.st.Stage != conversation.StageSearching &&
		t.st.SelectedProduct == nil {
		e.logger.Warn("Conversation has no selected product, resetting",
			zap.String("conversation_id", t.id),
			zap.String("stage", string(t.st.Stage)))
		t.resetState()
		t.transition = "reset_inconsistent"
		return msgHelp, nil
	}

	switch t.st.Stage {
	case conversation.StageIdle, conversation.StageSearching:
		return e.onBrowsing(t)
	case conversation.StageProductSelected:
		return e.onProductSelected(t)
	case conversation.StageAwaitingCustomerInfo:
		return e.onCustomerInfo(t)
	case conversation.StageAwaitingConfirmation:
		return e.onConfirmation(t)
	default:
		e.logger.Warn("Unknown stage, resetting conversation",
			zap.String("conversation_id", t.id),
			zap.String("stage", string(t.st.Stage)))
		t.resetState()
		t.transition = "reset_unknown_stage"
		return msgHelp, nil
	}
}

func (e *Engine) cancel(t *turn) string {
	active := t.st.Stage != conversation.StageIdle || t.st.SelectedProduct != nil
	t.resetState()
	t.transition = "cancel"
	if !active {
		return msgNothingToCancel
	}
	return msgCancelled
}

// onBrowsing handles IDLE and SEARCHING.
func (e *Engine) onBrowsing(t *turn) (string, error) {
	sig := t.sig

	if sig.ProductCode != "" {
		return e.selectByCode(t, sig.ProductCode)
	}

	if n, ok := candidatePick(t); ok {
		t.sig.Quantity = nil
		t.transition = "pick_candidate"
		return e.selectByCode(t, t.st.Candidates[n-1])
	}

	if sig.Customer.Any() {
		t.setCustomer(t.st.Customer.Overlay(draftFrom(sig.Customer)))
		t.transition = "save_customer"
		return msgCustomerSaved, nil
	}

	if len(sig.SearchTerms) > 0 {
		return e.search(t, sig.SearchTerms)
	}

	if sig.Confirm {
		t.transition = "no_active_order"
		return msgNoActiveOrder, nil
	}

	t.transition = "help"
	if t.st.Stage == conversation.StageSearching {
		return msgPickOrCode, nil
	}
	return msgHelp, nil
}

// candidatePick returns the 1-based candidate index chosen by a bare number.
func candidatePick(t *turn) (int, bool) {
	q := t.sig.Quantity
	if t.st.Stage != conversation.StageSearching || q == nil || q.Anchored || len(t.sig.SearchTerms) > 0 {
		return 0, false
	}
	if q.Value < 1 || q.Value > len(t.st.Candidates) {
		return 0, false
	}
	return q.Value, true
}

func (e *Engine) search(t *turn, terms []string) (string, error) {
	products, err := e.catalog.Search(t.ctx, terms, e.searchLimit)
	if err != nil {
		return "", fmt.Errorf("failed to search catalog: %w", err)
	}

	switch len(products) {
	case 0:
		t.transition = "search_empty"
		return msgNoResults, nil
	case 1:
		t.transition = "search_single"
		return e.selectProduct(t, &products[0])
	}

	codes := make([]string, len(products))
	names := make([]string, len(products))
	for i, p := range products {
		codes[i] = p.Code
		names[i] = p.Name
	}
	t.setCandidates(codes)
	t.setStage(conversation.StageSearching)
	t.transition = "search_results"
	return candidateList(codes, names), nil
}

func (e *Engine) selectByCode(t *turn, code string) (string, error) {
	p, err := e.catalog.FindByCode(t.ctx, code)
	if errors.Is(err, apperr.ErrProductNotFound) {
		t.transition = "product_not_found"
		return msgProductNotFound(code), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up product %s: %w", code, err)
	}
	if t.transition == "" {
		t.transition = "select_product"
	}
	return e.selectProduct(t, p)
}

// selectProduct makes p the order's product. Wanted attributes start over;
// the customer draft is kept. Other signals of the same message then apply to
// the new product.
func (e *Engine) selectProduct(t *turn, p *models.Product) (string, error) {
	snap := snapshotOf(p)
	if snap.Stock <= 0 {
		t.transition = "product_unavailable"
		return msgUnavailable(snap), nil
	}

	t.setSelected(snap)
	t.setStage(conversation.StageProductSelected)
	t.setWanted(conversation.DefaultWanted())
	t.setCandidates(nil)
	if t.st.CommitKey != "" {
		t.setCommitKey("")
	}

	problems, _ := e.applyWanted(t)
	if t.sig.Customer.Any() {
		t.setCustomer(t.st.Customer.Overlay(draftFrom(t.sig.Customer)))
	}

	card := productCard(snap)
	if problems == "" && (t.sig.Confirm || t.sig.Customer.Any()) {
		next, err := e.advance(t)
		if err != nil {
			return "", err
		}
		return card + "\n" + next, nil
	}
	return joinLines(card, problems, e.productPrompt(t)), nil
}

func snapshotOf(p *models.Product) conversation.ProductSnapshot {
	return conversation.ProductSnapshot{
		ID:              p.ID,
		Code:            p.Code,
		Name:            p.Name,
		Price:           p.Price,
		Stock:           p.Stock,
		AvailableSizes:  append([]string(nil), p.Sizes...),
		AvailableColors: append([]string(nil), p.Colors...),
	}
}

func draftFrom(f extract.CustomerFields) conversation.CustomerDraft {
	return conversation.CustomerDraft{
		FirstName:  f.FirstName,
		LastName:   f.LastName,
		Phone:      f.Phone,
		Address:    f.Address,
		PostalCode: f.PostalCode,
	}
}

// applyWanted validates the message's quantity, size and color against the
// selected product and merges the valid ones. It returns the complaints about
// the rejected ones and whether anything changed.
func (e *Engine) applyWanted(t *turn) (string, bool) {
	snap := t.st.SelectedProduct
	if snap == nil {
		return "", false
	}

	w := t.st.Wanted
	changed := false
	var problems []string

	if q := t.sig.Quantity; q != nil {
		switch {
		case q.Value < 1:
			problems = append(problems, msgInvalidQty)
		case q.Value > snap.Stock:
			problems = append(problems, msgNotEnoughStock(snap.Stock))
		case q.Value != w.Qty:
			w.Qty = q.Value
			changed = true
		}
	}

	if s := t.sig.Size; s != "" && len(snap.AvailableSizes) > 0 {
		if v, ok := pick(snap.AvailableSizes, s); ok {
			changed = changed || v != w.Size
			w.Size = v
		} else {
			problems = append(problems, msgSizeUnavailable(snap.AvailableSizes))
		}
	}

	if c := t.sig.Color; c != "" && len(snap.AvailableColors) > 0 {
		if v, ok := pick(snap.AvailableColors, c); ok {
			changed = changed || v != w.Color
			w.Color = v
		} else {
			problems = append(problems, msgColorUnavailable(snap.AvailableColors))
		}
	}

	if changed {
		t.setWanted(w)
	}
	return strings.Join(problems, "\n"), changed
}

func pick(options []string, v string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), v) {
			return o, true
		}
	}
	return "", false
}

func joinLines(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func (e *Engine) productPrompt(t *turn) string {
	snap := t.st.SelectedProduct
	if len(snap.AvailableSizes) > 0 && t.st.Wanted.Size == "" {
		return msgAskSize(snap.AvailableSizes)
	}
	return msgNextStepHint
}

func (e *Engine) onProductSelected(t *turn) (string, error) {
	sig := t.sig
	if sig.ProductCode != "" && sig.ProductCode != t.st.SelectedProduct.Code {
		t.transition = "reselect_product"
		return e.selectByCode(t, sig.ProductCode)
	}

	problems, changed := e.applyWanted(t)
	if sig.Customer.Any() {
		t.setCustomer(t.st.Customer.Overlay(draftFrom(sig.Customer)))
	}

	if problems != "" {
		t.transition = "reject_wanted"
		return problems, nil
	}
	if sig.Confirm || sig.Customer.Any() {
		return e.advance(t)
	}
	if changed {
		t.transition = "update_wanted"
		return joinLines(wantedLine(t.st.Wanted), e.productPrompt(t)), nil
	}
	t.transition = "help"
	return e.productPrompt(t), nil
}

// advance moves a selected product towards confirmation: size first, then the
// customer fields, then the summary.
func (e *Engine) advance(t *turn) (string, error) {
	snap := t.st.SelectedProduct
	if len(snap.AvailableSizes) > 0 && t.st.Wanted.Size == "" {
		t.transition = "ask_size"
		return msgAskSize(snap.AvailableSizes), nil
	}

	e.prefillCustomer(t)

	if missing := t.st.Customer.Missing(); len(missing) > 0 {
		t.setStage(conversation.StageAwaitingCustomerInfo)
		t.transition = "ask_customer"
		return msgAskCustomer(missing), nil
	}
	return e.summarize(t), nil
}

// prefillCustomer completes the draft from a known customer with the same phone.
func (e *Engine) prefillCustomer(t *turn) {
	c := t.st.Customer
	if e.customers == nil || c.Phone == "" || c.Complete() {
		return
	}

	known, err := e.customers.FindByPhone(t.ctx, c.Phone)
	if err != nil {
		e.logger.Warn("Customer lookup failed",
			zap.String("conversation_id", t.id),
			zap.Error(err))
		return
	}
	if known == nil {
		return
	}

	filled := c.FillMissing(conversation.CustomerDraft{
		FirstName:  known.FirstName,
		LastName:   known.LastName,
		Phone:      known.Phone,
		Address:    known.Address,
		PostalCode: known.PostalCode,
	})
	if filled != c {
		t.setCustomer(filled)
	}
}

// summarize enters AWAITING_CONFIRMATION with a fresh commit key.
func (e *Engine) summarize(t *turn) string {
	t.setCommitKey(e.newCommitKey())
	t.setStage(conversation.StageAwaitingConfirmation)
	if t.transition != "resummarize" {
		t.transition = "summarize"
	}
	return orderSummary(t.st)
}

func (e *Engine) onCustomerInfo(t *turn) (string, error) {
	sig := t.sig
	problems, changed := e.applyWanted(t)
	if sig.Customer.Any() {
		t.setCustomer(t.st.Customer.Overlay(draftFrom(sig.Customer)))
	}

	e.prefillCustomer(t)

	missing := t.st.Customer.Missing()
	if len(missing) == 0 {
		return joinLines(problems, e.summarize(t)), nil
	}

	t.transition = "ask_customer"
	if changed {
		return joinLines(wantedLine(t.st.Wanted), msgAskCustomer(missing)), nil
	}
	return joinLines(problems, msgAskCustomer(missing)), nil
}

func (e *Engine) onConfirmation(t *turn) (string, error) {
	sig := t.sig
	problems, changed := e.applyWanted(t)
	if sig.Customer.Any() {
		corrected := t.st.Customer.Overlay(draftFrom(sig.Customer))
		if corrected != t.st.Customer {
			t.setCustomer(corrected)
			changed = true
		}
	}

	if problems != "" {
		t.transition = "reject_wanted"
		return joinLines(problems, msgConfirmHint), nil
	}
	if changed {
		t.transition = "resummarize"
		return e.summarize(t), nil
	}
	if sig.Confirm {
		return e.commit(t), nil
	}

	t.transition = "await_confirmation"
	return msgConfirmHint, nil
}

// commit calls the committer once. Only success leaves AWAITING_CONFIRMATION.
func (e *Engine) commit(t *turn) string {
	if t.st.CommitKey == "" {
		t.setCommitKey(e.newCommitKey())
	}
	snap := t.st.SelectedProduct
	w := t.st.Wanted

	res := e.committer.Commit(t.ctx, commit.Request{
		ConversationID: t.id,
		ProductID:      snap.ID,
		Quantity:       w.Qty,
		Size:           w.Size,
		Color:          w.Color,
		Customer:       t.st.Customer,
		IdempotencyKey: t.st.CommitKey,
	})

	if res.OK {
		id := res.OrderID
		t.orderID = &id
		t.resetState()
		t.transition = "commit_ok"
		return msgOrderPlaced(res.OrderID, res.Total)
	}

	t.transition = "commit_" + string(res.ErrorKind)
	switch res.ErrorKind {
	case commit.KindOutOfStock:
		return msgCommitOutOfStock(snap)
	case commit.KindProductNotFound:
		return msgCommitGone
	case commit.KindValidation:
		return msgCommitInvalid
	default:
		e.logger.Error("Order commit failed",
			zap.String("conversation_id", t.id),
			zap.Error(res.Err))
		return msgCommitFailed
	}
}
