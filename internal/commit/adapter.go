// Package commit is the boundary between a confirmed conversation and the
// order system. It is the only place the conversation pipeline causes a
// persistent external change.
package commit

import (
	"context"
	"fmt"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/models"
	"chat-order-service/internal/service"
	"chat-order-service/internal/util"

	"go.uber.org/zap"
)

// ErrorKind classifies a failed commit.
type ErrorKind string

const (
	KindOutOfStock      ErrorKind = "out_of_stock"
	KindProductNotFound ErrorKind = "product_not_found"
	KindValidation      ErrorKind = "validation"
	KindInternal        ErrorKind = "internal"
)

// Request is a fully filled order slot-set.
type Request struct {
	ConversationID string
	ProductID      int64
	Quantity       int
	Size           string
	Color          string
	Customer       conversation.CustomerDraft
	IdempotencyKey string
}

// Result is the outcome of a commit. OrderID and Total are set when OK.
type Result struct {
	OK        bool      `json:"ok"`
	OrderID   int64     `json:"order_id,omitempty"`
	Total     int64     `json:"total,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Err       error     `json:"-"`
}

// OrderCreator creates an order, re-validating product and stock, and takes
// the stock in the same operation.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
}

// Adapter turns a commit request into exactly one CreateOrder call.
type Adapter struct {
	creator OrderCreator
	timeout time.Duration
	logger  *zap.Logger
}

// NewAdapter creates an Adapter. A zero timeout leaves the caller's deadline in charge.
func NewAdapter(creator OrderCreator, timeout time.Duration) *Adapter {
	return &Adapter{
		creator: creator,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

func (r Request) validate() error {
	switch {
	case r.ProductID == 0:
		return fmt.Errorf("%w: product is required", apperr.ErrValidation)
	case r.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1, got %d", apperr.ErrValidation, r.Quantity)
	case !r.Customer.Complete():
		return fmt.Errorf("%w: customer fields missing: %v", apperr.ErrValidation, r.Customer.Missing())
	}
	return nil
}

// Commit creates the order. Failures never panic or leak as errors; they come
// back as a Result with ErrorKind set and Err holding the cause.
func (a *Adapter) Commit(ctx context.Context, req Request) Result {
	ctx, span := util.StartSpan(ctx, "CommitAdapter.Commit")
	defer span.End()

	if err := req.validate(); err != nil {
		util.CommitsTotal.WithLabelValues(string(KindValidation)).Inc()
		return Result{ErrorKind: KindValidation, Err: err}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.creator.CreateOrder(ctx, &service.CreateOrderRequest{
		ConversationID: req.ConversationID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Size:           req.Size,
		Color:          req.Color,
		Customer: models.Customer{
			FirstName:  req.Customer.FirstName,
			LastName:   req.Customer.LastName,
			Phone:      req.Customer.Phone,
			Address:    req.Customer.Address,
			PostalCode: req.Customer.PostalCode,
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	util.CommitLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := kindOf(err)
		util.FailSpan(span, err)
		util.CommitsTotal.WithLabelValues(string(kind)).Inc()
		a.logger.Warn("Order commit failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Int64("product_id", req.ProductID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return Result{ErrorKind: kind, Err: err}
	}

	util.CommitsTotal.WithLabelValues("ok").Inc()
	a.logger.Info("Order committed",
		zap.String("conversation_id", req.ConversationID),
		zap.Int64("order_id", resp.OrderID))
	return Result{OK: true, OrderID: resp.OrderID, Total: resp.TotalAmount}
}

func kindOf(err error) ErrorKind {
	switch apperr.Kind(err) {
	case "out_of_stock":
		return KindOutOfStock
	case "product_not_found":
		return KindProductNotFound
	case "validation":
		return KindValidation
	default:
		return KindInternal
	}
}
