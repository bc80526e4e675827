package service

import (
	"context"
	"fmt"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/broker"
	"chat-order-service/internal/models"
	"chat-order-service/internal/store"
	"chat-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService creates chat orders against the catalog database
type OrderService struct {
	store          *store.Store
	inventory      *InventoryClient
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	inventory *InventoryClient,
	eventPublisher *broker.EventPublisher,
) *OrderService {
	return &OrderService{
		store:          store,
		inventory:      inventory,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create a single-item order
type CreateOrderRequest struct {
	ConversationID string          `json:"conversation_id"`
	ProductID      int64           `json:"product_id" binding:"required"`
	Quantity       int             `json:"quantity" binding:"required,min=1"`
	Size           string          `json:"size,omitempty"`
	Color          string          `json:"color,omitempty"`
	Customer       models.Customer `json:"customer" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	Replayed    bool   `json:"replayed,omitempty"`
}

// CreateOrder re-validates the product and stock, takes the stock and stores the
// order. Requests that reuse an idempotency key get the original order back.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	committed, err := s.store.CommitOrderTx(ctx, store.OrderDraft{
		ConversationID: req.ConversationID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Size:           req.Size,
		Color:          req.Color,
		Customer:       req.Customer,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		util.FailSpan(span, err)
		util.OrdersFailedTotal.WithLabelValues(apperr.Kind(err)).Inc()
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	if committed.Replayed {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", committed.Order.ID))
		return &CreateOrderResponse{
			OrderID:     committed.Order.ID,
			Status:      committed.Order.Status,
			TotalAmount: committed.Order.TotalAmount,
			Replayed:    true,
		}, nil
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", committed.Order.ID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))

	if s.inventory != nil {
		s.inventory.MirrorDecrement(ctx, req.ProductID, req.Quantity)
	}

	if s.eventPublisher != nil {
		if err := s.eventPublisher.PublishOrderCommitted(ctx, orderCommittedEvent(committed)); err != nil {
			s.logger.Error("Failed to publish OrderCommitted event", zap.Error(err))
		}
	}

	return &CreateOrderResponse{
		OrderID:     committed.Order.ID,
		Status:      committed.Order.Status,
		TotalAmount: committed.Order.TotalAmount,
	}, nil
}

func validateCreateOrder(req *CreateOrderRequest) error {
	c := req.Customer
	switch {
	case req.ProductID <= 0:
		return fmt.Errorf("%w: product_id is required", apperr.ErrValidation)
	case req.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", apperr.ErrValidation)
	case c.FirstName == "" || c.Phone == "" || c.Address == "" || c.PostalCode == "":
		return fmt.Errorf("%w: customer name, phone, address and postal code are required", apperr.ErrValidation)
	}
	return nil
}

func orderCommittedEvent(c *store.CommittedOrder) *models.OrderCommittedEvent {
	return &models.OrderCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCommitted,
			Timestamp: time.Now(),
		},
		OrderID:        c.Order.ID,
		CustomerID:     c.Order.CustomerID,
		ConversationID: c.Order.ConversationID,
		TotalAmount:    c.Order.TotalAmount,
		Item: models.OrderItemData{
			ProductID: c.Item.ProductID,
			Quantity:  c.Item.Quantity,
			UnitPrice: c.Item.UnitPrice,
			Size:      c.Item.Size,
			Color:     c.Item.Color,
		},
	}
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}
