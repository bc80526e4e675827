package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// OrderDraft is everything needed to commit a single-item chat order
type OrderDraft struct {
	ConversationID string
	ProductID      int64
	Quantity       int
	Size           string
	Color          string
	Customer       models.Customer
	IdempotencyKey string
}

// CommittedOrder is the result of CommitOrderTx
type CommittedOrder struct {
	Order    models.Order
	Item     models.OrderItem
	Customer models.Customer
	// Replayed is set when the idempotency key already belonged to an order
	Replayed bool
}

// CommitOrderTx re-validates the product, takes the stock, upserts the customer
// and writes the order in one transaction. The product row is locked FOR UPDATE
// so concurrent commits on the same product serialize on stock.
func (s *Store) CommitOrderTx(ctx context.Context, d OrderDraft) (*CommittedOrder, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing models.Order
	err = tx.GetContext(ctx, &existing, "SELECT * FROM orders WHERE idempotency_key = $1", d.IdempotencyKey)
	if err == nil {
		return &CommittedOrder{Order: existing, Replayed: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}

	var product models.Product
	err = tx.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", d.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrProductNotFound, d.ProductID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}

	if d.Size != "" && len(product.Sizes) > 0 && !contains(product.Sizes, d.Size) {
		return nil, fmt.Errorf("%w: size %s not offered for %s", apperr.ErrValidation, d.Size, product.Code)
	}
	if d.Color != "" && len(product.Colors) > 0 && !contains(product.Colors, d.Color) {
		return nil, fmt.Errorf("%w: color %s not offered for %s", apperr.ErrValidation, d.Color, product.Code)
	}
	if product.Stock < d.Quantity {
		return nil, fmt.Errorf("%w: available=%d, requested=%d", apperr.ErrOutOfStock, product.Stock, d.Quantity)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2",
		d.Quantity, d.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}

	customer := d.Customer
	if err := upsertCustomerTx(ctx, tx, &customer); err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	order := models.Order{
		CustomerID:     customer.ID,
		ConversationID: d.ConversationID,
		TotalAmount:    product.Price * int64(d.Quantity),
		Status:         models.OrderStatusConfirmed,
		IdempotencyKey: d.IdempotencyKey,
	}
	err = tx.GetContext(ctx, &order, `
		INSERT INTO orders (customer_id, conversation_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		order.CustomerID, order.ConversationID, order.TotalAmount, order.Status, order.IdempotencyKey)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// A concurrent commit with the same key won; roll back and report it.
			_ = tx.Rollback()
			return s.replayOrder(ctx, d.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	item := models.OrderItem{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  d.Quantity,
		UnitPrice: product.Price,
		Size:      d.Size,
		Color:     d.Color,
	}
	err = tx.GetContext(ctx, &item.ID, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, size, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Size, item.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to create order item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &CommittedOrder{Order: order, Item: item, Customer: customer}, nil
}

func (s *Store) replayOrder(ctx context.Context, key string) (*CommittedOrder, error) {
	order, err := s.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order with idempotency key %s vanished", key)
	}
	return &CommittedOrder{Order: *order, Replayed: true}, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
