package store

import (
	"context"
	"database/sql"
	"errors"

	"chat-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCustomerByPhone retrieves a customer by phone, or nil when unknown
func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, "SELECT * FROM customers WHERE phone = $1", phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// upsertCustomerTx creates the customer or refreshes the details of the one
// already registered under the same phone
func upsertCustomerTx(ctx context.Context, tx *sqlx.Tx, c *models.Customer) error {
	query := `
		INSERT INTO customers (first_name, last_name, phone, address, postal_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), customers.last_name),
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, c, query,
		c.FirstName, c.LastName, c.Phone, c.Address, c.PostalCode)
}
