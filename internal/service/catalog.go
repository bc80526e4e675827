package service

import (
	"context"

	"chat-order-service/internal/models"
	"chat-order-service/internal/store"
	"chat-order-service/internal/util"
)

// Catalog answers product lookups for conversations, preferring cached stock
type Catalog struct {
	store     *store.Store
	inventory *InventoryClient
}

// NewCatalog creates a new catalog; inventory may be nil
func NewCatalog(store *store.Store, inventory *InventoryClient) *Catalog {
	return &Catalog{store: store, inventory: inventory}
}

// FindByCode returns the product with the normalized code, wrapping
// apperr.ErrProductNotFound on a miss
func (c *Catalog) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.FindByCode")
	defer span.End()

	product, err := c.store.GetProductByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.inventory != nil {
		product.Stock = c.inventory.Available(ctx, product.ID, product.Stock)
	}
	return product, nil
}

// Search returns up to limit products ranked by how well they match terms
func (c *Catalog) Search(ctx context.Context, terms []string, limit int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.Search")
	defer span.End()

	return c.store.SearchProducts(ctx, terms, limit)
}

// CustomerDirectory recognises repeat customers by phone number
type CustomerDirectory struct {
	store *store.Store
}

// NewCustomerDirectory creates a new customer directory
func NewCustomerDirectory(store *store.Store) *CustomerDirectory {
	return &CustomerDirectory{store: store}
}

// FindByPhone returns the customer registered under phone, or nil
func (d *CustomerDirectory) FindByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return d.store.GetCustomerByPhone(ctx, phone)
}
