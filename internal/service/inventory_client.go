package service

import (
	"context"
	"fmt"
	"time"

	"chat-order-service/internal/redisclient"
	"chat-order-service/internal/store"
	"chat-order-service/internal/util"

	"go.uber.org/zap"
)

// InventoryClient keeps a Redis copy of product stock. The database stays
// authoritative; the cache only speeds up lookups during a conversation.
type InventoryClient struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store *store.Store, redis *redisclient.Client) *InventoryClient {
	return &InventoryClient{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Available returns the cached stock for productID, or fallback when the cache
// has no entry or cannot be reached
func (ic *InventoryClient) Available(ctx context.Context, productID int64, fallback int) int {
	available, cached, err := ic.redis.GetAvailable(ctx, productID)
	if err != nil {
		ic.logger.Warn("Redis stock lookup failed, using database value",
			zap.Int64("product_id", productID),
			zap.Error(err))
		util.InventoryCacheMissesTotal.Inc()
		return fallback
	}
	if !cached {
		util.InventoryCacheMissesTotal.Inc()
		return fallback
	}
	return available
}

// MirrorDecrement applies a committed decrement to the cache. A product that
// is not cached, or whose cached stock is short, is re-read from the database.
func (ic *InventoryClient) MirrorDecrement(ctx context.Context, productID int64, quantity int) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.MirrorDecrement")
	defer span.End()

	res, err := ic.redis.DecrementStock(ctx, productID, quantity)
	if err != nil {
		ic.logger.Error("Failed to mirror stock decrement in Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return
	}
	if res == redisclient.DecrementApplied {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ic.resync(ctx, productID); err != nil {
			ic.logger.Error("Failed to resync product stock to Redis",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}()
}

func (ic *InventoryClient) resync(ctx context.Context, productID int64) error {
	product, err := ic.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	return ic.redis.InitInventory(ctx, product.ID, product.Stock)
}

// SyncInventoryToRedis synchronizes database stock to Redis
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	ic.logger.Info("Starting inventory sync to Redis")

	products, err := ic.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		if err := ic.redis.InitInventory(ctx, product.ID, product.Stock); err != nil {
			ic.logger.Error("Failed to init Redis inventory",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}
