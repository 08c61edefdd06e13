package service

import (
	"context"
	"fmt"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger exposes the two atomic stock operations. The
// conditional decrement lives in the database, so the guard holds
// across process instances.
type InventoryLedger struct {
	stock  StockStore
	logger *zap.Logger
}

// NewInventoryLedger creates an inventory ledger backed by the store.
func NewInventoryLedger(stock StockStore) *InventoryLedger {
	return &InventoryLedger{
		stock:  stock,
		logger: util.GetLogger(),
	}
}

// Reserve decrements stock for a product only if enough is available.
// Product existence is the caller's responsibility; a missing product
// reports insufficient stock.
func (l *InventoryLedger) Reserve(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Reserve")
	defer span.End()

	ok, err := l.stock.ReserveStock(ctx, productID, quantity)
	if err != nil {
		util.StockReservationsFailedTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to reserve stock for product %d: %w", productID, err)
	}
	if !ok {
		util.StockReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
	}
	return ok, nil
}

// Release increments stock for a product (compensation). Always
// succeeds barring storage errors.
func (l *InventoryLedger) Release(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release")
	defer span.End()

	if err := l.stock.ReleaseStock(ctx, productID, quantity); err != nil {
		l.logger.Error("Failed to release stock",
			zap.Int64("product_id", productID),
			zap.Int("quantity", quantity),
			zap.Error(err))
		return fmt.Errorf("failed to release stock for product %d: %w", productID, err)
	}
	return nil
}

// releaseAll compensates a set of reservations, logging rather than
// aborting on individual failures so every line gets a release attempt.
func (l *InventoryLedger) releaseAll(ctx context.Context, items []reservation) {
	for _, r := range items {
		if err := l.Release(ctx, r.productID, r.quantity); err != nil {
			l.logger.Error("Compensation release failed",
				zap.Int64("product_id", r.productID),
				zap.Error(err))
		}
	}
}

type reservation struct {
	productID int64
	quantity  int
}
