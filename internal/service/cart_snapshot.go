package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
)

// CartSnapshotReader converts a cart into order line-item snapshots
// using the current product records, not the cart's cached prices.
// Prices and availability may have drifted since items were added;
// checkout must use ground truth.
type CartSnapshotReader struct {
	carts    CartStore
	products ProductStore
}

// NewCartSnapshotReader creates a snapshot reader.
func NewCartSnapshotReader(carts CartStore, products ProductStore) *CartSnapshotReader {
	return &CartSnapshotReader{carts: carts, products: products}
}

// Snapshot reads the owner's cart and returns line items with the
// authoritative name and price per product. Fails with ErrEmptyCart
// when the cart is missing or empty and ProductUnavailableError when a
// product was removed or deactivated.
func (r *CartSnapshotReader) Snapshot(ctx context.Context, ownerID string) ([]models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "CartSnapshotReader.Snapshot")
	defer span.End()

	cart, cartItems, err := r.carts.GetCartByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if cart == nil || len(cartItems) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]models.OrderItem, 0, len(cartItems))
	for _, ci := range cartItems {
		product, err := r.products.GetProductByID(ctx, ci.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to read product %d: %w", ci.ProductID, err)
		}
		if product == nil || !product.IsActive {
			e := &ProductUnavailableError{ProductID: ci.ProductID}
			if product != nil {
				e.Name = product.Name
			}
			return nil, e
		}

		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  ci.Quantity,
			Total:     product.Price.Mul(decimal.NewFromInt(int64(ci.Quantity))),
		})
	}

	return items, nil
}
