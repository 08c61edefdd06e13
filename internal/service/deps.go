package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
)

// Consumer-side interfaces over the store, cache and event stream.
// *store.Store, *redisclient.Client and *broker.EventPublisher satisfy
// them; tests substitute fakes.

// OrderStore persists orders and performs guarded state transitions.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error)
	CountOrdersByUser(ctx context.Context, userID string) (int, error)
	MarkOrderPaid(ctx context.Context, code, txnID, respCode string, paidAt, estimatedDelivery time.Time) (bool, error)
	MarkOrderPaymentFailed(ctx context.Context, code, txnID, respCode string) (bool, error)
	CancelOrder(ctx context.Context, code, userID, note string) (bool, error)
	TransitionOrderStatus(ctx context.Context, code string, from, to models.OrderStatus) (bool, error)
}

// ProductStore reads catalog products.
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartStore reads and deletes customer carts.
type CartStore interface {
	GetCartByOwner(ctx context.Context, ownerID string) (*models.Cart, []models.CartItem, error)
	DeleteCartByOwner(ctx context.Context, ownerID string) error
}

// StockStore performs the atomic stock operations.
type StockStore interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
}

// OrderCache is the advisory redis layer in front of order reads.
type OrderCache interface {
	GetOrder(ctx context.Context, code string) (*models.Order, error)
	SetOrder(ctx context.Context, order *models.Order) error
	InvalidateOrder(ctx context.Context, code string) error
	MarkCallbackSeen(ctx context.Context, orderCode, txnID string, ttl time.Duration) (bool, error)
}

// Publisher emits domain events to the order stream.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}
