package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderCode   string          `json:"order_code"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderPaidEvent published when a payment outcome is reconciled as paid
type OrderPaidEvent struct {
	BaseEvent
	OrderCode string          `json:"order_code"`
	Amount    decimal.Decimal `json:"amount"`
	TxnID     string          `json:"txn_id"`
}

// OrderCancelledEvent published on failed payment or explicit cancellation
type OrderCancelledEvent struct {
	BaseEvent
	OrderCode string `json:"order_code"`
	Reason    string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
