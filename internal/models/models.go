package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product. Stock lives on the product row
// and is mutated only through the conditional operations in the store.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Cart is a customer's pending selection. It is consumed read-only by
// checkout and deleted once converted into an order.
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is one line of a cart. Price here is the price at the time
// the item was added; checkout re-reads the product for ground truth.
type CartItem struct {
	CartID    int64           `db:"cart_id" json:"cart_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// ShippingAddress is snapshotted onto the order at checkout.
type ShippingAddress struct {
	FullName   string `db:"ship_full_name" json:"full_name"`
	Phone      string `db:"ship_phone" json:"phone"`
	Address    string `db:"ship_address" json:"address"`
	City       string `db:"ship_city" json:"city"`
	PostalCode string `db:"ship_postal_code" json:"postal_code,omitempty"`
	Notes      string `db:"ship_notes" json:"notes,omitempty"`
}

// Order is the durable result of a checkout. Line items, names and
// prices are snapshots taken at order time and never change afterward.
type Order struct {
	ID            int64           `db:"id" json:"id"`
	OrderCode     string          `db:"order_code" json:"order_code"`
	UserID        string          `db:"user_id" json:"user_id"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingFee   decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`

	PaymentMethod     PaymentMethod `db:"payment_method" json:"payment_method"`
	GatewayTxnID      string        `db:"vnpay_transaction_id" json:"vnpay_transaction_id,omitempty"`
	GatewayRespCode   string        `db:"vnpay_response_code" json:"vnpay_response_code,omitempty"`
	PaidAt            *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	EstimatedDelivery *time.Time    `db:"estimated_delivery" json:"estimated_delivery,omitempty"`

	ShippingAddress `json:"shipping_address"`

	Notes     string    `db:"notes" json:"notes,omitempty"`
	OrderedAt time.Time `db:"ordered_at" json:"ordered_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is an immutable line-item snapshot.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Total     decimal.Decimal `db:"total" json:"total"`
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodVNPay PaymentMethod = "vnpay"
	PaymentMethodCOD   PaymentMethod = "cod"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodVNPay || m == PaymentMethodCOD
}
