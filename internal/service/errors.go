package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidAddress       = errors.New("shipping address is incomplete")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("order status transition not allowed")
	ErrAlreadyPaid          = errors.New("order has already been paid")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

// ProductUnavailableError indicates a cart references a product that no
// longer exists or has been deactivated.
type ProductUnavailableError struct {
	ProductID int64
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("product %d is no longer available", e.ProductID)
	}
	return fmt.Sprintf("product %q is no longer available", e.Name)
}

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q (requested %d)", e.Name, e.Requested)
}
