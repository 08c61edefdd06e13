package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"
	"checkout-service/internal/vnpay"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// OrderService covers the order operations outside checkout and
// reconciliation: lookup, listing, cancellation, admin status moves and
// building the gateway redirect.
type OrderService struct {
	orders  OrderStore
	ledger  *InventoryLedger
	cache   OrderCache
	gateway *vnpay.Client
	events  Publisher
	logger  *zap.Logger
}

// NewOrderService creates an order service.
func NewOrderService(
	orders OrderStore,
	ledger *InventoryLedger,
	cache OrderCache,
	gateway *vnpay.Client,
	events Publisher,
) *OrderService {
	return &OrderService{
		orders:  orders,
		ledger:  ledger,
		cache:   cache,
		gateway: gateway,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// GetOrder retrieves an order by code, scoped to its owner. An empty
// ownerID skips the ownership check (admin path). Reads go through the
// redis cache; transitions invalidate it, so hits are never stale.
func (s *OrderService) GetOrder(ctx context.Context, code, ownerID string) (*models.Order, error) {
	if cached, err := s.cache.GetOrder(ctx, code); err == nil && cached != nil {
		if ownerID == "" || cached.UserID == ownerID {
			return cached, nil
		}
		return nil, ErrOrderNotFound
	}

	order, err := s.orders.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || (ownerID != "" && order.UserID != ownerID) {
		return nil, ErrOrderNotFound
	}

	if err := s.cache.SetOrder(ctx, order); err != nil {
		s.logger.Warn("Failed to cache order", zap.String("order_code", code), zap.Error(err))
	}
	return order, nil
}

// OrderPage is one page of a user's order history.
type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	TotalItems int            `json:"total_items"`
}

// ListOrders returns a page of the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, ownerID string, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	orders, err := s.orders.ListOrdersByUser(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	total, err := s.orders.CountOrdersByUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	return &OrderPage{
		Orders:     orders,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
		TotalItems: total,
	}, nil
}

// Cancel performs a customer-initiated cancellation. Only pending and
// paid orders can be cancelled; the guard is the conditional update in
// the store, so two racing cancels (or a cancel racing a payment
// callback) resolve to exactly one winner. Cancellation releases the
// stock reserved at checkout and appends an audit note.
func (s *OrderService) Cancel(ctx context.Context, code, ownerID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.orders.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || order.UserID != ownerID {
		return nil, ErrOrderNotFound
	}
	if !models.Cancellable(order.Status) {
		return nil, ErrInvalidTransition
	}

	note := "Cancelled by customer: " + reason
	won, err := s.orders.CancelOrder(ctx, code, ownerID, note)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !won {
		// The order left a cancellable state between the read and the
		// guarded write.
		return nil, ErrInvalidTransition
	}

	for _, item := range order.Items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock on cancellation",
				zap.String("order_code", code),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	util.OrdersCancelledTotal.Inc()
	s.invalidate(ctx, code)
	s.logger.Info("Order cancelled by customer",
		zap.String("order_code", code), zap.String("user_id", ownerID))

	if err := s.events.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderCode: code,
		Reason:    note,
	}); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return s.orders.GetOrderByCode(ctx, code)
}

// UpdateStatus moves an order to the next fulfillment state (admin
// operation). The transition table is consulted first and the write is
// a compare-and-swap on the current status.
func (s *OrderService) UpdateStatus(ctx context.Context, code string, next models.OrderStatus) (*models.Order, error) {
	if !models.ValidOrderStatus(next) {
		return nil, ErrInvalidTransition
	}

	order, err := s.orders.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !models.CanTransition(order.Status, next) {
		return nil, ErrInvalidTransition
	}

	won, err := s.orders.TransitionOrderStatus(ctx, code, order.Status, next)
	if err != nil {
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	if !won {
		return nil, ErrInvalidTransition
	}

	if next == models.OrderStatusCancelled {
		for _, item := range order.Items {
			if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
				s.logger.Error("Failed to release stock on admin cancellation",
					zap.String("order_code", code),
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			}
		}
		util.OrdersCancelledTotal.Inc()
	}

	s.invalidate(ctx, code)
	s.logger.Info("Order status updated",
		zap.String("order_code", code),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)))

	return s.orders.GetOrderByCode(ctx, code)
}

// PaymentURL builds the signed gateway redirect for an unpaid order.
func (s *OrderService) PaymentURL(ctx context.Context, code, ownerID, clientIP string) (string, error) {
	order, err := s.orders.GetOrderByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || (ownerID != "" && order.UserID != ownerID) {
		return "", ErrOrderNotFound
	}
	if order.PaymentMethod != models.PaymentMethodVNPay {
		return "", ErrInvalidPaymentMethod
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return "", ErrAlreadyPaid
	}

	util.PaymentURLsBuiltTotal.Inc()
	return s.gateway.BuildPaymentURL(order, clientIP, time.Now()), nil
}

func (s *OrderService) invalidate(ctx context.Context, code string) {
	if err := s.cache.InvalidateOrder(ctx, code); err != nil {
		s.logger.Warn("Failed to invalidate cached order",
			zap.String("order_code", code), zap.Error(err))
	}
}
