package service

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxCodeAttempts bounds retries on an order-code collision.
const maxCodeAttempts = 3

// CheckoutService converts carts into durable orders. Cart read, stock
// reservation and order persistence behave as one atomic unit: any
// failure after reservations are taken rolls every reservation back.
type CheckoutService struct {
	snapshots *CartSnapshotReader
	ledger    *InventoryLedger
	orders    OrderStore
	carts     CartStore
	fee       FeePolicy
	events    Publisher
	logger    *zap.Logger
}

// NewCheckoutService creates the checkout orchestrator.
func NewCheckoutService(
	snapshots *CartSnapshotReader,
	ledger *InventoryLedger,
	orders OrderStore,
	carts CartStore,
	fee FeePolicy,
	events Publisher,
) *CheckoutService {
	return &CheckoutService{
		snapshots: snapshots,
		ledger:    ledger,
		orders:    orders,
		carts:     carts,
		fee:       fee,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest is the input to a checkout.
type CheckoutRequest struct {
	UserID          string
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	Notes           string
}

// Checkout runs the checkout transaction: validate the address, take a
// cart snapshot, reserve stock line by line, persist the order, then
// delete the cart so it cannot be replayed into a second order.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateAddress(req.ShippingAddress); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_payment_method").Inc()
		return nil, ErrInvalidPaymentMethod
	}

	items, err := s.snapshots.Snapshot(ctx, req.UserID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("cart").Inc()
		return nil, err
	}

	reserved, err := s.reserveAll(ctx, items)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	var subtotal decimal.Decimal
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}
	shippingFee := s.fee(subtotal, req.ShippingAddress.City)

	order := &models.Order{
		UserID:          req.UserID,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		TotalAmount:     subtotal.Add(shippingFee),
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		OrderedAt:       time.Now(),
		Items:           items,
	}

	if err := s.persistWithFreshCode(ctx, order); err != nil {
		// No stock may stay reserved for an order that was never created.
		s.ledger.releaseAll(ctx, reserved)
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.carts.DeleteCartByOwner(ctx, req.UserID); err != nil {
		s.logger.Error("Failed to delete cart after checkout",
			zap.String("user_id", req.UserID),
			zap.String("order_code", order.OrderCode),
			zap.Error(err))
	}

	util.CheckoutsTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_code", order.OrderCode),
		zap.String("user_id", req.UserID),
		zap.String("total", order.TotalAmount.String()))

	s.publishCreated(ctx, order)

	return order, nil
}

// reserveAll reserves stock for every line item. If any reservation
// fails, the ones already made in this attempt are released exactly
// once each.
func (s *CheckoutService) reserveAll(ctx context.Context, items []models.OrderItem) ([]reservation, error) {
	reserved := make([]reservation, 0, len(items))
	for _, item := range items {
		ok, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.ledger.releaseAll(ctx, reserved)
			return nil, err
		}
		if !ok {
			s.ledger.releaseAll(ctx, reserved)
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Name:      item.Name,
				Requested: item.Quantity,
			}
		}
		reserved = append(reserved, reservation{productID: item.ProductID, quantity: item.Quantity})
	}
	return reserved, nil
}

// persistWithFreshCode inserts the order, regenerating the code on a
// unique-constraint collision.
func (s *CheckoutService) persistWithFreshCode(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		order.OrderCode = newOrderCode()
		err = s.orders.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !store.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("Order code collision, regenerating",
			zap.String("order_code", order.OrderCode))
	}
	return err
}

func (s *CheckoutService) publishCreated(ctx context.Context, order *models.Order) {
	itemData := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		itemData = append(itemData, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderCode:   order.OrderCode,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       itemData,
	}

	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// validateAddress checks the mandatory shipping fields.
func validateAddress(addr models.ShippingAddress) error {
	for _, field := range []string{addr.FullName, addr.Phone, addr.Address, addr.City} {
		if strings.TrimSpace(field) == "" {
			return ErrInvalidAddress
		}
	}
	return nil
}

// newOrderCode generates a human-meaningful order code: a "GH" prefix,
// the last eight digits of the unix-millisecond clock, and a random
// three-digit suffix. Uniqueness is enforced by the store; collisions
// are retried with a fresh code.
func newOrderCode() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	return fmt.Sprintf("GH%s%03d", ts, rand.Intn(1000))
}
