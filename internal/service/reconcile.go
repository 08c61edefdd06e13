package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"
	"checkout-service/internal/vnpay"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// deliveryOffset is the fixed estimated-delivery window after payment.
	deliveryOffset = 4 * 24 * time.Hour

	// callbackSeenTTL bounds the advisory duplicate-delivery marker.
	callbackSeenTTL = 24 * time.Hour
)

// ReturnOutcome classifies a browser-return callback for the caller,
// which only has to pick a page to show.
type ReturnOutcome int

const (
	ReturnSuccess ReturnOutcome = iota
	ReturnFailed
	ReturnError
)

// ReturnResult is what the redirect-return handler gives the HTTP layer.
type ReturnResult struct {
	Outcome   ReturnOutcome
	OrderCode string
	Message   string
}

// Verifier checks callback signatures. *vnpay.Client satisfies it.
type Verifier interface {
	VerifySignature(params map[string]string) bool
}

// ReconcileService applies gateway payment outcomes to orders exactly
// once. Both callback channels converge on applyOutcome, whose
// conditional write in the store is the authoritative race arbiter.
type ReconcileService struct {
	verifier Verifier
	orders   OrderStore
	ledger   *InventoryLedger
	cache    OrderCache
	events   Publisher
	logger   *zap.Logger
}

// NewReconcileService creates the reconciliation handler.
func NewReconcileService(
	verifier Verifier,
	orders OrderStore,
	ledger *InventoryLedger,
	cache OrderCache,
	events Publisher,
) *ReconcileService {
	return &ReconcileService{
		verifier: verifier,
		orders:   orders,
		ledger:   ledger,
		cache:    cache,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// HandleReturn processes the browser-redirect callback. It never
// mutates an order on a bad signature; on a valid one it applies the
// outcome and tells the caller which page to show.
func (s *ReconcileService) HandleReturn(ctx context.Context, params map[string]string) ReturnResult {
	ctx, span := util.StartSpan(ctx, "ReconcileService.HandleReturn")
	defer span.End()

	if !s.verifier.VerifySignature(params) {
		util.CallbackSignatureFailuresTotal.Inc()
		s.logger.Warn("Return callback with invalid signature", zap.Any("params", params))
		return ReturnResult{Outcome: ReturnError, Message: "invalid signature"}
	}

	cb, err := vnpay.ParseCallback(params)
	if err != nil {
		s.logger.Warn("Return callback malformed", zap.Error(err))
		return ReturnResult{Outcome: ReturnError, Message: "malformed callback"}
	}

	order, err := s.orders.GetOrderByCode(ctx, cb.OrderCode)
	if err != nil {
		s.logger.Error("Return callback order lookup failed", zap.Error(err))
		return ReturnResult{Outcome: ReturnError, OrderCode: cb.OrderCode, Message: "internal error"}
	}
	if order == nil {
		return ReturnResult{Outcome: ReturnError, OrderCode: cb.OrderCode, Message: "order not found"}
	}

	if _, err := s.applyOutcome(ctx, order, cb); err != nil {
		s.logger.Error("Failed to apply payment outcome",
			zap.String("order_code", cb.OrderCode), zap.Error(err))
		return ReturnResult{Outcome: ReturnError, OrderCode: cb.OrderCode, Message: "internal error"}
	}

	result := ReturnResult{
		OrderCode: cb.OrderCode,
		Message:   vnpay.ResponseMessage(cb.ResponseCode),
	}
	if cb.Success() {
		result.Outcome = ReturnSuccess
	} else {
		result.Outcome = ReturnFailed
	}
	return result
}

// HandleIPN processes the gateway's server-to-server notification and
// returns the acknowledgement code its retry loop keys on.
func (s *ReconcileService) HandleIPN(ctx context.Context, params map[string]string) vnpay.IPNResponse {
	ctx, span := util.StartSpan(ctx, "ReconcileService.HandleIPN")
	defer span.End()

	resp := s.handleIPN(ctx, params)
	util.IPNResponsesTotal.WithLabelValues(resp.RspCode).Inc()
	return resp
}

func (s *ReconcileService) handleIPN(ctx context.Context, params map[string]string) vnpay.IPNResponse {
	if !s.verifier.VerifySignature(params) {
		util.CallbackSignatureFailuresTotal.Inc()
		s.logger.Warn("IPN with invalid signature", zap.Any("params", params))
		return vnpay.IPNResponse{RspCode: vnpay.IPNChecksumFailed, Message: "Checksum failed"}
	}

	cb, err := vnpay.ParseCallback(params)
	if err != nil {
		// Malformed input on a signed channel counts as a checksum
		// problem; the gateway never sends partial parameter sets.
		s.logger.Warn("IPN malformed", zap.Error(err))
		return vnpay.IPNResponse{RspCode: vnpay.IPNChecksumFailed, Message: "Checksum failed"}
	}

	order, err := s.orders.GetOrderByCode(ctx, cb.OrderCode)
	if err != nil {
		s.logger.Error("IPN order lookup failed", zap.Error(err))
		return vnpay.IPNResponse{RspCode: vnpay.IPNUnknownError, Message: "Unknown error"}
	}
	if order == nil {
		// Retrying cannot help an order that does not exist.
		return vnpay.IPNResponse{RspCode: vnpay.IPNOrderNotFound, Message: "Order not found"}
	}

	applied, err := s.applyOutcome(ctx, order, cb)
	if err != nil {
		return vnpay.IPNResponse{RspCode: vnpay.IPNUnknownError, Message: "Unknown error"}
	}
	if !applied {
		return vnpay.IPNResponse{RspCode: vnpay.IPNAlreadyConfirmed, Message: "Order already confirmed"}
	}
	return vnpay.IPNResponse{RspCode: vnpay.IPNConfirmSuccess, Message: "Confirm Success"}
}

// applyOutcome applies a verified payment outcome with a conditional
// write guarded on the order still being pending. The winner of a race
// performs the side effects; the loser observes the settled state and
// reports applied=false (the idempotent no-op). Inventory was committed
// at checkout, so a success touches no stock; a failure releases every
// line's reservation.
func (s *ReconcileService) applyOutcome(ctx context.Context, order *models.Order, cb *vnpay.Callback) (bool, error) {
	if order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}

	if first, err := s.cache.MarkCallbackSeen(ctx, cb.OrderCode, cb.TransactionNo, callbackSeenTTL); err == nil && !first {
		s.logger.Info("Duplicate callback delivery",
			zap.String("order_code", cb.OrderCode),
			zap.String("txn_no", cb.TransactionNo))
	}

	if cb.Success() {
		paidAt := time.Now()
		won, err := s.orders.MarkOrderPaid(ctx, cb.OrderCode, cb.TransactionNo, cb.ResponseCode,
			paidAt, paidAt.Add(deliveryOffset))
		if err != nil {
			return false, err
		}
		if !won {
			return false, nil
		}

		util.OrdersPaidTotal.Inc()
		s.invalidate(ctx, cb.OrderCode)
		s.logger.Info("Payment confirmed",
			zap.String("order_code", cb.OrderCode),
			zap.String("txn_no", cb.TransactionNo))

		s.publish(ctx, func() error {
			return s.events.PublishOrderPaid(ctx, &models.OrderPaidEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderPaid,
					Timestamp: time.Now(),
				},
				OrderCode: cb.OrderCode,
				Amount:    cb.Amount,
				TxnID:     cb.TransactionNo,
			})
		})
		return true, nil
	}

	won, err := s.orders.MarkOrderPaymentFailed(ctx, cb.OrderCode, cb.TransactionNo, cb.ResponseCode)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	for _, item := range order.Items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock for failed payment",
				zap.String("order_code", cb.OrderCode),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	util.OrdersCancelledTotal.Inc()
	s.invalidate(ctx, cb.OrderCode)
	s.logger.Info("Payment failed, order cancelled",
		zap.String("order_code", cb.OrderCode),
		zap.String("response_code", cb.ResponseCode))

	s.publish(ctx, func() error {
		return s.events.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCancelled,
				Timestamp: time.Now(),
			},
			OrderCode: cb.OrderCode,
			Reason:    "payment failed: " + vnpay.ResponseMessage(cb.ResponseCode),
		})
	})
	return true, nil
}

func (s *ReconcileService) invalidate(ctx context.Context, code string) {
	if err := s.cache.InvalidateOrder(ctx, code); err != nil {
		s.logger.Warn("Failed to invalidate cached order",
			zap.String("order_code", code), zap.Error(err))
	}
}

func (s *ReconcileService) publish(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("Failed to publish event", zap.Error(err))
	}
}
