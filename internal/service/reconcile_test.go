package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/vnpay"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileFixture struct {
	svc      *ReconcileService
	verifier *stubVerifier
	orders   *fakeOrderStore
	stock    *fakeStockStore
	cache    *fakeCache
	events   *fakePublisher
}

// newReconcileFixture seeds a pending order for 2 units of product 1
// with 8 left in stock, as after a successful checkout from 10.
func newReconcileFixture() *reconcileFixture {
	f := &reconcileFixture{
		verifier: &stubVerifier{ok: true},
		orders:   newFakeOrderStore(),
		stock:    newFakeStockStore(map[int64]int{1: 8}),
		cache:    newFakeCache(),
		events:   &fakePublisher{},
	}

	f.orders.put(&models.Order{
		OrderCode:     "GH12345678001",
		UserID:        "u1",
		Subtotal:      decimal.RequireFromString("51.98"),
		TotalAmount:   decimal.RequireFromString("51.98"),
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: models.PaymentMethodVNPay,
		Items: []models.OrderItem{
			{ProductID: 1, Name: "Vitamin C 1000mg", Price: decimal.RequireFromString("25.99"), Quantity: 2, Total: decimal.RequireFromString("51.98")},
		},
	})

	ledger := NewInventoryLedger(f.stock)
	f.svc = NewReconcileService(f.verifier, f.orders, ledger, f.cache, f.events)
	return f
}

func callbackParams(code, respCode string) map[string]string {
	return map[string]string{
		"vnp_TxnRef":        code,
		"vnp_ResponseCode":  respCode,
		"vnp_TransactionNo": "14421988",
		"vnp_Amount":        "5198",
		"vnp_BankCode":      "NCB",
		"vnp_PayDate":       "20240315103500",
		"vnp_SecureHash":    "stubbed",
	}
}

func TestIPNSuccess(t *testing.T) {
	f := newReconcileFixture()

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, vnpay.IPNResponse{RspCode: "00", Message: "Confirm Success"}, resp)

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "14421988", order.GatewayTxnID)
	assert.Equal(t, "00", order.GatewayRespCode)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.EstimatedDelivery)
	assert.WithinDuration(t, order.PaidAt.Add(4*24*time.Hour), *order.EstimatedDelivery, time.Second)

	assert.Equal(t, 8, f.stock.stockOf(1), "success does not touch inventory")
	require.Len(t, f.events.paid, 1)
	assert.Equal(t, "GH12345678001", f.events.paid[0].OrderCode)
}

func TestIPNDuplicateSuccessIsNoOp(t *testing.T) {
	f := newReconcileFixture()

	first := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	require.Equal(t, "00", first.RspCode)

	before, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")

	second := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, vnpay.IPNResponse{RspCode: "02", Message: "Order already confirmed"}, second)

	after, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, before.PaymentStatus, after.PaymentStatus)
	assert.Equal(t, before.GatewayTxnID, after.GatewayTxnID)
	assert.True(t, before.PaidAt.Equal(*after.PaidAt), "payment metadata set exactly once")

	assert.Len(t, f.events.paid, 1, "paid event published exactly once")
}

func TestIPNFailureCancelsAndRestoresStock(t *testing.T) {
	f := newReconcileFixture()

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "24"))
	assert.Equal(t, "00", resp.RspCode, "a processed failure still acknowledges the gateway")

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, "24", order.GatewayRespCode)

	assert.Equal(t, 10, f.stock.stockOf(1), "stock restored to pre-checkout level")
	assert.Equal(t, []reservation{{productID: 1, quantity: 2}}, f.stock.releases)
	assert.Len(t, f.events.cancelled, 1)
}

func TestIPNDuplicateFailureReleasesOnce(t *testing.T) {
	f := newReconcileFixture()

	f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "24"))
	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "24"))

	assert.Equal(t, "02", resp.RspCode)
	assert.Equal(t, 10, f.stock.stockOf(1), "no double release")
	assert.Len(t, f.stock.releases, 1)
}

func TestIPNOrderNotFound(t *testing.T) {
	f := newReconcileFixture()

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH00000000000", "00"))
	assert.Equal(t, vnpay.IPNResponse{RspCode: "01", Message: "Order not found"}, resp)
}

func TestIPNInvalidSignature(t *testing.T) {
	f := newReconcileFixture()
	f.verifier.ok = false

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, vnpay.IPNResponse{RspCode: "97", Message: "Checksum failed"}, resp)

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus, "mis-signed callback mutates nothing")
}

func TestIPNMalformedParams(t *testing.T) {
	f := newReconcileFixture()

	resp := f.svc.HandleIPN(context.Background(), map[string]string{
		"vnp_ResponseCode": "00",
		"vnp_Amount":       "5198",
		"vnp_SecureHash":   "stubbed",
	})
	assert.Equal(t, "97", resp.RspCode)
}

func TestReturnSuccessAppliesOutcome(t *testing.T) {
	f := newReconcileFixture()

	result := f.svc.HandleReturn(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, ReturnSuccess, result.Outcome)
	assert.Equal(t, "GH12345678001", result.OrderCode)

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestReturnFailureOutcome(t *testing.T) {
	f := newReconcileFixture()

	result := f.svc.HandleReturn(context.Background(), callbackParams("GH12345678001", "24"))
	assert.Equal(t, ReturnFailed, result.Outcome)

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 10, f.stock.stockOf(1))
}

func TestReturnInvalidSignature(t *testing.T) {
	f := newReconcileFixture()
	f.verifier.ok = false

	result := f.svc.HandleReturn(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, ReturnError, result.Outcome)

	order, _ := f.orders.GetOrderByCode(context.Background(), "GH12345678001")
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}

// The two channels delivering the same success in either order produce
// exactly one paid transition.
func TestReturnThenIPNConverge(t *testing.T) {
	f := newReconcileFixture()

	result := f.svc.HandleReturn(context.Background(), callbackParams("GH12345678001", "00"))
	require.Equal(t, ReturnSuccess, result.Outcome)

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, "02", resp.RspCode)

	assert.Len(t, f.events.paid, 1)
}

func TestIPNThenReturnConverge(t *testing.T) {
	f := newReconcileFixture()

	resp := f.svc.HandleIPN(context.Background(), callbackParams("GH12345678001", "00"))
	require.Equal(t, "00", resp.RspCode)

	result := f.svc.HandleReturn(context.Background(), callbackParams("GH12345678001", "00"))
	assert.Equal(t, ReturnSuccess, result.Outcome, "duplicate success still shows the success page")

	assert.Len(t, f.events.paid, 1)
}
