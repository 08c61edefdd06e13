package service

import (
	"context"
	"sync"
	"time"

	"checkout-service/internal/models"

	"github.com/lib/pq"
)

// Hand-written fakes for the consumer-side interfaces in deps.go.

type fakeStockStore struct {
	mu         sync.Mutex
	stock      map[int64]int
	releases   []reservation
	reserveErr map[int64]error
}

func newFakeStockStore(stock map[int64]int) *fakeStockStore {
	return &fakeStockStore{stock: stock, reserveErr: make(map[int64]error)}
}

func (f *fakeStockStore) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reserveErr[productID]; err != nil {
		return false, err
	}
	if f.stock[productID] < quantity {
		return false, nil
	}
	f.stock[productID] -= quantity
	return true, nil
}

func (f *fakeStockStore) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID] += quantity
	f.releases = append(f.releases, reservation{productID: productID, quantity: quantity})
	return nil
}

func (f *fakeStockStore) stockOf(productID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID]
}

type fakeProductStore struct {
	products map[int64]*models.Product
}

func (f *fakeProductStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return f.products[id], nil
}

type fakeCartStore struct {
	carts   map[string][]models.CartItem
	deleted []string
}

func (f *fakeCartStore) GetCartByOwner(ctx context.Context, ownerID string) (*models.Cart, []models.CartItem, error) {
	items, ok := f.carts[ownerID]
	if !ok {
		return nil, nil, nil
	}
	return &models.Cart{ID: 1, OwnerID: ownerID}, items, nil
}

func (f *fakeCartStore) DeleteCartByOwner(ctx context.Context, ownerID string) error {
	delete(f.carts, ownerID)
	f.deleted = append(f.deleted, ownerID)
	return nil
}

type fakeOrderStore struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	nextID     int64
	createErr  error
	collisions int // number of unique-violation errors to inject
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderStore) put(order *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	f.orders[order.OrderCode] = order
}

func (f *fakeOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.collisions > 0 {
		f.collisions--
		return &pq.Error{Code: "23505"}
	}
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	f.orders[order.OrderCode] = &stored
	return nil
}

// GetOrderByCode hands back a copy, like a fresh read from the database.
func (f *fakeOrderStore) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[code]
	if !ok {
		return nil, nil
	}
	order := *stored
	order.Items = append([]models.OrderItem(nil), stored.Items...)
	return &order, nil
}

func (f *fakeOrderStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == orderID {
			return append([]models.OrderItem(nil), o.Items...), nil
		}
	}
	return nil, nil
}

func (f *fakeOrderStore) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) CountOrdersByUser(ctx context.Context, userID string) (int, error) {
	orders, _ := f.ListOrdersByUser(ctx, userID, 0, 0)
	return len(orders), nil
}

func (f *fakeOrderStore) MarkOrderPaid(ctx context.Context, code, txnID, respCode string, paidAt, estimatedDelivery time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok || o.PaymentStatus != models.PaymentStatusPending || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusPaid
	o.PaymentStatus = models.PaymentStatusPaid
	o.GatewayTxnID = txnID
	o.GatewayRespCode = respCode
	o.PaidAt = &paidAt
	o.EstimatedDelivery = &estimatedDelivery
	return true, nil
}

func (f *fakeOrderStore) MarkOrderPaymentFailed(ctx context.Context, code, txnID, respCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok || o.PaymentStatus != models.PaymentStatusPending || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	o.PaymentStatus = models.PaymentStatusFailed
	o.GatewayTxnID = txnID
	o.GatewayRespCode = respCode
	return true, nil
}

func (f *fakeOrderStore) CancelOrder(ctx context.Context, code, userID, note string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok || o.UserID != userID || !models.Cancellable(o.Status) {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	if o.Notes == "" {
		o.Notes = note
	} else {
		o.Notes += "\n" + note
	}
	return true, nil
}

func (f *fakeOrderStore) TransitionOrderStatus(ctx context.Context, code string, from, to models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

type fakeCache struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	seen   map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{orders: make(map[string]*models.Order), seen: make(map[string]bool)}
}

func (f *fakeCache) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[code], nil
}

func (f *fakeCache) SetOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.OrderCode] = order
	return nil
}

func (f *fakeCache) InvalidateOrder(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orders, code)
	return nil
}

func (f *fakeCache) MarkCallbackSeen(ctx context.Context, orderCode, txnID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := orderCode + ":" + txnID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	paid      []*models.OrderPaidEvent
	cancelled []*models.OrderCancelledEvent
}

func (f *fakePublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, event)
	return nil
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, event)
	return nil
}

func (f *fakePublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, event)
	return nil
}

// stubVerifier short-circuits signature checks; the signing protocol
// itself is covered by the vnpay package tests.
type stubVerifier struct {
	ok bool
}

func (s *stubVerifier) VerifySignature(params map[string]string) bool {
	return s.ok
}
