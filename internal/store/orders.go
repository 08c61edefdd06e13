package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

// CreateOrder persists an order and its line items in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_code, user_id, subtotal, shipping_fee, total_amount,
			status, payment_status, payment_method,
			ship_full_name, ship_phone, ship_address, ship_city, ship_postal_code, ship_notes,
			notes, ordered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OrderCode, order.UserID, order.Subtotal, order.ShippingFee, order.TotalAmount,
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.FullName, order.Phone, order.Address, order.City, order.PostalCode, order.ShippingAddress.Notes,
		order.Notes, order.OrderedAt,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, price, quantity, total)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Price, item.Quantity, item.Total,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByCode retrieves an order with its items. Returns nil when absent.
func (s *Store) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves the line items of an order.
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrdersByUser retrieves a page of a user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY ordered_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	return orders, err
}

// CountOrdersByUser counts a user's orders.
func (s *Store) CountOrdersByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE user_id = $1", userID)
	return count, err
}

// MarkOrderPaid applies a successful payment outcome guarded on the
// order still being unpaid. Exactly one of two racing deliveries wins
// the update; the loser sees zero rows and must treat the outcome as
// already applied.
func (s *Store) MarkOrderPaid(ctx context.Context, code, txnID, respCode string, paidAt, estimatedDelivery time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, payment_status = $3,
		     vnpay_transaction_id = $4, vnpay_response_code = $5,
		     paid_at = $6, estimated_delivery = $7, updated_at = NOW()
		 WHERE order_code = $1 AND payment_status = $8 AND status = $9`,
		code, models.OrderStatusPaid, models.PaymentStatusPaid,
		txnID, respCode, paidAt, estimatedDelivery,
		models.PaymentStatusPending, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// MarkOrderPaymentFailed applies a failed payment outcome, cancelling
// the order, with the same pending-only guard as MarkOrderPaid.
func (s *Store) MarkOrderPaymentFailed(ctx context.Context, code, txnID, respCode string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, payment_status = $3,
		     vnpay_transaction_id = $4, vnpay_response_code = $5, updated_at = NOW()
		 WHERE order_code = $1 AND payment_status = $6 AND status = $7`,
		code, models.OrderStatusCancelled, models.PaymentStatusFailed,
		txnID, respCode,
		models.PaymentStatusPending, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// CancelOrder cancels an order guarded on it still being cancellable
// (pending or paid) and appends an audit note. Returns false when the
// guard loses, i.e. the order already left a cancellable state.
func (s *Store) CancelOrder(ctx context.Context, code, userID, note string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $3,
		     notes = CASE WHEN notes = '' THEN $4 ELSE notes || E'\n' || $4 END,
		     updated_at = NOW()
		 WHERE order_code = $1 AND user_id = $2 AND status IN ($5, $6)`,
		code, userID, models.OrderStatusCancelled, note,
		models.OrderStatusPending, models.OrderStatusPaid)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// TransitionOrderStatus moves an order between statuses with a
// compare-and-swap on the current status.
func (s *Store) TransitionOrderStatus(ctx context.Context, code string, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $3, updated_at = NOW() WHERE order_code = $1 AND status = $2",
		code, from, to)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}
