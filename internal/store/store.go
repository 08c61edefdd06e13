package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Used by checkout to retry order-code generation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetProductByID retrieves a product by ID. Returns nil when absent.
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ReserveStock atomically decrements stock for a product, but only when
// enough is available. The guard and the decrement are one conditional
// statement so concurrent checkouts for the last unit cannot both win.
// Returns false when stock is insufficient (or the product is missing).
func (s *Store) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		 WHERE id = $2 AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ReleaseStock atomically increments stock for a product (compensation).
func (s *Store) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	return err
}

// GetCartByOwner retrieves a cart and its items for an owner.
// Returns a nil cart when the owner has none.
func (s *Store) GetCartByOwner(ctx context.Context, ownerID string) (*models.Cart, []models.CartItem, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE owner_id = $1", ownerID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var items []models.CartItem
	err = s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1", cart.ID)
	if err != nil {
		return nil, nil, err
	}
	return &cart, items, nil
}

// DeleteCartByOwner removes an owner's cart and its items, so the same
// cart cannot be checked out twice.
func (s *Store) DeleteCartByOwner(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE owner_id = $1)", ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM carts WHERE owner_id = $1", ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	return tx.Commit()
}
