package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const orderCacheTTL = 10 * time.Minute

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetOrder looks up a cached order by code. A miss returns (nil, nil).
func (c *Client) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	raw, err := c.rdb.Get(ctx, orderKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("corrupt cached order: %w", err)
	}
	return &order, nil
}

// SetOrder caches an order by code.
func (c *Client) SetOrder(ctx context.Context, order *models.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, orderKey(order.OrderCode), raw, orderCacheTTL).Err()
}

// InvalidateOrder drops the cached copy of an order. Called after every
// status transition so reads never serve a stale state.
func (c *Client) InvalidateOrder(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, orderKey(code)).Err()
}

// MarkCallbackSeen records a gateway callback delivery and reports
// whether this is the first time it was seen. Advisory only: the
// conditional update in the database remains the authoritative guard,
// this just lets duplicate deliveries skip work cheaply.
func (c *Client) MarkCallbackSeen(ctx context.Context, orderCode, txnID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("callback:%s:%s", orderCode, txnID)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func orderKey(code string) string {
	return "order:" + code
}
