package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTxConflict is returned when an optimistic transaction keeps losing the
// race for its watched keys.
var ErrTxConflict = errors.New("redis transaction conflict")

// DefaultTxRetries bounds how often Transact re-runs a conflicting transaction.
const DefaultTxRetries = 10

// Client holds the Redis client
type Client struct {
	Redis     *redis.Client
	TxRetries int
}

// NewClient creates a new Redis client
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	log.Println("✅ Redis connected")

	return Wrap(client), nil
}

// Wrap builds a Client around an existing go-redis client
func Wrap(rdb *redis.Client) *Client {
	return &Client{Redis: rdb, TxRetries: DefaultTxRetries}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Redis.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

// Transact runs fn under WATCH on keys. fn reads through tx and queues its
// writes with tx.TxPipelined; if a watched key changes before EXEC the whole
// function is retried.
func (c *Client) Transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := c.TxRetries
	if retries <= 0 {
		retries = DefaultTxRetries
	}

	for i := 0; i < retries; i++ {
		err := c.Redis.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w on %v after %d attempts", ErrTxConflict, keys, retries)
}

// GetJSON loads key and decodes it into dest. It returns redis.Nil when the
// key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Delete deletes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Redis.Del(ctx, keys...).Err()
}
