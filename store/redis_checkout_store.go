package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okisilev/tg-askeza/types"
)

var ErrCheckoutNotFound = errors.New("checkout not found")

// RedisCheckoutStore keeps the user's last checkout (gateway payment id +
// confirmation URL) while the payment is being completed. Entries expire
// on their own: a stale checkout link is useless anyway, and once the
// payment settles the reconciliation path works off the payments table.
type RedisCheckoutStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisCheckoutStore(redisClient *RedisClient, ttlHours int) *RedisCheckoutStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisCheckoutStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisCheckoutStore) SaveCheckout(ctx context.Context, c *types.Checkout) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	key := s.client.generateKey("checkout", fmt.Sprintf("%d", c.UserID))
	return s.client.Set(ctx, key, c, s.ttl)
}

func (s *RedisCheckoutStore) GetCheckout(ctx context.Context, userID int64) (*types.Checkout, error) {
	key := s.client.generateKey("checkout", fmt.Sprintf("%d", userID))
	var c types.Checkout
	if err := s.client.Get(ctx, key, &c); err != nil {
		return nil, ErrCheckoutNotFound
	}
	return &c, nil
}

func (s *RedisCheckoutStore) DeleteCheckout(ctx context.Context, userID int64) error {
	key := s.client.generateKey("checkout", fmt.Sprintf("%d", userID))
	return s.client.Del(ctx, key)
}
