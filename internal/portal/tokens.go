package portal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

const tokenPrefix = "portal:session:"

// TokenStore maps opaque portal tokens to contact ids in Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token for contactID.
func (s *TokenStore) Issue(ctx context.Context, contactID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, tokenPrefix+token, contactID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store portal token: %w", err)
	}
	return token, nil
}

// Resolve returns the contact behind token, or ErrUnauthorized when the token
// is unknown or expired.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: portal token required", httpx.ErrUnauthorized)
	}
	raw, err := s.client.Get(ctx, tokenPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: portal session expired", httpx.ErrUnauthorized)
	}
	if err != nil {
		return 0, fmt.Errorf("load portal token: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt portal session", httpx.ErrUnauthorized)
	}
	return id, nil
}

func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, tokenPrefix+token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("revoke portal token: %w", err)
	}
	return nil
}
