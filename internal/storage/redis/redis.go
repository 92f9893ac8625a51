package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepo keeps the access-token denylist. Logout pushes the presented
// access token's jti here for the remainder of its lifetime, so the token
// stops working immediately instead of at its natural expiry.
type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

func (r *RedisRepo) DenyAccessToken(ctx context.Context, jti string, ttl time.Duration) error {
	const op = "storage.redis.DenyAccessToken"

	if ttl <= 0 {
		return nil
	}

	key := fmt.Sprintf("denylist:access:%s", jti)

	if err := r.client.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) IsAccessTokenDenied(ctx context.Context, jti string) (bool, error) {
	const op = "storage.redis.IsAccessTokenDenied"

	key := fmt.Sprintf("denylist:access:%s", jti)

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
