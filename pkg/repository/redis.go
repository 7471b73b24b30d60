package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by GetJSON when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// RedisRepository holds short-lived platform state: processed webhook
// events, revoked access tokens and cached public views.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository returns a disabled repository when no address is configured.
func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	if cfg.Addr == "" {
		return &RedisRepository{}
	}
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
	}
}

func NewRedisRepositoryFromClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) conn() (*redis.Client, error) {
	if r == nil || r.client == nil {
		return nil, errs.NotConfigured("redis")
	}
	return r.client, nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Del(ctx, keys...).Err()
}

func (r *RedisRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func eventKey(id string) string {
	return "stripe:event:" + id
}

// ClaimEvent marks a webhook event as being processed. It returns false when
// the event was already claimed inside ttl.
func (r *RedisRepository) ClaimEvent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	c, err := r.conn()
	if err != nil {
		return false, err
	}
	return c.SetNX(ctx, eventKey(id), time.Now().Unix(), ttl).Result()
}

// ReleaseEvent forgets a claim so a redelivery of the event is processed again.
func (r *RedisRepository) ReleaseEvent(ctx context.Context, id string) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Del(ctx, eventKey(id)).Err()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:" + hex.EncodeToString(sum[:])
}

// RevokeToken rejects the access token until ttl elapses.
func (r *RedisRepository) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	return c.Set(ctx, tokenKey(token), 1, ttl).Err()
}

func (r *RedisRepository) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	c, err := r.conn()
	if err != nil {
		return false, err
	}
	n, err := c.Exists(ctx, tokenKey(token)).Result()
	return n > 0, err
}
