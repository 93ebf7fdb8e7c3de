package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

const keyPrefix = "paperless:status:"

// StatusCache caches status lookups in Redis. Callers only store terminal
// statuses; entries expire after the configured TTL.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

func New(ctx context.Context, options Options) (*StatusCache, error) {
	if options.Addr == "" {
		return nil, errors.New("redis address required")
	}
	ttl := options.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Username: options.Username,
		Password: options.Password,
		DB:       options.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StatusCache{client: client, ttl: ttl}, nil
}

func (c *StatusCache) Get(ctx context.Context, id string) (domain.WorkerStatus, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.WorkerStatus{}, false, nil
	}
	if err != nil {
		return domain.WorkerStatus{}, false, fmt.Errorf("redis get status: %w", err)
	}
	var status domain.WorkerStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		// Treat undecodable entries as a miss; the next Set overwrites them.
		return domain.WorkerStatus{}, false, nil
	}
	return status, true, nil
}

func (c *StatusCache) Set(ctx context.Context, status domain.WorkerStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+status.ID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	return nil
}

func (c *StatusCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del status: %w", err)
	}
	return nil
}

func (c *StatusCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
