package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
)

const validityKeyPrefix = "auction:valid:"

// ValidityCache maps an item id to its auction end time. Entries carry an
// absolute Redis expiry aligned to the real auction end, never a fixed TTL,
// so the cache cannot report an item valid past its true window.
type ValidityCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewValidityCache connects to Redis and verifies the connection.
func NewValidityCache(cfg *config.RedisConfig, logger *zap.Logger) (*ValidityCache, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("validity cache initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB))

	return &ValidityCache{client: client, logger: logger}, nil
}

// GetEndTime returns the cached auction end time for an item. The second
// return is false on a miss.
func (c *ValidityCache) GetEndTime(ctx context.Context, itemID string) (time.Time, bool, error) {
	val, err := c.client.Get(ctx, validityKeyPrefix+itemID).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.NewInternalError("validity cache get failed").WithCause(err)
	}

	end, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// An unparseable entry is useless; drop it and report a miss.
		c.logger.Warn("evicting corrupt validity entry",
			zap.String("item_id", itemID), zap.Error(err))
		_ = c.client.Del(ctx, validityKeyPrefix+itemID).Err()
		return time.Time{}, false, nil
	}

	return end, true, nil
}

// SetEndTime stores the auction end time for an item with expiry at that
// end time. Entries for already-ended auctions are not written.
func (c *ValidityCache) SetEndTime(ctx context.Context, itemID string, end time.Time) error {
	ttl := time.Until(end)
	if ttl <= 0 {
		return nil
	}

	err := c.client.Set(ctx, validityKeyPrefix+itemID, end.UTC().Format(time.RFC3339Nano), ttl).Err()
	if err != nil {
		return errors.NewInternalError("validity cache set failed").WithCause(err)
	}

	c.logger.Debug("cached auction end time",
		zap.String("item_id", itemID),
		zap.Time("end_time", end))
	return nil
}

// Invalidate removes an item's entry. Removing a missing entry is a no-op.
func (c *ValidityCache) Invalidate(ctx context.Context, itemID string) error {
	if err := c.client.Del(ctx, validityKeyPrefix+itemID).Err(); err != nil {
		return errors.NewInternalError("validity cache delete failed").WithCause(err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *ValidityCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis close failed: %w", err)
	}
	return nil
}
