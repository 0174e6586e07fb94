package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
)

// CachedRateOracle keeps recently fetched rates in Redis. A Redis outage
// degrades to calling the wrapped oracle directly.
type CachedRateOracle struct {
	next   domain.RateOracle
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.RateOracle = (*CachedRateOracle)(nil)

func NewCachedRateOracle(next domain.RateOracle, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRateOracle {
	return &CachedRateOracle{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func rateCacheKey(from, to string) string {
	return fmt.Sprintf("fx:%s:%s", from, to)
}

func (c *CachedRateOracle) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := rateCacheKey(from, to)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		rate, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			return rate, nil
		}
		c.logger.Warn("Discarding unparsable cached rate", "key", key, "value", cached)
	case err != redis.Nil:
		c.logger.Warn("Rate cache read failed", "key", key, "error", err)
	}

	rate, err := c.next.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	if rate.IsPositive() {
		if err := c.redis.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
			c.logger.Warn("Rate cache write failed", "key", key, "error", err)
		}
	}
	return rate, nil
}
