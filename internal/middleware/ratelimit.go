package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const rateLimitPrefix = "crmhub:ratelimit"

// RateLimit limits requests per client IP. rate uses limiter's formatted
// syntax ("10-M" is ten per minute). With a Redis client the counters are
// shared across instances; if the Redis store cannot be built it falls
// back to process memory.
func RateLimit(rate string, client *redis.Client, logger *zap.Logger) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}

	store := newLimiterStore(client, logger)
	instance := limiter.New(store, r)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			Abort(c, apperr.ErrRateLimited)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// A broken limiter store must not lock everyone out.
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
		}),
	), nil
}

func newLimiterStore(client *redis.Client, logger *zap.Logger) limiter.Store {
	opts := limiter.StoreOptions{Prefix: rateLimitPrefix}
	if client == nil {
		return memory.NewStoreWithOptions(opts)
	}
	store, err := sredis.NewStoreWithOptions(client, opts)
	if err != nil {
		logger.Warn("failed to create redis rate limit store, falling back to memory", zap.Error(err))
		return memory.NewStoreWithOptions(opts)
	}
	return store
}
