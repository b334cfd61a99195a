package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimiter creates a Gin middleware for rate limiting. rate uses the
// limiter format, e.g. "60-M" for 60 requests per minute. An empty redisURL
// selects the in-process memory store; setting it shares counters across
// replicas.
func NewRateLimiter(rate, redisURL string) (gin.HandlerFunc, error) {
	instance, err := newLimiter(rate, redisURL, "granta:ratelimit")
	if err != nil {
		return nil, err
	}
	return mgin.NewMiddleware(instance), nil
}

// NewDownloadRateLimiter creates a limiter for the public download surface,
// keyed on client IP plus the download token so one abusive token cannot
// exhaust an IP's budget for others behind the same NAT.
func NewDownloadRateLimiter(rate, redisURL string) (gin.HandlerFunc, error) {
	instance, err := newLimiter(rate, redisURL, "granta:ratelimit:downloads")
	if err != nil {
		return nil, err
	}
	return mgin.NewMiddleware(instance, mgin.WithKeyGetter(func(c *gin.Context) string {
		return c.ClientIP() + ":" + c.Param("token")
	})), nil
}

func newLimiter(rate, redisURL, prefix string) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	var store limiter.Store
	if redisURL != "" {
		opts, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return limiter.New(store, parsed), nil
}
