package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"task-collab/cache"
	"task-collab/common"
)

// RateLimiter is a fixed window counter per user kept in Redis.
type RateLimiter struct {
	RedisClient cache.RedisClientInterface
	Limit       int
	Window      time.Duration
	log         *zap.Logger
}

func NewRateLimiter(redisClient cache.RedisClientInterface, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		RedisClient: redisClient,
		Limit:       limit,
		Window:      window,
		log:         logger,
	}
}

func RateLimitKey(userID string) string {
	return "ratelimit:user:" + userID
}

type RateLimitStatus struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // seconds until reset
}

// Status reads the current window for userID without consuming a request.
func (r *RateLimiter) Status(req *http.Request, userID string) (RateLimitStatus, error) {
	ctx := req.Context()
	key := RateLimitKey(userID)

	count := 0
	val, err := r.RedisClient.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return RateLimitStatus{}, err
	}
	if err == nil {
		count, _ = strconv.Atoi(val)
	}
	ttl, err := r.RedisClient.TTL(ctx, key).Result()
	if err != nil {
		return RateLimitStatus{}, err
	}
	if ttl < 0 {
		ttl = 0
	}
	remaining := r.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitStatus{Limit: r.Limit, Remaining: remaining, Reset: int64(ttl.Seconds())}, nil
}

// Middleware must run after Auth. When Redis is unavailable requests pass
// through unlimited.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		userID, ok := common.UserIDFromContext(req.Context())
		if !ok {
			common.WriteError(w, common.ErrUnauthenticated)
			return
		}
		ctx := req.Context()
		key := RateLimitKey(userID)

		count, err := r.hit(req, key)
		if err != nil {
			r.log.Warn("rate limit unavailable", zap.String("userId", userID), zap.Error(err))
			next.ServeHTTP(w, req)
			return
		}

		remaining := int64(r.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-Rate-Limit-Limit", strconv.Itoa(r.Limit))
		w.Header().Set("X-Rate-Limit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(r.Limit) {
			if ttl, err := r.RedisClient.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			}
			common.WriteJSON(w, http.StatusTooManyRequests, common.ErrorBody{Error: "RateLimited", Message: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

// hit counts one request. The window key is created with its expiry in the
// same MULTI as the increment, so a counter never outlives its window.
func (r *RateLimiter) hit(req *http.Request, key string) (int64, error) {
	ctx := req.Context()
	var incr *redis.IntCmd
	_, err := r.RedisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, r.Window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
