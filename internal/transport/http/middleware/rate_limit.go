package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/core/port"
)

const (
	rateLimitProblemType  = "https://iam.learnhub.io/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc derives the key a rule counts attempts against, usually
// the client IP. Returning false exempts the request from that rule.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is one sliding-window limit. Rules with a missing
// identifier, a non-positive limit, or a non-positive window are ignored.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// ProblemDetails is the RFC 9457 payload returned on a blocked request.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// RateLimiter evaluates sliding-window rules against a shared store.
// Store failures fail open so a Redis outage never locks users out.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter wraps the store in a middleware factory.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock substitutes the time source, used by tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier keys a rule on gin's resolved client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// verdict is the outcome of evaluating a single rule for one request.
type verdict struct {
	blocked    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// stricter reports whether v should win over other when choosing which
// rule's state to expose in the X-RateLimit headers.
func (v verdict) stricter(other verdict) bool {
	if v.blocked != other.blocked {
		return v.blocked
	}
	if v.remaining != other.remaining {
		return v.remaining < other.remaining
	}
	return v.reset.Before(other.reset)
}

// RateLimit builds a middleware enforcing every valid rule. The first
// rule that blocks aborts the request with 429; otherwise the strictest
// verdict is reflected in the response headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if rl.store == nil || len(active) == 0 {
			c.Next()
			return
		}

		now := rl.now()
		var strictest *verdict

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			v, err := rl.evaluate(c, rule, rule.Name+":"+identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				continue
			}

			if strictest == nil || v.stricter(*strictest) {
				copied := v
				strictest = &copied
			}

			if v.blocked {
				writeRateLimitHeaders(c, v)
				rl.reject(c, v)
				return
			}
		}

		if strictest != nil {
			writeRateLimitHeaders(c, *strictest)
		}

		c.Next()
	}
}

func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string, now time.Time) (verdict, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return verdict{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	oldest, occupied, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	// The window resets when the oldest surviving attempt ages out.
	reset := now.Add(rule.Window)
	if occupied {
		reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		retry := reset.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return verdict{
			blocked:    true,
			limit:      rule.Limit,
			reset:      reset,
			retryAfter: retry,
		}, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return verdict{}, err
	}

	remaining := rule.Limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	if !occupied {
		reset = now.Add(rule.Window)
	}
	retry := reset.Sub(now)
	if retry < 0 {
		retry = 0
	}

	return verdict{
		limit:      rule.Limit,
		remaining:  remaining,
		reset:      reset,
		retryAfter: retry,
	}, nil
}

func writeRateLimitHeaders(c *gin.Context, v verdict) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(v.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))

	if v.blocked {
		headers.Set("Retry-After", strconv.Itoa(retryAfterSeconds(v)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, v verdict) {
	seconds := retryAfterSeconds(v)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retryAfterSeconds(v verdict) int {
	seconds := int(math.Ceil(v.retryAfter.Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}
