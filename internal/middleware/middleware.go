// Package middleware holds the HTTP middleware chain of the admin and
// webhook API.
package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds middleware configuration.
type Config struct {
	Logger *zap.Logger

	RateLimit      rate.Limit
	RateLimitBurst int
	// RateLimitExempt lists path prefixes that are never throttled.
	RateLimitExempt []string

	RequestTimeout time.Duration
}

// Chain creates a middleware chain with all configured middleware. The rate
// limiter's housekeeping stops when ctx is done.
func Chain(ctx context.Context, config *Config) func(http.Handler) http.Handler {
	rateLimiter := NewRateLimiter(ctx, config.RateLimit, config.RateLimitBurst, config.RateLimitExempt...)

	return func(handler http.Handler) http.Handler {
		// Outermost last.
		h := handler

		if config.RequestTimeout > 0 {
			h = Timeout(config.RequestTimeout)(h)
		}

		h = rateLimiter.Middleware()(h)

		h = Recovery(config.Logger)(h)

		h = Logger(config.Logger)(h)

		h = RequestID(h)

		return h
	}
}
