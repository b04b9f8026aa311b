// Package ratelimit computes retry delays for rate-limited HTTP requests,
// honoring the Retry-After header and falling back to exponential backoff
// with jitter.
package ratelimit

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 32 * time.Second
)

// Policy decides whether and how long to wait after a 429 response.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter spreads delays by ±20% so parallel clients don't retry in
	// lockstep. Disabled in tests for determinism.
	Jitter bool
}

// NewPolicy returns a Policy with defaults applied.
func NewPolicy(maxRetries int, baseDelay time.Duration) Policy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt (0-based). The server's
// Retry-After header wins over the computed backoff. ok is false once the
// retry budget is exhausted.
func (p Policy) Delay(attempt int, resp *http.Response) (delay time.Duration, ok bool) {
	if attempt >= p.MaxRetries {
		return 0, false
	}

	if resp != nil {
		if after := ParseRetryAfter(resp.Header.Get("Retry-After")); after != nil {
			return *after, true
		}
	}

	delay = p.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if p.Jitter {
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	}
	return delay, true
}

// ParseRetryAfter parses a Retry-After header value, in either seconds or
// HTTP-date form. Returns nil for empty or invalid values.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Error reports an exhausted retry budget.
type Error struct {
	Host     string
	Attempts int
}

// Error implements the error interface.
func (e *Error) Error() string {
	host := e.Host
	if host == "" {
		host = "server"
	}
	return fmt.Sprintf("%s rate limit exceeded after %d retries", host, e.Attempts)
}
