// Package ratelimit provides an http.RoundTripper that retries reads answered
// with 429 Too Many Requests or 503 Service Unavailable, honoring Retry-After
// and otherwise backing off exponentially. Writes are passed through once.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

// Config controls retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying.
	MaxRetries int

	// BaseDelay is the wait before the first retry (default 500ms). Each
	// further retry doubles it, capped at MaxDelay (default 8s).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter scales computed delays by a random factor in [0.8, 1.2).
	Jitter bool

	// Name appears in error messages.
	Name string
}

// Transport wraps another RoundTripper with retries for GET and HEAD.
type Transport struct {
	base   http.RoundTripper
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(base http.RoundTripper, cfg Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Name == "" {
		cfg.Name = "server"
	}
	return &Transport{base: base, config: cfg, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable reports whether a request may be sent more than once.
func retryable(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// throttled reports whether a status asks the client to come back later.
func throttled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !retryable(req) {
		return t.base.RoundTrip(req)
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err != nil || !throttled(resp.StatusCode) {
			return resp, err
		}
		if attempt >= t.config.MaxRetries {
			if attempt == 0 {
				return resp, nil
			}
			_ = resp.Body.Close()
			return nil, &RateLimitError{Name: t.config.Name, Status: resp.StatusCode, Retries: attempt}
		}

		delay := t.backoff(attempt, ParseRetryAfter(resp.Header.Get("Retry-After")))
		_ = resp.Body.Close()
		if err := t.sleep(req.Context(), delay); err != nil {
			return nil, err
		}
	}
}

// CloseIdleConnections forwards to the wrapped transport.
func (t *Transport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// backoff returns the wait before retry number attempt+1.
func (t *Transport) backoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return min(*retryAfter, t.config.MaxDelay)
	}

	delay := t.config.MaxDelay
	if attempt < 20 {
		delay = min(t.config.BaseDelay<<attempt, t.config.MaxDelay)
	}
	if t.config.Jitter {
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	}
	return delay
}

// RateLimitError reports that every retry was still throttled.
type RateLimitError struct {
	Name    string
	Status  int
	Retries int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s still answering %d after %d retries", e.Name, e.Status, e.Retries)
}

// ParseRetryAfter reads a Retry-After value in seconds or HTTP-date form.
// Invalid or empty values give nil; dates in the past give zero.
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
		d := max(time.Until(t), 0)
		return &d
	}

	return nil
}
