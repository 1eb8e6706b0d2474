package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newClient(cfg Config) *http.Client {
	return &http.Client{Transport: NewTransport(nil, cfg)}
}

func throttlingServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") != "abc" {
			t.Errorf("header not propagated on attempt %d", atomic.LoadInt32(&calls))
		}
		if atomic.AddInt32(&calls, 1) <= failures {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"tasks":[]}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func get(t *testing.T, c *http.Client, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "abc")
	return c.Do(req)
}

func TestGetRetriesWhenThrottled(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		server, calls := throttlingServer(t, 2, status)

		c := newClient(Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
		resp, err := get(t, c, context.Background(), server.URL)
		if err != nil {
			t.Fatalf("status %d: %v", status, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status %d: final status = %d", status, resp.StatusCode)
		}
		if got := atomic.LoadInt32(calls); got != 3 {
			t.Errorf("status %d: calls = %d, want 3", status, got)
		}
	}
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	server, calls := throttlingServer(t, 100, http.StatusTooManyRequests)

	c := newClient(Config{MaxRetries: 2, BaseDelay: time.Millisecond, Name: "task store"})
	_, err := get(t, c, context.Background(), server.URL)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !strings.Contains(rle.Error(), "task store still answering 429 after 2 retries") {
		t.Errorf("unexpected message %q", rle.Error())
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestZeroRetriesReturnsThrottledResponse(t *testing.T) {
	server, calls := throttlingServer(t, 1, http.StatusTooManyRequests)

	resp, err := get(t, newClient(Config{}), context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests || atomic.LoadInt32(calls) != 1 {
		t.Errorf("status = %d after %d calls, want one 429", resp.StatusCode, atomic.LoadInt32(calls))
	}
}

func TestPostIsNeverRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newClient(Config{MaxRetries: 5, BaseDelay: time.Millisecond})
	resp, err := c.Post(server.URL, "application/json", strings.NewReader(`{"action":"add"}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 passed through", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("POST sent %d times, want 1", got)
	}
}

func TestOtherStatusesPassThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := get(t, newClient(Config{MaxRetries: 3}), context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestContextCancelsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := newClient(Config{MaxRetries: 3, MaxDelay: time.Minute}).Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryAfterDrivesTheWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := NewTransport(nil, Config{MaxRetries: 1, MaxDelay: time.Minute})
	var waited []time.Duration
	tr.sleep = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, _ = (&http.Client{Transport: tr}).Do(req)

	if len(waited) != 1 || waited[0] != 2*time.Second {
		t.Errorf("waited %v, want [2s]", waited)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter("2"); d == nil || *d != 2*time.Second {
		t.Errorf("ParseRetryAfter(2) = %v", d)
	}
	if d := ParseRetryAfter(""); d != nil {
		t.Errorf("empty should be nil")
	}
	if d := ParseRetryAfter("-1"); d != nil {
		t.Errorf("negative should be nil")
	}
	if d := ParseRetryAfter("soon"); d != nil {
		t.Errorf("garbage should be nil")
	}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if d := ParseRetryAfter(past); d == nil || *d != 0 {
		t.Errorf("past HTTP-date should clamp to 0, got %v", d)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	tr := NewTransport(nil, Config{BaseDelay: time.Second, MaxDelay: 4 * time.Second})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if d := tr.backoff(attempt, nil); d != w {
			t.Errorf("backoff(%d) = %v, want %v", attempt, d, w)
		}
	}
	if d := tr.backoff(40, nil); d != 4*time.Second {
		t.Errorf("large attempt should cap, got %v", d)
	}
	long := time.Hour
	if d := tr.backoff(0, &long); d != 4*time.Second {
		t.Errorf("retry-after should be capped, got %v", d)
	}
}
