// Package connectivity decides whether the remote task store is reachable and
// turns reachability changes into online/offline signals.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single reachability probe.
const DefaultTimeout = 5 * time.Second

// Offline mode settings (sync.offline_mode).
const (
	ModeAuto    = "auto"
	ModeOnline  = "online"
	ModeOffline = "offline"
)

// Prober reports whether the remote store can currently be reached.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// StaticProber always reports the same answer. It backs the forced
// offline_mode settings and --offline.
type StaticProber bool

// Probe returns the fixed answer.
func (p StaticProber) Probe(context.Context) bool {
	return bool(p)
}

// HTTPProber sends HEAD to the store URL. Any HTTP response, whatever its
// status, counts as reachable; only transport failures and timeouts do not.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPProber creates a prober for url. A zero timeout uses DefaultTimeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{URL: url, Timeout: timeout, Client: http.DefaultClient}
}

// Probe performs the HEAD request.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// ForMode builds the prober for an offline_mode setting: auto probes url,
// online and offline are forced.
func ForMode(mode, url string, timeout time.Duration) (Prober, error) {
	switch mode {
	case "", ModeAuto:
		return NewHTTPProber(url, timeout), nil
	case ModeOnline:
		return StaticProber(true), nil
	case ModeOffline:
		return StaticProber(false), nil
	default:
		return nil, fmt.Errorf("invalid offline_mode %q (expected auto, online or offline)", mode)
	}
}
