// Package publicip discovers the host's public IPv4 and IPv6 addresses
// from IP echo services and refreshes them on an interval. Lookups never
// fail a reconciliation pass; callers get the last known value and can
// check how stale it is.
package publicip

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/metrics"
	"gitlab.bluewillows.net/root/zonewarden/pkg/httputil"
)

// maxEchoBody caps how much of an echo response is read. A well-behaved
// echo service returns a bare address.
const maxEchoBody = 256

// Refresher polls IP echo endpoints and caches the results.
type Refresher struct {
	client     *http.Client
	ipv4URL    string
	ipv6URL    string
	interval   time.Duration
	logger     *slog.Logger
	staticIPv4 string
	staticIPv6 string

	mu          sync.RWMutex
	ipv4        string
	ipv6        string
	lastSuccess time.Time
	lastAttempt time.Time
}

// Option is a functional option for configuring the Refresher.
type Option func(*Refresher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Refresher) {
		if client != nil {
			r.client = client
		}
	}
}

// WithStaticIPs pins the addresses, bypassing echo lookups entirely.
// Either argument may be empty.
func WithStaticIPs(ipv4, ipv6 string) Option {
	return func(r *Refresher) {
		r.staticIPv4 = ipv4
		r.staticIPv6 = ipv6
	}
}

// New creates a Refresher. The IPv6 URL may be empty to skip IPv6
// discovery.
func New(ipv4URL, ipv6URL string, interval time.Duration, opts ...Option) *Refresher {
	r := &Refresher{
		client:   httputil.NewClient(&httputil.ClientConfig{Timeout: 10 * time.Second}),
		ipv4URL:  ipv4URL,
		ipv6URL:  ipv6URL,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes immediately, then on the interval until ctx is canceled.
func (r *Refresher) Run(ctx context.Context) {
	r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh performs one lookup of both address families. Failures keep
// the previous values and are logged at WARN.
func (r *Refresher) Refresh(ctx context.Context) {
	if r.staticIPv4 != "" || r.staticIPv6 != "" {
		r.mu.Lock()
		r.ipv4 = r.staticIPv4
		r.ipv6 = r.staticIPv6
		r.lastSuccess = time.Now()
		r.lastAttempt = r.lastSuccess
		r.mu.Unlock()
		metrics.PublicIPStale.Set(0)
		return
	}

	now := time.Now()
	ipv4, v4Err := r.fetch(ctx, r.ipv4URL, false)

	var ipv6 string
	var v6Err error
	if r.ipv6URL != "" {
		ipv6, v6Err = r.fetch(ctx, r.ipv6URL, true)
	}

	r.mu.Lock()
	r.lastAttempt = now
	if v4Err == nil && ipv4 != "" {
		if r.ipv4 != "" && r.ipv4 != ipv4 {
			r.logger.Info("public IPv4 changed",
				slog.String("old", r.ipv4),
				slog.String("new", ipv4),
			)
		}
		r.ipv4 = ipv4
	}
	if v6Err == nil && ipv6 != "" {
		r.ipv6 = ipv6
	}
	if v4Err == nil {
		r.lastSuccess = now
	}
	stale := v4Err != nil
	r.mu.Unlock()

	if v4Err != nil {
		r.logger.Warn("public IPv4 lookup failed, serving last known value",
			slog.String("url", r.ipv4URL),
			slog.String("error", v4Err.Error()),
		)
	}
	if v6Err != nil {
		r.logger.Debug("public IPv6 lookup failed",
			slog.String("url", r.ipv6URL),
			slog.String("error", v6Err.Error()),
		)
	}

	if stale {
		metrics.PublicIPStale.Set(1)
	} else {
		metrics.PublicIPStale.Set(0)
	}
}

func (r *Refresher) fetch(ctx context.Context, url string, wantV6 bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("echo service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	if err != nil {
		return "", err
	}

	addr := strings.TrimSpace(string(body))
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("echo service returned %q, not an IP address", addr)
	}
	if wantV6 && ip.To4() != nil {
		return "", fmt.Errorf("echo service returned IPv4 %q on the IPv6 endpoint", addr)
	}
	if !wantV6 && ip.To4() == nil {
		return "", fmt.Errorf("echo service returned IPv6 %q on the IPv4 endpoint", addr)
	}
	return addr, nil
}

// IPv4 returns the last known public IPv4 address, or "" when none has
// been discovered yet.
func (r *Refresher) IPv4() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ipv4
}

// IPv6 returns the last known public IPv6 address, or "".
func (r *Refresher) IPv6() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ipv6
}

// LastSuccess returns when the last successful refresh completed.
func (r *Refresher) LastSuccess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSuccess
}

// Stale reports whether the cached value is older than the given age.
// It is false until a first successful refresh has happened.
func (r *Refresher) Stale(maxAge time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastSuccess.IsZero() {
		return false
	}
	return time.Since(r.lastSuccess) > maxAge
}
