// Package httputil provides the shared HTTP client used by provider
// adapters and the hostname source pollers.
package httputil

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout, matching the
	// per-call deadline the provider manager applies.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "zonewarden/1.0"
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// TLSSkipVerify disables certificate verification. Only for
	// self-signed lab endpoints; insecure otherwise.
	TLSSkipVerify bool

	// UserAgent is the User-Agent header to set on requests.
	UserAgent string

	// Logger enables debug logging of requests and responses.
	Logger *slog.Logger
}

// loggingTransport adds the User-Agent header and optional debug logging.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
		)
	}

	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP response",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
		)
	}

	return resp, err
}

// NewClient creates an HTTP client with the given configuration.
// A nil cfg yields the defaults (30s timeout, TLS verification on).
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := http.DefaultTransport
	if cfg.TLSSkipVerify {
		base = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // user explicitly requested skip
			},
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &loggingTransport{
			base:      base,
			userAgent: userAgent,
			logger:    cfg.Logger,
		},
	}
}

// DefaultClient returns a new HTTP client with default settings.
func DefaultClient() *http.Client {
	return NewClient(nil)
}
