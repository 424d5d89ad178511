// ABOUTME: HTTP client for the marketplace REST API
// ABOUTME: Attaches bearer tokens and refreshes them once on 401 with single-flight coalescing

package client

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
	DefaultRefreshPath    = "/auth/refresh"
)

// TokenStore is the credential storage the client reads and rotates.
type TokenStore interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	IsExpired(ctx context.Context) bool
	Set(ctx context.Context, accessToken, refreshToken string, expiresIn int) error
	Clear(ctx context.Context) error
}

// Client is the API client for the marketplace backend. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	store          TokenStore
	logger         *slog.Logger
	metrics        *Metrics
	refreshPath    string
	refreshTimeout time.Duration

	// refreshGroup coalesces concurrent refreshes into one exchange.
	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Give it a cookie jar so
// cookies are carried with every exchange.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger for request and refresh events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request, refresh and retry counts in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRefreshTimeout bounds the shared refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithRefreshPath overrides DefaultRefreshPath.
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

// New creates a client for baseURL using store for credentials.
func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		store:          store,
		logger:         slog.Default(),
		refreshPath:    DefaultRefreshPath,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: DefaultTimeout,
			Jar:     NewCookieJar(),
		}
	}
	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// clearTokens drops stored credentials; a failing store is only logged
// because the caller is already on an error path.
func (c *Client) clearTokens(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("Failed to clear tokens", "error", err)
	}
}
