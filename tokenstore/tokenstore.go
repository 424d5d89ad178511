// ABOUTME: Token store holding the access/refresh/expiry triple
// ABOUTME: Writes and clears the three cookie entries as a unit over a pluggable backend

package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Pair is the stored credential triple.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Store persists a Pair as three cookie entries. It is safe for concurrent use.
type Store struct {
	backend Backend
	policy  CookiePolicy
	logger  *slog.Logger
	now     func() time.Time

	// mu keeps readers in this process from seeing a half-applied Set or Clear.
	mu sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithCookiePolicy overrides the default cookie attributes.
func WithCookiePolicy(p CookiePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over the given backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		policy:  DefaultCookiePolicy(false),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = s.policy.normalize()
	return s
}

// Get returns the stored pair. It reports false unless all three entries
// are present; a backend failure also reads as absent.
func (s *Store) Get(ctx context.Context) (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals, err := s.backend.Load(ctx, AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie)
	if err != nil {
		s.logger.Warn("Token store unavailable", "error", err)
		return Pair{}, false
	}

	access, refresh, rawExpiry := vals[AccessTokenCookie], vals[RefreshTokenCookie], vals[TokenExpiryCookie]
	if access == "" || refresh == "" || rawExpiry == "" {
		return Pair{}, false
	}

	expiresAt, err := parseExpiry(rawExpiry)
	if err != nil {
		s.logger.Warn("Ignoring malformed token expiry", "error", err)
		return Pair{}, false
	}

	return Pair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, true
}

// Set stores a new pair expiring expiresIn seconds from now.
func (s *Store) Set(ctx context.Context, accessToken, refreshToken string, expiresIn int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expiresAt := now.Add(time.Duration(expiresIn) * time.Second)

	cookies := s.policy.cookies(now, accessToken, refreshToken, expiresAt)
	if err := s.backend.Save(ctx, cookies); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// Clear removes all three entries. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// IsExpired reports whether the access token is expired. Missing or
// unreadable expiry counts as expired.
func (s *Store) IsExpired(ctx context.Context) bool {
	raw := s.single(ctx, TokenExpiryCookie)
	if raw == "" {
		return true
	}
	expiresAt, err := parseExpiry(raw)
	if err != nil {
		return true
	}
	return !s.now().Before(expiresAt)
}

// AccessToken returns the stored access token or "".
func (s *Store) AccessToken(ctx context.Context) string {
	return s.single(ctx, AccessTokenCookie)
}

// RefreshToken returns the stored refresh token or "".
// The refresh entry outlives the access entry, so it is read on its own.
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.single(ctx, RefreshTokenCookie)
}

func (s *Store) single(ctx context.Context, name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals, err := s.backend.Load(ctx, name)
	if err != nil {
		s.logger.Warn("Token store unavailable", "entry", name, "error", err)
		return ""
	}
	return vals[name]
}

func parseExpiry(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid token expiry %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
