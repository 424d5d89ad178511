// ABOUTME: Auth service for the marketplace API
// ABOUTME: Login, register, logout, forced refresh, and local session inspection

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markalston/xam-client/client"
	"github.com/markalston/xam-client/tokenstore"
)

// API paths of the auth endpoints.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	LogoutPath   = "/auth/logout"
)

// ErrNotAuthenticated is returned when no usable session exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// Store is the token storage the service manages.
type Store interface {
	Get(ctx context.Context) (tokenstore.Pair, bool)
	RefreshToken(ctx context.Context) string
	IsExpired(ctx context.Context) bool
	Set(ctx context.Context, accessToken, refreshToken string, expiresIn int) error
	Clear(ctx context.Context) error
}

// Service drives the auth endpoints and keeps the token store in step.
type Service struct {
	client *client.Client
	store  Store
	logger *slog.Logger
}

// NewService creates a Service. The client must have been built over the same store.
func NewService(c *client.Client, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: c, store: store, logger: logger}
}

// Login authenticates with email and password and stores the issued tokens.
func (s *Service) Login(ctx context.Context, creds Credentials) (*User, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, LoginPath, creds)
}

// Register creates an account and stores the issued tokens.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, RegisterPath, reg)
}

func (s *Service) authenticate(ctx context.Context, path string, body any) (*User, error) {
	var resp authResponse
	if err := s.client.Post(ctx, path, body, &resp, client.SkipAuth()); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, errors.New("invalid response from backend: missing tokens")
	}

	if err := s.store.Set(ctx, resp.AccessToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	s.logger.Info("Authenticated", "user_id", resp.User.ID, "role", resp.User.Role)
	return &resp.User, nil
}

// Logout revokes the refresh token on the server and clears local tokens.
// A failed revocation is logged and ignored; local tokens are cleared regardless.
func (s *Service) Logout(ctx context.Context) error {
	if refreshToken := s.store.RefreshToken(ctx); refreshToken != "" {
		err := s.client.Post(ctx, LogoutPath, logoutRequest{RefreshToken: refreshToken}, nil, client.SkipRefresh())
		if err != nil {
			s.logger.Warn("Logout request failed", "error", err)
		}
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

// Refresh forces a token refresh. Concurrent API calls waiting on a 401
// share the same exchange.
func (s *Service) Refresh(ctx context.Context) error {
	if _, ok := s.client.Refresh(ctx); !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrNotAuthenticated
	}
	return nil
}

// Status describes the locally stored session.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	CanRefresh    bool      `json:"canRefresh"`
	Expired       bool      `json:"expired"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero"`
	Subject       string    `json:"subject,omitempty"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role,omitempty"`
	IssuedAt      time.Time `json:"issuedAt,omitzero"`
}

// Status reports the stored session without contacting the API. Claims are
// read from the access token without verifying its signature; they are for
// display only.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		CanRefresh: s.store.RefreshToken(ctx) != "",
		Expired:    s.store.IsExpired(ctx),
	}

	pair, ok := s.store.Get(ctx)
	if !ok {
		return st
	}
	st.Authenticated = true
	st.ExpiresAt = pair.ExpiresAt

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(pair.AccessToken, claims); err != nil {
		s.logger.Debug("Access token is not a readable JWT", "error", err)
		return st
	}
	st.Subject, _ = claims.GetSubject()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		st.IssuedAt = iat.Time
	}
	st.Email, _ = claims["email"].(string)
	st.Role, _ = claims["role"].(string)
	return st
}
