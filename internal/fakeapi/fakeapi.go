// ABOUTME: In-process fake of the marketplace auth API for tests
// ABOUTME: Issues JWT access tokens and rotating refresh tokens over a chi router

package fakeapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultAccessTTL = 15 * time.Minute

// User mirrors the account shape the API returns.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type account struct {
	user User
	hash []byte
}

type accessClaims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

// Server is a fake API backend. It is safe for concurrent use.
type Server struct {
	secret       []byte
	accessTTL    time.Duration
	refreshDelay time.Duration
	logger       *slog.Logger
	router       chi.Router

	mu            sync.Mutex
	accounts      map[string]*account // keyed by email
	refreshTokens map[string]string   // token -> email
	generation    int
	failLogout    bool
	hits          map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshDelay makes the refresh endpoint wait before answering.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) { s.refreshDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a fake API with no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		secret:        []byte(uuid.NewString()),
		accessTTL:     defaultAccessTTL,
		logger:        slog.Default(),
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		hits:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequest, s.count)

	r.Get("/health", s.health)
	r.Post("/auth/register", s.register)
	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refresh)
	r.Post("/auth/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/users/me", s.me)
		r.Put("/users/me", s.updateMe)
		r.Delete("/users/me/sessions", s.revokeSessions)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser creates an account directly, bypassing registration.
func (s *Server) AddUser(email, password, firstName, lastName, role string) User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: hashing password: %v", err))
	}
	u := User{ID: uuid.NewString(), Email: email, FirstName: firstName, LastName: lastName, Role: role}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{user: u, hash: hash}
	return u
}

// RevokeAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refreshTokens)
}

// FailLogout makes the logout endpoint answer 500.
func (s *Server) FailLogout(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = fail
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// ActiveRefreshTokens returns how many refresh tokens are currently valid.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshTokens)
}

// issue creates a token triple for u. Callers hold s.mu.
func (s *Server) issue(u User) (tokenResponse, error) {
	now := time.Now()
	claims := accessClaims{
		Email:      u.Email,
		Role:       u.Role,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("signing access token: %w", err)
	}

	refresh := uuid.NewString()
	s.refreshTokens[refresh] = u.Email

	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// authenticate resolves the bearer token to an account.
func (s *Server) authenticate(r *http.Request) (*account, error) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, errors.New("missing bearer token")
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(header[len(prefix):], &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return nil, errors.New("token revoked")
	}
	acct, ok := s.accounts[claims.Email]
	if !ok || acct.user.ID != claims.Subject {
		return nil, errors.New("unknown account")
	}
	return acct, nil
}
