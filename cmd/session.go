// ABOUTME: Wires configuration into a token store, API client, and auth service
// ABOUTME: Shared by every command that talks to the API

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markalston/xam-client/auth"
	"github.com/markalston/xam-client/cache"
	"github.com/markalston/xam-client/client"
	"github.com/markalston/xam-client/config"
	"github.com/markalston/xam-client/logger"
	"github.com/markalston/xam-client/tokenstore"
)

// session is everything a command needs to reach the API.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *tokenstore.Store
	client   *client.Client
	auth     *auth.Service
	registry *prometheus.Registry
	policy   tokenstore.CookiePolicy
	jar      http.CookieJar
	closers  []func() error
}

// newSession builds the client stack from cfg. Logs go to stderr.
func newSession(ctx context.Context, cfg *config.Config, stderr io.Writer) (*session, error) {
	s := &session{
		cfg:      cfg,
		logger:   logger.Init(cfg.Log.Level, cfg.Log.Format, stderr),
		registry: prometheus.NewRegistry(),
		policy:   tokenstore.DefaultCookiePolicy(cfg.Production()),
	}

	backend, err := s.openBackend(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.store = tokenstore.New(backend,
		tokenstore.WithCookiePolicy(s.policy),
		tokenstore.WithLogger(s.logger),
	)

	httpClient, err := client.NewHTTPClient(client.TransportConfig{
		Timeout:           cfg.HTTP.Timeout,
		SkipSSLValidation: cfg.HTTP.SkipSSLValidation,
		CACert:            cfg.HTTP.CACert,
		AllProxy:          cfg.HTTP.AllProxy,
		Jar:               s.jar,
		Logger:            s.logger,
	})
	if err != nil {
		s.Close()
		return nil, usageError(fmt.Errorf("invalid HTTP settings: %w", err))
	}

	s.client = client.New(cfg.APIURL, s.store,
		client.WithHTTPClient(httpClient),
		client.WithLogger(s.logger),
		client.WithMetrics(client.NewMetrics(s.registry)),
		client.WithRefreshTimeout(cfg.HTTP.RefreshTimeout),
	)
	s.auth = auth.NewService(s.client, s.store, s.logger)
	return s, nil
}

func (s *session) openBackend(ctx context.Context) (tokenstore.Backend, error) {
	switch s.cfg.TokenStore {
	case config.StoreMemory:
		c := cache.New(time.Hour)
		s.closers = append(s.closers, func() error { c.Close(); return nil })
		return tokenstore.NewMemoryBackend(c), nil

	case config.StoreRedis:
		rc, err := tokenstore.NewRedisClient(ctx, s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rc.Close)
		return tokenstore.NewRedisBackend(rc, s.cfg.Redis.Prefix), nil

	case config.StoreJar:
		// The same jar backs the HTTP client, so the API sees the token cookies too.
		s.jar = client.NewCookieJar()
		backend, err := tokenstore.NewJarBackend(s.jar, s.cfg.APIURL, s.policy)
		if err != nil {
			return nil, usageError(err)
		}
		return backend, nil

	default:
		dir := s.cfg.StateDir
		if dir == "" {
			dir = tokenstore.DefaultStateDir()
		}
		path := tokenstore.DefaultStatePath(dir)
		s.logger.Debug("Using file token store", "path", path)
		return tokenstore.NewFileBackend(path, tokenstore.WithFileLogger(s.logger)), nil
	}
}

// Close releases store connections.
func (s *session) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("Failed to close token store", "error", err)
		}
	}
	s.closers = nil
}

// writeMetrics prints every collected sample as "name{labels} value".
func (s *session) writeMetrics(w io.Writer) {
	families, err := s.registry.Gather()
	if err != nil {
		s.logger.Warn("Failed to gather metrics", "error", err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// withSession loads configuration, opens a session, runs fn, and maps the
// outcome to an exit code.
func withSession(ctx context.Context, w, stderr io.Writer, fn func(s *session) error) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(w, usageError(err))
	}

	s, err := newSession(ctx, cfg, stderr)
	if err != nil {
		return fail(w, err)
	}
	defer s.Close()

	err = fn(s)
	if showMetrics {
		s.writeMetrics(stderr)
	}
	if err != nil {
		return fail(w, err)
	}
	return exitOK
}
