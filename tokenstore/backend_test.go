package tokenstore

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/markalston/xam-client/cache"
)

type backendFactory func(t *testing.T) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Backend {
			c := cache.New(time.Hour)
			t.Cleanup(c.Close)
			return NewMemoryBackend(c)
		},
		"file": func(t *testing.T) Backend {
			return NewFileBackend(filepath.Join(t.TempDir(), "state", stateFileName))
		},
		"redis": func(t *testing.T) Backend {
			srv := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisBackend(client, "")
		},
		"jar": func(t *testing.T) Backend {
			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			b, err := NewJarBackend(jar, "http://api.example.com/v1", DefaultCookiePolicy(false))
			require.NoError(t, err)
			return b
		},
	}
}

func entry(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{Name: name, Value: value, Path: "/", Expires: expires, SameSite: http.SameSiteStrictMode}
}

func TestBackends_SaveLoadDelete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)
			exp := time.Now().Add(time.Hour)

			require.NoError(t, b.Save(ctx, []*http.Cookie{
				entry(AccessTokenCookie, "A1", exp),
				entry(RefreshTokenCookie, "R1", exp.Add(time.Hour)),
				entry(TokenExpiryCookie, "123", exp),
			}))

			vals, err := b.Load(ctx, AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie, "other")
			require.NoError(t, err)
			require.Equal(t, map[string]string{
				AccessTokenCookie:  "A1",
				RefreshTokenCookie: "R1",
				TokenExpiryCookie:  "123",
			}, vals)

			require.NoError(t, b.Delete(ctx, AccessTokenCookie, TokenExpiryCookie))

			vals, err = b.Load(ctx, AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie)
			require.NoError(t, err)
			require.Equal(t, map[string]string{RefreshTokenCookie: "R1"}, vals)
		})
	}
}

func TestBackends_Overwrite(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)
			exp := time.Now().Add(time.Hour)

			require.NoError(t, b.Save(ctx, []*http.Cookie{entry(AccessTokenCookie, "old", exp)}))
			require.NoError(t, b.Save(ctx, []*http.Cookie{entry(AccessTokenCookie, "new", exp)}))

			vals, err := b.Load(ctx, AccessTokenCookie)
			require.NoError(t, err)
			require.Equal(t, "new", vals[AccessTokenCookie])
		})
	}
}

func TestBackends_ExpiredEntriesAreNotLoaded(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			require.NoError(t, b.Save(ctx, []*http.Cookie{
				entry(AccessTokenCookie, "stale", time.Now().Add(-time.Minute)),
				entry(RefreshTokenCookie, "live", time.Now().Add(time.Hour)),
			}))

			vals, err := b.Load(ctx, AccessTokenCookie, RefreshTokenCookie)
			require.NoError(t, err)
			require.NotContains(t, vals, AccessTokenCookie)
			require.Equal(t, "live", vals[RefreshTokenCookie])
		})
	}
}

func TestBackends_DeleteMissingIsNoop(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, factory(t).Delete(context.Background(), AccessTokenCookie, RefreshTokenCookie))
		})
	}
}

func TestFileBackend_PermissionsAndPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "xam", stateFileName)

	b := NewFileBackend(path)
	require.NoError(t, b.Save(ctx, []*http.Cookie{entry(RefreshTokenCookie, "R1", time.Now().Add(time.Hour))}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A fresh backend on the same path sees the entry.
	vals, err := NewFileBackend(path).Load(ctx, RefreshTokenCookie)
	require.NoError(t, err)
	require.Equal(t, "R1", vals[RefreshTokenCookie])
}

func TestFileBackend_CorruptFileStartsFresh(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), stateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	var logs bytes.Buffer
	b := NewFileBackend(path, WithFileLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	vals, err := b.Load(ctx, AccessTokenCookie)
	require.NoError(t, err)
	require.Empty(t, vals)
	require.Contains(t, logs.String(), "Discarding unreadable token file")

	require.NoError(t, b.Save(ctx, []*http.Cookie{entry(AccessTokenCookie, "A", time.Now().Add(time.Hour))}))
	vals, err = b.Load(ctx, AccessTokenCookie)
	require.NoError(t, err)
	require.Equal(t, "A", vals[AccessTokenCookie])
}

func TestDefaultStateDir_XDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	require.Equal(t, filepath.Join("/tmp/xdg-state", "xam"), DefaultStateDir())
}

func TestRedisBackend_TTLFollowsCookieExpiry(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	b := NewRedisBackend(client, "test:")
	require.NoError(t, b.Save(ctx, []*http.Cookie{
		entry(AccessTokenCookie, "A", time.Now().Add(10*time.Minute)),
		entry(RefreshTokenCookie, "R", time.Now().Add(24*time.Hour)),
	}))

	require.True(t, srv.Exists("test:"+AccessTokenCookie))
	ttl := srv.TTL("test:" + AccessTokenCookie)
	require.Greater(t, ttl, 9*time.Minute)
	require.LessOrEqual(t, ttl, 10*time.Minute)

	srv.FastForward(11 * time.Minute)

	vals, err := b.Load(ctx, AccessTokenCookie, RefreshTokenCookie)
	require.NoError(t, err)
	require.Equal(t, map[string]string{RefreshTokenCookie: "R"}, vals)
}

func TestRedisBackend_Unavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()
	srv.Close()

	s := New(NewRedisBackend(client, ""))
	_, ok := s.Get(context.Background())
	require.False(t, ok)
	require.True(t, s.IsExpired(context.Background()))
}

func TestNewRedisClient_PingFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0)
	require.Error(t, err)
}

func TestNewJarBackend_InvalidURL(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	_, err = NewJarBackend(jar, "not a url", DefaultCookiePolicy(false))
	require.Error(t, err)
}

func TestNewJarBackend_SecurePolicyNeedsHTTPS(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	_, err = NewJarBackend(jar, "http://api.example.com", DefaultCookiePolicy(true))
	require.ErrorContains(t, err, "https")

	b, err := NewJarBackend(jar, "https://api.example.com", DefaultCookiePolicy(true))
	require.NoError(t, err)

	ctx := context.Background()
	s := New(b, WithCookiePolicy(DefaultCookiePolicy(true)))
	require.NoError(t, s.Set(ctx, "A1", "R1", 3600))
	pair, ok := s.Get(ctx)
	require.True(t, ok)
	require.Equal(t, "A1", pair.AccessToken)
}

func TestJarBackend_ClearWithDomain(t *testing.T) {
	ctx := context.Background()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	policy := DefaultCookiePolicy(false)
	policy.Domain = "example.com"
	b, err := NewJarBackend(jar, "http://api.example.com", policy)
	require.NoError(t, err)

	s := New(b, WithCookiePolicy(policy))
	require.NoError(t, s.Set(ctx, "A1", "R1", 3600))
	_, ok := s.Get(ctx)
	require.True(t, ok)

	require.NoError(t, s.Clear(ctx))
	_, ok = s.Get(ctx)
	require.False(t, ok)
	require.Empty(t, s.RefreshToken(ctx))
	require.Empty(t, jar.Cookies(&url.URL{Scheme: "http", Host: "api.example.com", Path: "/"}))
}
