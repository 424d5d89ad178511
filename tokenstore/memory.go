// ABOUTME: In-process token backend on top of the TTL cache
// ABOUTME: Entries vanish when their cookie expiry passes

package tokenstore

import (
	"context"
	"net/http"
	"time"

	"github.com/markalston/xam-client/cache"
)

// MemoryBackend keeps entries in a cache.Cache. Nothing survives the process.
type MemoryBackend struct {
	cache *cache.Cache
}

// NewMemoryBackend wraps c. Entries without an expiry use the cache's default TTL.
func NewMemoryBackend(c *cache.Cache) *MemoryBackend {
	return &MemoryBackend{cache: c}
}

func (m *MemoryBackend) Load(_ context.Context, names ...string) (map[string]string, error) {
	vals := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := m.cache.Get(name); ok {
			if s, ok := v.(string); ok {
				vals[name] = s
			}
		}
	}
	return vals, nil
}

func (m *MemoryBackend) Save(_ context.Context, cookies []*http.Cookie) error {
	for _, c := range cookies {
		if c.Expires.IsZero() {
			m.cache.Set(c.Name, c.Value)
			continue
		}
		m.cache.SetWithTTL(c.Name, c.Value, time.Until(c.Expires))
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, names ...string) error {
	m.cache.Clear(names...)
	return nil
}
