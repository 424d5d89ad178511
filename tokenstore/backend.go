package tokenstore

import (
	"context"
	"net/http"
)

// Backend persists cookie-like entries for a Store.
//
// Save and Delete receive every entry of one logical write; implementations
// should apply them in a single operation where the medium allows it.
type Backend interface {
	// Load returns the values of the named entries that exist and have not expired.
	Load(ctx context.Context, names ...string) (map[string]string, error)
	Save(ctx context.Context, cookies []*http.Cookie) error
	// Delete removes the named entries; missing entries are not an error.
	Delete(ctx context.Context, names ...string) error
}
