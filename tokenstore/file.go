// ABOUTME: File-backed token backend for the CLI
// ABOUTME: Keeps entries in a JSON document under the XDG state directory

package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "tokens.json"

type fileEntry struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitzero"`
}

type fileData struct {
	Entries map[string]fileEntry `json:"entries"`
}

// FileBackend stores entries in a single JSON file. Writes replace the file
// atomically, so a reader in another process sees either the old or the new
// set of entries.
type FileBackend struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithFileLogger sets the logger used when the token file is discarded.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *FileBackend) { f.logger = l }
}

// NewFileBackend stores entries at path.
func NewFileBackend(path string, opts ...FileOption) *FileBackend {
	f := &FileBackend{path: path, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DefaultStateDir returns the state directory under XDG_STATE_HOME.
func DefaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "xam")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "xam")
}

// DefaultStatePath returns the token file path inside dir.
func DefaultStatePath(dir string) string {
	return filepath.Join(dir, stateFileName)
}

// Path returns the file the backend writes to.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Load(_ context.Context, names ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return nil, err
	}

	vals := make(map[string]string, len(names))
	for _, name := range names {
		if e, ok := data.Entries[name]; ok {
			vals[name] = e.Value
		}
	}
	return vals, nil
}

func (f *FileBackend) Save(_ context.Context, cookies []*http.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}
	for _, c := range cookies {
		data.Entries[c.Name] = fileEntry{Value: c.Value, Expires: c.Expires}
	}
	return f.write(data)
}

func (f *FileBackend) Delete(_ context.Context, names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}

	removed := false
	for _, name := range names {
		if _, ok := data.Entries[name]; ok {
			delete(data.Entries, name)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return f.write(data)
}

// read loads the file and drops expired entries. A missing file is empty.
func (f *FileBackend) read() (*fileData, error) {
	data := &fileData{Entries: make(map[string]fileEntry)}

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if err := json.Unmarshal(raw, data); err != nil {
		// Invalid JSON, start fresh
		f.logger.Warn("Discarding unreadable token file", "path", f.path, "error", err)
		return &fileData{Entries: make(map[string]fileEntry)}, nil
	}
	if data.Entries == nil {
		data.Entries = make(map[string]fileEntry)
	}

	now := f.now()
	for name, e := range data.Entries {
		if !e.Expires.IsZero() && !now.Before(e.Expires) {
			delete(data.Entries, name)
		}
	}
	return data, nil
}

func (f *FileBackend) write(data *fileData) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
