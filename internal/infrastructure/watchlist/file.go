// Package watchlist persists the ordered set of monitored search URLs.
package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"olxmonitor/internal/ports"
)

// File stores the watchlist as a small JSON document on disk.
type File struct {
	path string
	mu   sync.Mutex
}

var _ ports.Watchlist = (*File)(nil)

type document struct {
	URLs []string `json:"urls"`
}

// NewFile points the watchlist at path. The file may not exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load returns the saved URLs in order; a missing file is an empty list.
func (f *File) Load() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	return doc.URLs, nil
}

// Save writes the full list, creating the directory when needed.
func (f *File) Save(urls []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create watchlist directory: %w", err)
	}

	raw, err := json.MarshalIndent(document{URLs: urls}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watchlist: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o644); err != nil {
		return fmt.Errorf("write watchlist: %w", err)
	}
	return nil
}
