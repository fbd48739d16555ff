package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// Store loads and saves the whole portfolio document.
type Store interface {
	// Load returns found=false when no document has been written yet.
	Load(ctx context.Context) (doc domain.PortfolioDocument, found bool, err error)
	Save(ctx context.Context, doc domain.PortfolioDocument) error
}

// FileStore keeps the portfolio in a single JSON file. Saves write a temp
// file in the same directory, fsync it and rename it over the old file, so a
// reader sees either the old document or the new one.
type FileStore struct {
	path string

	// beforeRename runs after the temp file is synced. Tests use it to
	// simulate a crash.
	beforeRename func(tmp string) error
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing file is an empty portfolio.
func (s *FileStore) Load(_ context.Context) (domain.PortfolioDocument, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PortfolioDocument{}, false, nil
	}
	if err != nil {
		return domain.PortfolioDocument{}, false, fmt.Errorf("portfolio: read %s: %w", s.path, err)
	}

	var doc domain.PortfolioDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.PortfolioDocument{}, false, fmt.Errorf("portfolio: decode %s: %w", s.path, err)
	}
	return doc, true, nil
}

// Save replaces the document atomically.
func (s *FileStore) Save(_ context.Context, doc domain.PortfolioDocument) (err error) {
	if doc.Open == nil {
		doc.Open = []domain.Position{}
	}
	if doc.Closed == nil {
		doc.Closed = []domain.Position{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("portfolio: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("portfolio: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("portfolio: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("portfolio: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("portfolio: sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("portfolio: close temp file: %w", err)
	}

	if s.beforeRename != nil {
		if err = s.beforeRename(tmpName); err != nil {
			return fmt.Errorf("portfolio: before rename: %w", err)
		}
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("portfolio: rename %s: %w", s.path, err)
	}

	// Persist the directory entry; not every platform supports syncing a
	// directory, so failures here are ignored.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
