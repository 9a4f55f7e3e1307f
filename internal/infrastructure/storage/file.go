package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// FileStore persists the state document as a single JSON file.
type FileStore struct {
	path   string
	logger *slog.Logger
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore binds the store to path. The file is created on first save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and migrates the state file. A missing file is an empty document.
func (s *FileStore) Load(ctx context.Context) (*domain.StateDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.debug("state file absent, starting empty", "path", s.path)
		return domain.NewStateDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.path, err)
	}
	if doc.Migrated() {
		s.debug("state migrated in memory", "path", s.path, "from", doc.MigratedFrom, "to", doc.SchemaVersion)
	}
	return doc, nil
}

// Save writes doc to a temporary file next to the target and renames it
// into place, so readers observe either the old or the new document.
func (s *FileStore) Save(ctx context.Context, doc *domain.StateDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := WriteAtomic(s.path, data); err != nil {
		return fmt.Errorf("save state %s: %w", s.path, err)
	}
	s.debug("state saved", "path", s.path, "records", len(doc.Records))
	return nil
}

// WriteAtomic replaces path with data via a synced temp file and rename.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp: %w", err)
	}

	// Persist the rename itself; not every platform allows syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *FileStore) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
