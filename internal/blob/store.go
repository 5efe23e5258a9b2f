package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store accepts raw bytes plus a file extension and returns a stable
// retrievable URL. Filenames are freshly generated UUIDs; collisions are
// treated as negligible.
type Store interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
}

// NewFilename generates a unique blob name for the given extension.
func NewFilename(ext string) string {
	return fmt.Sprintf("%s.%s", uuid.NewString(), ext)
}

// LocalStore writes blobs to a directory and serves them under /media/.
// It is the fallback when S3 is unconfigured.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the media directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the blob and returns its URL path.
func (s *LocalStore) Save(ctx context.Context, data []byte, ext string) (string, error) {
	name := NewFilename(ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return "/media/" + name, nil
}
