package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists a rendered export and returns a URL clients can download it from.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// LocalStore writes artifacts under a directory served by the API at BaseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

// Compile-time check that LocalStore implements ArtifactStore
var _ ArtifactStore = (*LocalStore)(nil)

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the directory artifacts are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes body to dir/key atomically.
func (s *LocalStore) Put(ctx context.Context, key, _ string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean("/" + key)[1:]
	if clean == "" {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}

	path := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	return s.baseURL + "/" + filepath.ToSlash(clean), nil
}
