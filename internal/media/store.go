// Package media stores generated marketing images on local disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/estatepost/internal/identity"
)

// ErrInvalidClientID is returned for ids that cannot be used in a file name.
var ErrInvalidClientID = errors.New("media: invalid client id")

// FileStore writes one image per client into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

// PathFor returns where the image for clientID is stored.
func (s *FileStore) PathFor(clientID string) string {
	return filepath.Join(s.dir, clientID+"_image.png")
}

// Save writes data for clientID, replacing any previous image.
func (s *FileStore) Save(_ context.Context, clientID string, data []byte) (string, error) {
	if !identity.ValidID(clientID) {
		return "", ErrInvalidClientID
	}
	path := s.PathFor(clientID)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return path, nil
}

// Load reads an image previously returned by Save. Paths outside the store
// directory are rejected.
func (s *FileStore) Load(_ context.Context, path string) ([]byte, error) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("image path %q is outside %s", path, s.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
