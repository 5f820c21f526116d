package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for names escaping the storage root.
var ErrInvalidPath = errors.New("storage: invalid path")

// LocalStorage persists blobs on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./attachments"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return name, nil
}

// SaveStream copies from reader into the target path, returning the bytes written.
func (s *LocalStorage) SaveStream(name string, r io.Reader) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare blob directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	defer file.Close() //nolint:errcheck
	n, err := io.Copy(file, r)
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write blob stream: %w", err)
	}
	return n, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Exists reports whether a blob is present.
func (s *LocalStorage) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes a stored blob if present.
func (s *LocalStorage) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.ToSlash(name))
	if name == "" || strings.Contains(name, "..") || clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.baseDir, clean), nil
}
