package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists processed exports so they can be fetched later.
type Storage interface {
	// Save stores the content under key (relative path, e.g. "client/id/photo.jpg").
	// Returns a public URL for accessing the content.
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Delete removes the object at key. Should not error if the object does not exist.
	Delete(ctx context.Context, key string) error
	// PublicURL builds a public URL for a given key.
	PublicURL(key string) string
	// IsLocal indicates whether this storage writes to local filesystem.
	IsLocal() bool
}

// LocalStorage writes exports below a directory that the server also
// serves under /exports.
type LocalStorage struct {
	baseDir    string
	publicBase string
}

// ErrInvalidKey is returned for keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

func NewLocalStorage(baseDir string) *LocalStorage {
	if baseDir == "" {
		baseDir = "exports"
	}
	return &LocalStorage{baseDir: baseDir, publicBase: "/exports"}
}

func (s *LocalStorage) resolve(key string) (string, string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(key), "/")
	if key == "" || strings.Contains("/"+key+"/", "/../") {
		return "", "", ErrInvalidKey
	}
	return key, filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

// Save writes to a temporary file next to the target and renames it into
// place, so readers never see a partial export.
func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key, dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	_, p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) PublicURL(key string) string {
	return s.publicBase + "/" + strings.TrimPrefix(filepath.ToSlash(key), "/")
}

func (s *LocalStorage) IsLocal() bool { return true }

// BaseDir is the directory exports are written under.
func (s *LocalStorage) BaseDir() string { return s.baseDir }

// NewStorageFromConfig builds the configured Storage. An s3/r2 provider with
// incomplete settings is an error; anything else falls back to local disk.
func NewStorageFromConfig(cfg StorageConfig) (Storage, error) {
	switch strings.ToLower(cfg.Provider) {
	case "s3", "r2":
		return NewS3Storage(cfg)
	}
	return NewLocalStorage(cfg.LocalDir), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
