package securestore

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/medvault/medvault/internal/errs"
)

// fileEnc maps logical keys to filesystem-safe names.
var fileEnc = base32.StdEncoding.WithPadding(base32.NoPadding)

// File persists each key as a 0600 file under a 0700 directory.
// It stands in for the platform secure store on desktop installs.
type File struct {
	dir string
}

// NewFile creates the backing directory if needed and returns the store.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, fileEnc.EncodeToString([]byte(key))+".dat")
}

// Get reads the value stored under key.
func (f *File) Get(_ context.Context, key string) (string, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return string(b), nil
}

// Set writes the value under key atomically (write to temp, rename).
func (f *File) Set(_ context.Context, key, value string) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes the file for key; absence is not an error.
func (f *File) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}
