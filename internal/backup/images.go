package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	stagingSuffix = ".staging"
	retiredSuffix = ".retired"
	imageFileMode = 0o600
	imageDirMode  = 0o700
)

// ImageStore manages the app-private directory holding image attachments.
// Imports never clear the live directory in place: new attachments are
// written into a staging directory which is swapped into position only after
// the database replace committed, so a concurrent reader never observes a
// half-cleared directory.
type ImageStore struct {
	dir string
}

// NewImageStore opens (creating if needed) the attachment directory.
func NewImageStore(dir string) (*ImageStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("image store: directory is required")
	}
	if err := os.MkdirAll(dir, imageDirMode); err != nil {
		return nil, fmt.Errorf("image store: create directory: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

// Dir returns the live attachment directory.
func (store *ImageStore) Dir() string {
	return store.dir
}

// Read loads the bytes behind an attachment reference.
func (store *ImageStore) Read(uri string) ([]byte, error) {
	return os.ReadFile(uri)
}

// Staging is a not-yet-live attachment directory populated during import.
type Staging struct {
	dir string
}

// Stage creates a fresh staging directory next to the live one, discarding
// any leftover from an earlier aborted import.
func (store *ImageStore) Stage() (*Staging, error) {
	stagingDir := store.dir + stagingSuffix
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("image store: clear staging: %w", err)
	}
	if err := os.MkdirAll(stagingDir, imageDirMode); err != nil {
		return nil, fmt.Errorf("image store: create staging: %w", err)
	}
	return &Staging{dir: stagingDir}, nil
}

// Write stores one attachment under its deterministic name and returns the
// path the restored row will reference after the swap.
func (staging *Staging) Write(store *ImageStore, name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(staging.dir, name), data, imageFileMode); err != nil {
		return "", fmt.Errorf("image store: write staged image: %w", err)
	}
	return filepath.Join(store.dir, name), nil
}

// Discard removes the staging directory.
func (staging *Staging) Discard() error {
	return os.RemoveAll(staging.dir)
}

// Swap atomically replaces the live directory with the staged one and
// removes the retired contents.
func (store *ImageStore) Swap(staging *Staging) error {
	retiredDir := store.dir + retiredSuffix
	if err := os.RemoveAll(retiredDir); err != nil {
		return fmt.Errorf("image store: clear retired: %w", err)
	}
	if err := os.Rename(store.dir, retiredDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("image store: retire live directory: %w", err)
	}
	if err := os.Rename(staging.dir, store.dir); err != nil {
		return fmt.Errorf("image store: promote staging: %w", err)
	}
	return os.RemoveAll(retiredDir)
}
