// Package filestore persists attachment payloads under a storage root.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned when nothing usable remains of a filename
var ErrInvalidName = errors.New("invalid attachment filename")

// Store writes files below Root and nowhere else
type Store struct {
	Root string
}

// New returns a store rooted at dir
func New(dir string) *Store {
	return &Store{Root: dir}
}

// SanitizeName drops every directory component from name, treating both
// slash styles as separators.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.FromSlash(name))
	base = strings.TrimSpace(base)
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Save writes payload as <prefix>_<sanitized name> and returns the absolute
// path. The prefix keeps distinct documents with equal names apart.
func (s *Store) Save(prefix, name string, payload []byte) (string, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if prefix != "" {
		safe = prefix + "_" + safe
	}

	if err := os.MkdirAll(s.Root, 0o750); err != nil {
		return "", fmt.Errorf("failed to create storage dir %s: %w", s.Root, err)
	}

	target, err := filepath.Abs(filepath.Join(s.Root, safe))
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage path: %w", err)
	}

	if err := os.WriteFile(target, payload, 0o640); err != nil {
		return "", fmt.Errorf("failed to write attachment %s: %w", target, err)
	}
	return target, nil
}

// Remove deletes a file written by Save. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
