// Package docstore manages the source document tree, partitioned into
// shared/ and users/{user_id}/ directories.
package docstore

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spetr/docchat/pkg/types"
)

// Store owns the document tree. Collections are rebuilt from this tree,
// never from previously embedded vectors.
type Store struct {
	root           string
	removeAttempts int
	removeBackoff  time.Duration
}

// Config contains store configuration.
type Config struct {
	Root           string
	RemoveAttempts int
	RemoveBackoff  time.Duration
}

// New creates the document store, ensuring the shared and users
// directories exist.
func New(cfg Config) (*Store, error) {
	if cfg.RemoveAttempts == 0 {
		cfg.RemoveAttempts = 3
	}
	if cfg.RemoveBackoff == 0 {
		cfg.RemoveBackoff = 200 * time.Millisecond
	}

	s := &Store{
		root:           cfg.Root,
		removeAttempts: cfg.RemoveAttempts,
		removeBackoff:  cfg.RemoveBackoff,
	}

	for _, dir := range []string{s.SharedDir(), filepath.Join(cfg.Root, "users")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create document directory: %w", err)
		}
	}
	return s, nil
}

// Root returns the document tree root.
func (s *Store) Root() string {
	return s.root
}

// SharedDir returns the shared documents directory.
func (s *Store) SharedDir() string {
	return filepath.Join(s.root, "shared")
}

// UserDir returns a user's private documents directory.
func (s *Store) UserDir(userID string) string {
	return filepath.Join(s.root, "users", userID)
}

// Dir returns the directory backing a document scope.
// History scopes have no source documents.
func (s *Store) Dir(scope types.ScopeKey) (string, error) {
	switch scope.Kind {
	case types.ScopeShared:
		return s.SharedDir(), nil
	case types.ScopeUser:
		return s.UserDir(scope.UserID), nil
	}
	return "", fmt.Errorf("scope %s has no document directory", scope)
}

// Path returns the full path of a file within a scope.
func (s *Store) Path(scope types.ScopeKey, filename string) (string, error) {
	dir, err := s.Dir(scope)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(filename)), nil
}

// Save writes an uploaded document into the scope's directory and
// returns its path.
func (s *Store) Save(scope types.ScopeKey, filename string, r io.Reader) (string, error) {
	path, err := s.Path(scope, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the paths of all documents currently assigned to the
// scope. A missing directory is an empty scope, not an error.
func (s *Store) List(scope types.ScopeKey) ([]string, error) {
	dir, err := s.Dir(scope)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// Remove deletes one document. Returns types.ErrNotFound when the file
// does not exist.
func (s *Store) Remove(scope types.ScopeKey, filename string) error {
	path, err := s.Path(scope, filename)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file %q: %w", filename, types.ErrNotFound)
	}
	return os.Remove(path)
}

// RemoveUserDir deletes a user's entire document directory with the
// bounded retry policy. Returns whether the directory is gone.
func (s *Store) RemoveUserDir(userID string) bool {
	return RemoveTree(s.UserDir(userID), s.removeAttempts, s.removeBackoff)
}

// RemoveTree removes a directory tree robustly across platforms.
// Permission errors are repaired by making entries writable before the
// next attempt; transient locked-file errors get a growing backoff.
// Returns true if removed or not present, false if the tree still
// exists after retries.
func RemoveTree(path string, attempts int, backoff time.Duration) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := os.RemoveAll(path)
		if err == nil {
			return true
		}
		slog.Debug("directory removal failed, retrying",
			"path", path, "attempt", attempt+1, "error", err)
		makeWritable(path)
		time.Sleep(backoff * time.Duration(attempt+1))
	}

	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// makeWritable walks the tree clearing read-only bits so the next
// removal attempt can succeed.
func makeWritable(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Chmod(p, 0755)
		return nil
	})
}
