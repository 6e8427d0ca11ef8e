// Package registry implements the user registry: a single JSON file
// mapping user ids to their password and private file list.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spetr/docchat/pkg/types"
)

// User is one registry record.
type User struct {
	Password string   `json:"password"`
	Files    []string `json:"files"`
}

// Registry is a mutex-guarded JSON registry. Every read-modify-write
// holds the lock for its full duration so concurrent admin operations
// cannot lose updates.
type Registry struct {
	path string
	mu   sync.Mutex
}

// Open opens the registry at path. When the file does not exist a
// default admin user is seeded, matching first-run behavior.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("user registry not found, creating one with a default admin user", "path", path)
		if err := r.save(map[string]User{
			"admin": {Password: "admin", Files: []string{}},
		}); err != nil {
			return nil, fmt.Errorf("failed to seed registry: %w", err)
		}
	}

	// Verify the file is readable and well-formed
	if _, err := r.load(); err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	return r, nil
}

func (r *Registry) load() (map[string]User, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	users := make(map[string]User)
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *Registry) save(users map[string]User) error {
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0644)
}

// ValidateUserID rejects ids that cannot appear safely in collection
// and directory names. Underscores are reserved as the collection name
// separator: a user id containing one would make another user's
// history collections indistinguishable from this user's
// conversation-scoped ones.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("empty user id: %w", types.ErrInvalidID)
	}
	if strings.ContainsAny(userID, "_/\\") {
		return fmt.Errorf("user id %q: %w", userID, types.ErrInvalidID)
	}
	return nil
}

// AddUser registers a new user with an empty file list.
func (r *Registry) AddUser(userID, password string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := users[userID]; ok {
		return fmt.Errorf("user %q: %w", userID, types.ErrUserExists)
	}
	users[userID] = User{Password: password, Files: []string{}}
	return r.save(users)
}

// RemoveUser deletes a user's record. Returns types.ErrNotFound when
// the user is not registered.
func (r *Registry) RemoveUser(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := users[userID]; !ok {
		return fmt.Errorf("user %q: %w", userID, types.ErrNotFound)
	}
	delete(users, userID)
	return r.save(users)
}

// Exists reports whether the user is registered.
func (r *Registry) Exists(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return false
	}
	_, ok := users[userID]
	return ok
}

// Authenticate checks a user id and password pair.
func (r *Registry) Authenticate(userID, password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return false
	}
	u, ok := users[userID]
	return ok && u.Password == password
}

// AddFile records a file in the user's file list. Unknown users are
// ignored: shared uploads carry no owning user.
func (r *Registry) AddFile(userID, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	u, ok := users[userID]
	if !ok {
		return nil
	}
	if !slices.Contains(u.Files, filename) {
		u.Files = append(u.Files, filename)
		users[userID] = u
	}
	return r.save(users)
}

// RemoveFile drops a file from the user's file list if present.
func (r *Registry) RemoveFile(userID, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	u, ok := users[userID]
	if !ok {
		return nil
	}
	if i := slices.Index(u.Files, filename); i >= 0 {
		u.Files = slices.Delete(u.Files, i, i+1)
		users[userID] = u
		return r.save(users)
	}
	return nil
}

// Files returns the user's recorded file list.
func (r *Registry) Files(userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	u, ok := users[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, types.ErrNotFound)
	}
	return slices.Clone(u.Files), nil
}
