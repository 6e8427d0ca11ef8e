package types

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested user, file or collection
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserExists is returned when adding a user that is already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidID is returned when a user or conversation id contains
	// characters that cannot appear in collection or directory names.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoProviderConfigured is returned when no provider credential is
	// available. For embeddings this is fatal at startup.
	ErrNoProviderConfigured = errors.New("no provider configured")

	// ErrProviderUnavailable is returned when the only configured
	// generation provider failed.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAllProvidersUnavailable is returned when the primary provider
	// failed and the failover attempt against the secondary failed too.
	ErrAllProvidersUnavailable = errors.New("all providers unavailable")

	// ErrDimensionMismatch is returned when a collection holds vectors of
	// a different dimensionality than the active embedding provider
	// produces. Recovered by a full rebuild, never surfaced to callers.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")
)
