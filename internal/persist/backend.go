// Package persist defines the durable storage contract used to flush and
// restore the in-memory store, together with filesystem, bolt and sqlite
// implementations.
package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmgilman/go/errors"
)

// Backend stores opaque byte payloads under string keys.
// Failures carry a structured code readable with errors.GetCode:
// NOT_FOUND for a missing key, INVALID_INPUT for a key the backend cannot
// represent, DATABASE_ERROR or INTERNAL_ERROR for I/O failures.
type Backend interface {
	// Save persists data under key, creating or overwriting it.
	Save(ctx context.Context, key string, data []byte) error
	// Load returns the data stored under key.
	Load(ctx context.Context, key string) ([]byte, error)
	// Remove deletes key. Removing a missing key returns NOT_FOUND.
	Remove(ctx context.Context, key string) error
	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	KindNone   = "none"
	KindFS     = "fs"
	KindBolt   = "bolt"
	KindSQLite = "sqlite"
)

// Open returns the backend named kind rooted at path. KindNone (or "")
// returns a nil Backend and no error.
func Open(kind, path string) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(kind) {
	case "", KindNone:
		return nil, nil
	case KindFS:
		b, err = NewFileBackend(path)
	case KindBolt:
		b, err = NewBoltBackend(path)
	case KindSQLite:
		b, err = NewSQLiteBackend(path)
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown persistence backend %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// IsNotFound reports whether err is a missing-key failure.
func IsNotFound(err error) bool {
	return errors.GetCode(err) == errors.CodeNotFound
}

func notFound(key string) error {
	return errors.WithContext(
		errors.New(errors.CodeNotFound, fmt.Sprintf("key not found: %s", key)),
		"key", key,
	)
}
