package store

import (
	"context"
	stderrors "errors"

	"github.com/heysubinoy/opus/internal/persist"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/jmgilman/go/errors"
)

// ErrNoBackend is returned by Flush and Restore when no backend is attached.
var ErrNoBackend = errors.New(errors.CodeInvalidConfig, "no persistence backend configured")

// Backend returns the attached persistence backend, or nil.
func (s *MemStore) Backend() persist.Backend {
	return s.backend
}

// Flush writes every key changed since the last flush to the backend and
// removes keys that were deleted. After Clear it also removes backend keys
// that are no longer present in memory.
//
// Flushes are serialized. A key that fails to save stays dirty and the
// remaining keys are still written; the failures are returned joined.
func (s *MemStore) Flush(ctx context.Context) error {
	if s.backend == nil {
		return ErrNoBackend
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := make(map[string]kv.Value, len(s.dirty))
	for key := range s.dirty {
		if v, ok := s.data[key]; ok {
			pending[key] = v.Clone()
		} else {
			pending[key] = nil
		}
	}
	wiped := s.wiped
	var live map[string]struct{}
	if wiped {
		live = make(map[string]struct{}, len(s.data))
		for key := range s.data {
			live[key] = struct{}{}
		}
	}
	s.dirty = make(map[string]struct{})
	s.wiped = false
	s.mu.Unlock()

	failed, wipeErr, err := s.flush(ctx, pending, live)
	if len(failed) > 0 || wipeErr {
		s.mu.Lock()
		for _, key := range failed {
			s.dirty[key] = struct{}{}
		}
		s.wiped = s.wiped || wipeErr
		s.mu.Unlock()
	}
	if err != nil {
		s.logger.Warn("flush incomplete", "failed", len(failed), "error", err)
		return err
	}

	s.logger.Debug("flushed store", "keys", len(pending), "wiped", wiped)
	return nil
}

// flush writes pending to the backend and returns the keys that could not be
// written, whether the wipe of stale backend keys must be retried, and every
// error encountered.
func (s *MemStore) flush(ctx context.Context, pending map[string]kv.Value, live map[string]struct{}) ([]string, bool, error) {
	var errs []error
	var failed []string
	wipeErr := false

	if live != nil {
		keys, err := s.backend.List(ctx, "")
		if err != nil {
			errs = append(errs, err)
			wipeErr = true
		}
		for _, key := range keys {
			if _, ok := live[key]; ok {
				continue
			}
			if _, ok := pending[key]; ok {
				continue
			}
			if err := s.backend.Remove(ctx, key); err != nil && !persist.IsNotFound(err) {
				errs = append(errs, err)
				wipeErr = true
			}
		}
	}

	for key, v := range pending {
		if err := ctx.Err(); err != nil {
			failed = append(failed, key)
			continue
		}
		if err := s.write(ctx, key, v); err != nil {
			errs = append(errs, err)
			failed = append(failed, key)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	switch len(errs) {
	case 0:
		return failed, wipeErr, nil
	case 1:
		return failed, wipeErr, errs[0]
	default:
		return failed, wipeErr, stderrors.Join(errs...)
	}
}

// write saves v under key, or removes key when v is nil.
func (s *MemStore) write(ctx context.Context, key string, v kv.Value) error {
	if v == nil {
		if err := s.backend.Remove(ctx, key); err != nil && !persist.IsNotFound(err) {
			return err
		}
		return nil
	}
	data, err := kv.Encode(v)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, key, data)
}

// Restore replaces the in-memory content with everything stored in the
// backend.
func (s *MemStore) Restore(ctx context.Context) error {
	if s.backend == nil {
		return ErrNoBackend
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	keys, err := s.backend.List(ctx, "")
	if err != nil {
		return err
	}

	entries := make(map[string]kv.Value, len(keys))
	for _, key := range keys {
		data, err := s.backend.Load(ctx, key)
		if err != nil {
			return err
		}
		v, err := kv.Decode(data)
		if err != nil {
			return errors.WithContext(err, "key", key)
		}
		entries[key] = v
	}

	s.mu.Lock()
	s.data = entries
	s.dirty = make(map[string]struct{})
	s.wiped = false
	s.mu.Unlock()

	s.logger.Info("restored store from backend", "keys", len(entries))
	return nil
}
