package store

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/internal/persist"
	"github.com/heysubinoy/opus/pkg/kv"
)

// MemStore is the in-memory implementation of kv.Store. It maps each key to
// exactly one typed value and is guarded by a single store-wide RWMutex.
//
// Containers emptied by a pop or remove are deleted, so a read afterwards
// sees the key as absent rather than empty.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]kv.Value

	// Persistence bookkeeping, only populated when a backend is attached.
	// flushMu serializes Flush and Restore.
	flushMu sync.Mutex
	backend persist.Backend
	dirty   map[string]struct{}
	wiped   bool

	logger hclog.Logger
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// Option configures a MemStore.
type Option func(*MemStore)

// WithBackend attaches a persistence backend used by Flush and Restore.
func WithBackend(b persist.Backend) Option {
	return func(s *MemStore) { s.backend = b }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l hclog.Logger) Option {
	return func(s *MemStore) { s.logger = l }
}

// NewMemStore creates and returns a new, empty MemStore.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		data:   make(map[string]kv.Value),
		dirty:  make(map[string]struct{}),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getAs returns the value at key if it has kind k. A nil value with a nil
// error means the key is absent. Callers must hold s.mu.
func (s *MemStore) getAs(key string, k kv.Kind) (kv.Value, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	if v.Kind() != k {
		return nil, kv.ErrWrongKind
	}
	return v, nil
}

// getOrCreate returns the value at key, inserting an empty value of kind k
// if the key is absent. Callers must hold s.mu for writing.
func (s *MemStore) getOrCreate(key string, k kv.Kind) (kv.Value, error) {
	v, err := s.getAs(key, k)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = kv.New(k)
		s.data[key] = v
	}
	return v, nil
}

// touch records key as changed since the last flush. Callers must hold s.mu.
func (s *MemStore) touch(key string) {
	if s.backend != nil {
		s.dirty[key] = struct{}{}
	}
}

// Set stores a scalar, replacing any previous value regardless of kind.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = kv.NewScalar(value)
	s.touch(key)
	return nil
}

// Get returns the scalar at key.
func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindScalar)
	if err != nil || v == nil {
		return "", false, err
	}
	return v.(*kv.Scalar).Get(), true, nil
}

// PushFront prepends values one by one to the sequence at key.
func (s *MemStore) PushFront(key string, values ...string) (int, error) {
	return s.push(key, values, (*kv.Sequence).PushFront)
}

// PushBack appends values to the sequence at key.
func (s *MemStore) PushBack(key string, values ...string) (int, error) {
	return s.push(key, values, (*kv.Sequence).PushBack)
}

func (s *MemStore) push(key string, values []string, fn func(*kv.Sequence, string) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getOrCreate(key, kv.KindSequence)
	if err != nil {
		return 0, err
	}
	seq := v.(*kv.Sequence)
	for _, value := range values {
		fn(seq, value)
	}
	if seq.IsEmpty() {
		delete(s.data, key)
	}
	s.touch(key)
	return seq.Len(), nil
}

// PopFront removes the head of the sequence at key.
func (s *MemStore) PopFront(key string) (string, bool, error) {
	return s.pop(key, (*kv.Sequence).PopFront)
}

// PopBack removes the tail of the sequence at key.
func (s *MemStore) PopBack(key string) (string, bool, error) {
	return s.pop(key, (*kv.Sequence).PopBack)
}

func (s *MemStore) pop(key string, fn func(*kv.Sequence) (string, bool)) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getAs(key, kv.KindSequence)
	if err != nil || v == nil {
		return "", false, err
	}
	seq := v.(*kv.Sequence)
	out, ok := fn(seq)
	if seq.IsEmpty() {
		delete(s.data, key)
	}
	s.touch(key)
	return out, ok, nil
}

// Len returns the length of the sequence at key.
func (s *MemStore) Len(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindSequence)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(*kv.Sequence).Len(), nil
}

// Range returns a window of the sequence at key.
func (s *MemStore) Range(key string, start, stop int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindSequence)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return []string{}, nil
	}
	return v.(*kv.Sequence).Range(start, stop), nil
}

// Add inserts values into the collection at key.
func (s *MemStore) Add(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getOrCreate(key, kv.KindCollection)
	if err != nil {
		return 0, err
	}
	col := v.(*kv.Collection)
	n := col.Add(values...)
	// SADD with no members would otherwise leave an empty container behind.
	if col.IsEmpty() {
		delete(s.data, key)
	}
	s.touch(key)
	return n, nil
}

// Contains tests membership in the collection at key.
func (s *MemStore) Contains(key, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindCollection)
	if err != nil || v == nil {
		return false, err
	}
	return v.(*kv.Collection).Contains(value), nil
}

// Remove deletes values from the collection at key.
func (s *MemStore) Remove(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getAs(key, kv.KindCollection)
	if err != nil || v == nil {
		return 0, err
	}
	col := v.(*kv.Collection)
	n := 0
	for _, value := range values {
		n += col.Remove(value)
	}
	if col.IsEmpty() {
		delete(s.data, key)
	}
	s.touch(key)
	return n, nil
}

// Card returns the member count of the collection at key.
func (s *MemStore) Card(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindCollection)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(*kv.Collection).Len(), nil
}

// Members returns the members of the collection at key.
func (s *MemStore) Members(key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.getAs(key, kv.KindCollection)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return []string{}, nil
	}
	return v.(*kv.Collection).Members(), nil
}

// Exists reports whether key is present.
func (s *MemStore) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (s *MemStore) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return false, nil
	}
	delete(s.data, key)
	s.touch(key)
	return true, nil
}

// KindOf returns the kind stored at key.
func (s *MemStore) KindOf(key string) (kv.Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return 0, false
	}
	return v.Kind(), true
}

// Clear removes all keys.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]kv.Value)
	if s.backend != nil {
		s.dirty = make(map[string]struct{})
		s.wiped = true
	}
	return nil
}

// Size returns the number of keys.
func (s *MemStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Snapshot returns a deep copy of every entry.
func (s *MemStore) Snapshot() map[string]kv.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]kv.Value, len(s.data))
	for k, v := range s.data {
		out[k] = v.Clone()
	}
	return out
}

// Replace swaps the whole content of the store for entries. With a backend
// attached, the next Flush rewrites every entry and removes the rest.
func (s *MemStore) Replace(entries map[string]kv.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = entries
	if s.data == nil {
		s.data = make(map[string]kv.Value)
	}
	if s.backend != nil {
		s.wiped = true
		for key := range s.data {
			s.dirty[key] = struct{}{}
		}
	}
}
