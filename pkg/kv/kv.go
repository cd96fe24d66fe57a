package kv

// Store defines the command surface of a typed key-value store.
// Every key holds exactly one Value whose Kind is fixed until the key is
// deleted. Implementations can be swapped out (in-memory, Raft-replicated,
// instrumented) without callers noticing.
//
// Reads against a missing key never fail: they report absence through the
// comma-ok shape or a zero result. Operations against a key of another kind
// fail with ErrWrongKind and leave the store untouched.
type Store interface {
	// Set stores a scalar, replacing whatever the key held before.
	Set(key, value string) error

	// Get returns the scalar at key and true, or "" and false if the key
	// does not exist.
	Get(key string) (string, bool, error)

	// PushFront and PushBack append values to a sequence in order,
	// creating it if needed. They return the new length.
	PushFront(key string, values ...string) (int, error)
	PushBack(key string, values ...string) (int, error)

	// PopFront and PopBack remove an element from a sequence. The key is
	// deleted once the sequence is empty.
	PopFront(key string) (string, bool, error)
	PopBack(key string) (string, bool, error)

	// Len returns the length of a sequence, 0 if the key does not exist.
	Len(key string) (int, error)

	// Range returns the inclusive slice [start, stop] of a sequence.
	// Negative indexes count from the end.
	Range(key string, start, stop int) ([]string, error)

	// Add inserts members into a collection, creating it if needed.
	// It returns how many members were not present before.
	Add(key string, values ...string) (int, error)

	// Contains reports whether value is a member of the collection at key.
	Contains(key, value string) (bool, error)

	// Remove deletes members and returns how many were present.
	// The key is deleted once the collection is empty.
	Remove(key string, values ...string) (int, error)

	// Card returns the number of members of a collection.
	Card(key string) (int, error)

	// Members returns the members of a collection in no particular order.
	Members(key string) ([]string, error)

	// Exists reports whether key holds a value of any kind.
	Exists(key string) bool

	// Delete removes key and reports whether it existed.
	Delete(key string) (bool, error)

	// KindOf returns the kind stored at key and true, or false if absent.
	KindOf(key string) (Kind, bool)

	// Clear removes every key.
	Clear() error

	// Size returns the number of keys in the store.
	Size() int
}
