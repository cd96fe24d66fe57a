package kv

import "github.com/jmgilman/go/errors"

// CodeWrongKind marks an operation against a key holding another kind.
const CodeWrongKind errors.ErrorCode = "WRONGTYPE"

// ErrWrongKind is returned when an operation requires a kind other than the
// one the key was created with. The store is never mutated in that case.
var ErrWrongKind = errors.New(CodeWrongKind, "Operation against a key holding the wrong kind of value")
