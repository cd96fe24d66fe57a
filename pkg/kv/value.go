package kv

import "fmt"

// Kind identifies which of the three value shapes a key holds.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindSequence
	KindCollection
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "string"
	case KindSequence:
		return "list"
	case KindCollection:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "string":
		return KindScalar, true
	case "list":
		return KindSequence, true
	case "set":
		return KindCollection, true
	}
	return 0, false
}

// Value is the closed set of shapes a key can hold: *Scalar, *Sequence or
// *Collection. The unexported method keeps other packages from adding
// variants, so a type switch over the three is exhaustive.
type Value interface {
	Kind() Kind
	Clone() Value
	value()
}

// New returns an empty value of the given kind.
func New(k Kind) Value {
	switch k {
	case KindScalar:
		return NewScalar("")
	case KindSequence:
		return NewSequence()
	case KindCollection:
		return NewCollection()
	}
	panic(fmt.Sprintf("kv: unknown kind %d", uint8(k)))
}

// Scalar holds a single string.
type Scalar struct {
	s string
}

// NewScalar returns a scalar holding s.
func NewScalar(s string) *Scalar {
	return &Scalar{s: s}
}

func (*Scalar) Kind() Kind { return KindScalar }

func (v *Scalar) Clone() Value { return &Scalar{s: v.s} }

func (*Scalar) value() {}

// Set replaces the content.
func (v *Scalar) Set(s string) { v.s = s }

// Get returns the content.
func (v *Scalar) Get() string { return v.s }
