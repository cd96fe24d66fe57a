package kv

import (
	"encoding/json"
	"sort"

	"github.com/jmgilman/go/errors"
)

// record is the serialized form of a Value.
type record struct {
	Kind    string   `json:"kind"`
	Value   *string  `json:"value,omitempty"`
	Items   []string `json:"items,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Encode serializes v as a self-describing JSON document. Collection
// members are sorted so equal values encode identically.
func Encode(v Value) ([]byte, error) {
	rec := record{Kind: v.Kind().String()}
	switch v := v.(type) {
	case *Scalar:
		s := v.Get()
		rec.Value = &s
	case *Sequence:
		rec.Items = v.Items()
	case *Collection:
		rec.Members = v.Members()
		sort.Strings(rec.Members)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode value")
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Value, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to decode value")
	}

	kind, ok := ParseKind(rec.Kind)
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown value kind %q", rec.Kind)
	}

	switch kind {
	case KindScalar:
		if rec.Value == nil {
			return nil, errors.New(errors.CodeInvalidInput, "string value without content")
		}
		return NewScalar(*rec.Value), nil
	case KindSequence:
		return NewSequence(rec.Items...), nil
	default:
		return NewCollection(rec.Members...), nil
	}
}
