package kv

import "github.com/emirpasic/gods/lists/doublylinkedlist"

// Sequence is an ordered list of strings with O(1) push and pop at both ends.
type Sequence struct {
	l *doublylinkedlist.List
}

// NewSequence returns a sequence holding items in order.
func NewSequence(items ...string) *Sequence {
	s := &Sequence{l: doublylinkedlist.New()}
	for _, it := range items {
		s.l.Append(it)
	}
	return s
}

func (*Sequence) Kind() Kind { return KindSequence }

func (s *Sequence) Clone() Value { return NewSequence(s.Items()...) }

func (*Sequence) value() {}

// PushFront inserts v at the head and returns the new length.
func (s *Sequence) PushFront(v string) int {
	s.l.Prepend(v)
	return s.l.Size()
}

// PushBack inserts v at the tail and returns the new length.
func (s *Sequence) PushBack(v string) int {
	s.l.Append(v)
	return s.l.Size()
}

// PopFront removes and returns the head. ok is false if the sequence is empty.
func (s *Sequence) PopFront() (v string, ok bool) {
	return s.pop(0)
}

// PopBack removes and returns the tail. ok is false if the sequence is empty.
func (s *Sequence) PopBack() (v string, ok bool) {
	return s.pop(s.l.Size() - 1)
}

func (s *Sequence) pop(i int) (string, bool) {
	if s.l.Empty() {
		return "", false
	}
	v, _ := s.l.Get(i)
	s.l.Remove(i)
	return v.(string), true
}

// Len returns the number of elements.
func (s *Sequence) Len() int { return s.l.Size() }

// IsEmpty reports whether no elements remain.
func (s *Sequence) IsEmpty() bool { return s.l.Empty() }

// Range returns elements start through stop inclusive. A negative index is
// taken relative to the end (-1 is the last element). After that start is
// clamped to 0 and stop to Len()-1; an empty slice is returned when the
// window is empty.
func (s *Sequence) Range(start, stop int) []string {
	size := s.l.Size()
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return []string{}
	}

	out := make([]string, 0, stop-start+1)
	it := s.l.Iterator()
	for it.Next() {
		i := it.Index()
		if i < start {
			continue
		}
		if i > stop {
			break
		}
		out = append(out, it.Value().(string))
	}
	return out
}

// Items returns every element in order.
func (s *Sequence) Items() []string {
	out := make([]string, 0, s.l.Size())
	for _, v := range s.l.Values() {
		out = append(out, v.(string))
	}
	return out
}
