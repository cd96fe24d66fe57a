package kv

import "github.com/emirpasic/gods/sets/hashset"

// Collection is an unordered set of unique strings.
type Collection struct {
	set *hashset.Set
}

// NewCollection returns a collection holding members.
func NewCollection(members ...string) *Collection {
	c := &Collection{set: hashset.New()}
	c.Add(members...)
	return c
}

func (*Collection) Kind() Kind { return KindCollection }

func (c *Collection) Clone() Value { return NewCollection(c.Members()...) }

func (*Collection) value() {}

// Add inserts values and returns how many were not already members.
func (c *Collection) Add(values ...string) int {
	added := 0
	for _, v := range values {
		if c.set.Contains(v) {
			continue
		}
		c.set.Add(v)
		added++
	}
	return added
}

// Contains reports whether v is a member.
func (c *Collection) Contains(v string) bool { return c.set.Contains(v) }

// Remove deletes v and returns 1, or 0 if v was not a member.
func (c *Collection) Remove(v string) int {
	if !c.set.Contains(v) {
		return 0
	}
	c.set.Remove(v)
	return 1
}

// Len returns the number of members.
func (c *Collection) Len() int { return c.set.Size() }

// IsEmpty reports whether no members remain.
func (c *Collection) IsEmpty() bool { return c.set.Empty() }

// Members returns all members in no particular order.
func (c *Collection) Members() []string {
	vals := c.set.Values()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(string))
	}
	return out
}
