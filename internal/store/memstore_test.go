package store

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_NeverWrittenKey(t *testing.T) {
	s := NewMemStore()

	assert.False(t, s.Exists("k"))
	_, ok := s.KindOf("k")
	assert.False(t, ok)

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	_, ok, err = s.PopFront("k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Len("k")
	require.NoError(t, err)
	assert.Zero(t, n)

	r, err := s.Range("k", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, r)

	has, err := s.Contains("k", "x")
	require.NoError(t, err)
	assert.False(t, has)

	n, err = s.Remove("k", "x")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Card("k")
	require.NoError(t, err)
	assert.Zero(t, n)

	m, err := s.Members("k")
	require.NoError(t, err)
	assert.Empty(t, m)

	deleted, err := s.Delete("k")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.False(t, s.Exists("k"), "reads never create keys")
	assert.Zero(t, s.Size())
}

func TestMemStore_SetOverwritesAnyKind(t *testing.T) {
	s := NewMemStore()

	_, err := s.PushBack("k", "a")
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "x"))

	kind, ok := s.KindOf("k")
	require.True(t, ok)
	assert.Equal(t, kv.KindScalar, kind)

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, err = s.Add("k2", "m")
	require.NoError(t, err)
	require.NoError(t, s.Set("k2", "y"))
	v, _, err = s.Get("k2")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}

func TestMemStore_WrongKindDoesNotMutate(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Set("str", "x"))
	_, err := s.PushBack("list", "a")
	require.NoError(t, err)
	_, err = s.Add("set", "m")
	require.NoError(t, err)

	ops := []struct {
		name string
		run  func() error
	}{
		{"get on list", func() error { _, _, err := s.Get("list"); return err }},
		{"pushBack on string", func() error { _, err := s.PushBack("str", "y"); return err }},
		{"pushFront on set", func() error { _, err := s.PushFront("set", "y"); return err }},
		{"popFront on string", func() error { _, _, err := s.PopFront("str"); return err }},
		{"popBack on set", func() error { _, _, err := s.PopBack("set"); return err }},
		{"len on set", func() error { _, err := s.Len("set"); return err }},
		{"range on string", func() error { _, err := s.Range("str", 0, -1); return err }},
		{"add on list", func() error { _, err := s.Add("list", "y"); return err }},
		{"contains on string", func() error { _, err := s.Contains("str", "x"); return err }},
		{"remove on list", func() error { _, err := s.Remove("list", "a"); return err }},
		{"card on list", func() error { _, err := s.Card("list"); return err }},
		{"members on string", func() error { _, err := s.Members("str"); return err }},
	}

	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			err := op.run()
			require.ErrorIs(t, err, kv.ErrWrongKind)
		})
	}

	v, ok, err := s.Get("str")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	items, err := s.Range("list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, items)

	members, err := s.Members("set")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, members)
	assert.Equal(t, 3, s.Size())
}

func TestMemStore_SequenceLifecycle(t *testing.T) {
	s := NewMemStore()

	n, err := s.PushBack("k", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.PushFront("k", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.PushBack("k", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	r, err := s.Range("k", -100, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r)

	r, err = s.Range("k", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, r)

	v, ok, err := s.PopFront("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok, err = s.PopBack("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.True(t, s.Exists("k"))

	v, ok, err = s.PopBack("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.False(t, s.Exists("k"), "emptied sequence is evicted")
	_, ok = s.KindOf("k")
	assert.False(t, ok)
}

func TestMemStore_PopToEmptyDeletesKey(t *testing.T) {
	s := NewMemStore()
	_, err := s.PushBack("k", "a")
	require.NoError(t, err)
	_, _, err = s.PopBack("k")
	require.NoError(t, err)
	assert.False(t, s.Exists("k"))

	// The key can now be reused with another kind.
	_, err = s.Add("k", "x")
	require.NoError(t, err)
	kind, _ := s.KindOf("k")
	assert.Equal(t, kv.KindCollection, kind)
}

func TestMemStore_CollectionLifecycle(t *testing.T) {
	s := NewMemStore()

	n, err := s.Add("k", "v")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Add("k", "v")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "add is idempotent")

	n, err = s.Card("k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Add("k", "a", "b", "v")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	members, err := s.Members("k")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"a", "b", "v"}, members)

	n, err = s.Remove("k", "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = s.Card("k")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, m := range []string{"a", "b"} {
		n, err = s.Remove("k", m)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.True(t, s.Exists("k"))

	n, err = s.Remove("k", "v")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.Exists("k"), "removing the last member deletes the key")
}

func TestMemStore_AddWithoutMembersLeavesNoKey(t *testing.T) {
	s := NewMemStore()
	n, err := s.Add("k")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.Exists("k"))
}

func TestMemStore_DeleteAndClear(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Set("a", "1"))
	_, err := s.PushBack("b", "x")
	require.NoError(t, err)
	_, err = s.Add("c", "y")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())

	deleted, err := s.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 2, s.Size())

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Size())
	for _, k := range []string{"a", "b", "c"} {
		assert.False(t, s.Exists(k), k)
	}
}

func TestMemStore_IndependentInstances(t *testing.T) {
	a, b := NewMemStore(), NewMemStore()
	require.NoError(t, a.Set("k", "x"))
	assert.False(t, b.Exists("k"))
}

func TestMemStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewMemStore()
	_, err := s.PushBack("k", "a")
	require.NoError(t, err)

	snap := s.Snapshot()
	snap["k"].(*kv.Sequence).PushBack("b")

	n, err := s.Len("k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s.Replace(snap)
	n, err = s.Len("k")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemStore_ConcurrentPushes(t *testing.T) {
	s := NewMemStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.PushBack("k", fmt.Sprintf("%d-%d", i, j))
				_, _ = s.Add("s", fmt.Sprintf("%d", j))
			}
		}(i)
	}
	wg.Wait()

	n, err := s.Len("k")
	require.NoError(t, err)
	assert.Equal(t, 800, n)
	n, err = s.Card("s")
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestMemStore_MultiValuePushAndRemove(t *testing.T) {
	s := NewMemStore()

	n, err := s.PushFront("l", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	items, err := s.Range("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, items)

	n, err = s.PushBack("l")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "no values leaves the list alone")

	n, err = s.PushBack("empty")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.Exists("empty"))

	_, err = s.Add("set", "x", "y", "z")
	require.NoError(t, err)
	n, err = s.Remove("set", "x", "missing", "y")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Remove("set", "z")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.Exists("set"))
}
