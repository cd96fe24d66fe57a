package store

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRaftStore(t *testing.T) *RaftStore {
	t.Helper()

	cfg := raft.DefaultConfig()
	cfg.LocalID = "node-1"
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	cfg.ElectionTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 50 * time.Millisecond
	cfg.CommitTimeout = 5 * time.Millisecond
	cfg.Logger = hclog.NewNullLogger()

	addr, transport := raft.NewInmemTransport("")
	logs := raft.NewInmemStore()
	snaps := raft.NewInmemSnapshotStore()

	rs := NewRaftStore(NewMemStore())
	r, err := raft.NewRaft(cfg, rs, logs, logs, snaps, transport)
	require.NoError(t, err)
	rs.SetRaft(r)
	t.Cleanup(func() { _ = r.Shutdown().Error() })

	require.NoError(t, r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: cfg.LocalID, Address: addr}},
	}).Error())

	require.Eventually(t, rs.IsLeader, 5*time.Second, 10*time.Millisecond)
	return rs
}

func TestRaftStore_ReplicatesOperations(t *testing.T) {
	rs := newTestRaftStore(t)

	require.NoError(t, rs.Set("s", "x"))
	v, ok, err := rs.Get("s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	n, err := rs.PushBack("l", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = rs.PushFront("l", "z")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := rs.Range("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, items)

	out, ok, err := rs.PopFront("l")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", out)
	out, ok, err = rs.PopBack("l")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", out)
	assert.False(t, rs.Exists("l"))

	n, err = rs.Add("c", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = rs.Remove("c", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = rs.Card("c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := rs.Delete("s")
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, rs.Clear())
	assert.Zero(t, rs.Size())
}

func TestRaftStore_WrongKindIsReturnedToCaller(t *testing.T) {
	rs := newTestRaftStore(t)

	require.NoError(t, rs.Set("k", "x"))
	_, err := rs.PushBack("k", "y")
	require.ErrorIs(t, err, kv.ErrWrongKind)

	v, _, err := rs.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestRaftStore_WriteWithoutRaftFails(t *testing.T) {
	rs := NewRaftStore(NewMemStore())
	require.Error(t, rs.Set("k", "v"))
	assert.False(t, rs.IsLeader())
	assert.Empty(t, rs.Leader())
}

type bufferSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *bufferSink) ID() string    { return "test" }
func (s *bufferSink) Close() error  { return nil }
func (s *bufferSink) Cancel() error { s.cancelled = true; return nil }

func TestRaftStore_SnapshotRestore(t *testing.T) {
	src := NewRaftStore(NewMemStore())
	local := src.Local()
	require.NoError(t, local.Set("s", "x"))
	_, err := local.PushBack("l", "a")
	require.NoError(t, err)
	_, err = local.Add("c", "m")
	require.NoError(t, err)

	snap, err := src.Snapshot()
	require.NoError(t, err)
	sink := &bufferSink{}
	require.NoError(t, snap.Persist(sink))
	assert.False(t, sink.cancelled)

	dst := NewRaftStore(NewMemStore())
	require.NoError(t, dst.Local().Set("stale", "1"))
	require.NoError(t, dst.Restore(io.NopCloser(&sink.Buffer)))

	assert.Equal(t, 3, dst.Size())
	assert.False(t, dst.Exists("stale"))
	kind, ok := dst.KindOf("c")
	require.True(t, ok)
	assert.Equal(t, kv.KindCollection, kind)
}

func TestRaftStore_ApplyUnknownCommand(t *testing.T) {
	rs := NewRaftStore(NewMemStore())
	res := rs.Apply(&raft.Log{Data: []byte(`{"op":"nope"}`)}).(*applyResult)
	require.Error(t, res.Err)

	res = rs.Apply(&raft.Log{Data: []byte(`{`)}).(*applyResult)
	require.Error(t, res.Err)
}

func TestRaftStore_RestoredSnapshotReachesBackend(t *testing.T) {
	ctx := context.Background()

	src := NewRaftStore(NewMemStore())
	require.NoError(t, src.Local().Set("new", "v"))
	snap, err := src.Snapshot()
	require.NoError(t, err)
	sink := &bufferSink{}
	require.NoError(t, snap.Persist(sink))

	b := newBackend(t)
	replica := NewMemStore(WithBackend(b))
	require.NoError(t, replica.Set("old", "v"))
	require.NoError(t, replica.Flush(ctx))

	dst := NewRaftStore(replica)
	require.NoError(t, dst.Restore(io.NopCloser(&sink.Buffer)))
	require.NoError(t, replica.Flush(ctx))

	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, keys)
}

func TestRaftStore_MultiValueWriteIsOneEntry(t *testing.T) {
	rs := newTestRaftStore(t)
	r := rs.GetRaft()

	before := r.LastIndex()
	n, err := rs.PushBack("l", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, before+1, r.LastIndex())

	_, err = rs.Add("s", "x", "y")
	require.NoError(t, err)
	before = r.LastIndex()
	n, err = rs.Remove("s", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+1, r.LastIndex())
	assert.False(t, rs.Exists("s"))
}
