package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/raft"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/jmgilman/go/errors"
)

// GetRaft returns the underlying raft.Raft pointer (for API layer leader checks)
func (rs *RaftStore) GetRaft() *raft.Raft {
	return rs.raft
}

// RaftCommand represents a mutating operation to be applied via Raft.
type RaftCommand struct {
	Op     string   `json:"op"`
	Key    string   `json:"key,omitempty"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// applyResult is what the FSM hands back to the goroutine that submitted
// the command.
type applyResult struct {
	N   int
	Str string
	OK  bool
	Err error
}

// RaftStore replicates mutations of a MemStore through Raft consensus.
// It is both the raft.FSM and a kv.Store: writes are submitted to the log
// and applied on every node, reads are served from the local MemStore.
type RaftStore struct {
	store   *MemStore
	raft    *raft.Raft
	timeout time.Duration
}

var (
	_ kv.Store = (*RaftStore)(nil)
	_ raft.FSM = (*RaftStore)(nil)
)

// NewRaftStore returns an FSM over store. SetRaft must be called with the
// raft node built from it before any write is issued.
func NewRaftStore(store *MemStore) *RaftStore {
	return &RaftStore{store: store, timeout: 10 * time.Second}
}

// SetRaft attaches the raft node that replicates this store.
func (rs *RaftStore) SetRaft(r *raft.Raft) {
	rs.raft = r
}

// Local returns the MemStore the FSM applies to.
func (rs *RaftStore) Local() *MemStore {
	return rs.store
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return &applyResult{Err: errors.Wrap(err, errors.CodeInternal, "corrupt raft command")}
	}

	s := rs.store
	res := &applyResult{}
	switch cmd.Op {
	case OpSet:
		res.Err = s.Set(cmd.Key, cmd.Value)
	case OpPushFront:
		res.N, res.Err = s.PushFront(cmd.Key, cmd.Values...)
	case OpPushBack:
		res.N, res.Err = s.PushBack(cmd.Key, cmd.Values...)
	case OpPopFront:
		res.Str, res.OK, res.Err = s.PopFront(cmd.Key)
	case OpPopBack:
		res.Str, res.OK, res.Err = s.PopBack(cmd.Key)
	case OpAdd:
		res.N, res.Err = s.Add(cmd.Key, cmd.Values...)
	case OpRemove:
		res.N, res.Err = s.Remove(cmd.Key, cmd.Values...)
	case OpDelete:
		res.OK, res.Err = s.Delete(cmd.Key)
	case OpClear:
		res.Err = s.Clear()
	default:
		res.Err = errors.Newf(errors.CodeInternal, "unknown raft command %q", cmd.Op)
	}
	return res
}

// Snapshot captures a deep copy of the store; encoding happens in Persist.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{entries: rs.store.Snapshot()}, nil
}

// Restore replaces the store's content with a snapshot produced by Persist.
func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	entries := make(map[string]kv.Value, len(raw))
	for key, data := range raw {
		v, err := kv.Decode(data)
		if err != nil {
			return errors.WithContext(err, "key", key)
		}
		entries[key] = v
	}
	rs.store.Replace(entries)
	return nil
}

type fsmSnapshot struct {
	entries map[string]kv.Value
}

func (f *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	raw := make(map[string]json.RawMessage, len(f.entries))
	for key, v := range f.entries {
		data, err := kv.Encode(v)
		if err != nil {
			sink.Cancel()
			return err
		}
		raw[key] = data
	}
	if err := json.NewEncoder(sink).Encode(raw); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return sink.Close()
}

func (f *fsmSnapshot) Release() {}

// apply submits cmd to Raft and waits for the FSM's result.
func (rs *RaftStore) apply(cmd RaftCommand) (*applyResult, error) {
	if rs.raft == nil {
		return nil, errors.New(errors.CodeUnavailable, "raft is not initialized")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode raft command")
	}
	f := rs.raft.Apply(data, rs.timeout)
	if err := f.Error(); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "raft apply failed")
	}
	res, ok := f.Response().(*applyResult)
	if !ok {
		return nil, errors.Newf(errors.CodeInternal, "unexpected FSM response %T", f.Response())
	}
	return res, res.Err
}

// Set submits a set command to Raft.
func (rs *RaftStore) Set(key, value string) error {
	_, err := rs.apply(RaftCommand{Op: OpSet, Key: key, Value: value})
	return err
}

func (rs *RaftStore) PushFront(key string, values ...string) (int, error) {
	res, err := rs.apply(RaftCommand{Op: OpPushFront, Key: key, Values: values})
	if err != nil {
		return 0, err
	}
	return res.N, nil
}

func (rs *RaftStore) PushBack(key string, values ...string) (int, error) {
	res, err := rs.apply(RaftCommand{Op: OpPushBack, Key: key, Values: values})
	if err != nil {
		return 0, err
	}
	return res.N, nil
}

func (rs *RaftStore) PopFront(key string) (string, bool, error) {
	res, err := rs.apply(RaftCommand{Op: OpPopFront, Key: key})
	if err != nil {
		return "", false, err
	}
	return res.Str, res.OK, nil
}

func (rs *RaftStore) PopBack(key string) (string, bool, error) {
	res, err := rs.apply(RaftCommand{Op: OpPopBack, Key: key})
	if err != nil {
		return "", false, err
	}
	return res.Str, res.OK, nil
}

func (rs *RaftStore) Add(key string, values ...string) (int, error) {
	res, err := rs.apply(RaftCommand{Op: OpAdd, Key: key, Values: values})
	if err != nil {
		return 0, err
	}
	return res.N, nil
}

func (rs *RaftStore) Remove(key string, values ...string) (int, error) {
	res, err := rs.apply(RaftCommand{Op: OpRemove, Key: key, Values: values})
	if err != nil {
		return 0, err
	}
	return res.N, nil
}

// Delete submits a delete command to Raft.
func (rs *RaftStore) Delete(key string) (bool, error) {
	res, err := rs.apply(RaftCommand{Op: OpDelete, Key: key})
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

func (rs *RaftStore) Clear() error {
	_, err := rs.apply(RaftCommand{Op: OpClear})
	return err
}

// Reads go straight to the local store.

func (rs *RaftStore) Get(key string) (string, bool, error) { return rs.store.Get(key) }
func (rs *RaftStore) Len(key string) (int, error) { return rs.store.Len(key) }
func (rs *RaftStore) Contains(key, value string) (bool, error) { return rs.store.Contains(key, value) }
func (rs *RaftStore) Card(key string) (int, error) { return rs.store.Card(key) }
func (rs *RaftStore) Members(key string) ([]string, error) { return rs.store.Members(key) }
func (rs *RaftStore) Exists(key string) bool { return rs.store.Exists(key) }
func (rs *RaftStore) KindOf(key string) (kv.Kind, bool) { return rs.store.KindOf(key) }
func (rs *RaftStore) Size() int { return rs.store.Size() }
func (rs *RaftStore) Range(key string, start, stop int) ([]string, error) {
	return rs.store.Range(key, start, stop)
}

// IsLeader reports whether this node currently leads the cluster.
func (rs *RaftStore) IsLeader() bool {
	return rs.raft != nil && rs.raft.State() == raft.Leader
}

// Leader returns the address of the current leader, or "" if unknown.
func (rs *RaftStore) Leader() string {
	if rs.raft == nil {
		return ""
	}
	addr, _ := rs.raft.LeaderWithID()
	return string(addr)
}

// Join adds a voting member to the cluster. Must be called on the leader.
func (rs *RaftStore) Join(id, addr string) error {
	if rs.raft == nil {
		return errors.New(errors.CodeUnavailable, "raft is not initialized")
	}
	f := rs.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 0)
	if err := f.Error(); err != nil {
		return errors.Wrapf(err, errors.CodeUnavailable, "failed to add voter %s", id)
	}
	return nil
}
