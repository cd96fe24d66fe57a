package store

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftOptions configures a replicated node.
type RaftOptions struct {
	NodeID    string
	Addr      string // bind and advertise address for the raft transport
	Dir       string // log, stable and snapshot storage
	Bootstrap bool   // form a single-node cluster if no state exists
	Logger    hclog.Logger
}

// OpenRaft starts a raft node replicating store and returns the RaftStore
// through which all writes must go.
func OpenRaft(opts RaftOptions, store *MemStore) (*RaftStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raft dir: %w", err)
	}

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(opts.NodeID)
	cfg.Logger = logger.Named("raft")

	addr, err := net.ResolveTCPAddr("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid raft address %q: %w", opts.Addr, err)
	}
	transport, err := raft.NewTCPTransportWithLogger(opts.Addr, addr, 3, 10*time.Second, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(opts.Dir, 2, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(opts.Dir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open raft log: %w", err)
	}

	rs := NewRaftStore(store)
	r, err := raft.NewRaft(cfg, rs, boltStore, boltStore, snapshots, transport)
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("failed to start raft: %w", err)
	}
	rs.SetRaft(r)

	if opts.Bootstrap {
		f := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: cfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := f.Error(); err != nil && !stderrors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
	}

	logger.Info("raft node started", "id", opts.NodeID, "addr", opts.Addr, "bootstrap", opts.Bootstrap)
	return rs, nil
}
