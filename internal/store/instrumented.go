package store

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels.
const (
	OpSet       = "set"
	OpGet       = "get"
	OpPushFront = "lpush"
	OpPushBack  = "rpush"
	OpPopFront  = "lpop"
	OpPopBack   = "rpop"
	OpLen       = "llen"
	OpRange     = "lrange"
	OpAdd       = "sadd"
	OpContains  = "sismember"
	OpRemove    = "srem"
	OpCard      = "scard"
	OpMembers   = "smembers"
	OpExists    = "exists"
	OpDelete    = "del"
	OpKindOf    = "type"
	OpClear     = "clear"
	OpSize      = "dbsize"
)

var allOps = []string{
	OpSet, OpGet, OpPushFront, OpPushBack, OpPopFront, OpPopBack, OpLen, OpRange,
	OpAdd, OpContains, OpRemove, OpCard, OpMembers, OpExists, OpDelete, OpKindOf,
	OpClear, OpSize,
}

// opMetrics holds timing statistics for one operation.
// Uses atomic operations for thread-safe updates without locks.
type opMetrics struct {
	count     atomic.Uint64
	errors    atomic.Uint64
	latencyNs atomic.Uint64 // cumulative
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
// This pattern works for both in-memory and Raft-backed stores.
type InstrumentedStore struct {
	store   kv.Store
	metrics map[string]*opMetrics

	ops      *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store) *InstrumentedStore {
	s := &InstrumentedStore{
		store:   store,
		metrics: make(map[string]*opMetrics, len(allOps)),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opus",
			Name:      "operations_total",
			Help:      "Number of store operations by command.",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opus",
			Name:      "operation_errors_total",
			Help:      "Number of store operations that returned an error.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opus",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"op"}),
	}
	for _, op := range allOps {
		s.metrics[op] = &opMetrics{}
	}
	return s
}

// Collectors returns the Prometheus collectors exported by the store,
// including a gauge reporting the current key count.
func (s *InstrumentedStore) Collectors() []prometheus.Collector {
	keys := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "opus",
		Name:      "keys",
		Help:      "Number of keys in the store.",
	}, func() float64 { return float64(s.store.Size()) })
	return []prometheus.Collector{s.ops, s.failures, s.latency, keys}
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	elapsed := time.Since(start)

	m := s.metrics[op]
	m.count.Add(1)
	m.latencyNs.Add(uint64(elapsed.Nanoseconds()))
	s.ops.WithLabelValues(op).Inc()
	s.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.Add(1)
		s.failures.WithLabelValues(op).Inc()
	}
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key, value string) error {
	start := time.Now()
	err := s.store.Set(key, value)
	s.record(OpSet, start, err)
	return err
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.store.Get(key)
	s.record(OpGet, start, err)
	return v, ok, err
}

func (s *InstrumentedStore) PushFront(key string, values ...string) (int, error) {
	start := time.Now()
	n, err := s.store.PushFront(key, values...)
	s.record(OpPushFront, start, err)
	return n, err
}

func (s *InstrumentedStore) PushBack(key string, values ...string) (int, error) {
	start := time.Now()
	n, err := s.store.PushBack(key, values...)
	s.record(OpPushBack, start, err)
	return n, err
}

func (s *InstrumentedStore) PopFront(key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.store.PopFront(key)
	s.record(OpPopFront, start, err)
	return v, ok, err
}

func (s *InstrumentedStore) PopBack(key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.store.PopBack(key)
	s.record(OpPopBack, start, err)
	return v, ok, err
}

func (s *InstrumentedStore) Len(key string) (int, error) {
	start := time.Now()
	n, err := s.store.Len(key)
	s.record(OpLen, start, err)
	return n, err
}

func (s *InstrumentedStore) Range(key string, startIdx, stopIdx int) ([]string, error) {
	start := time.Now()
	out, err := s.store.Range(key, startIdx, stopIdx)
	s.record(OpRange, start, err)
	return out, err
}

func (s *InstrumentedStore) Add(key string, values ...string) (int, error) {
	start := time.Now()
	n, err := s.store.Add(key, values...)
	s.record(OpAdd, start, err)
	return n, err
}

func (s *InstrumentedStore) Contains(key, value string) (bool, error) {
	start := time.Now()
	ok, err := s.store.Contains(key, value)
	s.record(OpContains, start, err)
	return ok, err
}

func (s *InstrumentedStore) Remove(key string, values ...string) (int, error) {
	start := time.Now()
	n, err := s.store.Remove(key, values...)
	s.record(OpRemove, start, err)
	return n, err
}

func (s *InstrumentedStore) Card(key string) (int, error) {
	start := time.Now()
	n, err := s.store.Card(key)
	s.record(OpCard, start, err)
	return n, err
}

func (s *InstrumentedStore) Members(key string) ([]string, error) {
	start := time.Now()
	out, err := s.store.Members(key)
	s.record(OpMembers, start, err)
	return out, err
}

func (s *InstrumentedStore) Exists(key string) bool {
	start := time.Now()
	ok := s.store.Exists(key)
	s.record(OpExists, start, nil)
	return ok
}

func (s *InstrumentedStore) Delete(key string) (bool, error) {
	start := time.Now()
	ok, err := s.store.Delete(key)
	s.record(OpDelete, start, err)
	return ok, err
}

func (s *InstrumentedStore) KindOf(key string) (kv.Kind, bool) {
	start := time.Now()
	k, ok := s.store.KindOf(key)
	s.record(OpKindOf, start, nil)
	return k, ok
}

func (s *InstrumentedStore) Clear() error {
	start := time.Now()
	err := s.store.Clear()
	s.record(OpClear, start, err)
	return err
}

func (s *InstrumentedStore) Size() int {
	start := time.Now()
	n := s.store.Size()
	s.record(OpSize, start, nil)
	return n
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() kv.Store {
	return s.store
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	snap := MetricsSnapshot{Keys: s.store.Size()}
	for _, op := range allOps {
		m := s.metrics[op]
		count := m.count.Load()
		if count == 0 {
			continue
		}
		snap.Ops = append(snap.Ops, OpStats{
			Op:         op,
			Count:      count,
			Errors:     m.errors.Load(),
			AvgLatency: avgLatency(m.latencyNs.Load(), count),
		})
	}
	sort.Slice(snap.Ops, func(i, j int) bool { return snap.Ops[i].Op < snap.Ops[j].Op })
	return snap
}

// ResetMetrics clears all metrics counters. Prometheus counters are
// monotonic and are left alone.
func (s *InstrumentedStore) ResetMetrics() {
	for _, m := range s.metrics {
		m.count.Store(0)
		m.errors.Store(0)
		m.latencyNs.Store(0)
	}
}

func avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Keys int
	Ops  []OpStats
}

// OpStats summarizes one operation.
type OpStats struct {
	Op         string
	Count      uint64
	Errors     uint64
	AvgLatency time.Duration
}

// Lookup returns the stats for op, if it was ever recorded.
func (m MetricsSnapshot) Lookup(op string) (OpStats, bool) {
	for _, s := range m.Ops {
		if s.Op == op {
			return s, true
		}
	}
	return OpStats{}, false
}
