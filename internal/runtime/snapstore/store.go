package snapstore

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/spaolacci/murmur3"
)

// ShardCount is the number of independently locked partitions.
const ShardCount = 16

// Table selects which snapshot family an entry belongs to.
type Table uint8

// Snapshot tables.
const (
	// Locals holds method-local state recorded at a divergence point.
	Locals Table = iota
	// Fields holds the executing object's field state.
	Fields
)

func (t Table) String() string {
	if t == Fields {
		return "fields"
	}
	return "locals"
}

// Policy is the write policy of a Store.
type Policy uint8

// PolicyInsertIfAbsent keeps the first snapshot recorded for a signature
// within a chain and drops every later one. A restore therefore always sees
// the state of the first pass through the divergence point.
const PolicyInsertIfAbsent Policy = iota

// ErrStaleOrMissingSnapshot is returned when a restore finds no snapshot
// for its signature, either because no capture ran in the chain or because
// the chain has already been ended.
var ErrStaleOrMissingSnapshot = errors.New("stale or missing snapshot")

// SnapshotError locates a failed lookup.
type SnapshotError struct {
	Signature string
	Chain     ulid.ULID
	Table     Table
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s: %s snapshot for %s in chain %s", ErrStaleOrMissingSnapshot, e.Table, e.Signature, e.Chain)
}

// Unwrap makes errors.Is(err, ErrStaleOrMissingSnapshot) hold.
func (e *SnapshotError) Unwrap() error { return ErrStaleOrMissingSnapshot }

// Snapshot is a name→value capture. Values are opaque to the store.
type Snapshot map[string]any

// Observer is notified of store events. The metrics package provides one.
type Observer interface {
	SnapshotRecorded(table string)
	SnapshotDropped(table string)
	SnapshotMissing(table string)
}

type key struct {
	chain ulid.ULID
	table Table
	sig   string
}

type shard struct {
	entries sync.Map // map[key]Snapshot
}

// Store is the snapshot table shared by every goroutine of a dry run.
//
// Entries are keyed by (chain id, table, method signature). Chains are
// isolated from each other: a capture in one chain is never visible to a
// restore in another. The zero chain id is an ordinary scope.
//
// A restore does not consume its snapshot. The entry lives until its chain
// ends, so every shadow of the chain resumes from the same state, and
// EndChain is the point where a chain's snapshots are used up. Ending the
// chain after its restore gives the consume-once lifetime.
//
// Thread Safety: All methods are safe for concurrent use. Two captures
// racing on the same key resolve to exactly one stored snapshot.
type Store struct {
	shards   [ShardCount]shard
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithObserver reports store events to o.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the write policy, always PolicyInsertIfAbsent.
func (s *Store) Policy() Policy { return PolicyInsertIfAbsent }

func (s *Store) shardFor(k key) *shard {
	h := murmur3.New32()
	h.Write(k.chain[:])
	h.Write([]byte(k.sig))
	return &s.shards[h.Sum32()%ShardCount]
}

// Record stores a copy of snap under (chain, table, sig) unless an entry
// already exists. It reports whether snap was stored.
func (s *Store) Record(chain ulid.ULID, table Table, sig string, snap Snapshot) bool {
	k := key{chain: chain, table: table, sig: sig}
	sh := s.shardFor(k)
	if _, ok := sh.entries.Load(k); ok {
		s.notify(func(o Observer) { o.SnapshotDropped(table.String()) })
		return false
	}
	_, loaded := sh.entries.LoadOrStore(k, maps.Clone(snap))
	if loaded {
		s.notify(func(o Observer) { o.SnapshotDropped(table.String()) })
		return false
	}
	s.notify(func(o Observer) { o.SnapshotRecorded(table.String()) })
	return true
}

// Get returns a copy of the snapshot stored under (chain, table, sig). The
// entry stays in place, so repeated restores see the same state. A missing
// entry yields a *SnapshotError wrapping ErrStaleOrMissingSnapshot.
func (s *Store) Get(chain ulid.ULID, table Table, sig string) (Snapshot, error) {
	k := key{chain: chain, table: table, sig: sig}
	v, ok := s.shardFor(k).entries.Load(k)
	if !ok {
		s.notify(func(o Observer) { o.SnapshotMissing(table.String()) })
		return nil, &SnapshotError{Signature: sig, Chain: chain, Table: table}
	}
	return maps.Clone(v.(Snapshot)), nil
}

// EndChain drops every entry of chain and returns how many were removed.
func (s *Store) EndChain(chain ulid.ULID) int {
	n := 0
	for i := range s.shards {
		s.shards[i].entries.Range(func(k, _ any) bool {
			if k.(key).chain == chain {
				s.shards[i].entries.Delete(k)
				n++
			}
			return true
		})
	}
	return n
}

// Len returns the number of stored snapshots across all chains.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].entries.Range(func(_, _ any) bool {
			n++
			return true
		})
	}
	return n
}

// Reset drops every entry.
//
// Thread Safety: NOT safe for concurrent use with other methods; intended
// for test setup and teardown.
func (s *Store) Reset() {
	for i := range s.shards {
		s.shards[i].entries = sync.Map{}
	}
}

func (s *Store) notify(fn func(Observer)) {
	if s.observer != nil {
		fn(s.observer)
	}
}
