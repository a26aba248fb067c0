// Package snapstore implements the snapshot table that generated capture
// and restore code reads and writes at divergence points.
//
// The store is injected rather than global: each runtime owns one, and
// every entry is scoped by the divergence-chain id carried in the calling
// goroutine's baggage. Within a chain the write policy is insert-if-absent
// (PolicyInsertIfAbsent). Restores do not consume entries; EndChain releases
// a chain's state once its shadow execution is done.
//
// The table is split into ShardCount partitions selected by a MurmurHash3
// of the chain id and signature, each backed by a sync.Map.
package snapstore
