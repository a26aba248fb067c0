// Package baggage defines the immutable mode-and-trace token that dry-run
// execution carries across thread-pool, future and callback boundaries.
//
// Each goroutine that takes part in a dry run holds at most one Baggage.
// The flags decide how instrumented code behaves:
//   - DryRun: entry gates divert into instrumented method variants
//   - FastForward: shadow variants restore the recorded snapshot and resume
//     at the divergence point
//   - Shadow: the goroutine is the shadow counterpart of a primary worker
//
// The chain id scopes snapshot state. Work that shares a chain id shares
// snapshots; the zero id is the default scope used by goroutines that never
// joined a chain.
package baggage
