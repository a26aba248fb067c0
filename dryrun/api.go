// Package dryrun provides the public runtime API for dry-run execution.
//
// See doc.go for detailed documentation and examples.
package dryrun

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/kolkov/dryrun/internal/runtime/api"
	"github.com/kolkov/dryrun/internal/runtime/baggage"
	"github.com/kolkov/dryrun/internal/runtime/snapstore"
)

// Baggage is the mode-and-trace token carried across hand-offs.
type Baggage = baggage.Baggage

// Snapshot is a captured name→value map.
type Snapshot = snapstore.Snapshot

// ErrStaleOrMissingSnapshot is returned by GetState and GetFieldState when
// no capture exists for the signature in the caller's chain.
var ErrStaleOrMissingSnapshot = snapstore.ErrStaleOrMissingSnapshot

var std = api.New()

// Default returns the process-wide runtime behind the functions of this
// package. The interpreter binds its natives to it.
func Default() *api.Runtime { return std }

// IsDryRun reports whether the calling goroutine runs in dry-run mode.
//
// Instrumented entry gates call this on every method entry:
//
//	if dryrun.IsDryRun() {
//		return m$instrumentation(args)
//	}
//	// original logic
func IsDryRun() bool { return std.IsDryRun() }

// IsFastForward reports whether the calling goroutine resumes shadow
// methods at their recorded divergence points.
func IsFastForward() bool { return std.IsFastForward() }

// ClearBaggage drops the calling goroutine's mode flags. The chain id is
// kept.
func ClearBaggage() { std.ClearBaggage() }

// CreateDryRunBaggage switches the calling goroutine into dry-run mode.
func CreateDryRunBaggage() { std.CreateDryRunBaggage() }

// CreateShadowBaggage marks the calling goroutine as a shadow thread.
func CreateShadowBaggage() { std.CreateShadowBaggage() }

// CreateFastForwardBaggage switches the calling goroutine into dry-run
// fast-forward mode.
func CreateFastForwardBaggage() { std.CreateFastForwardBaggage() }

// BeginChain starts a divergence chain on the calling goroutine.
//
// Snapshots are scoped by chain. A primary worker begins a chain before its
// first divergence point and hands the id to its shadow, which calls
// JoinChain:
//
//	chain := dryrun.BeginChain()
//	go func() {
//		dryrun.JoinChain(chain)
//		dryrun.CreateFastForwardBaggage()
//		shadow.Run()
//	}()
func BeginChain() ulid.ULID { return std.BeginChain() }

// JoinChain moves the calling goroutine into chain.
func JoinChain(chain ulid.ULID) { std.JoinChain(chain) }

// EndChain releases the snapshots held for chain.
func EndChain(chain ulid.ULID) int { return std.EndChain(chain) }

// Current returns the calling goroutine's baggage, or nil.
func Current() *Baggage { return std.Current() }

// Wrap captures the calling goroutine's baggage and returns fn bound to it.
//
// Example:
//
//	pool.Submit(dryrun.Wrap(func() { process(item) }))
func Wrap(fn func()) func() { return std.Wrap(fn) }

// WithBaggage returns a copy of ctx carrying b.
func WithBaggage(ctx context.Context, b *Baggage) context.Context {
	return api.WithBaggage(ctx, b)
}

// FromContext returns the baggage carried by ctx, or nil.
func FromContext(ctx context.Context) *Baggage { return api.FromContext(ctx) }

// RunWith runs fn with b as the calling goroutine's baggage.
func RunWith(b *Baggage, fn func()) { std.RunWith(b, fn) }

// RecordState stores the locals captured at sig's divergence point. Later
// captures for the same signature in the same chain are dropped.
func RecordState(sig string, snap Snapshot) bool { return std.RecordState(sig, snap) }

// GetState returns the locals captured at sig's divergence point.
func GetState(sig string) (Snapshot, error) { return std.GetState(sig) }

// RecordFieldState stores the field state captured at sig's divergence point.
func RecordFieldState(sig string, snap Snapshot) bool { return std.RecordFieldState(sig, snap) }

// GetFieldState returns the field state captured at sig's divergence point.
func GetFieldState(sig string) (Snapshot, error) { return std.GetFieldState(sig) }
