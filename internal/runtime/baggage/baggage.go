package baggage

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Flags is the set of execution-mode bits a baggage carries.
type Flags uint8

// Mode flags.
const (
	// DryRun marks speculative execution whose side effects go to shadow state.
	DryRun Flags = 1 << iota

	// FastForward marks a shadow invocation that resumes at a recorded
	// divergence point instead of running from the method start.
	FastForward

	// Shadow marks the shadow thread itself, as opposed to work it spawns.
	Shadow
)

// Has reports whether all bits in x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// String lists the set flags, e.g. "dryrun|shadow", or "none".
func (f Flags) String() string {
	var parts []string
	if f.Has(DryRun) {
		parts = append(parts, "dryrun")
	}
	if f.Has(FastForward) {
		parts = append(parts, "fastforward")
	}
	if f.Has(Shadow) {
		parts = append(parts, "shadow")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Baggage is the token that travels with a unit of work across goroutine,
// executor and future boundaries.
//
// A Baggage carries:
//   - Flags: the dry-run, fast-forward and shadow mode bits
//   - Chain: the divergence chain the work belongs to; snapshots are scoped
//     by it so that concurrent chains do not see each other's state
//   - Trace: a fresh identifier per baggage creation, for log correlation
//
// Thread Safety: Immutable after creation. A Baggage may be shared freely
// between goroutines; every modification returns a new value.
type Baggage struct {
	flags Flags
	chain ulid.ULID
	trace ulid.ULID
}

// New returns a baggage for chain with the given flags and a fresh trace id.
func New(chain ulid.ULID, flags Flags) *Baggage {
	return &Baggage{flags: flags, chain: chain, trace: NewID()}
}

// Flags returns the mode bits. A nil baggage has none.
func (b *Baggage) Flags() Flags {
	if b == nil {
		return 0
	}
	return b.flags
}

// IsDryRun reports whether the DryRun bit is set.
func (b *Baggage) IsDryRun() bool { return b.Flags().Has(DryRun) }

// IsFastForward reports whether the FastForward bit is set.
func (b *Baggage) IsFastForward() bool { return b.Flags().Has(FastForward) }

// IsShadow reports whether the Shadow bit is set.
func (b *Baggage) IsShadow() bool { return b.Flags().Has(Shadow) }

// Chain returns the divergence-chain id, or the zero ULID.
func (b *Baggage) Chain() ulid.ULID {
	if b == nil {
		return ulid.ULID{}
	}
	return b.chain
}

// Trace returns the trace id of this baggage.
func (b *Baggage) Trace() ulid.ULID {
	if b == nil {
		return ulid.ULID{}
	}
	return b.trace
}

// With returns a baggage on the same chain with extra flags set.
func (b *Baggage) With(flags Flags) *Baggage {
	return New(b.Chain(), b.Flags()|flags)
}

// Cleared returns a baggage on the same chain with no flags.
func (b *Baggage) Cleared() *Baggage {
	return New(b.Chain(), 0)
}

// String renders the baggage for logs.
func (b *Baggage) String() string {
	if b == nil {
		return "baggage{none}"
	}
	return "baggage{" + b.flags.String() + " chain=" + b.chain.String() + " trace=" + b.trace.String() + "}"
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID mints a ULID. Ids minted within the same millisecond are strictly
// increasing.
func NewID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}
