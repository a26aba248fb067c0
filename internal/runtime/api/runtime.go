// Copyright 2025 The dryrun Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api implements the runtime half of the dry-run ABI: the calls
// that instrumented code makes to query and switch execution mode, to move
// baggage across thread hand-offs, and to capture and restore snapshots.
//
// Every goroutine has at most one ambient Baggage, attached with Attach and
// looked up by goroutine id. Go hosts that prefer explicit plumbing can use
// WithBaggage and FromContext instead; the two mechanisms meet in RunWith.
//
// A Runtime owns its snapshot store. Snapshots are scoped by the chain id of
// the calling goroutine's baggage, so independent divergence chains never
// observe each other's captures.
package api

import (
	"io"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/runtime/baggage"
	"github.com/kolkov/dryrun/internal/runtime/metrics"
	"github.com/kolkov/dryrun/internal/runtime/snapstore"
)

// Runtime is one instance of the dry-run runtime library.
//
// Thread Safety: All methods are safe for concurrent use. Methods that
// read or change "the current baggage" act on the calling goroutine only.
type Runtime struct {
	store   *snapstore.Store
	metrics *metrics.Collector
	log     logrus.FieldLogger

	// ambient maps goroutine id (int64) to *baggage.Baggage.
	ambient sync.Map
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithStore uses store for snapshots instead of a private one.
func WithStore(store *snapstore.Store) Option {
	return func(r *Runtime) { r.store = store }
}

// WithMetrics reports runtime events to c. The collector also observes the
// snapshot store when New creates it.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runtime) { r.metrics = c }
}

// WithLogger routes Log calls and chain events to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runtime) { r.log = log }
}

// New returns a runtime with no ambient baggage on any goroutine.
func New(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(nil)
	}
	if r.store == nil {
		r.store = snapstore.New(snapstore.WithObserver(r.metrics))
	}
	if r.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		r.log = l
	}
	return r
}

// Store returns the snapshot store.
func (r *Runtime) Store() *snapstore.Store { return r.store }

// Current returns the calling goroutine's baggage, or nil if none is
// attached.
func (r *Runtime) Current() *baggage.Baggage {
	if v, ok := r.ambient.Load(goroutineID()); ok {
		return v.(*baggage.Baggage)
	}
	return nil
}

// Attach makes b the calling goroutine's baggage and returns the previous
// one. Attaching nil is the same as Detach.
func (r *Runtime) Attach(b *baggage.Baggage) *baggage.Baggage {
	gid := goroutineID()
	var prev *baggage.Baggage
	if b == nil {
		if v, ok := r.ambient.LoadAndDelete(gid); ok {
			prev = v.(*baggage.Baggage)
		}
		return prev
	}
	if v, ok := r.ambient.Swap(gid, b); ok {
		prev = v.(*baggage.Baggage)
	}
	return prev
}

// Detach removes the calling goroutine's baggage and returns it.
func (r *Runtime) Detach() *baggage.Baggage {
	return r.Attach(nil)
}

// IsDryRun reports whether the calling goroutine runs in dry-run mode.
func (r *Runtime) IsDryRun() bool { return r.Current().IsDryRun() }

// IsFastForward reports whether the calling goroutine resumes at recorded
// divergence points.
func (r *Runtime) IsFastForward() bool { return r.Current().IsFastForward() }

// ClearBaggage drops every mode flag of the calling goroutine. The chain id
// is kept so that later captures land in the same scope.
func (r *Runtime) ClearBaggage() {
	r.Attach(r.Current().Cleared())
}

// CreateDryRunBaggage switches the calling goroutine into dry-run mode.
func (r *Runtime) CreateDryRunBaggage() {
	r.Attach(r.Current().With(baggage.DryRun))
}

// CreateShadowBaggage marks the calling goroutine as a shadow thread.
func (r *Runtime) CreateShadowBaggage() {
	r.Attach(r.Current().With(baggage.Shadow))
}

// CreateFastForwardBaggage switches the calling goroutine into dry-run
// fast-forward mode.
func (r *Runtime) CreateFastForwardBaggage() {
	r.Attach(r.Current().With(baggage.DryRun | baggage.FastForward))
}

// BeginChain starts a new divergence chain on the calling goroutine. The
// current mode flags are kept. It returns the new chain id.
func (r *Runtime) BeginChain() ulid.ULID {
	chain := baggage.NewID()
	r.Attach(baggage.New(chain, r.Current().Flags()))
	r.metrics.ChainBegun()
	r.log.WithField("chain", chain).Debug("divergence chain begun")
	return chain
}

// JoinChain moves the calling goroutine into an existing chain, typically
// the one its primary counterpart began.
func (r *Runtime) JoinChain(chain ulid.ULID) {
	r.Attach(baggage.New(chain, r.Current().Flags()))
}

// EndChain releases the snapshots of chain and returns how many were held.
func (r *Runtime) EndChain(chain ulid.ULID) int {
	n := r.store.EndChain(chain)
	r.metrics.ChainEnded()
	r.log.WithFields(logrus.Fields{"chain": chain, "snapshots": n}).Debug("divergence chain ended")
	return n
}

// Log writes a message from generated code at Debug level.
func (r *Runtime) Log(msg string) {
	b := r.Current()
	r.log.WithFields(logrus.Fields{
		"mode":  b.Flags().String(),
		"chain": b.Chain(),
	}).Debug(msg)
}
