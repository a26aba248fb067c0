// Copyright 2025 The dryrun Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"context"

	"github.com/kolkov/dryrun/internal/runtime/baggage"
)

type ctxKey struct{}

// WithBaggage returns a copy of ctx carrying b.
func WithBaggage(ctx context.Context, b *baggage.Baggage) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the baggage carried by ctx, or nil.
func FromContext(ctx context.Context) *baggage.Baggage {
	b, _ := ctx.Value(ctxKey{}).(*baggage.Baggage)
	return b
}

// ContextWrapped is implemented by tasks and executors that already carry
// a captured baggage.
type ContextWrapped interface {
	IsContextWrapped() bool
}

// RunWith runs fn with b attached to the calling goroutine and restores the
// previous baggage afterwards, even if fn panics.
func (r *Runtime) RunWith(b *baggage.Baggage, fn func()) {
	prev := r.Attach(b)
	defer r.Attach(prev)
	fn()
}

// Wrap captures the calling goroutine's baggage now and returns a function
// that runs fn under it, on whichever goroutine eventually calls it.
//
// Example:
//
//	task := rt.Wrap(func() { handle(req) })
//	go task() // handle sees the submitter's mode and chain
func (r *Runtime) Wrap(fn func()) func() {
	b := r.Current()
	r.metrics.ContextWrapped()
	return func() { r.RunWith(b, fn) }
}

// Capture returns the calling goroutine's baggage for a hand-off that
// carries it across by other means, such as an interpreted task object.
func (r *Runtime) Capture() *baggage.Baggage {
	r.metrics.ContextWrapped()
	return r.Current()
}

// WrapContext binds the calling goroutine's baggage into ctx.
func (r *Runtime) WrapContext(ctx context.Context) context.Context {
	r.metrics.ContextWrapped()
	return WithBaggage(ctx, r.Current())
}

// ShouldBeContextWrap decides whether a task about to be handed to executor
// needs wrapping. Wrapping is only needed in dry-run mode, and never for a
// task or executor that already carries a baggage.
func (r *Runtime) ShouldBeContextWrap(task, executor any) bool {
	if !r.IsDryRun() {
		return false
	}
	if w, ok := task.(ContextWrapped); ok && w.IsContextWrapped() {
		return false
	}
	if w, ok := executor.(ContextWrapped); ok && w.IsContextWrapped() {
		return false
	}
	return true
}
