// Copyright 2025 The dryrun Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"github.com/kolkov/dryrun/internal/runtime/snapstore"
)

// WrapContext is the single-field carrier that generated capture code puts
// around every snapshot value, boxed or not.
type WrapContext struct {
	value any
}

// NewWrapContext returns a carrier holding v.
func NewWrapContext(v any) *WrapContext { return &WrapContext{value: v} }

// Value returns the carried value.
func (w *WrapContext) Value() any { return w.value }

// ShallowCopier is implemented by values that know how to copy themselves
// for copy-on-first-access field shadowing.
type ShallowCopier interface {
	ShallowCopy() any
}

// ShallowCopy implements the reconciliation step of a shadowed reference
// field. If the shadow was already set by dry-run code, dry is returned
// unchanged. Otherwise orig is copied, via ShallowCopier when orig
// implements it; any other value is shared as is.
func ShallowCopy(orig, dry any, set bool) any {
	if set {
		return dry
	}
	if c, ok := orig.(ShallowCopier); ok {
		return c.ShallowCopy()
	}
	return orig
}

// RecordState stores the locals captured at the divergence point of sig in
// the calling goroutine's chain. A capture for a signature that already has
// one is dropped; the result reports whether this one was kept.
func (r *Runtime) RecordState(sig string, snap snapstore.Snapshot) bool {
	return r.store.Record(r.Current().Chain(), snapstore.Locals, sig, snap)
}

// GetState returns the locals captured for sig in the calling goroutine's
// chain. The entry is not consumed.
//
// Returns:
//   - snapstore.Snapshot: a copy of the capture
//   - error: a *snapstore.SnapshotError wrapping ErrStaleOrMissingSnapshot
//     when no capture exists
func (r *Runtime) GetState(sig string) (snapstore.Snapshot, error) {
	return r.store.Get(r.Current().Chain(), snapstore.Locals, sig)
}

// RecordFieldState is RecordState for the executing object's fields.
func (r *Runtime) RecordFieldState(sig string, snap snapstore.Snapshot) bool {
	return r.store.Record(r.Current().Chain(), snapstore.Fields, sig, snap)
}

// GetFieldState is GetState for the executing object's fields.
func (r *Runtime) GetFieldState(sig string) (snapstore.Snapshot, error) {
	return r.store.Get(r.Current().Chain(), snapstore.Fields, sig)
}

// ClearStates drops every snapshot of every chain.
func (r *Runtime) ClearStates() {
	r.store.Reset()
}
