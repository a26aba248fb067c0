// Copyright 2025 The dryrun Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kolkov/dryrun/internal/runtime/baggage"
	"github.com/kolkov/dryrun/internal/runtime/snapstore"
)

func TestParseGID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"goroutine 1 [running]:\n", 1},
		{"goroutine 123456 [chan receive]:", 123456},
		{"goroutine x", 0},
		{"gorout", 0},
		{"thread 5 [running]", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseGID([]byte(tt.in)); got != tt.want {
				t.Errorf("parseGID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestGoroutineIDStable(t *testing.T) {
	id := goroutineID()
	if id <= 0 {
		t.Fatalf("goroutineID() = %d", id)
	}
	if goroutineID() != id {
		t.Error("goroutineID() changed within one goroutine")
	}
	other := make(chan int64)
	go func() { other <- goroutineID() }()
	if <-other == id {
		t.Error("two goroutines share an id")
	}
}

func TestModeTransitions(t *testing.T) {
	rt := New()
	defer rt.Detach()

	if rt.IsDryRun() || rt.IsFastForward() {
		t.Fatal("fresh runtime reports a mode")
	}
	chain := rt.BeginChain()

	rt.CreateDryRunBaggage()
	if !rt.IsDryRun() || rt.IsFastForward() {
		t.Errorf("after CreateDryRunBaggage: %s", rt.Current())
	}
	rt.CreateShadowBaggage()
	if !rt.Current().IsShadow() || !rt.IsDryRun() {
		t.Errorf("after CreateShadowBaggage: %s", rt.Current())
	}
	rt.ClearBaggage()
	if rt.Current().Flags() != 0 {
		t.Errorf("after ClearBaggage: %s", rt.Current())
	}
	if rt.Current().Chain() != chain {
		t.Error("ClearBaggage dropped the chain id")
	}
	rt.CreateFastForwardBaggage()
	if !rt.IsDryRun() || !rt.IsFastForward() {
		t.Errorf("after CreateFastForwardBaggage: %s", rt.Current())
	}
}

func TestBaggageIsPerGoroutine(t *testing.T) {
	rt := New()
	defer rt.Detach()
	rt.CreateDryRunBaggage()

	seen := make(chan bool)
	go func() { seen <- rt.IsDryRun() }()
	if <-seen {
		t.Error("a plain goroutine inherited dry-run mode")
	}
}

func TestWrapCarriesBaggage(t *testing.T) {
	rt := New()
	defer rt.Detach()
	chain := rt.BeginChain()
	rt.CreateDryRunBaggage()

	var got *baggage.Baggage
	task := rt.Wrap(func() { got = rt.Current() })

	// Change the submitter's mode after wrapping; the task keeps the old one.
	rt.ClearBaggage()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task()
		if rt.Current() != nil {
			t.Error("wrapped task leaked its baggage into the worker")
		}
	}()
	wg.Wait()

	if !got.IsDryRun() || got.Chain() != chain {
		t.Errorf("task saw %s, want dry run on chain %s", got, chain)
	}
}

func TestContextCarrier(t *testing.T) {
	rt := New()
	defer rt.Detach()
	rt.CreateDryRunBaggage()

	ctx := rt.WrapContext(context.Background())
	done := make(chan bool)
	go func() {
		rt.RunWith(FromContext(ctx), func() { done <- rt.IsDryRun() })
	}()
	if !<-done {
		t.Error("baggage did not travel through context")
	}
	if FromContext(context.Background()) != nil {
		t.Error("empty context returned baggage")
	}
}

type wrappedTask struct{}

func (wrappedTask) IsContextWrapped() bool { return true }

func TestShouldBeContextWrap(t *testing.T) {
	rt := New()
	defer rt.Detach()

	if rt.ShouldBeContextWrap("task", "exec") {
		t.Error("wrap requested outside dry run")
	}
	tests := []struct {
		name           string
		task, executor any
		want           bool
	}{
		{"plain", "task", "exec", true},
		{"wrapped task", wrappedTask{}, "exec", false},
		{"wrapped executor", "task", wrappedTask{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt.CreateDryRunBaggage()
			defer rt.Detach()
			if got := rt.ShouldBeContextWrap(tt.task, tt.executor); got != tt.want {
				t.Errorf("ShouldBeContextWrap = %v, want %v", got, tt.want)
			}
		})
	}
}

type copyable struct{ items []int }

func (c *copyable) ShallowCopy() any {
	return &copyable{items: append([]int(nil), c.items...)}
}

func TestShallowCopy(t *testing.T) {
	orig := &copyable{items: []int{1, 2}}
	dry := &copyable{items: []int{9}}

	if got := ShallowCopy(orig, dry, true); got != dry {
		t.Error("set flag must return the shadow value")
	}
	got := ShallowCopy(orig, dry, false).(*copyable)
	if got == orig {
		t.Fatal("unset flag returned the original instead of a copy")
	}
	got.items[0] = 42
	if orig.items[0] != 1 {
		t.Error("copy shares its backing array with the original")
	}
	if ShallowCopy("s", nil, false) != "s" {
		t.Error("non-copier value not shared")
	}
}

func TestStateScopedByChain(t *testing.T) {
	rt := New()
	defer rt.Detach()
	const sig = "<demo.W: int compute(int)>"

	a := rt.BeginChain()
	if !rt.RecordState(sig, snapstore.Snapshot{"x": NewWrapContext(int32(3))}) {
		t.Fatal("first capture dropped")
	}
	rt.RecordFieldState(sig, snapstore.Snapshot{"count": NewWrapContext(int32(1))})

	rt.BeginChain()
	if _, err := rt.GetState(sig); !errors.Is(err, snapstore.ErrStaleOrMissingSnapshot) {
		t.Errorf("second chain saw the first chain's snapshot: %v", err)
	}

	rt.JoinChain(a)
	snap, err := rt.GetState(sig)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v := snap["x"].(*WrapContext).Value(); v != int32(3) {
		t.Errorf("x = %v, want 3", v)
	}
	fields, err := rt.GetFieldState(sig)
	if err != nil || fields["count"].(*WrapContext).Value() != int32(1) {
		t.Errorf("GetFieldState = %v, %v", fields, err)
	}

	if n := rt.EndChain(a); n != 2 {
		t.Errorf("EndChain released %d snapshots, want 2", n)
	}
	rt.RecordState(sig, snapstore.Snapshot{})
	rt.ClearStates()
	if rt.Store().Len() != 0 {
		t.Error("ClearStates left snapshots")
	}
}
