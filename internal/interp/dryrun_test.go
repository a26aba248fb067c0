package interp

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/irtest"
	"github.com/kolkov/dryrun/internal/pipeline"
	"github.com/kolkov/dryrun/internal/snapshot"
)

// End-to-end checks: programs are instrumented by the pipeline and then
// executed, so the generated code is judged by what it does.

const workerSrc = `
class demo.Source extends java.lang.Object {
    method public static java.lang.String fetch() {
        return "real"
    }
}
class demo.Worker extends java.lang.Object {
    field public int prefixRuns
    field public java.lang.String out
    field public java.lang.String fetched
    method public int compute() {
        local this demo.Worker
        local c int
        local x int
        local y java.lang.String
        local v java.lang.String
        local r int
        this := @this: demo.Worker
        c = staticinvoke <demo.Meter: int tick()>()
        c = c + 1
        x = 1
        x = x + 2
        y = "abc"
        this.<demo.Worker: int prefixRuns> = c
        v = staticinvoke <demo.Source: java.lang.String fetch()>()
        this.<demo.Worker: java.lang.String out> = y
        this.<demo.Worker: java.lang.String fetched> = v
        r = x + 1
        return r
    }
}
`

const computeSig = "<demo.Worker: int compute()>"

func workerConfig() *config.Config {
	return &config.Config{
		FastForward: config.FastForward{
			WorkerClass: "demo.Worker",
			RootMethod:  "compute",
			Mode:        config.ModeProduction,
			Targets:     []config.Target{{Class: "demo.Source", Method: "fetch"}},
		},
	}
}

// instrumented loads src, runs the pipeline over it and fails the test on
// any instrumentation error.
func instrumented(t *testing.T, src string, cfg *config.Config) *ir.Program {
	t.Helper()
	p := irtest.Load(t, src)
	res, err := pipeline.New(cfg).Run(p)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if len(res.Errors) > 0 {
		t.Fatalf("pipeline errors: %v", res.Errors)
	}
	return p
}

type ticker struct{ n atomic.Int32 }

func (tk *ticker) native() Native {
	return func(*Interp, NativeCall) (any, error) { return tk.n.Add(1), nil }
}

func TestFastForward(t *testing.T) {
	p := instrumented(t, workerSrc, workerConfig())
	tk := &ticker{}
	in, err := New(p, WithNative("demo.Meter", "tick", tk.native()))
	if err != nil {
		t.Fatal(err)
	}
	rt := in.Runtime()
	chain := rt.BeginChain()
	defer rt.Detach()

	primary := NewObject("demo.Worker")
	got, err := in.Call(computeSig, primary)
	if err != nil {
		t.Fatalf("primary: %v", err)
	}
	if got != int32(4) || tk.n.Load() != 1 {
		t.Fatalf("primary returned %v after %d ticks, want 4 after 1", got, tk.n.Load())
	}
	if primary.Get("out") != "abc" || primary.Get("fetched") != "real" {
		t.Errorf("primary fields out=%v fetched=%v", primary.Get("out"), primary.Get("fetched"))
	}

	locals, err := rt.GetState(computeSig)
	if err != nil {
		t.Fatalf("no capture at the divergence point: %v", err)
	}
	for name, want := range map[string]any{"c": int32(2), "x": int32(3), "y": "abc"} {
		if v := Unwrap(locals[name]); v != want {
			t.Errorf("captured %s = %v (%T), want %v", name, v, v, want)
		}
	}
	fields, err := rt.GetFieldState(computeSig)
	if err != nil {
		t.Fatal(err)
	}
	if v := Unwrap(fields["prefixRuns"]); v != int32(2) {
		t.Errorf("captured prefixRuns = %v, want 2", v)
	}

	shadow := NewObject("demo.Worker")
	shadow.Set(abi.IsShadowField, true)
	got, err = in.Call(computeSig, shadow)
	if err != nil {
		t.Fatalf("shadow: %v", err)
	}
	if got != int32(4) {
		t.Errorf("shadow returned %v, want 4", got)
	}
	if n := tk.n.Load(); n != 1 {
		t.Errorf("shadow re-ran the prefix: %d ticks", n)
	}
	if shadow.Get("out") != "abc" || shadow.Get("prefixRuns") != int32(2) {
		t.Errorf("shadow fields out=%v prefixRuns=%v", shadow.Get("out"), shadow.Get("prefixRuns"))
	}
	if !rt.IsDryRun() || rt.IsFastForward() {
		t.Errorf("after the deepest point the mode is %v, want dry-run without fast-forward", rt.Current().Flags())
	}
	if n := rt.EndChain(chain); n != 2 {
		t.Errorf("chain held %d snapshots, want 2", n)
	}
}

func TestFastForwardWithoutCapture(t *testing.T) {
	p := instrumented(t, workerSrc, workerConfig())
	in, err := New(p, WithNative("demo.Meter", "tick", (&ticker{}).native()))
	if err != nil {
		t.Fatal(err)
	}
	rt := in.Runtime()
	rt.BeginChain()
	defer rt.Detach()

	shadow := NewObject("demo.Worker")
	shadow.Set(abi.IsShadowField, true)
	_, err = in.Call(computeSig, shadow)
	var thr *Throwable
	if !errors.As(err, &thr) || thr.Object.Class != abi.IllegalStateExceptionClass {
		t.Fatalf("error = %v, want IllegalStateException", err)
	}
}

const queueSrc = `
class demo.Source extends java.lang.Object {
    method public static java.lang.String fetch() {
        return "real"
    }
}
class demo.Worker extends java.lang.Object {
    field public java.lang.String queue
    method public java.lang.String compute() {
        local this demo.Worker
        local s java.lang.String
        local v java.lang.String
        local q java.lang.String
        this := @this: demo.Worker
        s = "pending"
        this.<demo.Worker: java.lang.String queue> = s
        v = staticinvoke <demo.Source: java.lang.String fetch()>()
        q = this.<demo.Worker: java.lang.String queue>
        return q
    }
}
`

const stackTempSrc = `
class demo.Source extends java.lang.Object {
    method public static java.lang.String fetch() {
        return "real"
    }
}
class demo.Worker extends java.lang.Object {
    method public int compute() {
        local this demo.Worker
        local $i0 int
        local v java.lang.String
        local r int
        this := @this: demo.Worker
        $i0 = 41
        v = staticinvoke <demo.Source: java.lang.String fetch()>()
        r = $i0 + 1
        return r
    }
}
`

// TestFastForwardResumesState runs the primary and then a shadow worker
// and expects both to compute the same value from the state live at the
// divergence point.
func TestFastForwardResumesState(t *testing.T) {
	withShadowQueue := workerConfig()
	withShadowQueue.FastForward.ShadowFields = []string{"queue"}

	tests := []struct {
		name  string
		src   string
		cfg   *config.Config
		sig   string
		want  any
		check func(t *testing.T, shadow *Object)
	}{
		{
			name: "stack temporary",
			src:  stackTempSrc,
			cfg:  workerConfig(),
			sig:  computeSig,
			want: int32(42),
		},
		{
			name: "shadow field",
			src:  queueSrc,
			cfg:  withShadowQueue,
			sig:  "<demo.Worker: java.lang.String compute()>",
			want: "pending",
			check: func(t *testing.T, shadow *Object) {
				if got := shadow.Get("queue"); got != nil {
					t.Errorf("shadow wrote queue = %v", got)
				}
				if got := shadow.Get("queue" + abi.ShadowFieldSuffix); got != "pending" {
					t.Errorf("queue%s = %v, want pending", abi.ShadowFieldSuffix, got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := instrumented(t, tt.src, tt.cfg)
			in, err := New(p)
			if err != nil {
				t.Fatal(err)
			}
			rt := in.Runtime()
			rt.BeginChain()
			defer rt.Detach()

			got, err := in.Call(tt.sig, NewObject("demo.Worker"))
			if err != nil {
				t.Fatalf("primary: %v", err)
			}
			if got != tt.want {
				t.Fatalf("primary returned %v, want %v", got, tt.want)
			}

			shadow := NewObject("demo.Worker")
			shadow.Set(abi.IsShadowField, true)
			got, err = in.Call(tt.sig, shadow)
			if err != nil {
				t.Fatalf("shadow: %v", err)
			}
			if got != tt.want {
				t.Errorf("shadow returned %v, want %v", got, tt.want)
			}
			if tt.check != nil {
				tt.check(t, shadow)
			}
		})
	}
}

func TestEntryGate(t *testing.T) {
	p := instrumented(t, workerSrc, workerConfig())
	var entered []string
	in, err := New(p,
		WithNative("demo.Meter", "tick", (&ticker{}).native()),
		WithCallHook(func(m *ir.Method) { entered = append(entered, m.Name) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	rt := in.Runtime()
	defer rt.Detach()

	tests := []struct {
		name   string
		mode   func()
		want   []string
		forbid string
	}{
		{"normal", rt.ClearBaggage, []string{"compute", "fetch$original"}, "$instrumentation"},
		{"dry run", rt.CreateDryRunBaggage, []string{"compute", "compute$instrumentation", "fetch$instrumentation"}, "$original"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entered = nil
			tt.mode()
			if _, err := in.Call(computeSig, NewObject("demo.Worker")); err != nil {
				t.Fatal(err)
			}
			if strings.Join(entered, " ") != strings.Join(tt.want, " ") {
				t.Errorf("entered %v, want %v", entered, tt.want)
			}
			for _, name := range entered {
				if strings.HasSuffix(name, tt.forbid) {
					t.Errorf("%s entered in %s mode", name, tt.name)
				}
			}
		})
	}
}

func TestDryRunFieldIsolation(t *testing.T) {
	p := instrumented(t, workerSrc, workerConfig())
	in, err := New(p, WithNative("demo.Meter", "tick", (&ticker{}).native()))
	if err != nil {
		t.Fatal(err)
	}
	rt := in.Runtime()
	rt.CreateDryRunBaggage()
	defer rt.Detach()

	w := NewObject("demo.Worker")
	w.Set("out", "production")
	if _, err := in.Call(computeSig, w); err != nil {
		t.Fatal(err)
	}
	if got := w.Get("out"); got != "production" {
		t.Errorf("dry run wrote the real field: out = %v", got)
	}
	if got := w.Get(abi.DryRunFieldName("out")); got != "abc" {
		t.Errorf("%s = %v, want abc", abi.DryRunFieldName("out"), got)
	}
	if got := w.Get(abi.SetByDryRunFieldName("out")); got != true {
		t.Errorf("%s = %v, want true", abi.SetByDryRunFieldName("out"), got)
	}
}

const submitSrc = `
class demo.Task extends java.lang.Object implements java.lang.Runnable {
    method public void run() {
        local this demo.Task
        this := @this: demo.Task
        staticinvoke <demo.Meter: void observe()>()
        return
    }
}
class demo.Submitter extends java.lang.Object {
    method public static java.util.concurrent.Future submit(java.util.concurrent.ExecutorService, demo.Task) {
        local ex java.util.concurrent.ExecutorService
        local t demo.Task
        local f java.util.concurrent.Future
        ex := @parameter0: java.util.concurrent.ExecutorService
        t := @parameter1: demo.Task
        f = interfaceinvoke ex.<java.util.concurrent.ExecutorService: java.util.concurrent.Future submit(java.lang.Runnable)>(t)
        return f
    }
    method public static java.util.concurrent.Future submitCallable(java.util.concurrent.ExecutorService, demo.CTask) {
        local ex java.util.concurrent.ExecutorService
        local c demo.CTask
        local f java.util.concurrent.Future
        ex := @parameter0: java.util.concurrent.ExecutorService
        c := @parameter1: demo.CTask
        f = interfaceinvoke ex.<java.util.concurrent.ExecutorService: java.util.concurrent.Future submit(java.util.concurrent.Callable)>(c)
        return f
    }
}
class demo.CTask extends java.lang.Object implements java.util.concurrent.Callable {
    method public java.lang.Object call() {
        local this demo.CTask
        this := @this: demo.CTask
        staticinvoke <demo.Meter: void observe()>()
        return null
    }
}
`

func TestAsyncPropagation(t *testing.T) {
	const (
		submitRunnable = "<demo.Submitter: java.util.concurrent.Future submit(java.util.concurrent.ExecutorService,demo.Task)>"
		submitCallable = "<demo.Submitter: java.util.concurrent.Future submitCallable(java.util.concurrent.ExecutorService,demo.CTask)>"
	)
	tests := []struct {
		name       string
		sig        string
		task       string
		instrument bool
		want       bool
	}{
		{"instrumented", submitRunnable, "demo.Task", true, true},
		{"uninstrumented", submitRunnable, "demo.Task", false, false},
		{"instrumented callable", submitCallable, "demo.CTask", true, true},
		{"uninstrumented callable", submitCallable, "demo.CTask", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p *ir.Program
			if tt.instrument {
				p = instrumented(t, submitSrc, &config.Config{})
			} else {
				p = irtest.Load(t, submitSrc)
			}
			pr := &modeLog{}
			in, err := New(p, WithNative("demo.Meter", "observe", pr.native()))
			if err != nil {
				t.Fatal(err)
			}
			rt := in.Runtime()
			rt.CreateDryRunBaggage()
			defer rt.Detach()

			fut, err := in.Call(tt.sig, nil, in.NewExecutor(1), NewObject(tt.task))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := in.Call("<java.util.concurrent.Future: java.lang.Object get()>", fut); err != nil {
				t.Fatal(err)
			}
			if err := in.Wait(); err != nil {
				t.Fatal(err)
			}
			seen := pr.take()
			if len(seen) != 1 || seen[0] != tt.want {
				t.Errorf("task saw dry run %v, want [%v]", seen, tt.want)
			}
		})
	}
}

const tripSrc = `
class demo.Trip extends java.lang.Object {
    field public static boolean z
    field public static byte b
    field public static char c
    field public static short s
    field public static int i
    field public static long j
    field public static float f
    field public static double d
    field public static java.lang.String str
    field public static int k
    method public static void trip() {
        local z boolean
        local b byte
        local c char
        local s short
        local i int
        local j long
        local f float
        local d double
        local str java.lang.String
        local $i0 int
        z = true
        b = 7B
        c = 'x'
        s = 300S
        i = 70000
        j = 5000000000L
        f = 1.5F
        d = 2.25
        str = "hi"
        $i0 = 41
        nop
        <demo.Trip: boolean z> = z
        <demo.Trip: byte b> = b
        <demo.Trip: char c> = c
        <demo.Trip: short s> = s
        <demo.Trip: int i> = i
        <demo.Trip: long j> = j
        <demo.Trip: float f> = f
        <demo.Trip: double d> = d
        <demo.Trip: java.lang.String str> = str
        <demo.Trip: int k> = $i0
        return
    }
}
`

// TestSnapshotRoundTrip captures every local at the nop, wipes them and
// restores them, then checks what reached the static fields. $i0 stands for
// a compiler stack temporary.
func TestSnapshotRoundTrip(t *testing.T) {
	p := irtest.Load(t, tripSrc)
	m := irtest.Method(t, p, "demo.Trip", "trip")
	g, err := snapshot.New(abi.Boxing)
	if err != nil {
		t.Fatal(err)
	}
	const sig = "<demo.Trip: void trip()>"
	b := m.Body
	var marker ir.Stmt
	for _, s := range b.Stmts {
		if _, ok := s.(*ir.NopStmt); ok {
			marker = s
		}
	}
	locals := snapshot.Eligible(b)
	stmts := g.Capture(b, sig, locals)
	for _, l := range locals {
		stmts = append(stmts, ir.NewAssign(l, ir.ZeroValue(l.Type())))
	}
	stmts = append(stmts, g.Restore(b, sig, locals)...)
	if !b.InsertBefore(marker, stmts...) {
		t.Fatal("marker not found")
	}

	in, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	rt := in.Runtime()
	rt.BeginChain()
	defer rt.Detach()
	if _, err := in.Call(sig, nil); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"z": true, "b": int8(7), "c": uint16('x'), "s": int16(300), "i": int32(70000),
		"j": int64(5000000000), "f": float32(1.5), "d": float64(2.25), "str": "hi",
		"k": int32(41),
	}
	for name, w := range want {
		t.Run(name, func(t *testing.T) {
			if got := in.Static("demo.Trip", name); got != w {
				t.Errorf("%s = %v (%T), want %v (%T)", name, got, got, w, w)
			}
		})
	}
}

func TestLegacyCharBoxing(t *testing.T) {
	var defect *abi.BoxingDefectError
	if _, err := snapshot.New(abi.LegacyBoxing); !errors.As(err, &defect) {
		t.Errorf("snapshot.New(LegacyBoxing) = %v, want *BoxingDefectError", err)
	}

	cfg := workerConfig()
	cfg.Boxing.LegacyChar = true
	p := irtest.Load(t, workerSrc)
	before := irtest.Print(t, p)
	if _, err := pipeline.New(cfg).Run(p); !errors.As(err, &defect) {
		t.Errorf("pipeline error = %v, want *BoxingDefectError", err)
	}
	if irtest.Print(t, p) != before {
		t.Error("refused run changed the program")
	}
}
