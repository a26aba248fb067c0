package fastforward

import (
	"strings"
	"testing"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/irtest"
	"github.com/kolkov/dryrun/internal/snapshot"
	"github.com/kolkov/dryrun/internal/variant"
)

const workerSrc = `
class demo.Worker extends java.lang.Object implements java.lang.Runnable {
    field private demo.Queue queue
    field private int served
    method public void run() {
        local this demo.Worker
        local q demo.Queue
        local item java.lang.Object
        this := @this: demo.Worker
      loop:
        q = this.<demo.Worker: demo.Queue queue>
        if q == null goto done
        item = virtualinvoke this.<demo.Worker: java.lang.Object poll(demo.Queue)>(q)
        goto loop
      done:
        return
    }
    method private java.lang.Object poll(demo.Queue) {
        local this demo.Worker
        local q demo.Queue
        local n int
        local item java.lang.Object
        this := @this: demo.Worker
        q := @parameter0: demo.Queue
        n = 0
        n = n + 1
        item = virtualinvoke q.<demo.Queue: java.lang.Object take()>()
        return item
    }
}
class demo.Queue extends java.lang.Object {
    field private java.lang.Object head
    method public java.lang.Object take() {
        local this demo.Queue
        local h java.lang.Object
        this := @this: demo.Queue
        h = this.<demo.Queue: java.lang.Object head>
        if h != null goto ret
        h = null
      ret:
        return h
    }
}
`

func ffConfig() config.FastForward {
	return config.FastForward{
		WorkerClass: "demo.Worker",
		RootMethod:  "run",
		Mode:        config.ModeProduction,
		Targets: []config.Target{
			{Class: "demo.Worker", Method: "poll"},
			{Class: "demo.Queue", Method: "take"},
		},
		FieldReads:   []config.FieldRead{{Class: "demo.Queue", Field: "head"}},
		ShadowFields: []string{"queue"},
	}
}

func runPass(t *testing.T, p *ir.Program, cfg config.FastForward) (*Result, *variant.Table) {
	t.Helper()
	snap, err := snapshot.New(abi.Boxing)
	if err != nil {
		t.Fatal(err)
	}
	tab := variant.NewTable()
	res, err := New(p, cfg, snap, variant.NewGenerator(p, tab, nil), nil).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res, tab
}

func calls(m *ir.Method) []string {
	var out []string
	for _, s := range m.Body.Stmts {
		if inv := ir.InvokeOf(s); inv != nil {
			out = append(out, inv.Method.Name)
		}
	}
	return out
}

func count(xs []string, x string) int {
	n := 0
	for _, v := range xs {
		if v == x {
			n++
		}
	}
	return n
}

func TestRunCreatesShadowChain(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	res, tab := runPass(t, p, ffConfig())

	if len(res.Located.Points) != 3 || len(res.Shadows) != 3 {
		t.Fatalf("points=%d shadows=%d, want 3 and 3", len(res.Located.Points), len(res.Shadows))
	}
	if tab.Count(variant.Shadow) != 3 {
		t.Errorf("table has %d shadows", tab.Count(variant.Shadow))
	}
	for _, want := range []struct{ class, name string }{
		{"demo.Worker", "run$shadow"},
		{"demo.Worker", "poll$shadow"},
		{"demo.Queue", "take$shadow"},
	} {
		if len(p.Class(want.class).MethodsByName(want.name)) != 1 {
			t.Errorf("%s.%s not declared", want.class, want.name)
		}
	}
	if f := p.Class("demo.Worker").Field(abi.IsShadowField); f == nil || f.Type != ir.Boolean {
		t.Error("worker lacks the isShadow field")
	}
}

func TestCaptureAndRestorePlacement(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	res, _ := runPass(t, p, ffConfig())

	for _, pt := range res.Located.Points {
		primary := pt.Method
		b := primary.Body
		idx := b.IndexOf(pt.Stmt)
		prev := ir.InvokeOf(b.Stmts[idx-1])
		if prev == nil || prev.Method.Name != "recordFieldState" {
			t.Errorf("%s: statement before the divergence point is %s, want recordFieldState",
				primary.Name, b.StmtString(b.Stmts[idx-1]))
		}
		if count(calls(primary), "getState") != 0 {
			t.Errorf("%s: primary restores state", primary.Name)
		}
	}

	take := irtest.Method(t, p, "demo.Queue", "take$shadow")
	got := calls(take)
	for _, want := range []string{"isFastForward", "getState", "getFieldState", "clearBaggage", "createDryRunBaggage", "createShadowBaggage"} {
		if count(got, want) == 0 {
			t.Errorf("take$shadow does not call %s", want)
		}
	}
	poll := irtest.Method(t, p, "demo.Worker", "poll$shadow")
	if count(calls(poll), "clearBaggage") != 0 {
		t.Error("baggage reset placed at a non-deepest point")
	}
	if count(calls(poll), "recordState") != 0 {
		t.Error("shadow variant captures state")
	}
}

func TestShadowEntryJumpsToRestore(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	runPass(t, p, ffConfig())
	poll := irtest.Method(t, p, "demo.Worker", "poll$shadow")
	b := poll.Body

	// n and item are default-initialized; q is a parameter and is not.
	var inits []string
	var jump *ir.IfStmt
	for _, s := range b.Stmts[len(b.IdentityStmts()):] {
		if a, ok := s.(*ir.AssignStmt); ok {
			if c, ok := a.RHS.(*ir.Constant); ok {
				inits = append(inits, a.LHS.(*ir.Local).Name+"="+c.String())
				continue
			}
		}
		if st, ok := s.(*ir.IfStmt); ok {
			jump = st
			break
		}
	}
	if got := strings.Join(inits, ","); got != "n=0,item=null" {
		t.Errorf("default inits = %s", got)
	}
	if jump == nil {
		t.Fatal("no fast-forward jump at entry")
	}
	target := jump.Target.(*ir.AssignStmt)
	if inv, ok := target.RHS.(*ir.InvokeExpr); !ok || inv.Method.Name != "isFastForward" {
		t.Errorf("entry jump lands on %s, want the restore guard", b.StmtString(target))
	}
	if b.IndexOf(jump.Target) <= b.IndexOf(jump) {
		t.Error("entry jump goes backwards")
	}
}

func TestShadowFieldSubstitution(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	res, _ := runPass(t, p, ffConfig())

	if len(res.ShadowFields) != 1 || res.ShadowFields[0].Name != "queue$dryrun" {
		t.Fatalf("shadow fields = %v", res.ShadowFields)
	}
	reads := func(m *ir.Method) map[string]bool {
		out := make(map[string]bool)
		for _, s := range m.Body.Stmts {
			for _, v := range ir.FieldRefs(s) {
				if r, ok := v.(*ir.InstanceFieldRef); ok {
					out[r.Field.Name] = true
				}
			}
		}
		return out
	}
	shadow := reads(irtest.Method(t, p, "demo.Worker", "run$shadow"))
	if shadow["queue"] || !shadow["queue$dryrun"] {
		t.Errorf("run$shadow reads %v", shadow)
	}
	primary := reads(irtest.Method(t, p, "demo.Worker", "run"))
	if primary["queue$dryrun"] {
		t.Error("primary run reads the shadow queue")
	}
}

func TestRootPrologue(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	runPass(t, p, ffConfig())
	run := irtest.Method(t, p, "demo.Worker", "run")
	got := calls(run)
	if count(got, "createFastForwardBaggage") != 1 || count(got, "run$shadow") != 1 {
		t.Errorf("run calls %v", got)
	}
	first := run.Body.FirstNonIdentity().(*ir.AssignStmt)
	if r, ok := first.RHS.(*ir.InstanceFieldRef); !ok || r.Field.Name != abi.IsShadowField {
		t.Errorf("run does not start by reading isShadow: %s", run.Body.StmtString(first))
	}
}

func TestRunTwiceIsNoop(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	runPass(t, p, ffConfig())
	before := irtest.Print(t, p)
	res, _ := runPass(t, p, ffConfig())
	if len(res.Shadows) != 0 {
		t.Errorf("second run created %d shadows", len(res.Shadows))
	}
	if after := irtest.Print(t, p); after != before {
		t.Error("second run changed the program")
	}
}

func TestMissingWorker(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	cfg := ffConfig()
	cfg.WorkerClass = "demo.Nope"
	snap, _ := snapshot.New(abi.Boxing)
	_, err := New(p, cfg, snap, variant.NewGenerator(p, variant.NewTable(), nil), nil).Run()
	if err == nil {
		t.Fatal("Run succeeded without a worker class")
	}
}
