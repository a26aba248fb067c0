package locator

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/twmb/algoimpl/go/graph"

	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/irtest"
)

const workerSrc = `
class demo.Worker extends java.lang.Object implements java.lang.Runnable {
    field private demo.Queue queue
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

func workerConfig(mode string) config.FastForward {
	return config.FastForward{
		WorkerClass: "demo.Worker",
		RootMethod:  "run",
		Mode:        mode,
		Targets: []config.Target{
			{Class: "demo.Worker", Method: "poll"},
			{Class: "demo.Queue", Method: "take"},
		},
		FieldReads: []config.FieldRead{{Class: "demo.Queue", Field: "head"}},
	}
}

type want struct {
	method string
	index  int
}

func points(r *Result) []want {
	var out []want
	for _, p := range r.Points {
		out = append(out, want{p.Method.Name, p.Index})
	}
	return out
}

func TestLocateModes(t *testing.T) {
	tests := []struct {
		mode string
		want []want
	}{
		{config.ModeProduction, []want{{"run", 3}, {"poll", 4}, {"take", 1}}},
		{config.ModeDebug, []want{{"run", 3}, {"poll", 4}, {"take", 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			p := irtest.Load(t, workerSrc)
			root := irtest.Method(t, p, "demo.Worker", "run")
			res := New(p, NewPredicate(p, workerConfig(tt.mode)), nil).Locate(root)

			got := points(res)
			if len(got) != len(tt.want) {
				t.Fatalf("points = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("point %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
			deepest, ok := res.Deepest()
			if !ok || deepest.Method.Name != "take" {
				t.Errorf("Deepest() = %v, %v", deepest, ok)
			}
			poll := irtest.Method(t, p, "demo.Worker", "poll")
			if dp, ok := res.Lookup(poll); !ok || dp.Stmt != poll.Body.Stmts[4] {
				t.Errorf("Lookup(poll) = %v, %v", dp, ok)
			}
		})
	}
}

func TestLocateRootIsNotTerminal(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	root := irtest.Method(t, p, "demo.Worker", "run")
	ff := workerConfig(config.ModeDebug)
	ff.Targets = nil

	res := New(p, NewPredicate(p, ff), nil).Locate(root)
	if len(res.Points) != 0 {
		t.Errorf("points = %v, want none: the root's branch is not a divergence point", points(res))
	}
}

func TestLocateSkipsHandlers(t *testing.T) {
	p := irtest.Load(t, `
class demo.Guarded extends java.lang.Object {
    method public void run() {
        local this demo.Guarded
        local e java.lang.Throwable
        this := @this: demo.Guarded
      begin:
        virtualinvoke this.<demo.Guarded: void work()>()
      end:
        return
      handler:
        e := @caughtexception
        virtualinvoke this.<demo.Guarded: void recover()>()
        return
        catch java.lang.Exception from begin to end with handler
    }
    method public void work() {
        local this demo.Guarded
        this := @this: demo.Guarded
        return
    }
    method public void recover() {
        local this demo.Guarded
        this := @this: demo.Guarded
        return
    }
}
`)
	root := irtest.Method(t, p, "demo.Guarded", "run")
	ff := config.FastForward{Targets: []config.Target{{Class: "demo.Guarded", Method: "recover"}}}
	res := New(p, NewPredicate(p, ff), nil).Locate(root)
	if len(res.Points) != 0 {
		t.Errorf("points = %v, want none inside the handler", points(res))
	}

	ff.Targets = append(ff.Targets, config.Target{Class: "demo.Guarded", Method: "work"})
	res = New(p, NewPredicate(p, ff), nil).Locate(root)
	if got := points(res); len(got) != 1 || got[0] != (want{"run", 1}) {
		t.Errorf("points = %v, want [{run 1}]", got)
	}
}

const loopSrc = `
class demo.Loop extends java.lang.Object {
    method public void run() {
        local this demo.Loop
        this := @this: demo.Loop
        virtualinvoke this.<demo.Loop: void ping()>()
        return
    }
    method public void ping() {
        local this demo.Loop
        this := @this: demo.Loop
        virtualinvoke this.<demo.Loop: void pong()>()
        return
    }
    method public void pong() {
        local this demo.Loop
        this := @this: demo.Loop
        virtualinvoke this.<demo.Loop: void ping()>()
        return
    }
}
`

func TestLocateRecursionTerminates(t *testing.T) {
	p := irtest.Load(t, loopSrc)
	root := irtest.Method(t, p, "demo.Loop", "run")
	ff := config.FastForward{Targets: []config.Target{
		{Class: "demo.Loop", Method: "ping"},
		{Class: "demo.Loop", Method: "pong"},
	}}
	res := New(p, NewPredicate(p, ff), nil).Locate(root)

	got := points(res)
	wantPts := []want{{"run", 1}, {"ping", 1}, {"pong", 1}}
	if len(got) != len(wantPts) {
		t.Fatalf("points = %v, want %v", got, wantPts)
	}
	cycles := res.Graph.Cycles()
	if len(cycles) != 1 || len(cycles[0]) != 2 {
		t.Fatalf("Cycles() = %v, want one ping/pong group", cycles)
	}
}

func TestCallGraph(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	root := irtest.Method(t, p, "demo.Worker", "run")
	cg := BuildCallGraph(p, root, nil)

	var names []string
	for _, m := range cg.Methods() {
		names = append(names, m.Name)
	}
	if strings.Join(names, ",") != "run,poll,take" {
		t.Errorf("Methods() = %v", names)
	}
	callees := cg.Callees(root)
	if len(callees) != 1 || callees[0].Name != "poll" {
		t.Errorf("Callees(run) = %v", callees)
	}
	if len(cg.Cycles()) != 0 {
		t.Error("acyclic graph reported cycles")
	}
	if cg.Contains(&ir.Method{Name: "other"}) {
		t.Error("Contains reported an unknown method")
	}
}

func TestDivergePointString(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	root := irtest.Method(t, p, "demo.Worker", "run")
	res := New(p, NewPredicate(p, workerConfig(config.ModeProduction)), nil).Locate(root)
	s := res.Points[0].String()
	if !strings.HasPrefix(s, "<demo.Worker: void run()>#3: ") || !strings.Contains(s, "poll") {
		t.Errorf("String() = %q", s)
	}
}

func TestCallGraphLogsDroppedEdge(t *testing.T) {
	p := irtest.Load(t, workerSrc)
	root := irtest.Method(t, p, "demo.Worker", "run")
	poll := irtest.Method(t, p, "demo.Worker", "poll")

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	cg := BuildCallGraph(p, root, log)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("unexpected log entries: %v", hook.AllEntries())
	}

	// A node owned by another graph cannot be linked.
	foreign := graph.New(graph.Directed).MakeNode()
	*foreign.Value = poll
	cg.nodes[poll] = foreign
	cg.link(root, poll)

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.DebugLevel || e.Message != "call edge dropped" {
		t.Fatalf("LastEntry() = %v, want a debug 'call edge dropped'", e)
	}
	if e.Data["callee"] != poll.Signature() {
		t.Errorf("callee = %v, want %s", e.Data["callee"], poll.Signature())
	}
	if e.Data[logrus.ErrorKey] == nil {
		t.Error("entry carries no error")
	}
}
