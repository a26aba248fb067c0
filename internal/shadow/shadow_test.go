package shadow

import (
	"testing"

	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/irtest"
)

const src = `
class demo.Counter extends java.lang.Object {
    field private final int count
    field private static java.util.Map cache
    field static boolean $assertionsDisabled
    method public int bump(java.lang.Object) {
        local this demo.Counter
        local v java.lang.Object
        local c int
        local m java.util.Map
        this := @this: demo.Counter
        v := @parameter0: java.lang.Object
        c = this.<demo.Counter: int count>
        c = c + 1
        this.<demo.Counter: int count> = c
        m = <demo.Counter: java.util.Map cache>
        return c
    }
}
`

func TestDeclare(t *testing.T) {
	p := irtest.Load(t, src)
	c := p.Class("demo.Counter")
	ps := New(p, nil)

	n, err := ps.Declare(c)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("declared %d pairs, want 2", n)
	}
	tests := []struct {
		name   string
		typ    ir.Type
		static bool
	}{
		{"count$dryRun", ir.Int, false},
		{"count$dryRun$setByDryRun", ir.Boolean, false},
		{"cache$dryRun", ir.RefType("java.util.Map"), true},
		{"cache$dryRun$setByDryRun", ir.Boolean, true},
	}
	for _, tt := range tests {
		f := c.Field(tt.name)
		if f == nil {
			t.Errorf("%s not declared", tt.name)
			continue
		}
		if f.Type != tt.typ || f.IsStatic() != tt.static {
			t.Errorf("%s: type %s static %v", tt.name, f.Type, f.IsStatic())
		}
		if f.Mods.Has(ir.ModFinal) || !f.Mods.Has(ir.ModPublic) {
			t.Errorf("%s: modifiers %v not widened", tt.name, f.Mods)
		}
	}
	if c.Field("$assertionsDisabled$dryRun") != nil {
		t.Error("assertion flag shadowed")
	}

	if n, _ := ps.Declare(c); n != 0 {
		t.Errorf("second Declare added %d pairs", n)
	}
}

func TestRewrite(t *testing.T) {
	p := irtest.Load(t, src)
	ps := New(p, nil)
	if _, err := ps.Declare(p.Class("demo.Counter")); err != nil {
		t.Fatal(err)
	}
	m := irtest.Method(t, p, "demo.Counter", "bump")

	n, err := ps.Rewrite(m)
	if err != nil {
		t.Fatalf("Rewrite: %v\n%s", err, m.Body)
	}
	if n != 3 {
		t.Errorf("rewrote %d accesses, want 3", n)
	}

	var origReads, origWrites, shallowCopies int
	for _, s := range m.Body.Stmts {
		a, isAssign := s.(*ir.AssignStmt)
		if inv := ir.InvokeOf(s); inv != nil && inv.Method.Name == "shallowCopy" {
			shallowCopies++
		}
		for _, v := range ir.FieldRefs(s) {
			name := fieldRef(v).Name
			if name != "count" && name != "cache" {
				continue
			}
			if isAssign && a.LHS == v {
				origWrites++
			} else {
				origReads++
			}
		}
	}
	if origWrites != 0 {
		t.Errorf("instrumented body writes %d original fields", origWrites)
	}
	// Each of the two reads is reconciled once; the write needs no read.
	if origReads != 2 {
		t.Errorf("original fields read %d times, want 2 (reconciliation only)", origReads)
	}
	if shallowCopies != 1 {
		t.Errorf("%d shallowCopy calls, want 1 for the reference field", shallowCopies)
	}
}

func TestRewriteWriteSetsFlag(t *testing.T) {
	p := irtest.Load(t, src)
	ps := New(p, nil)
	ps.Declare(p.Class("demo.Counter"))
	m := irtest.Method(t, p, "demo.Counter", "bump")

	var write ir.Stmt
	for _, s := range m.Body.Stmts {
		if a, ok := s.(*ir.AssignStmt); ok {
			if _, ok := a.LHS.(*ir.InstanceFieldRef); ok {
				write = s
			}
		}
	}
	if _, err := ps.Rewrite(m); err != nil {
		t.Fatal(err)
	}
	next := m.Body.Stmts[m.Body.IndexOf(write)+1].(*ir.AssignStmt)
	if r, ok := next.LHS.(*ir.InstanceFieldRef); !ok || r.Field.Name != "count$dryRun$setByDryRun" {
		t.Errorf("write is followed by %s", m.Body.StmtString(next))
	}
	if r := write.(*ir.AssignStmt).LHS.(*ir.InstanceFieldRef); r.Field.Name != "count$dryRun" {
		t.Errorf("write targets %s", r.Field.Name)
	}
}

func TestRewriteIgnoresFieldsWithoutPair(t *testing.T) {
	p := irtest.Load(t, src)
	m := irtest.Method(t, p, "demo.Counter", "bump")
	before := m.Body.String()
	n, err := New(p, nil).Rewrite(m)
	if err != nil || n != 0 {
		t.Fatalf("Rewrite = %d, %v", n, err)
	}
	if m.Body.String() != before {
		t.Error("body changed without declared pairs")
	}
}
