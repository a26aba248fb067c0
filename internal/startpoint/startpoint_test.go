package startpoint

import (
	"errors"
	"testing"

	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/irtest"
)

const src = `
class demo.Service extends java.lang.Object {
    method public int handle(int) {
        local this demo.Service
        local x int
        this := @this: demo.Service
        x := @parameter0: int
        x = x + 1
        return x
    }
    method public int handlePilot(int) {
        local this demo.Service
        local x int
        this := @this: demo.Service
        x := @parameter0: int
        return x
    }
    method public static void main() {
        return
    }
    method public static void mainPilot() {
        return
    }
    method public long wrongShape(int) {
        local this demo.Service
        local x int
        this := @this: demo.Service
        x := @parameter0: int
        return 0L
    }
}
`

const (
	handleSig      = "<demo.Service: int handle(int)>"
	handlePilotSig = "<demo.Service: int handlePilot(int)>"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name          string
		target, pilot string
		wantCall      ir.InvokeKind
		wantReturn    bool
	}{
		{"instance", handleSig, handlePilotSig, ir.InvokeSpecial, true},
		{"static void", "<demo.Service: void main()>", "<demo.Service: void mainPilot()>", ir.InvokeStatic, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := irtest.Load(t, src)
			ok, err := New(p, config.Startpoint{}, nil).Apply(tt.target, tt.pilot)
			if err != nil || !ok {
				t.Fatalf("Apply = %v, %v", ok, err)
			}
			m, _ := p.MethodBySignature(tt.target)
			b := m.Body
			first := b.FirstNonIdentity().(*ir.AssignStmt)
			prop := first.RHS.(*ir.InvokeExpr)
			if prop.Method.Name != "getProperty" || prop.Args[0].(*ir.Constant).Value != "PilotMode" {
				t.Errorf("first statement is %s", b.StmtString(first))
			}

			var pilotCall *ir.InvokeExpr
			var guards int
			for _, s := range b.Stmts {
				if _, ok := s.(*ir.IfStmt); ok {
					guards++
				}
				if inv := ir.InvokeOf(s); inv != nil && inv.Method.Name != "getProperty" && inv.Method.Name != "equals" {
					pilotCall = inv
					break
				}
			}
			if guards != 2 {
				t.Errorf("%d guards before the pilot call, want 2", guards)
			}
			if pilotCall == nil || pilotCall.Kind != tt.wantCall {
				t.Fatalf("pilot call = %v", pilotCall)
			}
			if len(pilotCall.Args) != len(m.Params) {
				t.Errorf("pilot called with %d args", len(pilotCall.Args))
			}
			_, hasReturn := b.Stmts[b.IndexOf(b.FirstNonIdentity())+5].(*ir.ReturnStmt)
			if hasReturn != tt.wantReturn {
				t.Errorf("return after pilot call: %v, want %v", hasReturn, tt.wantReturn)
			}
		})
	}
}

func TestApplyCustomProperty(t *testing.T) {
	p := irtest.Load(t, src)
	cfg := config.Startpoint{Property: "demo.pilot", EnabledValue: "yes"}
	if _, err := New(p, cfg, nil).Apply(handleSig, handlePilotSig); err != nil {
		t.Fatal(err)
	}
	m, _ := p.MethodBySignature(handleSig)
	var consts []any
	for _, s := range m.Body.Stmts {
		if inv := ir.InvokeOf(s); inv != nil && len(inv.Args) == 1 {
			if c, ok := inv.Args[0].(*ir.Constant); ok {
				consts = append(consts, c.Value)
			}
		}
	}
	if len(consts) != 2 || consts[0] != "demo.pilot" || consts[1] != "yes" {
		t.Errorf("constants = %v", consts)
	}
}

func TestApplyIdempotent(t *testing.T) {
	p := irtest.Load(t, src)
	ps := New(p, config.Startpoint{}, nil)
	if _, err := ps.Apply(handleSig, handlePilotSig); err != nil {
		t.Fatal(err)
	}
	before := irtest.Print(t, p)
	ok, err := ps.Apply(handleSig, handlePilotSig)
	if err != nil || ok {
		t.Fatalf("second Apply = %v, %v", ok, err)
	}
	if irtest.Print(t, p) != before {
		t.Error("second Apply changed the program")
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name          string
		target, pilot string
		wantIRError   bool
	}{
		{"missing target", "<demo.Service: int nope(int)>", handlePilotSig, false},
		{"missing pilot", handleSig, "<demo.Service: int nope(int)>", false},
		{"shape mismatch", handleSig, "<demo.Service: long wrongShape(int)>", true},
		{"static target instance pilot", "<demo.Service: void main()>", "<demo.Service: void mainPilot()>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := irtest.Load(t, src)
			if tt.name == "static target instance pilot" {
				pm, _ := p.MethodBySignature(tt.pilot)
				pm.Mods &^= ir.ModStatic
				pm.Body = nil
			}
			_, err := New(p, config.Startpoint{}, nil).Apply(tt.target, tt.pilot)
			if err == nil {
				t.Fatal("Apply succeeded")
			}
			var irErr *ir.Error
			if tt.wantIRError && !errors.As(err, &irErr) {
				t.Errorf("error %v is not an *ir.Error", err)
			}
		})
	}
}
