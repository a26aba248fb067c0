package locator

import (
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
)

// Predicate decides which statements are divergence points.
type Predicate interface {
	// Chain reports whether s calls a configured target. The locator
	// records s and continues in the callee.
	Chain(s ir.Stmt) (ir.MethodRef, bool)

	// Terminal reports whether s is a divergence point that ends the
	// chain.
	Terminal(s ir.Stmt) bool
}

// targets matches calls by declaring type and method name.
type targets struct {
	prog *ir.Program
	list []config.Target
}

func (t targets) Chain(s ir.Stmt) (ir.MethodRef, bool) {
	inv := ir.InvokeOf(s)
	if inv == nil {
		return ir.MethodRef{}, false
	}
	for _, tg := range t.list {
		if inv.Method.Name == tg.Method && t.prog.IsSubtype(inv.Method.Class, tg.Class) {
			return inv.Method, true
		}
	}
	return ir.MethodRef{}, false
}

// Debug treats every conditional branch as a divergence point.
type Debug struct {
	targets
}

// Terminal implements Predicate.
func (Debug) Terminal(s ir.Stmt) bool {
	_, ok := s.(*ir.IfStmt)
	return ok
}

// Production matches configured blocking calls and field reads.
type Production struct {
	targets
	reads []config.FieldRead
}

// Terminal implements Predicate. A read of a configured field ends the
// chain.
func (p Production) Terminal(s ir.Stmt) bool {
	as, ok := s.(*ir.AssignStmt)
	if !ok {
		return false
	}
	var ref ir.FieldRef
	switch rhs := as.RHS.(type) {
	case *ir.InstanceFieldRef:
		ref = rhs.Field
	case *ir.StaticFieldRef:
		ref = rhs.Field
	default:
		return false
	}
	for _, r := range p.reads {
		if ref.Name == r.Field && p.prog.IsSubtype(ref.Class, r.Class) {
			return true
		}
	}
	return false
}

// NewPredicate builds the predicate the configuration selects.
func NewPredicate(p *ir.Program, ff config.FastForward) Predicate {
	t := targets{prog: p, list: ff.Targets}
	if ff.Debug() {
		return Debug{t}
	}
	return Production{targets: t, reads: ff.FieldReads}
}
