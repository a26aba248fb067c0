// Package redirect rewrites call sites so that each variant keeps calling
// variants of its own kind: instrumented bodies reach m$instrumentation,
// primary and original bodies reach m$original, and shadow bodies reach
// m$shadow. A call is rewritten only when the resolved target declares a
// sibling of the same shape under the variant name. Constructor calls and
// calls that already target a generated name are never rewritten.
package redirect

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/variant"
)

// TargetName returns the callee name a body of kind calls instead of name.
func TargetName(kind variant.Kind, name string) string {
	switch kind {
	case variant.Instrumented:
		return abi.InstrumentationName(name)
	case variant.Shadow:
		return abi.ShadowName(name)
	default:
		return abi.OriginalName(name)
	}
}

// Pass redirects the call sites of every recorded variant.
type Pass struct {
	prog  *ir.Program
	table *variant.Table
	log   logrus.FieldLogger
}

// New returns a pass over the variants in table. A nil log discards
// messages.
func New(p *ir.Program, table *variant.Table, log logrus.FieldLogger) *Pass {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Pass{prog: p, table: table, log: log.WithField("pass", "redirect")}
}

// Run redirects every variant and returns the number of rewritten call
// sites. A method whose rewritten body fails validation keeps its calls
// unchanged and is reported in errs.
func (ps *Pass) Run() (n int, errs []error) {
	ps.table.Each(func(k variant.Key, m *ir.Method) bool {
		c, err := ps.Method(m, k.Kind)
		if err != nil {
			errs = append(errs, err)
		}
		n += c
		return true
	})
	return n, errs
}

type site struct {
	stmt ir.Stmt
	inv  *ir.InvokeExpr
	ref  ir.MethodRef
}

// Method redirects the call sites of m, a body of kind.
func (ps *Pass) Method(m *ir.Method, kind variant.Kind) (int, error) {
	if !m.HasBody() {
		return 0, nil
	}
	var sites []site
	for _, s := range m.Body.Stmts {
		inv := ir.InvokeOf(s)
		if inv == nil || inv.Method.Name == ir.ConstructorName || inv.Method.Name == ir.StaticInitName ||
			abi.IsGeneratedName(inv.Method.Name) {
			continue
		}
		target := inv.Method.WithName(TargetName(kind, inv.Method.Name))
		resolved := ps.prog.ResolveMethod(target)
		if resolved == nil || !ir.SameShape(resolved.Ref(), inv.Method) {
			continue
		}
		sites = append(sites, site{stmt: s, inv: inv, ref: target})
	}
	if len(sites) == 0 {
		return 0, nil
	}

	saved := make([]ir.MethodRef, len(sites))
	for i, st := range sites {
		saved[i] = st.inv.Method
		st.inv.Method = st.ref
		ps.log.WithFields(logrus.Fields{
			"class":  m.Class.Name,
			"method": m.Name,
			"target": st.ref.Name,
		}).Debug("redirected call")
	}
	if err := ir.Validate(m); err != nil {
		for i, st := range sites {
			st.inv.Method = saved[i]
		}
		return 0, err
	}
	return len(sites), nil
}
