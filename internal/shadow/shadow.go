// Package shadow isolates dry-run field writes from the production path.
//
// Every eligible field f gets a same-typed copy f$dryRun and a boolean
// f$dryRun$setByDryRun. Inside instrumented bodies each access to f is
// redirected to f$dryRun. Reads are preceded by a one-time reconciliation:
//
//	$set = base.f$dryRun$setByDryRun
//	if $set == true goto access
//	base.f$dryRun = base.f                      (primitive)
//	base.f$dryRun = shallowCopy(base.f, base.f$dryRun, $set)   (reference)
//	base.f$dryRun$setByDryRun = true
//	access: ... base.f$dryRun ...
//
// Writes go straight to the copy and set the flag afterwards. The original
// field is never written from an instrumented body.
package shadow

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

const setLocalPrefix = "$setByDryRun"

// Eligible reports whether f gets a shadow pair. The compiler's assertion
// flag and fields generated by the passes are left alone.
func Eligible(f *ir.Field) bool {
	return f.Name != abi.AssertionsDisabledField && !abi.IsGeneratedName(f.Name)
}

// Pass declares shadow pairs and rewrites field accesses.
type Pass struct {
	prog *ir.Program
	log  logrus.FieldLogger
}

// New returns a pass over p. A nil log discards messages.
func New(p *ir.Program, log logrus.FieldLogger) *Pass {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Pass{prog: p, log: log.WithField("pass", "shadow")}
}

// Declare adds the shadow pair of every eligible field of c and returns
// how many pairs were added. Interfaces and enums are skipped. Existing
// pairs are kept, so declaring twice adds nothing.
func (ps *Pass) Declare(c *ir.Class) (int, error) {
	if c.IsInterface() || c.IsEnum() {
		return 0, nil
	}
	n := 0
	for _, f := range append([]*ir.Field(nil), c.Fields...) {
		if !Eligible(f) || c.Field(abi.DryRunFieldName(f.Name)) != nil {
			continue
		}
		mods := (f.Mods &^ ir.ModFinal).WidenToPublic()
		if err := c.AddField(&ir.Field{Name: abi.DryRunFieldName(f.Name), Type: f.Type, Mods: mods}); err != nil {
			return n, err
		}
		if err := c.AddField(&ir.Field{Name: abi.SetByDryRunFieldName(f.Name), Type: ir.Boolean, Mods: mods}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		ps.log.WithFields(logrus.Fields{"class": c.Name, "fields": n}).Debug("declared shadow fields")
	}
	return n, nil
}

// pair returns the shadow field and flag of the field ref denotes, or nil
// when it has none.
func (ps *Pass) pair(ref ir.FieldRef) (dry, set *ir.Field) {
	f := ps.prog.ResolveField(ref)
	if f == nil || !Eligible(f) {
		return nil, nil
	}
	return f.Class.Field(abi.DryRunFieldName(f.Name)), f.Class.Field(abi.SetByDryRunFieldName(f.Name))
}

type access struct {
	stmt  ir.Stmt
	ref   ir.Value // *ir.InstanceFieldRef or *ir.StaticFieldRef
	write bool
	dry   *ir.Field
	set   *ir.Field
}

// Rewrite redirects the field accesses of m, an instrumented body, and
// returns the number of rewritten accesses.
func (ps *Pass) Rewrite(m *ir.Method) (int, error) {
	if !m.HasBody() {
		return 0, nil
	}
	var sites []access
	for _, s := range m.Body.Stmts {
		var lhs ir.Value
		if a, ok := s.(*ir.AssignStmt); ok {
			lhs = a.LHS
		}
		for _, v := range ir.FieldRefs(s) {
			dry, set := ps.pair(fieldRef(v))
			if dry == nil || set == nil {
				continue
			}
			sites = append(sites, access{stmt: s, ref: v, write: v == lhs, dry: dry, set: set})
		}
	}

	b := m.Body
	for _, a := range sites {
		if a.write {
			b.InsertAfter(a.stmt, ir.NewAssign(sibling(a.ref, a.set), ir.Bool(true)))
		} else {
			b.InsertBefore(a.stmt, ps.reconcile(b, a)...)
		}
		setField(a.ref, a.dry.Ref())
	}
	if len(sites) > 0 {
		ps.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name, "accesses": len(sites)}).Debug("redirected field accesses")
	}
	return len(sites), ir.Validate(m)
}

func (ps *Pass) reconcile(b *ir.Body, a access) []ir.Stmt {
	t := a.dry.Type
	flag := b.NewLocal(setLocalPrefix, ir.Boolean)
	orig := b.NewLocal(setLocalPrefix, t)
	out := []ir.Stmt{
		ir.NewAssign(flag, sibling(a.ref, a.set)),
		ir.NewIf(ir.Eq(flag, ir.Bool(true)), a.stmt),
		ir.NewAssign(orig, copyRef(a.ref)),
	}
	if t.IsPrimitive() {
		out = append(out, ir.NewAssign(sibling(a.ref, a.dry), orig))
	} else {
		dry := b.NewLocal(setLocalPrefix, t)
		copied := b.NewLocal(setLocalPrefix, ir.ObjectType)
		out = append(out,
			ir.NewAssign(dry, sibling(a.ref, a.dry)),
			ir.NewAssign(copied, ir.NewStaticInvoke(abi.ShallowCopy(), orig, dry, flag)),
		)
		var val ir.Value = copied
		if t != ir.ObjectType {
			typed := b.NewLocal(setLocalPrefix, t)
			out = append(out, ir.NewAssign(typed, &ir.CastExpr{To: t, X: copied}))
			val = typed
		}
		out = append(out, ir.NewAssign(sibling(a.ref, a.dry), val))
	}
	return append(out, ir.NewAssign(sibling(a.ref, a.set), ir.Bool(true)))
}

func fieldRef(v ir.Value) ir.FieldRef {
	switch r := v.(type) {
	case *ir.InstanceFieldRef:
		return r.Field
	case *ir.StaticFieldRef:
		return r.Field
	}
	return ir.FieldRef{}
}

func setField(v ir.Value, ref ir.FieldRef) {
	switch r := v.(type) {
	case *ir.InstanceFieldRef:
		r.Field = ref
	case *ir.StaticFieldRef:
		r.Field = ref
	}
}

// sibling returns an access to f on the same receiver as v.
func sibling(v ir.Value, f *ir.Field) ir.Value {
	if r, ok := v.(*ir.InstanceFieldRef); ok && !f.IsStatic() {
		return &ir.InstanceFieldRef{Base: r.Base, Field: f.Ref()}
	}
	return &ir.StaticFieldRef{Field: f.Ref()}
}

func copyRef(v ir.Value) ir.Value {
	switch r := v.(type) {
	case *ir.InstanceFieldRef:
		return &ir.InstanceFieldRef{Base: r.Base, Field: r.Field}
	case *ir.StaticFieldRef:
		return &ir.StaticFieldRef{Field: r.Field}
	}
	return v
}
