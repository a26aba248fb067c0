// Package snapshot generates the code that captures a method's live state
// at a divergence point and the code that puts it back.
//
// CAPTURE builds a java.util.HashMap, stores every eligible value in it
// under the variable's name and hands the map to the runtime's
// recordState. Primitives are boxed first; every value, boxed or not,
// travels inside a dryrun.runtime.WrapContext carrier. RESTORE reverses
// the protocol: getState, then per name get, unwrap, cast and unbox.
// FIELD-CAPTURE and FIELD-RESTORE do the same over the declaring class's
// fields through recordFieldState and getFieldState.
//
// A restore that runs without a prior capture fails inside getState with
// the runtime's stale-or-missing-snapshot error rather than at a cast.
package snapshot

import (
	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// TempPrefix starts the name of every local the codegen declares.
const TempPrefix = "$snap"

// Generator emits capture and restore sequences using a boxing table.
type Generator struct {
	boxing abi.BoxingTable
}

// New returns a generator for table. A table that cannot round-trip some
// primitive is refused with *abi.BoxingDefectError.
func New(table abi.BoxingTable) (*Generator, error) {
	if err := table.Check(); err != nil {
		return nil, err
	}
	return &Generator{boxing: table}, nil
}

// Eligible returns the locals of b that a snapshot covers: every declared
// local except the receiver, the parameters and the temporaries declared by
// instrumentation passes. Program locals named with '$', such as stack
// temporaries, are covered like any other.
func Eligible(b *ir.Body) []*ir.Local {
	bound := b.BoundLocals()
	var out []*ir.Local
	for _, l := range b.Locals {
		if bound[l] || l.Generated {
			continue
		}
		out = append(out, l)
	}
	return out
}

// EligibleFields returns the fields of c that a field snapshot of a method
// covers. Instance fields are left out for static methods. Final fields,
// the compiler's assertion flag and fields generated by the passes
// (including the isShadow control field) are never captured.
func EligibleFields(c *ir.Class, static bool) []*ir.Field {
	var out []*ir.Field
	for _, f := range c.Fields {
		switch {
		case f.Mods.Has(ir.ModFinal),
			f.Name == abi.AssertionsDisabledField,
			abi.IsGeneratedName(f.Name),
			static && !f.IsStatic():
			continue
		}
		out = append(out, f)
	}
	return out
}

// Capture returns the statements that record locals under sig. The
// statements use fresh locals declared in b.
func (g *Generator) Capture(b *ir.Body, sig string, locals []*ir.Local) []ir.Stmt {
	vals := make([]namedValue, len(locals))
	for i, l := range locals {
		vals[i] = namedValue{name: l.Name, val: l}
	}
	return g.capture(b, sig, vals, abi.RecordState())
}

// CaptureFields returns the statements that record fields under sig. this
// is the receiver local, or nil in a static method.
func (g *Generator) CaptureFields(b *ir.Body, sig string, this *ir.Local, fields []*ir.Field) []ir.Stmt {
	vals := make([]namedValue, 0, len(fields))
	for _, f := range fields {
		if ref := fieldValue(this, f); ref != nil {
			vals = append(vals, namedValue{name: f.Name, val: ref})
		}
	}
	return g.capture(b, sig, vals, abi.RecordFieldState())
}

// Restore returns the statements that assign the locals recorded under
// sig back to locals.
func (g *Generator) Restore(b *ir.Body, sig string, locals []*ir.Local) []ir.Stmt {
	vals := make([]namedValue, len(locals))
	for i, l := range locals {
		vals[i] = namedValue{name: l.Name, val: l}
	}
	return g.restore(b, sig, vals, abi.GetState())
}

// RestoreFields returns the statements that write the fields recorded
// under sig back.
func (g *Generator) RestoreFields(b *ir.Body, sig string, this *ir.Local, fields []*ir.Field) []ir.Stmt {
	return g.RestoreFieldsTo(b, sig, this, fields, nil)
}

// RestoreFieldsTo is RestoreFields with the value recorded for f written
// to dst(f) instead. The value is still looked up under f's name. A nil
// dst, or one returning nil, keeps f.
func (g *Generator) RestoreFieldsTo(b *ir.Body, sig string, this *ir.Local, fields []*ir.Field, dst func(*ir.Field) *ir.Field) []ir.Stmt {
	vals := make([]namedValue, 0, len(fields))
	for _, f := range fields {
		target := f
		if dst != nil {
			if d := dst(f); d != nil {
				target = d
			}
		}
		if ref := fieldValue(this, target); ref != nil {
			vals = append(vals, namedValue{name: f.Name, val: ref})
		}
	}
	return g.restore(b, sig, vals, abi.GetFieldState())
}

type namedValue struct {
	name string
	val  ir.Value // *ir.Local, *ir.InstanceFieldRef or *ir.StaticFieldRef
}

func (v namedValue) typ() ir.Type { return v.val.Type() }

func fieldValue(this *ir.Local, f *ir.Field) ir.Value {
	if f.IsStatic() {
		return &ir.StaticFieldRef{Field: f.Ref()}
	}
	if this == nil {
		return nil
	}
	return &ir.InstanceFieldRef{Base: this, Field: f.Ref()}
}

var (
	mapType     = ir.RefType(abi.MapClass)
	hashMapType = ir.RefType(abi.HashMapClass)
	carrierType = ir.RefType(abi.WrapContextClass)
)

func (g *Generator) capture(b *ir.Body, sig string, vals []namedValue, record ir.MethodRef) []ir.Stmt {
	state := b.NewLocal(TempPrefix, hashMapType)
	out := []ir.Stmt{
		ir.NewAssign(state, &ir.NewExpr{Class: abi.HashMapClass}),
		ir.NewInvokeStmt(ir.NewInstanceInvoke(ir.InvokeSpecial, state, abi.HashMapInit())),
	}
	for _, v := range vals {
		var payload ir.Value = v.val
		if _, ok := v.val.(*ir.Local); !ok {
			// Field refs are not invoke arguments; load into a local first.
			tmp := b.NewLocal(TempPrefix, v.typ())
			out = append(out, ir.NewAssign(tmp, v.val))
			payload = tmp
		}
		if box, ok := g.boxing.Lookup(v.typ()); ok {
			boxed := b.NewLocal(TempPrefix, ir.RefType(box.Class))
			out = append(out, ir.NewAssign(boxed, ir.NewStaticInvoke(box.ValueOf(), payload)))
			payload = boxed
		}
		carrier := b.NewLocal(TempPrefix, carrierType)
		out = append(out,
			ir.NewAssign(carrier, &ir.NewExpr{Class: abi.WrapContextClass}),
			ir.NewInvokeStmt(ir.NewInstanceInvoke(ir.InvokeSpecial, carrier, abi.WrapContextInit(), payload)),
			ir.NewInvokeStmt(ir.NewInstanceInvoke(ir.InvokeInterface, state, abi.MapPut(), ir.StringConst(v.name), carrier)),
		)
	}
	out = append(out, ir.NewInvokeStmt(ir.NewStaticInvoke(record, ir.StringConst(sig), state)))
	return out
}

func (g *Generator) restore(b *ir.Body, sig string, vals []namedValue, get ir.MethodRef) []ir.Stmt {
	state := b.NewLocal(TempPrefix, mapType)
	out := []ir.Stmt{ir.NewAssign(state, ir.NewStaticInvoke(get, ir.StringConst(sig)))}
	for _, v := range vals {
		obj := b.NewLocal(TempPrefix, ir.ObjectType)
		carrier := b.NewLocal(TempPrefix, carrierType)
		raw := b.NewLocal(TempPrefix, ir.ObjectType)
		out = append(out,
			ir.NewAssign(obj, ir.NewInstanceInvoke(ir.InvokeInterface, state, abi.MapGet(), ir.StringConst(v.name))),
			ir.NewAssign(carrier, &ir.CastExpr{To: carrierType, X: obj}),
			ir.NewAssign(raw, ir.NewInstanceInvoke(ir.InvokeVirtual, carrier, abi.WrapContextGetValue())),
		)
		t := v.typ()
		box, ok := g.boxing.Lookup(t)
		if !ok {
			if t == ir.ObjectType {
				out = append(out, ir.NewAssign(v.val, raw))
				continue
			}
			typed := b.NewLocal(TempPrefix, t)
			out = append(out,
				ir.NewAssign(typed, &ir.CastExpr{To: t, X: raw}),
				ir.NewAssign(v.val, typed),
			)
			continue
		}
		wrapper := b.NewLocal(TempPrefix, ir.RefType(box.Class))
		out = append(out, ir.NewAssign(wrapper, &ir.CastExpr{To: ir.RefType(box.Class), X: raw}))
		unboxed := ir.NewInstanceInvoke(ir.InvokeVirtual, wrapper, box.UnboxMethod())
		if _, isLocal := v.val.(*ir.Local); isLocal {
			out = append(out, ir.NewAssign(v.val, unboxed))
			continue
		}
		prim := b.NewLocal(TempPrefix, t)
		out = append(out, ir.NewAssign(prim, unboxed), ir.NewAssign(v.val, prim))
	}
	return out
}
