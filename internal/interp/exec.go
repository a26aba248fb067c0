package interp

import (
	"errors"
	"fmt"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

type frame struct {
	m      *ir.Method
	this   any
	args   []any
	locals map[*ir.Local]any
	caught *Throwable
	depth  int
}

func (f *frame) load(l *ir.Local) any {
	if v, ok := f.locals[l]; ok {
		return v
	}
	return zero(l.Type())
}

func (f *frame) store(l *ir.Local, v any) {
	f.locals[l] = coerce(v, l.Type())
}

// exec interprets the body of m.
func (in *Interp) exec(m *ir.Method, this any, args []any, depth int) (any, error) {
	if in.hook != nil {
		in.hook(m)
	}
	b := m.Body
	idx := in.indexOf(b)
	f := &frame{m: m, this: this, args: args, locals: make(map[*ir.Local]any, len(b.Locals)), depth: depth}

	for pc := 0; pc < len(b.Stmts); {
		if err := in.step(); err != nil {
			return nil, err
		}
		next, ret, done, err := in.execStmt(f, b.Stmts[pc], pc, idx)
		if err != nil {
			h, t, ok := in.catch(b, idx, pc, err)
			if !ok {
				return nil, err
			}
			f.caught = t
			pc = h
			continue
		}
		if done {
			return coerce(ret, m.Return), nil
		}
		pc = next
	}
	return nil, ir.NewError(m, nil, "execution ran past the last statement")
}

// catch finds the handler of the first trap covering pc whose exception
// class matches err.
func (in *Interp) catch(b *ir.Body, idx map[ir.Stmt]int, pc int, err error) (int, *Throwable, bool) {
	var t *Throwable
	if !errors.As(err, &t) {
		return 0, nil, false
	}
	for _, tr := range b.Traps {
		begin, ok1 := idx[tr.Begin]
		end, ok2 := idx[tr.End]
		h, ok3 := idx[tr.Handler]
		if !ok1 || !ok2 || !ok3 || pc < begin || pc >= end {
			continue
		}
		if in.prog.IsSubtype(t.Object.Class, tr.Exception) {
			return h, t, true
		}
	}
	return 0, nil, false
}

func (in *Interp) execStmt(f *frame, s ir.Stmt, pc int, idx map[ir.Stmt]int) (next int, ret any, done bool, err error) {
	next = pc + 1
	switch st := s.(type) {
	case *ir.IdentityStmt:
		switch r := st.Ref.(type) {
		case *ir.ThisRef:
			f.store(st.Local, f.this)
		case *ir.ParamRef:
			if r.Index >= len(f.args) {
				return 0, nil, false, ir.NewError(f.m, s, fmt.Sprintf("parameter %d not passed", r.Index))
			}
			f.store(st.Local, f.args[r.Index])
		case *ir.CaughtExceptionRef:
			if f.caught != nil {
				f.store(st.Local, f.caught.Object)
			}
		}
	case *ir.AssignStmt:
		v, err := in.eval(f, st.RHS)
		if err != nil {
			return 0, nil, false, err
		}
		if err := in.assign(f, st.LHS, v); err != nil {
			return 0, nil, false, err
		}
	case *ir.InvokeStmt:
		if _, err := in.eval(f, st.Invoke); err != nil {
			return 0, nil, false, err
		}
	case *ir.IfStmt:
		v, err := in.eval(f, st.Cond)
		if err != nil {
			return 0, nil, false, err
		}
		if b, _ := v.(bool); b {
			next = idx[st.Target]
		}
	case *ir.GotoStmt:
		next = idx[st.Target]
	case *ir.NopStmt:
	case *ir.ReturnStmt:
		v, err := in.eval(f, st.Value)
		if err != nil {
			return 0, nil, false, err
		}
		return 0, v, true, nil
	case *ir.ReturnVoidStmt:
		return 0, nil, true, nil
	case *ir.ThrowStmt:
		v, err := in.eval(f, st.Value)
		if err != nil {
			return 0, nil, false, err
		}
		o, ok := v.(*Object)
		if !ok || o == nil {
			return 0, nil, false, in.throw(abi.NullPointerExceptionClass, "throw null")
		}
		if f.caught != nil && f.caught.Object.Same(o) {
			return 0, nil, false, f.caught
		}
		return 0, nil, false, &Throwable{Object: o}
	default:
		return 0, nil, false, ir.NewError(f.m, s, fmt.Sprintf("unsupported statement %T", s))
	}
	return next, nil, false, nil
}

func (in *Interp) assign(f *frame, lhs ir.Value, v any) error {
	switch l := lhs.(type) {
	case *ir.Local:
		f.store(l, v)
	case *ir.InstanceFieldRef:
		o, ok := f.load(l.Base).(*Object)
		if !ok || o == nil {
			return in.throw(abi.NullPointerExceptionClass, "write of "+l.Field.Name+" on null")
		}
		o.Set(l.Field.Name, coerce(v, l.Field.Type))
	case *ir.StaticFieldRef:
		return in.setStatic(l.Field, v)
	default:
		return fmt.Errorf("cannot assign to %T", lhs)
	}
	return nil
}

func (in *Interp) eval(f *frame, v ir.Value) (any, error) {
	switch x := v.(type) {
	case *ir.Local:
		return f.load(x), nil
	case *ir.Constant:
		if x.Value == nil {
			return nil, nil
		}
		return x.Value, nil
	case *ir.InstanceFieldRef:
		o, ok := f.load(x.Base).(*Object)
		if !ok || o == nil {
			return nil, in.throw(abi.NullPointerExceptionClass, "read of "+x.Field.Name+" on null")
		}
		if v, ok := o.lookup(x.Field.Name); ok {
			return v, nil
		}
		return zero(x.Field.Type), nil
	case *ir.StaticFieldRef:
		return in.getStatic(x.Field)
	case *ir.InvokeExpr:
		var recv any
		if x.Base != nil {
			recv = f.load(x.Base)
		}
		args := make([]any, len(x.Args))
		for i, a := range x.Args {
			av, err := in.eval(f, a)
			if err != nil {
				return nil, err
			}
			if i < len(x.Method.Params) {
				av = coerce(av, x.Method.Params[i])
			}
			args[i] = av
		}
		return in.invoke(x.Kind, x.Method, recv, args, f.depth)
	case *ir.BinopExpr:
		a, err := in.eval(f, x.X)
		if err != nil {
			return nil, err
		}
		b, err := in.eval(f, x.Y)
		if err != nil {
			return nil, err
		}
		r, err := binop(x.Op, a, b)
		if errors.Is(err, errDivideByZero) {
			return nil, in.throw(abi.ArithmeticExceptionClass, err.Error())
		}
		return r, err
	case *ir.CastExpr:
		a, err := in.eval(f, x.X)
		if err != nil {
			return nil, err
		}
		return in.cast(x.To, a)
	case *ir.NewExpr:
		if err := in.ensureInit(x.Class); err != nil {
			return nil, err
		}
		return NewObject(x.Class), nil
	}
	return nil, fmt.Errorf("cannot evaluate %T", v)
}
