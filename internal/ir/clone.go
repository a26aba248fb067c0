package ir

import "fmt"

// Clone returns a deep copy of the body together with the mapping from each
// original statement to its copy. Locals are copied by name; branch targets
// and trap edges are remapped into the copy.
func (b *Body) Clone() (*Body, map[Stmt]Stmt) {
	c := &cloner{
		locals: make(map[*Local]*Local, len(b.Locals)),
		stmts:  make(map[Stmt]Stmt, len(b.Stmts)),
	}
	nb := &Body{
		Locals: make([]*Local, len(b.Locals)),
		Stmts:  make([]Stmt, len(b.Stmts)),
	}
	for i, l := range b.Locals {
		nb.Locals[i] = c.local(l)
	}
	for i, s := range b.Stmts {
		nb.Stmts[i] = c.stmt(s)
	}
	// Second pass: branch targets may point forward.
	for _, s := range nb.Stmts {
		switch st := s.(type) {
		case *IfStmt:
			st.Target = c.stmts[st.Target]
		case *GotoStmt:
			st.Target = c.stmts[st.Target]
		}
	}
	for _, t := range b.Traps {
		nb.Traps = append(nb.Traps, &Trap{
			Exception: t.Exception,
			Begin:     c.stmts[t.Begin],
			End:       c.stmts[t.End],
			Handler:   c.stmts[t.Handler],
		})
	}
	return nb, c.stmts
}

type cloner struct {
	locals map[*Local]*Local
	stmts  map[Stmt]Stmt
}

func (c *cloner) local(l *Local) *Local {
	if l == nil {
		return nil
	}
	if nl, ok := c.locals[l]; ok {
		return nl
	}
	nl := &Local{Name: l.Name, typ: l.typ, Generated: l.Generated}
	c.locals[l] = nl
	return nl
}

func (c *cloner) stmt(s Stmt) Stmt {
	var ns Stmt
	switch st := s.(type) {
	case *IdentityStmt:
		ns = &IdentityStmt{Pos: st.Pos, Local: c.local(st.Local), Ref: c.value(st.Ref)}
	case *AssignStmt:
		ns = &AssignStmt{Pos: st.Pos, LHS: c.value(st.LHS), RHS: c.value(st.RHS)}
	case *InvokeStmt:
		ns = &InvokeStmt{Pos: st.Pos, Invoke: c.value(st.Invoke).(*InvokeExpr)}
	case *IfStmt:
		ns = &IfStmt{Pos: st.Pos, Cond: c.value(st.Cond).(*BinopExpr), Target: st.Target}
	case *GotoStmt:
		ns = &GotoStmt{Pos: st.Pos, Target: st.Target}
	case *NopStmt:
		ns = &NopStmt{Pos: st.Pos}
	case *ReturnStmt:
		ns = &ReturnStmt{Pos: st.Pos, Value: c.value(st.Value)}
	case *ReturnVoidStmt:
		ns = &ReturnVoidStmt{Pos: st.Pos}
	case *ThrowStmt:
		ns = &ThrowStmt{Pos: st.Pos, Value: c.value(st.Value)}
	default:
		panic(fmt.Sprintf("ir: cannot clone statement of type %T", s))
	}
	c.stmts[s] = ns
	return ns
}

func (c *cloner) value(v Value) Value {
	switch e := v.(type) {
	case nil:
		return nil
	case *Local:
		return c.local(e)
	case *Constant:
		cp := *e
		return &cp
	case *InstanceFieldRef:
		return &InstanceFieldRef{Base: c.local(e.Base), Field: e.Field}
	case *StaticFieldRef:
		return &StaticFieldRef{Field: e.Field}
	case *InvokeExpr:
		ne := &InvokeExpr{Kind: e.Kind, Base: c.local(e.Base), Method: e.Method.WithName(e.Method.Name)}
		for _, a := range e.Args {
			ne.Args = append(ne.Args, c.value(a))
		}
		return ne
	case *BinopExpr:
		return &BinopExpr{Op: e.Op, X: c.value(e.X), Y: c.value(e.Y)}
	case *CastExpr:
		return &CastExpr{To: e.To, X: c.value(e.X)}
	case *NewExpr:
		return &NewExpr{Class: e.Class}
	case *ThisRef:
		return &ThisRef{typ: e.typ}
	case *ParamRef:
		return &ParamRef{Index: e.Index, typ: e.typ}
	case *CaughtExceptionRef:
		return &CaughtExceptionRef{typ: e.typ}
	}
	panic(fmt.Sprintf("ir: cannot clone value of type %T", v))
}
