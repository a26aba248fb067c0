package ir

// Pos records where a statement came from. Line is 0 for generated code.
type Pos struct {
	Line int
}

// Position returns the source position of the statement.
func (p *Pos) Position() Pos { return *p }

// Stmt is a single instruction. Statements are identified by pointer;
// every implementation is a non-zero-sized struct so that distinct
// statements never compare equal.
type Stmt interface {
	Position() Pos
}

// IdentityStmt binds a parameter, the receiver or a caught exception to
// Local at method or handler entry.
type IdentityStmt struct {
	Pos
	Local *Local
	Ref   Value // *ThisRef, *ParamRef or *CaughtExceptionRef
}

// AssignStmt stores RHS into LHS. LHS is a *Local, *InstanceFieldRef or
// *StaticFieldRef.
type AssignStmt struct {
	Pos
	LHS Value
	RHS Value
}

// InvokeStmt evaluates a call for its side effects.
type InvokeStmt struct {
	Pos
	Invoke *InvokeExpr
}

// IfStmt jumps to Target when Cond holds.
type IfStmt struct {
	Pos
	Cond   *BinopExpr
	Target Stmt
}

// GotoStmt jumps to Target.
type GotoStmt struct {
	Pos
	Target Stmt
}

// NopStmt does nothing. Generated code uses it as a jump label.
type NopStmt struct {
	Pos
}

// ReturnStmt returns Value.
type ReturnStmt struct {
	Pos
	Value Value
}

// ReturnVoidStmt returns from a void method.
type ReturnVoidStmt struct {
	Pos
}

// ThrowStmt raises Value.
type ThrowStmt struct {
	Pos
	Value Value
}

// Statement constructors used by the passes.
func NewAssign(lhs, rhs Value) *AssignStmt       { return &AssignStmt{LHS: lhs, RHS: rhs} }
func NewInvokeStmt(e *InvokeExpr) *InvokeStmt    { return &InvokeStmt{Invoke: e} }
func NewIf(cond *BinopExpr, target Stmt) *IfStmt { return &IfStmt{Cond: cond, Target: target} }
func NewGoto(target Stmt) *GotoStmt              { return &GotoStmt{Target: target} }
func NewNop() *NopStmt                           { return &NopStmt{} }
func NewReturn(v Value) *ReturnStmt              { return &ReturnStmt{Value: v} }
func NewReturnVoid() *ReturnVoidStmt             { return &ReturnVoidStmt{} }
func NewThrow(v Value) *ThrowStmt                { return &ThrowStmt{Value: v} }

// NewIdentity binds ref to l.
func NewIdentity(l *Local, ref Value) *IdentityStmt {
	return &IdentityStmt{Local: l, Ref: ref}
}

// InvokeOf returns the call made by s, or nil if s makes none. Both
// "invoke" statements and "x = invoke" assignments qualify.
func InvokeOf(s Stmt) *InvokeExpr {
	switch st := s.(type) {
	case *InvokeStmt:
		return st.Invoke
	case *AssignStmt:
		if inv, ok := st.RHS.(*InvokeExpr); ok {
			return inv
		}
	}
	return nil
}

// SetInvoke replaces the call made by s. It reports false if s makes no call.
func SetInvoke(s Stmt, inv *InvokeExpr) bool {
	switch st := s.(type) {
	case *InvokeStmt:
		st.Invoke = inv
		return true
	case *AssignStmt:
		if _, ok := st.RHS.(*InvokeExpr); ok {
			st.RHS = inv
			return true
		}
	}
	return false
}

// Targets returns the statements s may jump to.
func Targets(s Stmt) []Stmt {
	switch st := s.(type) {
	case *IfStmt:
		return []Stmt{st.Target}
	case *GotoStmt:
		return []Stmt{st.Target}
	}
	return nil
}

// FallsThrough reports whether control can continue to the statement after s.
func FallsThrough(s Stmt) bool {
	switch s.(type) {
	case *GotoStmt, *ReturnStmt, *ReturnVoidStmt, *ThrowStmt:
		return false
	}
	return true
}

// IsIdentity reports whether s is a parameter, receiver or exception binding.
func IsIdentity(s Stmt) bool {
	_, ok := s.(*IdentityStmt)
	return ok
}

// Values returns the top-level values s reads or writes.
func Values(s Stmt) []Value {
	switch st := s.(type) {
	case *IdentityStmt:
		return []Value{st.Local, st.Ref}
	case *AssignStmt:
		return []Value{st.LHS, st.RHS}
	case *InvokeStmt:
		return []Value{st.Invoke}
	case *IfStmt:
		return []Value{st.Cond}
	case *ReturnStmt:
		return []Value{st.Value}
	case *ThrowStmt:
		return []Value{st.Value}
	}
	return nil
}

// FieldRefs returns every field reference s touches, in evaluation order.
func FieldRefs(s Stmt) []Value {
	var refs []Value
	for _, v := range Values(s) {
		Walk(v, func(x Value) {
			switch x.(type) {
			case *InstanceFieldRef, *StaticFieldRef:
				refs = append(refs, x)
			}
		})
	}
	return refs
}

func retarget(s Stmt, from, to Stmt) bool {
	switch st := s.(type) {
	case *IfStmt:
		if st.Target == from {
			st.Target = to
			return true
		}
	case *GotoStmt:
		if st.Target == from {
			st.Target = to
			return true
		}
	}
	return false
}
