package ir

import "fmt"

// Validate checks the structural well-formedness of m's body. It is run
// after every rewrite; a body that fails validation must not be accepted.
//
// Checked properties:
//   - branch targets and trap edges belong to the body
//   - every local a statement uses is declared in the body
//   - receiver and parameter bindings appear only in the leading prologue
//   - return statements agree with the method's return type
//   - assignments write to a local or a field
//   - instance calls and field accesses have a receiver; static calls do not
//   - control cannot run off the end of the body
//
// Returns nil for methods without a body.
func Validate(m *Method) error {
	b := m.Body
	if b == nil {
		return nil
	}
	members := make(map[Stmt]bool, len(b.Stmts))
	for _, s := range b.Stmts {
		if members[s] {
			return NewError(m, s, "statement appears twice in body")
		}
		members[s] = true
	}
	declared := make(map[*Local]bool, len(b.Locals))
	for _, l := range b.Locals {
		declared[l] = true
	}

	prologue := true
	for _, s := range b.Stmts {
		for _, t := range Targets(s) {
			if !members[t] {
				return NewError(m, s, "branch target is not part of the body")
			}
		}
		var bad *Local
		for _, v := range Values(s) {
			Walk(v, func(x Value) {
				if l, ok := x.(*Local); ok && bad == nil && !declared[l] {
					bad = l
				}
			})
		}
		if bad != nil {
			return NewErrorWithSuggestion(m, s, fmt.Sprintf("local %s is not declared", bad.Name),
				"Declare generated locals through Body.NewLocal")
		}
		if err := validateStmt(m, s, &prologue); err != nil {
			return err
		}
	}

	for _, t := range b.Traps {
		if !members[t.Begin] || !members[t.End] || !members[t.Handler] {
			return NewError(m, nil, fmt.Sprintf("trap for %s refers to a statement outside the body", t.Exception))
		}
		if b.IndexOf(t.Begin) >= b.IndexOf(t.End) {
			return NewError(m, t.Begin, fmt.Sprintf("trap for %s has an empty range", t.Exception))
		}
	}

	if n := len(b.Stmts); n == 0 || FallsThrough(b.Stmts[n-1]) {
		return NewErrorWithSuggestion(m, nil, "control falls off the end of the body",
			"End the body with return, throw or goto")
	}
	return nil
}

func validateStmt(m *Method, s Stmt, prologue *bool) error {
	switch st := s.(type) {
	case *IdentityStmt:
		switch ref := st.Ref.(type) {
		case *ThisRef:
			if !*prologue || m.IsStatic() {
				return NewError(m, s, "@this bound outside the prologue or in a static method")
			}
		case *ParamRef:
			if !*prologue {
				return NewError(m, s, "parameter bound outside the prologue")
			}
			if ref.Index < 0 || ref.Index >= len(m.Params) {
				return NewError(m, s, fmt.Sprintf("parameter index %d out of range", ref.Index))
			}
		case *CaughtExceptionRef:
			*prologue = false
		default:
			return NewError(m, s, "identity statement binds an unsupported reference")
		}
		return nil
	case *AssignStmt:
		switch st.LHS.(type) {
		case *Local, *InstanceFieldRef, *StaticFieldRef:
		default:
			return NewError(m, s, "assignment target is not a local or field")
		}
	case *ReturnStmt:
		if m.Return.IsVoid() {
			return NewError(m, s, "value returned from void method")
		}
	case *ReturnVoidStmt:
		if !m.Return.IsVoid() {
			return NewError(m, s, "missing return value")
		}
	}
	*prologue = false

	for _, v := range Values(s) {
		var err error
		Walk(v, func(x Value) {
			if err != nil {
				return
			}
			switch e := x.(type) {
			case *InvokeExpr:
				if (e.Kind == InvokeStatic) != (e.Base == nil) {
					err = NewError(m, s, fmt.Sprintf("%s has an inconsistent receiver", e.Kind))
				}
			case *InstanceFieldRef:
				if e.Base == nil {
					err = NewError(m, s, "instance field access without receiver")
				}
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}
