package ir

import (
	"slices"
	"strconv"
)

// Trap is an exception-handler region. Statements from Begin up to but not
// including End are covered; a matching exception transfers control to
// Handler.
type Trap struct {
	Exception string
	Begin     Stmt
	End       Stmt
	Handler   Stmt
}

// Body is the editable instruction sequence of one method.
type Body struct {
	Locals []*Local
	Stmts  []Stmt
	Traps  []*Trap
}

// Len returns the number of statements.
func (b *Body) Len() int { return len(b.Stmts) }

// IndexOf returns the position of s, or -1.
func (b *Body) IndexOf(s Stmt) int {
	for i, x := range b.Stmts {
		if x == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s belongs to the body.
func (b *Body) Contains(s Stmt) bool { return b.IndexOf(s) >= 0 }

// Append adds stmts at the end of the body.
func (b *Body) Append(stmts ...Stmt) {
	b.Stmts = append(b.Stmts, stmts...)
}

// InsertAt inserts stmts so that the first of them ends up at index i.
func (b *Body) InsertAt(i int, stmts ...Stmt) {
	b.Stmts = slices.Insert(b.Stmts, i, stmts...)
}

// InsertBefore inserts stmts immediately before anchor. Branches from
// existing statements and trap begin/handler edges that referred to anchor
// are moved to the first inserted statement, so that code reaching anchor
// also runs the new prefix. Branches among the inserted statements are left
// alone.
//
// Returns false if anchor is not part of the body.
func (b *Body) InsertBefore(anchor Stmt, stmts ...Stmt) bool {
	i := b.IndexOf(anchor)
	if i < 0 {
		return false
	}
	if len(stmts) == 0 {
		return true
	}
	first := stmts[0]
	for _, s := range b.Stmts {
		retarget(s, anchor, first)
	}
	for _, t := range b.Traps {
		if t.Begin == anchor {
			t.Begin = first
		}
		if t.Handler == anchor {
			t.Handler = first
		}
	}
	b.InsertAt(i, stmts...)
	return true
}

// InsertAfter inserts stmts immediately after anchor without touching any
// branch target. Returns false if anchor is not part of the body.
func (b *Body) InsertAfter(anchor Stmt, stmts ...Stmt) bool {
	i := b.IndexOf(anchor)
	if i < 0 {
		return false
	}
	b.InsertAt(i+1, stmts...)
	return true
}

// Remove deletes s. Branches and trap edges that referred to s are moved to
// the statement that followed it.
func (b *Body) Remove(s Stmt) bool {
	i := b.IndexOf(s)
	if i < 0 {
		return false
	}
	var next Stmt
	if i+1 < len(b.Stmts) {
		next = b.Stmts[i+1]
	}
	b.Stmts = slices.Delete(b.Stmts, i, i+1)
	if next != nil {
		b.redirect(s, next)
	}
	return true
}

// Replace swaps old for repl, moving every branch and trap edge along.
func (b *Body) Replace(old, repl Stmt) bool {
	i := b.IndexOf(old)
	if i < 0 {
		return false
	}
	b.Stmts[i] = repl
	b.redirect(old, repl)
	return true
}

func (b *Body) redirect(from, to Stmt) {
	for _, s := range b.Stmts {
		retarget(s, from, to)
	}
	for _, t := range b.Traps {
		if t.Begin == from {
			t.Begin = to
		}
		if t.End == from {
			t.End = to
		}
		if t.Handler == from {
			t.Handler = to
		}
	}
}

// Referrers returns the statements that branch to target.
func (b *Body) Referrers(target Stmt) []Stmt {
	var out []Stmt
	for _, s := range b.Stmts {
		for _, t := range Targets(s) {
			if t == target {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Local returns the local called name, or nil.
func (b *Body) Local(name string) *Local {
	for _, l := range b.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// AddLocal declares l in the body.
func (b *Body) AddLocal(l *Local) *Local {
	b.Locals = append(b.Locals, l)
	return l
}

// NewLocal declares a fresh temporary named prefix followed by the lowest
// number that keeps the name unique. The local is marked Generated.
func (b *Body) NewLocal(prefix string, t Type) *Local {
	taken := make(map[string]bool, len(b.Locals))
	for _, l := range b.Locals {
		taken[l.Name] = true
	}
	for i := 0; ; i++ {
		name := prefix + strconv.Itoa(i)
		if !taken[name] {
			l := NewLocal(name, t)
			l.Generated = true
			return b.AddLocal(l)
		}
	}
}

// IdentityStmts returns the leading identity statements.
func (b *Body) IdentityStmts() []*IdentityStmt {
	var out []*IdentityStmt
	for _, s := range b.Stmts {
		id, ok := s.(*IdentityStmt)
		if !ok {
			break
		}
		out = append(out, id)
	}
	return out
}

// LastIdentity returns the final leading identity statement, or nil.
func (b *Body) LastIdentity() Stmt {
	ids := b.IdentityStmts()
	if len(ids) == 0 {
		return nil
	}
	return ids[len(ids)-1]
}

// FirstNonIdentity returns the first statement after the identity prologue,
// or nil for an empty body.
func (b *Body) FirstNonIdentity() Stmt {
	n := len(b.IdentityStmts())
	if n < len(b.Stmts) {
		return b.Stmts[n]
	}
	return nil
}

// InsertAfterIdentities places stmts right after the identity prologue.
func (b *Body) InsertAfterIdentities(stmts ...Stmt) {
	b.InsertAt(len(b.IdentityStmts()), stmts...)
}

// ThisLocal returns the local bound to @this, or nil for static methods.
func (b *Body) ThisLocal() *Local {
	for _, id := range b.IdentityStmts() {
		if _, ok := id.Ref.(*ThisRef); ok {
			return id.Local
		}
	}
	return nil
}

// ParamLocals returns the locals bound to parameters, ordered by index.
func (b *Body) ParamLocals() []*Local {
	var params []*IdentityStmt
	for _, id := range b.IdentityStmts() {
		if _, ok := id.Ref.(*ParamRef); ok {
			params = append(params, id)
		}
	}
	slices.SortFunc(params, func(x, y *IdentityStmt) int {
		return x.Ref.(*ParamRef).Index - y.Ref.(*ParamRef).Index
	})
	out := make([]*Local, len(params))
	for i, id := range params {
		out[i] = id.Local
	}
	return out
}

// BoundLocals returns the locals bound to the receiver or a parameter.
func (b *Body) BoundLocals() map[*Local]bool {
	out := make(map[*Local]bool)
	for _, s := range b.Stmts {
		if id, ok := s.(*IdentityStmt); ok {
			switch id.Ref.(type) {
			case *ThisRef, *ParamRef:
				out[id.Local] = true
			}
		}
	}
	return out
}

// HandlerRegion returns the statements of exception-handler code. A
// handler region runs from a trap's Handler up to, not including, the next
// statement that starts a protected range or another handler, or to the end
// of the body.
func (b *Body) HandlerRegion() map[Stmt]bool {
	boundary := make(map[Stmt]bool, 2*len(b.Traps))
	for _, t := range b.Traps {
		boundary[t.Begin] = true
		boundary[t.Handler] = true
	}
	region := make(map[Stmt]bool)
	for _, t := range b.Traps {
		h := b.IndexOf(t.Handler)
		if h < 0 {
			continue
		}
		region[b.Stmts[h]] = true
		for i := h + 1; i < len(b.Stmts) && !boundary[b.Stmts[i]]; i++ {
			region[b.Stmts[i]] = true
		}
	}
	return region
}

// Covered reports whether index idx lies inside the protected range of t.
func (b *Body) Covered(t *Trap, idx int) bool {
	begin, end := b.IndexOf(t.Begin), b.IndexOf(t.End)
	return begin >= 0 && end >= 0 && idx >= begin && idx < end
}
