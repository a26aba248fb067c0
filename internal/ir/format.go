package ir

import (
	"strconv"
	"strings"
)

// Labels assigns a name to every statement that is a branch target or a
// trap edge, numbering them in body order: label1, label2, ...
func (b *Body) Labels() map[Stmt]string {
	targets := make(map[Stmt]bool)
	for _, s := range b.Stmts {
		for _, t := range Targets(s) {
			targets[t] = true
		}
	}
	for _, t := range b.Traps {
		targets[t.Begin] = true
		targets[t.End] = true
		targets[t.Handler] = true
	}
	labels := make(map[Stmt]string, len(targets))
	n := 0
	for _, s := range b.Stmts {
		if targets[s] {
			n++
			labels[s] = "label" + strconv.Itoa(n)
		}
	}
	return labels
}

// FormatStmt renders s in jir syntax. labels names branch targets; a target
// missing from labels is rendered as "?".
func FormatStmt(s Stmt, labels map[Stmt]string) string {
	label := func(t Stmt) string {
		if l, ok := labels[t]; ok {
			return l
		}
		return "?"
	}
	switch st := s.(type) {
	case *IdentityStmt:
		return st.Local.Name + " := " + st.Ref.String()
	case *AssignStmt:
		return st.LHS.String() + " = " + st.RHS.String()
	case *InvokeStmt:
		return st.Invoke.String()
	case *IfStmt:
		return "if " + st.Cond.String() + " goto " + label(st.Target)
	case *GotoStmt:
		return "goto " + label(st.Target)
	case *NopStmt:
		return "nop"
	case *ReturnStmt:
		return "return " + st.Value.String()
	case *ReturnVoidStmt:
		return "return"
	case *ThrowStmt:
		return "throw " + st.Value.String()
	}
	return "?"
}

// String renders the whole body, one statement per line, with labels. It
// is meant for logs and test failure messages.
func (b *Body) String() string {
	labels := b.Labels()
	var sb strings.Builder
	for _, s := range b.Stmts {
		if l, ok := labels[s]; ok {
			sb.WriteString(l)
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(FormatStmt(s, labels))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// StmtString renders one statement of b using b's labels.
func (b *Body) StmtString(s Stmt) string {
	return FormatStmt(s, b.Labels())
}
