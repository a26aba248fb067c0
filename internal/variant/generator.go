package variant

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// DryRunLocalPrefix names the local holding the entry gate's isDryRun
// result.
const DryRunLocalPrefix = "$isDryRun"

// Generator clones method bodies into variants and gates primaries.
type Generator struct {
	prog  *ir.Program
	table *Table
	log   logrus.FieldLogger
}

// NewGenerator returns a generator that records into table. A nil log
// discards messages.
func NewGenerator(p *ir.Program, table *Table, log logrus.FieldLogger) *Generator {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Generator{prog: p, table: table, log: log.WithField("pass", "variants")}
}

// Table returns the generator's variant table.
func (g *Generator) Table() *Table { return g.table }

// ShouldGate reports whether m gets instrumented and original variants
// and an entry gate. Static initializers, native and abstract methods,
// methods of enum classes and methods the passes generated are left alone.
func ShouldGate(m *ir.Method) bool {
	switch {
	case !m.HasBody(),
		m.IsStaticInitializer(),
		m.IsNative(),
		m.IsAbstract(),
		m.Class.IsEnum(),
		abi.IsGeneratedName(m.Name):
		return false
	}
	return true
}

// ChainCall returns the last constructor-chain call of a constructor:
// a specialinvoke of <init> on the receiver that targets the class itself,
// its superclass or java.lang.Object. It returns nil when there is none.
func ChainCall(m *ir.Method) ir.Stmt {
	this := m.Body.ThisLocal()
	if this == nil {
		return nil
	}
	var last ir.Stmt
	for _, s := range m.Body.Stmts {
		st, ok := s.(*ir.InvokeStmt)
		if !ok {
			continue
		}
		inv := st.Invoke
		if inv.Kind != ir.InvokeSpecial || inv.Method.Name != ir.ConstructorName || inv.Base != this {
			continue
		}
		switch inv.Method.Class {
		case m.Class.Name, m.Class.Super, abi.ObjectClass:
			last = s
		}
	}
	return last
}

// Clone adds a copy of m named name to m's class and records it as kind.
// Constructor clones lose the statements from the first non-identity
// statement through the last chain call, since they run on an already
// constructed receiver. If the class already declares a method with that
// name and shape, it is recorded and returned unchanged.
//
// The returned map takes each statement of m to its copy; stripped
// statements are absent.
func (g *Generator) Clone(m *ir.Method, kind Kind, name string) (*ir.Method, map[ir.Stmt]ir.Stmt, error) {
	if existing := m.Class.Method(name, m.Params, m.Return); existing != nil {
		g.table.Put(m, kind, existing)
		return existing, nil, nil
	}
	body, mapping := m.Body.Clone()
	if m.IsConstructor() {
		chain := ChainCall(m)
		if chain == nil {
			return nil, nil, ir.NewErrorWithSuggestion(m, nil,
				"constructor has no chained super or this call",
				"constructors must call a superclass or sibling <init> on the receiver")
		}
		first := body.FirstNonIdentity()
		stop := mapping[chain]
		for i := body.IndexOf(first); i >= 0 && i < len(body.Stmts); {
			s := body.Stmts[i]
			body.Remove(s)
			for orig, cp := range mapping {
				if cp == s {
					delete(mapping, orig)
				}
			}
			if s == stop {
				break
			}
		}
	}
	clone := &ir.Method{
		Name:   name,
		Params: append([]ir.Type(nil), m.Params...),
		Return: m.Return,
		Mods:   m.Mods,
		Body:   body,
	}
	if err := m.Class.AddMethod(clone); err != nil {
		return nil, nil, err
	}
	g.table.Put(m, kind, clone)
	return clone, mapping, nil
}

// Generate adds the instrumented and original variants of m and inserts
// the entry gate into m. Methods rejected by ShouldGate are ignored.
// A constructor without a chain call, or an instance method that does not
// bind its receiver, fails with *ir.Error. On failure the class and the
// table are left as they were.
func (g *Generator) Generate(m *ir.Method) error {
	if !ShouldGate(m) {
		return nil
	}
	if g.table.Has(m, Instrumented) {
		return nil
	}
	if !m.IsStatic() && m.Body.ThisLocal() == nil {
		return ir.NewErrorWithSuggestion(m, nil, "instance method does not bind its receiver",
			"start the body with an identity statement such as 'this := @this: "+m.Class.Name+"'")
	}
	log := g.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name})

	saved, _ := m.Body.Clone()
	var added []*ir.Method
	undo := func(err error) error {
		for _, v := range added {
			m.Class.RemoveMethod(v)
			g.table.Remove(v)
		}
		m.Body = saved
		log.WithError(err).Debug("variants rolled back")
		return err
	}

	inst, mapping, err := g.Clone(m, Instrumented, abi.InstrumentationName(m.Name))
	if err != nil {
		return undo(err)
	}
	if mapping != nil {
		added = append(added, inst)
	}
	orig, mapping, err := g.Clone(m, Original, abi.OriginalName(m.Name))
	if err != nil {
		return undo(err)
	}
	if mapping != nil {
		added = append(added, orig)
	}
	if err := g.gate(m, inst); err != nil {
		return undo(err)
	}
	if err := ir.Validate(m); err != nil {
		return undo(err)
	}
	log.Debug("generated variants")
	return nil
}

// gate inserts, after the identity prologue or the constructor chain:
//
//	$isDryRun = isDryRun()
//	if $isDryRun == false goto <original code>
//	log("Enter dry run method m in class C")
//	[$r =] inst(params)
//	log("Successfully finish dry run method m in class C")
//	return [$r]
func (g *Generator) gate(m, inst *ir.Method) error {
	b := m.Body
	anchorIdx := len(b.IdentityStmts())
	if m.IsConstructor() {
		chain := ChainCall(m)
		if chain == nil {
			return ir.NewError(m, nil, "constructor has no chained super or this call")
		}
		anchorIdx = b.IndexOf(chain) + 1
	}
	if anchorIdx >= len(b.Stmts) {
		return ir.NewError(m, nil, "no statement to gate")
	}
	resume := b.Stmts[anchorIdx]

	flag := b.NewLocal(DryRunLocalPrefix, ir.Boolean)
	var call *ir.InvokeExpr
	args := make([]ir.Value, 0, len(m.Params))
	for _, p := range b.ParamLocals() {
		args = append(args, p)
	}
	if m.IsStatic() {
		call = ir.NewStaticInvoke(inst.Ref(), args...)
	} else {
		call = ir.NewInstanceInvoke(ir.InvokeSpecial, b.ThisLocal(), inst.Ref(), args...)
	}

	stmts := []ir.Stmt{
		ir.NewAssign(flag, ir.NewStaticInvoke(abi.IsDryRun())),
		ir.NewIf(ir.Eq(flag, ir.Bool(false)), resume),
		logStmt(fmt.Sprintf("Enter dry run method %s in class %s", m.Name, m.Class.Name)),
	}
	finish := logStmt(fmt.Sprintf("Successfully finish dry run method %s in class %s", m.Name, m.Class.Name))
	if m.Return.IsVoid() {
		stmts = append(stmts, ir.NewInvokeStmt(call), finish, ir.NewReturnVoid())
	} else {
		result := b.NewLocal("$result", m.Return)
		stmts = append(stmts, ir.NewAssign(result, call), finish, ir.NewReturn(result))
	}
	b.InsertAt(anchorIdx, stmts...)
	return nil
}

func logStmt(msg string) ir.Stmt {
	return ir.NewInvokeStmt(ir.NewStaticInvoke(abi.Log(), ir.StringConst(msg)))
}
