// Package propagate carries the dry-run context across thread hand-offs in
// instrumented bodies.
//
// Five call-site shapes are rewritten:
//
//	executor.submit(task) / executor.execute(task)	// Runnable or Callable
//	Futures.addCallback(future, callback, executor)
//	Futures.transformAsync(input, function, executor)
//	f = <FutureTask value>
//	future.addListener(listener, executor)
//
// Executor submissions are wrapped only when shouldBeContextWrap says so;
// otherwise the task's trace flags are raised and the trace prologue of
// its run() picks the mode up on the other side. The callback, continuation
// and listener forms get a context-wrapped executor. A FutureTask value is
// wrapped where it is assigned.
package propagate

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// Local name prefixes of generated code.
const (
	taskPrefix   = "$task"
	wrapPrefix   = "$needWrap"
	ctxPrefix    = "$ctx"
	execPrefix   = "$exec"
	tracePrefix  = "$trace"
	futurePrefix = "$future"
)

// Pattern identifies a rewritten call-site shape.
type Pattern int

const (
	ExecutorSubmit Pattern = iota
	Callback
	TransformAsync
	FutureTaskAssign
	AddListener
)

var patternNames = [...]string{"executor", "callback", "transformAsync", "futureTask", "addListener"}

func (p Pattern) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return "unknown"
	}
	return patternNames[p]
}

// Pass rewrites hand-off sites and adds trace prologues.
type Pass struct {
	prog  *ir.Program
	flags *Flags
	log   logrus.FieldLogger
}

// New returns a pass over p using the trace flags in flags. A nil log
// discards messages.
func New(p *ir.Program, flags *Flags, log logrus.FieldLogger) *Pass {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if flags == nil {
		flags = BuildFlags(p)
	}
	return &Pass{prog: p, flags: flags, log: log.WithField("pass", "propagate")}
}

type site struct {
	pattern Pattern
	stmt    ir.Stmt
	inv     *ir.InvokeExpr
	arg     int
}

// Method rewrites the hand-off sites of m, an instrumented body, and
// returns how many sites were rewritten per pattern.
func (ps *Pass) Method(m *ir.Method) (map[Pattern]int, error) {
	if !m.HasBody() {
		return nil, nil
	}
	sites := ps.collect(m.Body)
	if len(sites) == 0 {
		return nil, nil
	}
	counts := make(map[Pattern]int)
	for _, st := range sites {
		switch st.pattern {
		case ExecutorSubmit:
			ps.wrapTask(m.Body, st)
		case Callback:
			ps.flagArg(m.Body, st)
			if len(st.inv.Args) > 2 && ps.isExecutor(st.inv.Args[2].Type()) {
				ps.wrapExecutor(m.Body, site{pattern: Callback, stmt: st.stmt, inv: st.inv, arg: 2})
			}
		case TransformAsync, AddListener:
			ps.wrapExecutor(m.Body, st)
		case FutureTaskAssign:
			ps.wrapFuture(m.Body, st)
		}
		counts[st.pattern]++
		ps.log.WithFields(logrus.Fields{
			"class":   m.Class.Name,
			"method":  m.Name,
			"pattern": st.pattern,
		}).Debug("propagated context")
	}
	if err := ir.Validate(m); err != nil {
		return counts, ir.WrapError(m, "propagate", err)
	}
	return counts, nil
}

func (ps *Pass) collect(b *ir.Body) []site {
	var out []site
	for _, s := range b.Stmts {
		if a, ok := s.(*ir.AssignStmt); ok {
			if _, isLocal := a.LHS.(*ir.Local); isLocal && ps.isFutureTaskValue(a.RHS) {
				out = append(out, site{pattern: FutureTaskAssign, stmt: s})
				continue
			}
		}
		inv := ir.InvokeOf(s)
		if inv == nil {
			continue
		}
		switch {
		case ps.isExecutorSubmit(inv):
			out = append(out, site{pattern: ExecutorSubmit, stmt: s, inv: inv, arg: 0})
		case inv.Kind == ir.InvokeStatic && inv.Method.Class == abi.FuturesClass && inv.Method.Name == "addCallback":
			if i := ps.callbackArg(inv); i >= 0 {
				out = append(out, site{pattern: Callback, stmt: s, inv: inv, arg: i})
			}
		case inv.Kind == ir.InvokeStatic && inv.Method.Class == abi.FuturesClass && inv.Method.Name == "transformAsync" &&
			len(inv.Args) == 3:
			out = append(out, site{pattern: TransformAsync, stmt: s, inv: inv, arg: 2})
		case ps.isAddListener(inv):
			out = append(out, site{pattern: AddListener, stmt: s, inv: inv, arg: 1})
		}
	}
	return out
}

func (ps *Pass) subtype(t ir.Type, class string) bool {
	return t.IsRef() && ps.prog.IsSubtype(t.Class, class)
}

func (ps *Pass) isExecutor(t ir.Type) bool { return ps.subtype(t, abi.ExecutorClass) }

func (ps *Pass) isExecutorSubmit(inv *ir.InvokeExpr) bool {
	if inv.Base == nil || len(inv.Args) == 0 {
		return false
	}
	if inv.Method.Name != "submit" && inv.Method.Name != "execute" {
		return false
	}
	if !ps.isExecutor(inv.Base.Type()) {
		return false
	}
	_, ok := ps.taskInterface(inv, 0)
	return ok
}

// taskInterface returns the task interface, Runnable or Callable, that
// inv takes argument i as. The declared parameter type decides for a task
// implementing both.
func (ps *Pass) taskInterface(inv *ir.InvokeExpr, i int) (string, bool) {
	t := inv.Args[i].Type()
	if i < len(inv.Method.Params) {
		if declared := inv.Method.Params[i]; declared.IsRef() {
			for _, class := range taskInterfaces {
				if declared.Class == class && ps.subtype(t, class) {
					return class, true
				}
			}
		}
	}
	for _, class := range taskInterfaces {
		if ps.subtype(t, class) {
			return class, true
		}
	}
	return "", false
}

var taskInterfaces = []string{abi.RunnableClass, abi.CallableClass}

func (ps *Pass) callbackArg(inv *ir.InvokeExpr) int {
	for i, a := range inv.Args {
		if _, isLocal := a.(*ir.Local); isLocal && ps.subtype(a.Type(), abi.FutureCallbackClass) {
			return i
		}
	}
	return -1
}

func (ps *Pass) isAddListener(inv *ir.InvokeExpr) bool {
	ref := inv.Method
	return inv.Base != nil && ref.Name == "addListener" && len(ref.Params) == 2 &&
		ref.Params[0] == ir.RefType(abi.RunnableClass) && ref.Params[1] == ir.RefType(abi.ExecutorClass) &&
		ps.prog.IsSubtype(ref.Class, abi.ListenableFutureClass)
}

// isFutureTaskValue matches values of a FutureTask type other than a fresh
// allocation, whose constructor has not run yet.
func (ps *Pass) isFutureTaskValue(v ir.Value) bool {
	if _, isNew := v.(*ir.NewExpr); isNew {
		return false
	}
	if c, ok := v.(*ir.Constant); ok && c.IsNull() {
		return false
	}
	return ps.subtype(v.Type(), abi.FutureTaskClass)
}

// flagStmts raises every inherited trace flag on obj.
func (ps *Pass) flagStmts(obj *ir.Local) []ir.Stmt {
	if !obj.Type().IsRef() {
		return nil
	}
	var out []ir.Stmt
	for _, ref := range ps.flags.Ancestors(obj.Type().Class) {
		out = append(out, ir.NewAssign(&ir.InstanceFieldRef{Base: obj, Field: ref}, ir.Bool(true)))
	}
	return out
}

// wrapTask rewrites an executor submission of a Runnable or Callable task:
//
//	$task = arg0
//	$needWrap = shouldBeContextWrap($task, executor)
//	if $needWrap == false goto flags
//	$ctx = Context.current()
//	$task = (T) $ctx.wrap($task)	// wrap(Runnable) or wrap(Callable)
//	goto call
//	flags: $task.needDryRunTrace$X = true ...
//	call: executor.submit($task, ...)
func (ps *Pass) wrapTask(b *ir.Body, st site) {
	arg := st.inv.Args[st.arg]
	task := b.NewLocal(taskPrefix, arg.Type())
	need := b.NewLocal(wrapPrefix, ir.Boolean)
	flags := ps.flagStmts(task)

	var elseTarget ir.Stmt = st.stmt
	if len(flags) > 0 {
		elseTarget = flags[0]
	}
	out := []ir.Stmt{
		ir.NewAssign(task, arg),
		ir.NewAssign(need, ir.NewStaticInvoke(abi.ShouldBeContextWrap(), task, st.inv.Base)),
		ir.NewIf(ir.Eq(need, ir.Bool(false)), elseTarget),
	}
	iface, _ := ps.taskInterface(st.inv, st.arg)
	out = append(out, ps.contextWrap(b, task, iface)...)
	if len(flags) > 0 {
		out = append(out, ir.NewGoto(st.stmt))
		out = append(out, flags...)
	}
	b.InsertBefore(st.stmt, out...)
	st.inv.Args[st.arg] = task
}

// contextWrap reassigns v to its context-wrapped self, wrapped as class.
func (ps *Pass) contextWrap(b *ir.Body, v *ir.Local, class string) []ir.Stmt {
	wrapRef := abi.ContextWrap(class)
	ctx := b.NewLocal(ctxPrefix, ir.RefType(abi.ContextClass))
	out := []ir.Stmt{ir.NewAssign(ctx, ir.NewStaticInvoke(abi.ContextCurrent()))}
	wrapped := ir.Value(ir.NewInstanceInvoke(ir.InvokeVirtual, ctx, wrapRef, v))
	if v.Type() == wrapRef.Return {
		return append(out, ir.NewAssign(v, wrapped))
	}
	tmp := b.NewLocal(ctxPrefix, wrapRef.Return)
	return append(out,
		ir.NewAssign(tmp, wrapped),
		ir.NewAssign(v, &ir.CastExpr{To: v.Type(), X: tmp}),
	)
}

// flagArg copies a callback argument into a local and raises its flags.
func (ps *Pass) flagArg(b *ir.Body, st site) {
	arg := st.inv.Args[st.arg]
	cb := b.NewLocal(taskPrefix, arg.Type())
	out := append([]ir.Stmt{ir.NewAssign(cb, arg)}, ps.flagStmts(cb)...)
	b.InsertBefore(st.stmt, out...)
	st.inv.Args[st.arg] = cb
}

// wrapExecutor replaces the executor argument with a context-wrapped one.
func (ps *Pass) wrapExecutor(b *ir.Body, st site) {
	exec := b.NewLocal(execPrefix, ir.RefType(abi.ExecutorClass))
	out := []ir.Stmt{ir.NewAssign(exec, st.inv.Args[st.arg])}
	out = append(out, ps.contextWrap(b, exec, abi.ExecutorClass)...)
	b.InsertBefore(st.stmt, out...)
	st.inv.Args[st.arg] = exec
}

// wrapFuture wraps a FutureTask value at its assignment:
//
//	$future = <value>
//	$ctx = Context.current()
//	$future = (Runnable) $ctx.wrap($future)
//	f = (T) $future
func (ps *Pass) wrapFuture(b *ir.Body, st site) {
	a := st.stmt.(*ir.AssignStmt)
	t := a.RHS.Type()
	fut := b.NewLocal(futurePrefix, ir.RefType(abi.RunnableClass))
	out := []ir.Stmt{ir.NewAssign(fut, a.RHS)}
	out = append(out, ps.contextWrap(b, fut, abi.RunnableClass)...)
	b.InsertBefore(st.stmt, out...)
	a.RHS = &ir.CastExpr{To: t, X: fut}
}

// traceEntries are the task entry points that honor a raised trace flag.
var traceEntries = []struct {
	name   string
	params []ir.Type
}{
	{"run", nil},
	{"call", nil},
	{"onSuccess", []ir.Type{ir.ObjectType}},
	{"onFailure", []ir.Type{ir.ThrowableType}},
}

// IsTraceEntry reports whether m is a task entry point that gets a trace
// prologue.
func IsTraceEntry(m *ir.Method) bool {
	if m.IsStatic() || m.IsAbstract() || !m.HasBody() {
		return false
	}
	for _, e := range traceEntries {
		if m.Name == e.name && sameTypes(m.Params, e.params) {
			return true
		}
	}
	return false
}

func sameTypes(a, b []ir.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Prologue makes m, a primary task entry point, switch to dry-run mode
// when its class's trace flag was raised by the submitter:
//
//	$trace = this.needDryRunTrace$C
//	if $trace == false goto body
//	createDryRunBaggage()
//	body: ...
//
// It reports whether a prologue was added. Methods that already start with
// one are left alone.
func (ps *Pass) Prologue(m *ir.Method) (bool, error) {
	if !IsTraceEntry(m) {
		return false, nil
	}
	flag, ok := ps.flags.Own(m.Class.Name)
	if !ok {
		return false, nil
	}
	b := m.Body
	first := b.FirstNonIdentity()
	if first == nil {
		return false, nil
	}
	if a, ok := first.(*ir.AssignStmt); ok {
		if r, ok := a.RHS.(*ir.InstanceFieldRef); ok && r.Field == flag {
			return false, nil
		}
	}
	this := b.ThisLocal()
	if this == nil {
		return false, ir.NewError(m, nil, "task entry point without a receiver")
	}
	trace := b.NewLocal(tracePrefix, ir.Boolean)
	b.InsertAfterIdentities(
		ir.NewAssign(trace, &ir.InstanceFieldRef{Base: this, Field: flag}),
		ir.NewIf(ir.Eq(trace, ir.Bool(false)), first),
		ir.NewInvokeStmt(ir.NewStaticInvoke(abi.CreateDryRunBaggage())),
	)
	ps.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name}).Debug("added trace prologue")
	return true, ir.Validate(m)
}
