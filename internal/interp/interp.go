// Package interp executes programs in the intermediate representation.
//
// The interpreter exists so that instrumented programs can be run end to
// end: gates, captures, restores and context hand-offs all go through the
// same runtime library a deployed program would use. Library classes are
// provided by natives (see natives.go and concurrent.go); everything with a
// body is interpreted.
//
// Example:
//
//	in, err := interp.New(prog, interp.WithRuntime(rt))
//	if err != nil {
//	    return err
//	}
//	v, err := in.Call("<demo.Main: int compute(int)>", nil, int32(4))
//	if err := in.Wait(); err != nil { // executor tasks that threw
//	    return err
//	}
//
// Thread Safety: An Interp may be used from several goroutines. Baggage is
// per goroutine, exactly as in the runtime library. The program must not
// change while an Interp runs it.
package interp

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/runtime/api"
)

const (
	// DefaultCacheSize bounds the dispatch and statement-index caches.
	DefaultCacheSize = 4096

	// DefaultStepLimit bounds the statements executed by one Interp.
	DefaultStepLimit = 50_000_000

	maxDepth = 1024
)

// ErrStepLimit is returned once the step budget is used up.
var ErrStepLimit = errors.New("interp: step limit exceeded")

// LinkError reports a call that has neither a body nor a native.
type LinkError struct {
	Method string
}

func (e *LinkError) Error() string { return "interp: no implementation for " + e.Method }

// NativeCall is a call dispatched to a native.
type NativeCall struct {
	Method ir.MethodRef
	Recv   any
	Args   []any
}

// Native implements a library method.
type Native func(in *Interp, c NativeCall) (any, error)

// Option configures an Interp.
type Option func(*Interp)

// WithRuntime runs the program against rt instead of a private runtime.
func WithRuntime(rt *api.Runtime) Option {
	return func(in *Interp) { in.rt = rt }
}

// WithLogger sets the logger for uncaught exceptions in tasks.
func WithLogger(log logrus.FieldLogger) Option {
	return func(in *Interp) { in.log = log }
}

// WithProperties sets the process properties System.getProperty sees.
func WithProperties(props map[string]string) Option {
	return func(in *Interp) {
		for k, v := range props {
			in.props[k] = v
		}
	}
}

// WithNative registers fn for class.name, replacing any built-in native.
func WithNative(class, name string, fn Native) Option {
	return func(in *Interp) { in.natives[nativeKey(class, name)] = fn }
}

// WithCallHook calls fn on entry to every interpreted method.
func WithCallHook(fn func(*ir.Method)) Option {
	return func(in *Interp) { in.hook = fn }
}

// WithCacheSize bounds the dispatch and index caches.
func WithCacheSize(n int) Option {
	return func(in *Interp) { in.cacheSize = n }
}

// WithStepLimit bounds the number of statements executed over the
// interpreter's lifetime. Zero means no limit.
func WithStepLimit(n int64) Option {
	return func(in *Interp) { in.stepLimit = n }
}

// Interp runs one program.
type Interp struct {
	prog *ir.Program
	rt   *api.Runtime
	log  logrus.FieldLogger
	hook func(*ir.Method)

	natives   map[string]Native
	cacheSize int
	stepLimit int64
	steps     atomic.Int64

	// dispatch maps dispatchKey to *ir.Method (nil for library methods).
	dispatch *lru.Cache
	// index maps *ir.Body to map[ir.Stmt]int.
	index *lru.Cache

	propsMu sync.RWMutex
	props   map[string]string

	staticMu sync.Mutex
	statics  map[string]any
	inited   map[string]bool

	tasksMu   sync.Mutex
	executors []*executor
	threads   sync.WaitGroup
	posted    atomic.Int64
	uncaught  []error
}

type dispatchKey struct {
	class string
	sub   string
}

// New returns an interpreter for p. Library classes the natives need are
// declared in p as phantoms if missing.
func New(p *ir.Program, opts ...Option) (*Interp, error) {
	in := &Interp{
		prog:      p,
		natives:   make(map[string]Native),
		cacheSize: DefaultCacheSize,
		stepLimit: DefaultStepLimit,
		props:     make(map[string]string),
		statics:   make(map[string]any),
		inited:    make(map[string]bool),
	}
	builtins := make(map[string]Native)
	registerLang(builtins)
	registerRuntime(builtins)
	registerConcurrent(builtins)
	for k, fn := range builtins {
		in.natives[k] = fn
	}
	for _, o := range opts {
		o(in)
	}
	if in.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		in.log = l
	}
	if in.rt == nil {
		in.rt = api.New(api.WithLogger(in.log))
	}
	var err error
	if in.dispatch, err = lru.New(in.cacheSize); err != nil {
		return nil, fmt.Errorf("dispatch cache: %w", err)
	}
	if in.index, err = lru.New(in.cacheSize); err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	abi.DeclareLibrary(p)
	declareImplementations(p)
	return in, nil
}

// Runtime returns the runtime library the program runs against.
func (in *Interp) Runtime() *api.Runtime { return in.rt }

// Program returns the program being run.
func (in *Interp) Program() *ir.Program { return in.prog }

// SetProperty sets a process property.
func (in *Interp) SetProperty(key, value string) {
	in.propsMu.Lock()
	in.props[key] = value
	in.propsMu.Unlock()
}

// Property returns a process property and whether it is set.
func (in *Interp) Property(key string) (string, bool) {
	in.propsMu.RLock()
	defer in.propsMu.RUnlock()
	v, ok := in.props[key]
	return v, ok
}

// Purge empties the caches. Call it after changing the program.
func (in *Interp) Purge() {
	in.dispatch.Purge()
	in.index.Purge()
}

// Call invokes the method with signature sig. A nil recv makes a static
// call; otherwise the call is dispatched on recv's class.
func (in *Interp) Call(sig string, recv any, args ...any) (any, error) {
	ref, err := ir.ParseMethodSignature(sig)
	if err != nil {
		return nil, err
	}
	return in.Invoke(ref, recv, args...)
}

// Invoke is Call with a parsed reference.
func (in *Interp) Invoke(ref ir.MethodRef, recv any, args ...any) (any, error) {
	if len(args) != len(ref.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", ref.Signature(), len(ref.Params), len(args))
	}
	cargs := make([]any, len(args))
	for i, a := range args {
		cargs[i] = coerce(a, ref.Params[i])
	}
	kind := ir.InvokeVirtual
	if recv == nil {
		kind = ir.InvokeStatic
	}
	return in.invoke(kind, ref, recv, cargs, 0)
}

// Instantiate allocates an object of class and runs its no-argument
// constructor, if it declares one.
func (in *Interp) Instantiate(class string) (*Object, error) {
	if err := in.ensureInit(class); err != nil {
		return nil, err
	}
	o := NewObject(class)
	ctor := ir.MethodRef{Class: class, Name: ir.ConstructorName, Return: ir.Void}
	if in.prog.ResolveMethod(ctor) == nil {
		return o, nil
	}
	if _, err := in.invoke(ir.InvokeSpecial, ctor, o, nil, 0); err != nil {
		return nil, err
	}
	return o, nil
}

// Static returns the value of a static field, or nil if it was never
// written.
func (in *Interp) Static(class, name string) any {
	in.staticMu.Lock()
	defer in.staticMu.Unlock()
	return in.statics[in.staticKey(ir.FieldRef{Class: class, Name: name, Static: true})]
}

// Wait blocks until every executor and thread started by the program is
// idle, and returns the exceptions that escaped their tasks.
func (in *Interp) Wait() error {
	for {
		posted := in.posted.Load()
		in.threads.Wait()
		in.tasksMu.Lock()
		execs := append([]*executor(nil), in.executors...)
		in.tasksMu.Unlock()
		for _, e := range execs {
			e.wait()
		}
		// Tasks may have handed work to executors already waited for.
		if in.posted.Load() == posted {
			break
		}
	}

	in.tasksMu.Lock()
	defer in.tasksMu.Unlock()
	err := errors.Join(in.uncaught...)
	in.uncaught = nil
	return err
}

func (in *Interp) reportUncaught(err error) {
	in.log.WithError(err).Warn("uncaught exception in task")
	in.tasksMu.Lock()
	in.uncaught = append(in.uncaught, err)
	in.tasksMu.Unlock()
}

// throw returns a new exception of class.
func (in *Interp) throw(class, msg string) error {
	return newThrowable(class, msg, nil)
}

func (in *Interp) invoke(kind ir.InvokeKind, ref ir.MethodRef, recv any, args []any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, in.throw("java.lang.StackOverflowError", ref.Signature())
	}
	if kind == ir.InvokeStatic {
		if err := in.ensureInit(ref.Class); err != nil {
			return nil, err
		}
	} else if recv == nil {
		return nil, in.throw(abi.NullPointerExceptionClass, "cannot invoke "+ref.Name+" on null")
	}
	// A context-wrapped task runs under the baggage it was wrapped with.
	if o, ok := recv.(*Object); ok && o.wrapped && kind != ir.InvokeSpecial && isTaskEntry(ref) {
		var (
			out any
			err error
		)
		in.rt.RunWith(o.captured, func() { out, err = in.dispatchCall(kind, ref, recv, args, depth) })
		return out, err
	}
	return in.dispatchCall(kind, ref, recv, args, depth)
}

func isTaskEntry(ref ir.MethodRef) bool {
	return len(ref.Params) == 0 && (ref.Name == "run" || ref.Name == "call")
}

func (in *Interp) dispatchCall(kind ir.InvokeKind, ref ir.MethodRef, recv any, args []any, depth int) (any, error) {
	var m *ir.Method
	start := ref.Class
	switch kind {
	case ir.InvokeStatic, ir.InvokeSpecial:
		m = in.prog.ResolveMethod(ref)
	default:
		start = classOf(recv)
		m = in.virtual(start, ref)
	}
	if m != nil && m.HasBody() {
		return in.exec(m, recv, args, depth+1)
	}
	if fn := in.findNative(start, ref); fn != nil {
		return fn(in, NativeCall{Method: ref, Recv: recv, Args: args})
	}
	if ref.Name == ir.ConstructorName {
		// Library constructors without a native have nothing to set up.
		return nil, nil
	}
	return nil, &LinkError{Method: ref.Signature()}
}

func (in *Interp) virtual(class string, ref ir.MethodRef) *ir.Method {
	k := dispatchKey{class: class, sub: ref.SubSignature()}
	if v, ok := in.dispatch.Get(k); ok {
		return v.(*ir.Method)
	}
	m := in.prog.Dispatch(class, ref)
	if m == nil && class != ref.Class {
		m = in.prog.ResolveMethod(ref)
	}
	in.dispatch.Add(k, m)
	return m
}

func nativeKey(class, name string) string { return class + "." + name }

// findNative looks ref's name up along the superclass chain of start and
// then of the declaring class.
func (in *Interp) findNative(start string, ref ir.MethodRef) Native {
	for _, from := range []string{start, ref.Class} {
		if fn := in.natives[nativeKey(from, ref.Name)]; fn != nil {
			return fn
		}
		for _, c := range in.prog.Superclasses(from) {
			if fn := in.natives[nativeKey(c.Name, ref.Name)]; fn != nil {
				return fn
			}
		}
	}
	return nil
}

func (in *Interp) indexOf(b *ir.Body) map[ir.Stmt]int {
	if v, ok := in.index.Get(b); ok {
		return v.(map[ir.Stmt]int)
	}
	idx := make(map[ir.Stmt]int, len(b.Stmts))
	for i, s := range b.Stmts {
		idx[s] = i
	}
	in.index.Add(b, idx)
	return idx
}

func (in *Interp) step() error {
	if in.stepLimit > 0 && in.steps.Add(1) > in.stepLimit {
		return ErrStepLimit
	}
	return nil
}

// ensureInit runs the static initializers of class and its superclasses
// once, root first.
func (in *Interp) ensureInit(class string) error {
	chain := in.prog.Superclasses(class)
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		in.staticMu.Lock()
		done := in.inited[c.Name]
		in.inited[c.Name] = true
		in.staticMu.Unlock()
		if done {
			continue
		}
		clinit := c.Method(ir.StaticInitName, nil, ir.Void)
		if clinit == nil || !clinit.HasBody() {
			continue
		}
		if _, err := in.exec(clinit, nil, nil, 1); err != nil {
			return fmt.Errorf("static initializer of %s: %w", c.Name, err)
		}
	}
	return nil
}

func (in *Interp) staticKey(ref ir.FieldRef) string {
	if f := in.prog.ResolveField(ref); f != nil && f.Class != nil {
		return nativeKey(f.Class.Name, f.Name)
	}
	return nativeKey(ref.Class, ref.Name)
}

func (in *Interp) getStatic(ref ir.FieldRef) (any, error) {
	if err := in.ensureInit(ref.Class); err != nil {
		return nil, err
	}
	in.staticMu.Lock()
	defer in.staticMu.Unlock()
	if v, ok := in.statics[in.staticKey(ref)]; ok {
		return v, nil
	}
	return zero(ref.Type), nil
}

func (in *Interp) setStatic(ref ir.FieldRef, v any) error {
	if err := in.ensureInit(ref.Class); err != nil {
		return err
	}
	in.staticMu.Lock()
	in.statics[in.staticKey(ref)] = coerce(v, ref.Type)
	in.staticMu.Unlock()
	return nil
}

// cast converts v to t, throwing ClassCastException for an incompatible
// reference. Classes the program does not know are trusted.
func (in *Interp) cast(t ir.Type, v any) (any, error) {
	if t.IsPrimitive() {
		return coerce(v, t), nil
	}
	if v == nil {
		return nil, nil
	}
	cls := classOf(v)
	if cls == "" || in.prog.IsSubtype(cls, t.Class) {
		return v, nil
	}
	if in.prog.Class(cls) == nil || in.prog.Class(t.Class) == nil {
		return v, nil
	}
	return nil, in.throw(abi.ClassCastExceptionClass, cls+" cannot be cast to "+t.Class)
}
