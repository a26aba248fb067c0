package interp

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// Library classes backed by natives that the program never names itself.
const (
	ThreadPoolExecutorClass         = "java.util.concurrent.ThreadPoolExecutor"
	DirectExecutorClass             = "com.google.common.util.concurrent.DirectExecutor"
	MoreExecutorsClass              = "com.google.common.util.concurrent.MoreExecutors"
	ExecutionExceptionClass         = "java.util.concurrent.ExecutionException"
	RejectedExecutionExceptionClass = "java.util.concurrent.RejectedExecutionException"
)

func declareImplementations(p *ir.Program) {
	p.Declare(ThreadPoolExecutorClass, abi.ObjectClass, abi.ListeningExecutorServiceClass, abi.ScheduledExecutorServiceClass)
	p.Declare(DirectExecutorClass, abi.ObjectClass, abi.ExecutorClass)
	p.Declare(MoreExecutorsClass, abi.ObjectClass)
	p.Declare(ExecutionExceptionClass, abi.ExceptionClass)
	p.Declare(RejectedExecutionExceptionClass, abi.RuntimeExceptionClass)
	p.Declare("java.lang.StackOverflowError", abi.ThrowableClass)
}

var (
	runRef  = ir.MethodRef{Class: abi.RunnableClass, Name: "run", Return: ir.Void}
	callRef = ir.MethodRef{Class: abi.CallableClass, Name: "call", Return: ir.ObjectType}
)

// executor is the payload of executor objects. Tasks queue up and are
// drained by at most limit worker goroutines of an errgroup; a worker
// exits when the queue is empty. A direct executor runs tasks on the
// caller's goroutine.
type executor struct {
	direct bool
	limit  int
	// reset runs after every task so that a pooled goroutine carries no
	// baggage from one task to the next.
	reset func()

	mu       sync.Mutex
	queue    []func()
	workers  int
	shutdown bool
	g        errgroup.Group
}

func (e *executor) post(fn func()) bool {
	if e.direct {
		fn()
		return true
	}
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	spawn := e.limit <= 0 || e.workers < e.limit
	if spawn {
		e.workers++
	}
	e.mu.Unlock()
	if spawn {
		e.g.Go(e.work)
	}
	return true
}

func (e *executor) work() error {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.workers--
			e.mu.Unlock()
			return nil
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
		e.reset()
	}
}

func (e *executor) stop() {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
}

func (e *executor) wait() {
	if !e.direct {
		_ = e.g.Wait()
	}
}

// future is the payload of Future objects.
type future struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     any
	err       error
	listeners []func()

	// task computes the value of a FutureTask; nil for other futures.
	task    func() (any, error)
	started bool
}

func newFuture() *future { return &future{done: make(chan struct{})} }

func (f *future) complete(v any, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.value, f.err = v, err
	ls := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// listen runs fn once f completes, immediately if it already has.
func (f *future) listen(fn func()) {
	f.mu.Lock()
	if !f.completed {
		f.listeners = append(f.listeners, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

func (f *future) result() (any, error) {
	<-f.done
	return f.value, f.err
}

// run computes a FutureTask on the calling goroutine, once.
func (f *future) run() {
	f.mu.Lock()
	if f.started || f.task == nil {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()
	f.complete(f.task())
}

func (in *Interp) newExecutor(class string, direct bool, limit int) *Object {
	e := &executor{direct: direct, limit: limit, reset: func() { in.rt.Detach() }}
	in.tasksMu.Lock()
	in.executors = append(in.executors, e)
	in.tasksMu.Unlock()
	o := NewObject(class)
	o.setNative(e)
	return o
}

// NewExecutor returns an executor service running tasks on at most
// threads goroutines. Zero means one goroutine per queued task.
func (in *Interp) NewExecutor(threads int) *Object {
	return in.newExecutor(ThreadPoolExecutorClass, false, threads)
}

// DirectExecutor returns an executor that runs tasks on the submitting
// goroutine.
func (in *Interp) DirectExecutor() *Object {
	return in.newExecutor(DirectExecutorClass, true, 0)
}

func newFutureObject(f *future) *Object {
	o := NewObject(abi.ListenableFutureTaskClass)
	o.setNative(f)
	return o
}

func futureOf(v any) *future {
	o, ok := v.(*Object)
	if !ok || o == nil {
		return nil
	}
	f, _ := o.Native().(*future)
	return f
}

// post hands fn to the executor object ex. A context-wrapped executor runs
// fn under the baggage it was wrapped with.
func (in *Interp) post(ex any, fn func()) error {
	o, ok := ex.(*Object)
	if !ok || o == nil {
		return in.throw(abi.NullPointerExceptionClass, "executor is null")
	}
	e, ok := o.Native().(*executor)
	if !ok {
		return in.throw(RejectedExecutionExceptionClass, o.Class+" is not an executor")
	}
	if o.wrapped {
		inner, b := fn, o.captured
		fn = func() { in.rt.RunWith(b, inner) }
	}
	in.posted.Add(1)
	if !e.post(fn) {
		return in.throw(RejectedExecutionExceptionClass, "executor has been shut down")
	}
	return nil
}

// runTask runs a Runnable, or a Callable when callable is set.
func (in *Interp) runTask(task any, callable bool) (any, error) {
	if callable {
		return in.invoke(ir.InvokeInterface, callRef, task, nil, 0)
	}
	_, err := in.invoke(ir.InvokeInterface, runRef, task, nil, 0)
	return nil, err
}

func isCallable(ref ir.MethodRef, i int) bool {
	return i < len(ref.Params) && ref.Params[i].Class == abi.CallableClass
}

func registerConcurrent(n map[string]Native) {
	pool := func(limit func(NativeCall) int) Native {
		return func(in *Interp, c NativeCall) (any, error) {
			return in.newExecutor(ThreadPoolExecutorClass, false, limit(c)), nil
		}
	}
	n[nativeKey(abi.ExecutorsClass, "newFixedThreadPool")] = pool(func(c NativeCall) int { return int(arg[int32](c, 0)) })
	n[nativeKey(abi.ExecutorsClass, "newSingleThreadExecutor")] = pool(func(NativeCall) int { return 1 })
	n[nativeKey(abi.ExecutorsClass, "newCachedThreadPool")] = pool(func(NativeCall) int { return 0 })
	n[nativeKey(MoreExecutorsClass, "directExecutor")] = func(in *Interp, _ NativeCall) (any, error) {
		return in.DirectExecutor(), nil
	}
	n[nativeKey(MoreExecutorsClass, "listeningDecorator")] = func(_ *Interp, c NativeCall) (any, error) {
		return c.Args[0], nil
	}

	execute := func(in *Interp, c NativeCall) (any, error) {
		task := c.Args[0]
		return nil, in.post(c.Recv, func() {
			if _, err := in.runTask(task, false); err != nil {
				in.reportUncaught(err)
			}
		})
	}
	submit := func(in *Interp, c NativeCall) (any, error) {
		task, callable := c.Args[0], isCallable(c.Method, 0)
		f := newFuture()
		if err := in.post(c.Recv, func() { f.complete(in.runTask(task, callable)) }); err != nil {
			return nil, err
		}
		return newFutureObject(f), nil
	}
	shutdown := func(_ *Interp, c NativeCall) (any, error) {
		if e, ok := self(c).Native().(*executor); ok {
			e.stop()
		}
		return nil, nil
	}
	await := func(_ *Interp, c NativeCall) (any, error) {
		if e, ok := self(c).Native().(*executor); ok {
			e.wait()
		}
		return true, nil
	}
	for _, class := range []string{abi.ExecutorClass, abi.ExecutorServiceClass, abi.ListeningExecutorServiceClass, abi.ScheduledExecutorServiceClass, ThreadPoolExecutorClass, DirectExecutorClass} {
		n[nativeKey(class, "execute")] = execute
		n[nativeKey(class, "submit")] = submit
		n[nativeKey(class, "shutdown")] = shutdown
		n[nativeKey(class, "awaitTermination")] = await
	}

	// FutureTask(Callable) and FutureTask(Runnable, result).
	n[nativeKey(abi.FutureTaskClass, ir.ConstructorName)] = func(in *Interp, c NativeCall) (any, error) {
		f := newFuture()
		task := c.Args[0]
		if isCallable(c.Method, 0) {
			f.task = func() (any, error) { return in.runTask(task, true) }
		} else {
			var result any
			if len(c.Args) > 1 {
				result = c.Args[1]
			}
			f.task = func() (any, error) {
				_, err := in.runTask(task, false)
				return result, err
			}
		}
		self(c).setNative(f)
		return nil, nil
	}
	n[nativeKey(abi.FutureTaskClass, "run")] = func(_ *Interp, c NativeCall) (any, error) {
		if f := futureOf(c.Recv); f != nil {
			f.run()
		}
		return nil, nil
	}
	get := func(in *Interp, c NativeCall) (any, error) {
		f := futureOf(c.Recv)
		if f == nil {
			return nil, in.throw(abi.IllegalStateExceptionClass, "not a future")
		}
		v, err := f.result()
		if err != nil {
			return nil, newThrowable(ExecutionExceptionClass, err.Error(), err)
		}
		return v, nil
	}
	isDone := func(_ *Interp, c NativeCall) (any, error) {
		f := futureOf(c.Recv)
		if f == nil {
			return false, nil
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.completed, nil
	}
	addListener := func(in *Interp, c NativeCall) (any, error) {
		f := futureOf(c.Recv)
		if f == nil {
			return nil, in.throw(abi.IllegalStateExceptionClass, "not a future")
		}
		listener, ex := c.Args[0], c.Args[1]
		f.listen(func() {
			err := in.post(ex, func() {
				if _, err := in.runTask(listener, false); err != nil {
					in.reportUncaught(err)
				}
			})
			if err != nil {
				in.reportUncaught(err)
			}
		})
		return nil, nil
	}
	for _, class := range []string{abi.FutureClass, abi.RunnableFutureClass, abi.FutureTaskClass, abi.ListenableFutureClass, abi.ListenableFutureTaskClass} {
		n[nativeKey(class, "get")] = get
		n[nativeKey(class, "isDone")] = isDone
	}
	n[nativeKey(abi.ListenableFutureClass, "addListener")] = addListener
	n[nativeKey(abi.ListenableFutureTaskClass, "addListener")] = addListener

	n[nativeKey(abi.FuturesClass, "immediateFuture")] = func(_ *Interp, c NativeCall) (any, error) {
		f := newFuture()
		f.complete(c.Args[0], nil)
		return newFutureObject(f), nil
	}
	n[nativeKey(abi.FuturesClass, "immediateFailedFuture")] = func(_ *Interp, c NativeCall) (any, error) {
		f := newFuture()
		o, _ := c.Args[0].(*Object)
		f.complete(nil, &Throwable{Object: o})
		return newFutureObject(f), nil
	}
	n[nativeKey(abi.FuturesClass, "addCallback")] = func(in *Interp, c NativeCall) (any, error) {
		f := futureOf(c.Args[0])
		if f == nil {
			return nil, in.throw(abi.NullPointerExceptionClass, "future is null")
		}
		cb, ex := c.Args[1], c.Args[2]
		f.listen(func() {
			err := in.post(ex, func() {
				v, ferr := f.result()
				var err error
				if ferr != nil {
					_, err = in.invoke(ir.InvokeInterface, onFailureRef, cb, []any{throwableOf(ferr)}, 0)
				} else {
					_, err = in.invoke(ir.InvokeInterface, onSuccessRef, cb, []any{v}, 0)
				}
				if err != nil {
					in.reportUncaught(err)
				}
			})
			if err != nil {
				in.reportUncaught(err)
			}
		})
		return nil, nil
	}
	n[nativeKey(abi.FuturesClass, "transformAsync")] = func(in *Interp, c NativeCall) (any, error) {
		input := futureOf(c.Args[0])
		if input == nil {
			return nil, in.throw(abi.NullPointerExceptionClass, "future is null")
		}
		fn, ex := c.Args[1], c.Args[2]
		out := newFuture()
		input.listen(func() {
			err := in.post(ex, func() {
				v, err := input.result()
				if err != nil {
					out.complete(nil, err)
					return
				}
				next, err := in.invoke(ir.InvokeInterface, applyRef, fn, []any{v}, 0)
				if err != nil {
					out.complete(nil, err)
					return
				}
				nf := futureOf(next)
				if nf == nil {
					out.complete(nil, in.throw(abi.NullPointerExceptionClass, "AsyncFunction returned null"))
					return
				}
				nf.listen(func() { out.complete(nf.result()) })
			})
			if err != nil {
				out.complete(nil, err)
			}
		})
		return newFutureObject(out), nil
	}

	// Thread(Runnable), start and join.
	n[nativeKey(abi.ThreadClass, ir.ConstructorName)] = func(_ *Interp, c NativeCall) (any, error) {
		t := &thread{done: make(chan struct{})}
		if len(c.Args) > 0 {
			t.target = c.Args[0]
		}
		self(c).setNative(t)
		return nil, nil
	}
	n[nativeKey(abi.ThreadClass, "run")] = func(in *Interp, c NativeCall) (any, error) {
		t, _ := self(c).Native().(*thread)
		if t == nil || t.target == nil {
			return nil, nil
		}
		return in.runTask(t.target, false)
	}
	n[nativeKey(abi.ThreadClass, "start")] = func(in *Interp, c NativeCall) (any, error) {
		o := self(c)
		t, _ := o.Native().(*thread)
		if t == nil {
			t = &thread{done: make(chan struct{})}
			o.setNative(t)
		}
		in.threads.Add(1)
		go func() {
			defer in.threads.Done()
			defer close(t.done)
			defer in.rt.Detach()
			if _, err := in.invoke(ir.InvokeVirtual, runRef, o, nil, 0); err != nil {
				in.reportUncaught(err)
			}
		}()
		return nil, nil
	}
	n[nativeKey(abi.ThreadClass, "join")] = func(_ *Interp, c NativeCall) (any, error) {
		if t, _ := self(c).Native().(*thread); t != nil {
			<-t.done
		}
		return nil, nil
	}
}

type thread struct {
	target any
	done   chan struct{}
}

var (
	onSuccessRef = ir.MethodRef{Class: abi.FutureCallbackClass, Name: "onSuccess", Params: []ir.Type{ir.ObjectType}, Return: ir.Void}
	onFailureRef = ir.MethodRef{Class: abi.FutureCallbackClass, Name: "onFailure", Params: []ir.Type{ir.ThrowableType}, Return: ir.Void}
	applyRef     = ir.MethodRef{Class: abi.AsyncFunctionClass, Name: "apply", Params: []ir.Type{ir.ObjectType}, Return: ir.RefType(abi.ListenableFutureClass)}
)

// throwableOf returns the exception object behind err, wrapping host
// errors in a RuntimeException.
func throwableOf(err error) *Object {
	if t, ok := err.(*Throwable); ok {
		return t.Object
	}
	return newThrowable(abi.RuntimeExceptionClass, err.Error(), err).Object
}
