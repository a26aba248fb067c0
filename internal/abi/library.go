package abi

import "github.com/kolkov/dryrun/internal/ir"

// DeclareLibrary registers phantom declarations for the library and
// runtime types that instrumented programs and generated code refer to.
// Classes already present in p are left untouched.
func DeclareLibrary(p *ir.Program) {
	p.Declare(ObjectClass, "")
	p.Declare(StringClass, ObjectClass)
	p.Declare(SystemClass, ObjectClass)
	p.Declare("java.lang.Number", ObjectClass)
	for _, w := range WrapperClasses() {
		switch w {
		case "java.lang.Boolean", "java.lang.Character":
			p.Declare(w, ObjectClass)
		default:
			p.Declare(w, "java.lang.Number")
		}
	}

	p.Declare(ThrowableClass, ObjectClass)
	p.Declare(ExceptionClass, ThrowableClass)
	p.Declare(RuntimeExceptionClass, ExceptionClass)
	for _, c := range []string{ClassCastExceptionClass, NullPointerExceptionClass, ArithmeticExceptionClass, IllegalStateExceptionClass} {
		p.Declare(c, RuntimeExceptionClass)
	}
	p.Declare("java.util.concurrent.ExecutionException", ExceptionClass)

	p.DeclareInterface(RunnableClass)
	p.DeclareInterface(CallableClass)
	p.Declare(ThreadClass, ObjectClass, RunnableClass)

	p.DeclareInterface(MapClass)
	p.Declare(HashMapClass, ObjectClass, MapClass)

	p.DeclareInterface(ExecutorClass)
	p.DeclareInterface(ExecutorServiceClass, ExecutorClass)
	p.DeclareInterface(ScheduledExecutorServiceClass, ExecutorServiceClass)
	p.DeclareInterface(ListeningExecutorServiceClass, ExecutorServiceClass)
	p.Declare(ExecutorsClass, ObjectClass)
	p.Declare(TimeUnitClass, ObjectClass)

	p.DeclareInterface(FutureClass)
	p.DeclareInterface(RunnableFutureClass, RunnableClass, FutureClass)
	p.Declare(FutureTaskClass, ObjectClass, RunnableFutureClass)
	p.DeclareInterface(ListenableFutureClass, FutureClass)
	p.Declare(ListenableFutureTaskClass, FutureTaskClass, ListenableFutureClass)
	p.DeclareInterface(FutureCallbackClass)
	p.DeclareInterface(AsyncFunctionClass)
	p.Declare(FuturesClass, ObjectClass)

	p.Declare(RuntimeClass, ObjectClass)
	p.Declare(WrapContextClass, ObjectClass)
	p.Declare(ContextClass, ObjectClass)
	p.Declare(StateClass, ObjectClass)
}

// IsRuntimeClass reports whether class belongs to the runtime library.
func IsRuntimeClass(class string) bool {
	switch class {
	case RuntimeClass, WrapContextClass, ContextClass, StateClass:
		return true
	}
	return false
}
