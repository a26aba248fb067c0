// Package abi names the runtime-library classes, methods and generated
// member names that instrumented code links against.
//
// Every pass builds its calls through the constructors in this package so
// that the interpreter's native bindings and the generated code agree on a
// single set of signatures.
package abi

import "github.com/kolkov/dryrun/internal/ir"

// Runtime-library classes.
const (
	RuntimeClass     = "dryrun.runtime.DryRun"
	WrapContextClass = "dryrun.runtime.WrapContext"
	ContextClass     = "dryrun.runtime.Context"
	StateClass       = "dryrun.runtime.State"
)

// Library classes the generated code and the propagator refer to.
const (
	ObjectClass                   = "java.lang.Object"
	StringClass                   = "java.lang.String"
	SystemClass                   = "java.lang.System"
	ThrowableClass                = "java.lang.Throwable"
	ExceptionClass                = "java.lang.Exception"
	RuntimeExceptionClass         = "java.lang.RuntimeException"
	ClassCastExceptionClass       = "java.lang.ClassCastException"
	NullPointerExceptionClass     = "java.lang.NullPointerException"
	ArithmeticExceptionClass      = "java.lang.ArithmeticException"
	IllegalStateExceptionClass    = "java.lang.IllegalStateException"
	RunnableClass                 = "java.lang.Runnable"
	ThreadClass                   = "java.lang.Thread"
	CallableClass                 = "java.util.concurrent.Callable"
	MapClass                      = "java.util.Map"
	HashMapClass                  = "java.util.HashMap"
	ExecutorClass                 = "java.util.concurrent.Executor"
	ExecutorServiceClass          = "java.util.concurrent.ExecutorService"
	ScheduledExecutorServiceClass = "java.util.concurrent.ScheduledExecutorService"
	FutureClass                   = "java.util.concurrent.Future"
	RunnableFutureClass           = "java.util.concurrent.RunnableFuture"
	FutureTaskClass               = "java.util.concurrent.FutureTask"
	TimeUnitClass                 = "java.util.concurrent.TimeUnit"
	ExecutorsClass                = "java.util.concurrent.Executors"
	FuturesClass                  = "com.google.common.util.concurrent.Futures"
	FutureCallbackClass           = "com.google.common.util.concurrent.FutureCallback"
	AsyncFunctionClass            = "com.google.common.util.concurrent.AsyncFunction"
	ListenableFutureClass         = "com.google.common.util.concurrent.ListenableFuture"
	ListenableFutureTaskClass     = "com.google.common.util.concurrent.ListenableFutureTask"
	ListeningExecutorServiceClass = "com.google.common.util.concurrent.ListeningExecutorService"
)

// Generated member names.
const (
	// Variant suffixes.
	InstrumentationSuffix     = "$instrumentation"
	InitInstrumentationSuffix = "_$instrumentation"
	OriginalSuffix            = "$original"
	ShadowSuffix              = "$shadow"

	// DryRunSuffix names the shadow copy of a field; SetByDryRunSuffix is
	// appended to that name for its was-set-by-dry-run flag.
	DryRunSuffix      = "$dryRun"
	SetByDryRunSuffix = "$setByDryRun"

	// ShadowFieldSuffix names the counterpart a shadow variant uses for a
	// configured shadow field such as a pending-work queue.
	ShadowFieldSuffix = "$dryrun"

	// TraceFlagPrefix starts the per-class needs-trace flag field.
	TraceFlagPrefix = "needDryRunTrace$"

	// IsShadowField marks a worker instance that runs the shadow path.
	IsShadowField = "isShadow"

	// AssertionsDisabledField is the compiler-synthesized assertion flag.
	AssertionsDisabledField = "$assertionsDisabled"
)

// Default pilot-mode gate.
const (
	DefaultPilotProperty = "PilotMode"
	DefaultPilotValue    = "enabled"
)

var (
	objectT   = ir.ObjectType
	stringT   = ir.StringType
	mapT      = ir.RefType(MapClass)
	runnableT = ir.RefType(RunnableClass)
	executorT = ir.RefType(ExecutorClass)
	contextT  = ir.RefType(ContextClass)
)

func rt(name string, ret ir.Type, params ...ir.Type) ir.MethodRef {
	return ir.MethodRef{Class: RuntimeClass, Name: name, Params: params, Return: ret}
}

// Runtime ABI methods, all static on RuntimeClass.
func IsDryRun() ir.MethodRef                 { return rt("isDryRun", ir.Boolean) }
func IsFastForward() ir.MethodRef            { return rt("isFastForward", ir.Boolean) }
func RecordState() ir.MethodRef              { return rt("recordState", ir.Void, stringT, mapT) }
func GetState() ir.MethodRef                 { return rt("getState", mapT, stringT) }
func RecordFieldState() ir.MethodRef         { return rt("recordFieldState", ir.Void, stringT, mapT) }
func GetFieldState() ir.MethodRef            { return rt("getFieldState", mapT, stringT) }
func ClearBaggage() ir.MethodRef             { return rt("clearBaggage", ir.Void) }
func CreateDryRunBaggage() ir.MethodRef      { return rt("createDryRunBaggage", ir.Void) }
func CreateShadowBaggage() ir.MethodRef      { return rt("createShadowBaggage", ir.Void) }
func CreateFastForwardBaggage() ir.MethodRef { return rt("createFastForwardBaggage", ir.Void) }
func Log() ir.MethodRef                      { return rt("log", ir.Void, stringT) }

// ShouldBeContextWrap decides at run time whether a task submitted to an
// executor needs the ambient context wrapped around it.
func ShouldBeContextWrap() ir.MethodRef {
	return rt("shouldBeContextWrap", ir.Boolean, runnableT, executorT)
}

// ShallowCopy returns the dry-run value of a shadowed reference field:
// dry when set is true, otherwise a shallow copy of orig.
func ShallowCopy() ir.MethodRef {
	return ir.MethodRef{Class: StateClass, Name: "shallowCopy", Params: []ir.Type{objectT, objectT, ir.Boolean}, Return: objectT}
}

// WrapContextInit constructs the single-field snapshot carrier.
func WrapContextInit() ir.MethodRef {
	return ir.MethodRef{Class: WrapContextClass, Name: ir.ConstructorName, Params: []ir.Type{objectT}, Return: ir.Void}
}

// WrapContextGetValue reads the carrier's value.
func WrapContextGetValue() ir.MethodRef {
	return ir.MethodRef{Class: WrapContextClass, Name: "getValue", Return: objectT}
}

// ContextCurrent captures the calling thread's ambient context.
func ContextCurrent() ir.MethodRef {
	return ir.MethodRef{Class: ContextClass, Name: "current", Return: contextT}
}

// ContextWrap returns Context.wrap for a value of type class. Runnable,
// Callable and Executor have dedicated overloads; ExecutorService and
// ScheduledExecutorService map to Executor.
func ContextWrap(class string) ir.MethodRef {
	t := ir.RefType(class)
	switch class {
	case ExecutorServiceClass, ScheduledExecutorServiceClass, ListeningExecutorServiceClass:
		t = executorT
	}
	return ir.MethodRef{Class: ContextClass, Name: "wrap", Params: []ir.Type{t}, Return: t}
}

// HashMapInit and MapPut/MapGet are the snapshot map operations.
func HashMapInit() ir.MethodRef {
	return ir.MethodRef{Class: HashMapClass, Name: ir.ConstructorName, Return: ir.Void}
}

func MapPut() ir.MethodRef {
	return ir.MethodRef{Class: MapClass, Name: "put", Params: []ir.Type{objectT, objectT}, Return: objectT}
}

func MapGet() ir.MethodRef {
	return ir.MethodRef{Class: MapClass, Name: "get", Params: []ir.Type{objectT}, Return: objectT}
}

// SystemGetProperty reads a process property.
func SystemGetProperty() ir.MethodRef {
	return ir.MethodRef{Class: SystemClass, Name: "getProperty", Params: []ir.Type{stringT}, Return: stringT}
}

// StringEquals compares two strings.
func StringEquals() ir.MethodRef {
	return ir.MethodRef{Class: StringClass, Name: "equals", Params: []ir.Type{objectT}, Return: ir.Boolean}
}

// ObjectInit is the root constructor.
func ObjectInit() ir.MethodRef {
	return ir.MethodRef{Class: ObjectClass, Name: ir.ConstructorName, Return: ir.Void}
}

// TraceFlagName returns the needs-trace flag field of class: the prefix
// followed by the class name with the dots removed.
func TraceFlagName(class string) string {
	out := make([]byte, 0, len(TraceFlagPrefix)+len(class))
	out = append(out, TraceFlagPrefix...)
	for i := 0; i < len(class); i++ {
		if class[i] != '.' {
			out = append(out, class[i])
		}
	}
	return string(out)
}

// InstrumentationName returns the instrumented-variant name of method.
func InstrumentationName(method string) string {
	switch method {
	case ir.ConstructorName:
		return "init" + InitInstrumentationSuffix
	case ir.StaticInitName:
		return "clinit" + InitInstrumentationSuffix
	}
	return method + InstrumentationSuffix
}

// OriginalName returns the original-variant name of method.
func OriginalName(method string) string {
	switch method {
	case ir.ConstructorName:
		return "init" + OriginalSuffix
	case ir.StaticInitName:
		return "clinit" + OriginalSuffix
	}
	return method + OriginalSuffix
}

// ShadowName returns the shadow-variant name of method.
func ShadowName(method string) string {
	return method + ShadowSuffix
}

// DryRunFieldName and SetByDryRunFieldName name a shadowed field's pair.
func DryRunFieldName(field string) string      { return field + DryRunSuffix }
func SetByDryRunFieldName(field string) string { return field + DryRunSuffix + SetByDryRunSuffix }

// IsGeneratedName reports whether name was produced by one of the passes.
func IsGeneratedName(name string) bool {
	for _, s := range []string{InstrumentationSuffix, OriginalSuffix, ShadowSuffix, DryRunSuffix, SetByDryRunSuffix, ShadowFieldSuffix} {
		if len(name) >= len(s) && name[len(name)-len(s):] == s {
			return true
		}
	}
	return len(name) >= len(TraceFlagPrefix) && name[:len(TraceFlagPrefix)] == TraceFlagPrefix ||
		name == IsShadowField
}
