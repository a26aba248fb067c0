package interp

import (
	"fmt"
	"maps"
	"sync"

	"github.com/kolkov/dryrun/internal/runtime/api"
	"github.com/kolkov/dryrun/internal/runtime/baggage"
)

// Object is a heap object of an interpreted program.
//
// Several Objects may share one state: Context.wrap returns a view of its
// argument that carries a captured baggage, and field writes through either
// are visible through both.
type Object struct {
	Class string

	state *objState

	// wrapped is set on views returned by Context.wrap.
	wrapped  bool
	captured *baggage.Baggage
}

type objState struct {
	mu     sync.Mutex
	fields map[string]any
	native any
}

// NewObject returns an object of class with every field unset.
func NewObject(class string) *Object {
	return &Object{Class: class, state: &objState{fields: make(map[string]any)}}
}

// Get returns the value of field name, or nil when it was never written.
// Primitive fields read through the interpreter default to their zero
// value instead.
func (o *Object) Get(name string) any {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.fields[name]
}

func (o *Object) lookup(name string) (any, bool) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	v, ok := o.state.fields[name]
	return v, ok
}

// Set writes field name.
func (o *Object) Set(name string, v any) {
	o.state.mu.Lock()
	o.state.fields[name] = v
	o.state.mu.Unlock()
}

// Native returns the host payload of library objects: the map of a
// java.util.HashMap, the value of a boxed primitive, the state of an
// executor or future.
func (o *Object) Native() any {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.native
}

func (o *Object) setNative(v any) {
	o.state.mu.Lock()
	o.state.native = v
	o.state.mu.Unlock()
}

// Same reports whether o and x are views of one object.
func (o *Object) Same(x *Object) bool {
	return o != nil && x != nil && o.state == x.state
}

// IsContextWrapped reports whether o was returned by Context.wrap.
func (o *Object) IsContextWrapped() bool { return o.wrapped }

// Captured returns the baggage o was wrapped with.
func (o *Object) Captured() *baggage.Baggage { return o.captured }

func (o *Object) view(b *baggage.Baggage) *Object {
	return &Object{Class: o.Class, state: o.state, wrapped: true, captured: b}
}

// ShallowCopy returns a new object with the same class and a copy of the
// field table. Map payloads are copied one level deep; other payloads are
// shared.
func (o *Object) ShallowCopy() any {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	cp := NewObject(o.Class)
	maps.Copy(cp.state.fields, o.state.fields)
	switch n := o.state.native.(type) {
	case map[any]any:
		cp.state.native = maps.Clone(n)
	default:
		cp.state.native = n
	}
	return cp
}

func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	if n := o.Native(); n != nil && primitiveOfWrapper(o.Class).IsPrimitive() {
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%s@%p", o.Class, o.state)
}

var (
	_ api.ShallowCopier  = (*Object)(nil)
	_ api.ContextWrapped = (*Object)(nil)
)

// Throwable is a Java exception in flight. It is returned as an error from
// every call that does not catch it.
type Throwable struct {
	Object *Object

	// Cause is a host error that raised the exception, such as a failed
	// snapshot lookup.
	Cause error
}

func (t *Throwable) Error() string {
	msg, _ := t.Object.Get(messageField).(string)
	if msg == "" && t.Cause != nil {
		msg = t.Cause.Error()
	}
	if msg == "" {
		return t.Object.Class
	}
	return t.Object.Class + ": " + msg
}

func (t *Throwable) Unwrap() error { return t.Cause }

const messageField = "detailMessage"

func newThrowable(class, msg string, cause error) *Throwable {
	o := NewObject(class)
	if msg != "" {
		o.Set(messageField, msg)
	}
	return &Throwable{Object: o, Cause: cause}
}

// Unwrap returns the plain value behind a snapshot entry: carriers are
// opened and boxed primitives unboxed. Other values are returned as is.
func Unwrap(v any) any {
	o, ok := v.(*Object)
	if !ok || o == nil {
		return v
	}
	switch n := o.Native().(type) {
	case *api.WrapContext:
		return Unwrap(n.Value())
	case nil:
		return v
	default:
		if t := primitiveOfWrapper(o.Class); t.IsPrimitive() {
			return n
		}
	}
	return v
}
