package interp

import (
	"fmt"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/runtime/api"
	"github.com/kolkov/dryrun/internal/runtime/baggage"
	"github.com/kolkov/dryrun/internal/runtime/snapstore"
)

func self(c NativeCall) *Object {
	o, _ := c.Recv.(*Object)
	return o
}

func arg[T any](c NativeCall, i int) T {
	var zero T
	if i >= len(c.Args) {
		return zero
	}
	v, _ := c.Args[i].(T)
	return v
}

func registerLang(n map[string]Native) {
	noop := func(*Interp, NativeCall) (any, error) { return nil, nil }
	n[nativeKey(abi.ObjectClass, ir.ConstructorName)] = noop
	n[nativeKey(abi.ObjectClass, "equals")] = func(_ *Interp, c NativeCall) (any, error) {
		return refEqual(c.Recv, c.Args[0]), nil
	}
	n[nativeKey(abi.ObjectClass, "toString")] = func(_ *Interp, c NativeCall) (any, error) {
		return fmt.Sprint(c.Recv), nil
	}

	n[nativeKey(abi.ThrowableClass, ir.ConstructorName)] = func(_ *Interp, c NativeCall) (any, error) {
		if msg := arg[string](c, 0); msg != "" {
			self(c).Set(messageField, msg)
		}
		return nil, nil
	}
	n[nativeKey(abi.ThrowableClass, "getMessage")] = func(_ *Interp, c NativeCall) (any, error) {
		return self(c).Get(messageField), nil
	}

	n[nativeKey(abi.StringClass, "equals")] = func(_ *Interp, c NativeCall) (any, error) {
		s, ok := c.Args[0].(string)
		return ok && s == c.Recv.(string), nil
	}
	n[nativeKey(abi.StringClass, "length")] = func(_ *Interp, c NativeCall) (any, error) {
		return int32(len([]rune(c.Recv.(string)))), nil
	}
	n[nativeKey(abi.StringClass, "concat")] = func(_ *Interp, c NativeCall) (any, error) {
		return c.Recv.(string) + arg[string](c, 0), nil
	}
	n[nativeKey(abi.StringClass, "valueOf")] = func(_ *Interp, c NativeCall) (any, error) {
		if c.Args[0] == nil {
			return "null", nil
		}
		return fmt.Sprint(c.Args[0]), nil
	}

	n[nativeKey(abi.SystemClass, "getProperty")] = func(in *Interp, c NativeCall) (any, error) {
		if v, ok := in.Property(arg[string](c, 0)); ok {
			return v, nil
		}
		return nil, nil
	}
	n[nativeKey(abi.SystemClass, "setProperty")] = func(in *Interp, c NativeCall) (any, error) {
		key := arg[string](c, 0)
		prev, ok := in.Property(key)
		in.SetProperty(key, arg[string](c, 1))
		if !ok {
			return nil, nil
		}
		return prev, nil
	}

	// Both tables are registered: the legacy one boxes char into Short.
	for _, tab := range []abi.BoxingTable{abi.Boxing, abi.LegacyBoxing} {
		for _, b := range tab {
			n[nativeKey(b.Class, "valueOf")] = func(_ *Interp, c NativeCall) (any, error) {
				o := NewObject(b.Class)
				o.setNative(coerce(c.Args[0], b.Carrier))
				return o, nil
			}
			n[nativeKey(b.Class, b.Unbox)] = func(_ *Interp, c NativeCall) (any, error) {
				return coerce(self(c).Native(), b.Carrier), nil
			}
		}
	}

	for _, class := range []string{abi.HashMapClass, abi.MapClass} {
		n[nativeKey(class, ir.ConstructorName)] = func(_ *Interp, c NativeCall) (any, error) {
			self(c).setNative(make(map[any]any))
			return nil, nil
		}
		n[nativeKey(class, "put")] = func(_ *Interp, c NativeCall) (any, error) {
			return withMap(self(c), func(m map[any]any) any {
				prev := m[c.Args[0]]
				m[c.Args[0]] = c.Args[1]
				return prev
			}), nil
		}
		n[nativeKey(class, "get")] = func(_ *Interp, c NativeCall) (any, error) {
			return withMap(self(c), func(m map[any]any) any { return m[c.Args[0]] }), nil
		}
		n[nativeKey(class, "containsKey")] = func(_ *Interp, c NativeCall) (any, error) {
			return withMap(self(c), func(m map[any]any) any {
				_, ok := m[c.Args[0]]
				return ok
			}), nil
		}
		n[nativeKey(class, "size")] = func(_ *Interp, c NativeCall) (any, error) {
			return withMap(self(c), func(m map[any]any) any { return int32(len(m)) }), nil
		}
	}
}

// withMap runs fn on the entries of a map object, creating them if the
// constructor never ran.
func withMap(o *Object, fn func(map[any]any) any) any {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	m, ok := o.state.native.(map[any]any)
	if !ok {
		m = make(map[any]any)
		o.state.native = m
	}
	return fn(m)
}

func registerRuntime(n map[string]Native) {
	rt := func(name string) string { return nativeKey(abi.RuntimeClass, name) }
	mode := func(fn func(*api.Runtime)) Native {
		return func(in *Interp, _ NativeCall) (any, error) {
			fn(in.rt)
			return nil, nil
		}
	}
	n[rt("isDryRun")] = func(in *Interp, _ NativeCall) (any, error) { return in.rt.IsDryRun(), nil }
	n[rt("isFastForward")] = func(in *Interp, _ NativeCall) (any, error) { return in.rt.IsFastForward(), nil }
	n[rt("clearBaggage")] = mode((*api.Runtime).ClearBaggage)
	n[rt("createDryRunBaggage")] = mode((*api.Runtime).CreateDryRunBaggage)
	n[rt("createShadowBaggage")] = mode((*api.Runtime).CreateShadowBaggage)
	n[rt("createFastForwardBaggage")] = mode((*api.Runtime).CreateFastForwardBaggage)
	n[rt("log")] = func(in *Interp, c NativeCall) (any, error) {
		in.rt.Log(arg[string](c, 0))
		return nil, nil
	}
	n[rt("shouldBeContextWrap")] = func(in *Interp, c NativeCall) (any, error) {
		return in.rt.ShouldBeContextWrap(c.Args[0], c.Args[1]), nil
	}

	record := func(store func(*api.Runtime, string, snapstore.Snapshot) bool) Native {
		return func(in *Interp, c NativeCall) (any, error) {
			snap, err := toSnapshot(arg[*Object](c, 1))
			if err != nil {
				return nil, err
			}
			store(in.rt, arg[string](c, 0), snap)
			return nil, nil
		}
	}
	restore := func(load func(*api.Runtime, string) (snapstore.Snapshot, error)) Native {
		return func(in *Interp, c NativeCall) (any, error) {
			snap, err := load(in.rt, arg[string](c, 0))
			if err != nil {
				return nil, newThrowable(abi.IllegalStateExceptionClass, "", err)
			}
			return fromSnapshot(snap), nil
		}
	}
	n[rt("recordState")] = record((*api.Runtime).RecordState)
	n[rt("recordFieldState")] = record((*api.Runtime).RecordFieldState)
	n[rt("getState")] = restore((*api.Runtime).GetState)
	n[rt("getFieldState")] = restore((*api.Runtime).GetFieldState)

	n[nativeKey(abi.StateClass, "shallowCopy")] = func(_ *Interp, c NativeCall) (any, error) {
		set, _ := c.Args[2].(bool)
		return api.ShallowCopy(c.Args[0], c.Args[1], set), nil
	}

	n[nativeKey(abi.WrapContextClass, ir.ConstructorName)] = func(_ *Interp, c NativeCall) (any, error) {
		self(c).setNative(api.NewWrapContext(c.Args[0]))
		return nil, nil
	}
	n[nativeKey(abi.WrapContextClass, "getValue")] = func(_ *Interp, c NativeCall) (any, error) {
		w, ok := self(c).Native().(*api.WrapContext)
		if !ok {
			return nil, nil
		}
		return w.Value(), nil
	}

	n[nativeKey(abi.ContextClass, "current")] = func(in *Interp, _ NativeCall) (any, error) {
		o := NewObject(abi.ContextClass)
		o.setNative(in.rt.Capture())
		return o, nil
	}
	n[nativeKey(abi.ContextClass, "wrap")] = func(_ *Interp, c NativeCall) (any, error) {
		b, _ := self(c).Native().(*baggage.Baggage)
		o, ok := c.Args[0].(*Object)
		if !ok || o == nil {
			return c.Args[0], nil
		}
		return o.view(b), nil
	}
}

// toSnapshot copies the entries of a HashMap object.
func toSnapshot(m *Object) (snapstore.Snapshot, error) {
	if m == nil {
		return nil, newThrowable(abi.NullPointerExceptionClass, "snapshot map is null", nil)
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	entries, _ := m.state.native.(map[any]any)
	snap := make(snapstore.Snapshot, len(entries))
	for k, v := range entries {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("snapshot key %v is not a string", k)
		}
		snap[key] = v
	}
	return snap, nil
}

func fromSnapshot(snap snapstore.Snapshot) *Object {
	o := NewObject(abi.HashMapClass)
	m := make(map[any]any, len(snap))
	for k, v := range snap {
		m[k] = v
	}
	o.setNative(m)
	return o
}
