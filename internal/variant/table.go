// Package variant generates and tracks the named copies of a method body
// that dry-run instrumentation works on.
//
// Every instrumented method has up to four variants:
//
//	Primary       the method as called by the program, gated on isDryRun
//	Instrumented  m$instrumentation, the body that runs in dry-run mode
//	Original      m$original, an untouched copy the primary path calls
//	Shadow        m$shadow, the fast-forward copy of a worker chain
//
// The Table records which method plays which role, so passes never need to
// infer the role from a method name.
package variant

import (
	"cmp"
	"slices"

	"github.com/kolkov/dryrun/internal/ir"
)

// Kind is the role a method body plays.
type Kind uint8

// Variant kinds.
const (
	Primary Kind = iota
	Instrumented
	Original
	Shadow
)

var kindNames = [...]string{
	Primary:      "primary",
	Instrumented: "instrumented",
	Original:     "original",
	Shadow:       "shadow",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// MethodID identifies a method family by its primary's signature.
type MethodID string

// ID returns the family id of primary.
func ID(primary *ir.Method) MethodID { return MethodID(primary.Signature()) }

// Key addresses one variant.
type Key struct {
	Method MethodID
	Kind   Kind
}

// Table maps variant keys to methods.
//
// Thread Safety: NOT safe for concurrent use. The pipeline is single
// threaded.
type Table struct {
	byKey    map[Key]*ir.Method
	byMethod map[*ir.Method]Key
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		byKey:    make(map[Key]*ir.Method),
		byMethod: make(map[*ir.Method]Key),
	}
}

// Put records m as the kind variant of the family rooted at primary. The
// primary itself is recorded implicitly.
func (t *Table) Put(primary *ir.Method, kind Kind, m *ir.Method) {
	id := ID(primary)
	if _, ok := t.byMethod[primary]; !ok {
		k := Key{Method: id, Kind: Primary}
		t.byKey[k] = primary
		t.byMethod[primary] = k
	}
	k := Key{Method: id, Kind: kind}
	t.byKey[k] = m
	t.byMethod[m] = k
}

// Remove drops m from the table. A primary left without variants is
// dropped with it.
func (t *Table) Remove(m *ir.Method) {
	k, ok := t.byMethod[m]
	if !ok {
		return
	}
	delete(t.byMethod, m)
	delete(t.byKey, k)
	if k.Kind == Primary {
		return
	}
	for other := range t.byKey {
		if other.Method == k.Method && other.Kind != Primary {
			return
		}
	}
	pk := Key{Method: k.Method, Kind: Primary}
	if p, ok := t.byKey[pk]; ok {
		delete(t.byMethod, p)
		delete(t.byKey, pk)
	}
}

// Lookup returns the body of the variant at k.
func (t *Table) Lookup(k Key) (*ir.Body, bool) {
	m, ok := t.byKey[k]
	if !ok || m.Body == nil {
		return nil, false
	}
	return m.Body, true
}

// Method returns the method at k, or nil.
func (t *Table) Method(k Key) *ir.Method { return t.byKey[k] }

// Has reports whether the family of primary has a kind variant.
func (t *Table) Has(primary *ir.Method, kind Kind) bool {
	_, ok := t.byKey[Key{Method: ID(primary), Kind: kind}]
	return ok
}

// KindOf returns the key m is recorded under.
func (t *Table) KindOf(m *ir.Method) (Key, bool) {
	k, ok := t.byMethod[m]
	return k, ok
}

// Len returns the number of recorded variants, primaries included.
func (t *Table) Len() int { return len(t.byKey) }

// Count returns the number of variants of kind.
func (t *Table) Count(kind Kind) int {
	n := 0
	for k := range t.byKey {
		if k.Kind == kind {
			n++
		}
	}
	return n
}

// Each calls fn for every variant ordered by family id, then kind. It
// stops early when fn returns false.
func (t *Table) Each(fn func(Key, *ir.Method) bool) {
	keys := make([]Key, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Method, b.Method); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	for _, k := range keys {
		if !fn(k, t.byKey[k]) {
			return
		}
	}
}

// Methods returns the variants of kind in Each order.
func (t *Table) Methods(kind Kind) []*ir.Method {
	var out []*ir.Method
	t.Each(func(k Key, m *ir.Method) bool {
		if k.Kind == kind {
			out = append(out, m)
		}
		return true
	})
	return out
}
