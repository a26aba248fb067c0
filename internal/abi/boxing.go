package abi

import (
	"fmt"

	"github.com/kolkov/dryrun/internal/ir"
)

// Box describes how a primitive travels through a snapshot map.
type Box struct {
	Prim    ir.Type // the primitive being boxed
	Class   string  // wrapper class
	Carrier ir.Type // primitive the wrapper holds
	Unbox   string  // xxxValue method on the wrapper
}

// ValueOf returns the static boxing method, e.g. Integer.valueOf(int).
func (b Box) ValueOf() ir.MethodRef {
	return ir.MethodRef{Class: b.Class, Name: "valueOf", Params: []ir.Type{b.Carrier}, Return: ir.RefType(b.Class)}
}

// UnboxMethod returns the instance unboxing method, e.g. Integer.intValue().
func (b Box) UnboxMethod() ir.MethodRef {
	return ir.MethodRef{Class: b.Class, Name: b.Unbox, Return: b.Carrier}
}

// Lossless reports whether the wrapper holds exactly the boxed primitive.
func (b Box) Lossless() bool { return b.Prim == b.Carrier }

// BoxingTable maps each primitive kind to its wrapper.
type BoxingTable map[ir.Kind]Box

// Lookup returns the box for t. Reference types are not boxed.
func (tab BoxingTable) Lookup(t ir.Type) (Box, bool) {
	if !t.IsPrimitive() {
		return Box{}, false
	}
	b, ok := tab[t.Kind]
	return b, ok
}

// Check reports the first lossy mapping in the table, if any.
func (tab BoxingTable) Check() error {
	for _, k := range []ir.Kind{ir.KindBoolean, ir.KindByte, ir.KindChar, ir.KindShort, ir.KindInt, ir.KindLong, ir.KindFloat, ir.KindDouble} {
		b, ok := tab[k]
		if !ok {
			return fmt.Errorf("no wrapper for %s", ir.Type{Kind: k})
		}
		if !b.Lossless() {
			return &BoxingDefectError{Prim: b.Prim, Wrapper: b.Class}
		}
	}
	return nil
}

func box(prim ir.Type, class string, carrier ir.Type, unbox string) Box {
	return Box{Prim: prim, Class: class, Carrier: carrier, Unbox: unbox}
}

// Boxing is the correct wrapper table.
var Boxing = BoxingTable{
	ir.KindBoolean: box(ir.Boolean, "java.lang.Boolean", ir.Boolean, "booleanValue"),
	ir.KindByte:    box(ir.Byte, "java.lang.Byte", ir.Byte, "byteValue"),
	ir.KindChar:    box(ir.Char, "java.lang.Character", ir.Char, "charValue"),
	ir.KindShort:   box(ir.Short, "java.lang.Short", ir.Short, "shortValue"),
	ir.KindInt:     box(ir.Int, "java.lang.Integer", ir.Int, "intValue"),
	ir.KindLong:    box(ir.Long, "java.lang.Long", ir.Long, "longValue"),
	ir.KindFloat:   box(ir.Float, "java.lang.Float", ir.Float, "floatValue"),
	ir.KindDouble:  box(ir.Double, "java.lang.Double", ir.Double, "doubleValue"),
}

// LegacyBoxing reproduces the historical table that stored char values in
// a Short. It exists so that the defect can be detected and reported; the
// snapshot pass refuses to generate code from it.
var LegacyBoxing = func() BoxingTable {
	tab := make(BoxingTable, len(Boxing))
	for k, v := range Boxing {
		tab[k] = v
	}
	tab[ir.KindChar] = box(ir.Char, "java.lang.Short", ir.Short, "shortValue")
	return tab
}()

// BoxingDefectError reports a wrapper that cannot hold its primitive
// without loss.
type BoxingDefectError struct {
	Prim    ir.Type
	Wrapper string
}

func (e *BoxingDefectError) Error() string {
	return fmt.Sprintf("boxing table stores %s in %s, which does not round-trip", e.Prim, e.Wrapper)
}

// WrapperClasses lists the wrapper classes of the correct table.
func WrapperClasses() []string {
	return []string{
		"java.lang.Boolean", "java.lang.Byte", "java.lang.Character", "java.lang.Short",
		"java.lang.Integer", "java.lang.Long", "java.lang.Float", "java.lang.Double",
	}
}
