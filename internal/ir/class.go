package ir

import (
	"fmt"
	"strings"
)

// Modifier is a set of declaration flags.
type Modifier uint32

// Declaration modifiers.
const (
	ModPublic Modifier = 1 << iota
	ModPrivate
	ModProtected
	ModStatic
	ModFinal
	ModSynchronized
	ModNative
	ModAbstract
	ModInterface
	ModEnum
)

var modifierNames = []struct {
	mod  Modifier
	name string
}{
	{ModPublic, "public"},
	{ModPrivate, "private"},
	{ModProtected, "protected"},
	{ModStatic, "static"},
	{ModFinal, "final"},
	{ModSynchronized, "synchronized"},
	{ModNative, "native"},
	{ModAbstract, "abstract"},
	{ModInterface, "interface"},
	{ModEnum, "enum"},
}

// Has reports whether all flags in x are set.
func (m Modifier) Has(x Modifier) bool { return m&x == x }

// String lists the set flags in declaration order.
func (m Modifier) String() string {
	var words []string
	for _, mn := range modifierNames {
		if m.Has(mn.mod) {
			words = append(words, mn.name)
		}
	}
	return strings.Join(words, " ")
}

// ParseModifier maps a keyword to its flag.
func ParseModifier(word string) (Modifier, bool) {
	for _, mn := range modifierNames {
		if mn.name == word {
			return mn.mod, true
		}
	}
	return 0, false
}

// WidenToPublic clears private/protected and sets public.
func (m Modifier) WidenToPublic() Modifier {
	return (m &^ (ModPrivate | ModProtected)) | ModPublic
}

// Field is a class member variable.
type Field struct {
	Name  string
	Type  Type
	Mods  Modifier
	Class *Class
}

// IsStatic reports whether the field is a class variable.
func (f *Field) IsStatic() bool { return f.Mods.Has(ModStatic) }

// Ref returns a reference usable in field-access values.
func (f *Field) Ref() FieldRef {
	return FieldRef{Class: f.Class.Name, Name: f.Name, Type: f.Type, Static: f.IsStatic()}
}

// Method is a class member function. Body is nil for abstract and native
// methods and for library stubs.
type Method struct {
	Name   string
	Params []Type
	Return Type
	Mods   Modifier
	Class  *Class
	Body   *Body
}

// Constructor and static-initializer names.
const (
	ConstructorName = "<init>"
	StaticInitName  = "<clinit>"
)

// Ref returns a reference usable in invoke expressions.
func (m *Method) Ref() MethodRef {
	return MethodRef{Class: m.Class.Name, Name: m.Name, Params: append([]Type(nil), m.Params...), Return: m.Return}
}

// Signature returns "<C: R name(P1,P2)>".
func (m *Method) Signature() string { return m.Ref().Signature() }

// SubSignature returns "R name(P1,P2)".
func (m *Method) SubSignature() string { return m.Ref().SubSignature() }

func (m *Method) IsStatic() bool            { return m.Mods.Has(ModStatic) }
func (m *Method) IsAbstract() bool          { return m.Mods.Has(ModAbstract) }
func (m *Method) IsNative() bool            { return m.Mods.Has(ModNative) }
func (m *Method) IsConstructor() bool       { return m.Name == ConstructorName }
func (m *Method) IsStaticInitializer() bool { return m.Name == StaticInitName }
func (m *Method) HasBody() bool             { return m.Body != nil }

// Class is a class or interface declaration. Phantom classes are library
// types whose members are unknown; they only contribute hierarchy edges.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Mods       Modifier
	Phantom    bool
	Fields     []*Field
	Methods    []*Method
}

// NewClass returns an empty class extending super.
func NewClass(name, super string, mods Modifier) *Class {
	return &Class{Name: name, Super: super, Mods: mods}
}

func (c *Class) IsInterface() bool { return c.Mods.Has(ModInterface) }
func (c *Class) IsEnum() bool      { return c.Mods.Has(ModEnum) }

// Field returns the field called name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddField declares f. Adding a second field with the same name fails.
func (c *Class) AddField(f *Field) error {
	if c.Field(f.Name) != nil {
		return &Error{Class: c.Name, Message: fmt.Sprintf("field %s already declared", f.Name)}
	}
	f.Class = c
	c.Fields = append(c.Fields, f)
	return nil
}

// Method returns the method with the given name and shape, or nil.
func (c *Class) Method(name string, params []Type, ret Type) *Method {
	want := MethodRef{Name: name, Params: params, Return: ret}
	for _, m := range c.Methods {
		if m.Name == name && SameShape(m.Ref(), want) {
			return m
		}
	}
	return nil
}

// MethodBySubSignature returns the method whose sub-signature equals sub.
func (c *Class) MethodBySubSignature(sub string) *Method {
	for _, m := range c.Methods {
		if m.SubSignature() == sub {
			return m
		}
	}
	return nil
}

// MethodsByName returns every overload called name.
func (c *Class) MethodsByName(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// AddMethod declares m. A second method with the same sub-signature fails.
func (c *Class) AddMethod(m *Method) error {
	if c.Method(m.Name, m.Params, m.Return) != nil {
		sub := MethodRef{Class: c.Name, Name: m.Name, Params: m.Params, Return: m.Return}.SubSignature()
		return &Error{Class: c.Name, Method: m.Name, Message: "method " + sub + " already declared"}
	}
	m.Class = c
	c.Methods = append(c.Methods, m)
	return nil
}

// RemoveMethod drops m from the class.
func (c *Class) RemoveMethod(m *Method) {
	for i, x := range c.Methods {
		if x == m {
			c.Methods = append(c.Methods[:i], c.Methods[i+1:]...)
			return
		}
	}
}
