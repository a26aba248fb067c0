package ir

import (
	"fmt"
	"slices"
)

// Program is the set of classes under analysis plus the phantom library
// classes they refer to.
type Program struct {
	classes map[string]*Class
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{classes: make(map[string]*Class)}
}

// AddClass registers c. A phantom class may be replaced by a full
// declaration of the same name; any other duplicate is an error.
func (p *Program) AddClass(c *Class) error {
	if old, ok := p.classes[c.Name]; ok && !old.Phantom {
		return &Error{Class: c.Name, Message: "class already declared"}
	}
	p.classes[c.Name] = c
	return nil
}

// Declare registers a phantom class unless name is already known.
func (p *Program) Declare(name, super string, ifaces ...string) *Class {
	if c, ok := p.classes[name]; ok {
		return c
	}
	c := &Class{Name: name, Super: super, Interfaces: ifaces, Phantom: true}
	p.classes[name] = c
	return c
}

// DeclareInterface registers a phantom interface unless name is known.
func (p *Program) DeclareInterface(name string, supers ...string) *Class {
	c := p.Declare(name, "", supers...)
	if c.Phantom {
		c.Mods |= ModInterface
	}
	return c
}

// Class returns the class called name, or nil.
func (p *Program) Class(name string) *Class { return p.classes[name] }

// Classes returns every class sorted by name.
func (p *Program) Classes() []*Class {
	out := make([]*Class, 0, len(p.classes))
	for _, c := range p.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Class) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// ApplicationClasses returns the non-phantom classes sorted by name.
func (p *Program) ApplicationClasses() []*Class {
	var out []*Class
	for _, c := range p.Classes() {
		if !c.Phantom {
			out = append(out, c)
		}
	}
	return out
}

// Superclasses returns the known superclass chain of name, starting with
// the class itself and ending at the root. Unknown classes end the chain.
func (p *Program) Superclasses(name string) []*Class {
	var chain []*Class
	seen := make(map[string]bool)
	for name != "" && !seen[name] {
		seen[name] = true
		c := p.classes[name]
		if c == nil {
			break
		}
		chain = append(chain, c)
		name = c.Super
	}
	return chain
}

// IsSubtype reports whether sub equals sup, extends it, or implements it,
// directly or transitively.
func (p *Program) IsSubtype(sub, sup string) bool {
	if sub == sup || sup == "java.lang.Object" {
		return true
	}
	seen := make(map[string]bool)
	work := []string{sub}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if n == sup {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		c := p.classes[n]
		if c == nil {
			continue
		}
		if c.Super != "" {
			work = append(work, c.Super)
		}
		work = append(work, c.Interfaces...)
	}
	return false
}

// Implements reports whether class implements the interface iface,
// directly, through a superclass or through a super-interface.
func (p *Program) Implements(class, iface string) bool {
	if c := p.classes[iface]; c != nil && !c.IsInterface() {
		return false
	}
	return class != iface && p.IsSubtype(class, iface)
}

// ResolveMethod finds the declaration ref denotes, searching the declaring
// class and then its superclasses. It returns nil for library methods.
func (p *Program) ResolveMethod(ref MethodRef) *Method {
	for _, c := range p.Superclasses(ref.Class) {
		if m := c.Method(ref.Name, ref.Params, ref.Return); m != nil {
			return m
		}
	}
	return nil
}

// Dispatch performs virtual lookup of ref's name and shape starting at the
// runtime class of the receiver.
func (p *Program) Dispatch(runtimeClass string, ref MethodRef) *Method {
	return p.ResolveMethod(MethodRef{Class: runtimeClass, Name: ref.Name, Params: ref.Params, Return: ref.Return})
}

// ResolveField finds the field ref denotes in its class or a superclass.
func (p *Program) ResolveField(ref FieldRef) *Field {
	for _, c := range p.Superclasses(ref.Class) {
		if f := c.Field(ref.Name); f != nil {
			return f
		}
	}
	return nil
}

// MethodBySignature parses sig and returns the declared method it names.
func (p *Program) MethodBySignature(sig string) (*Method, error) {
	ref, err := ParseMethodSignature(sig)
	if err != nil {
		return nil, err
	}
	c := p.classes[ref.Class]
	if c == nil {
		return nil, fmt.Errorf("class %s not found", ref.Class)
	}
	m := c.Method(ref.Name, ref.Params, ref.Return)
	if m == nil {
		return nil, fmt.Errorf("method %s not found", sig)
	}
	return m, nil
}
