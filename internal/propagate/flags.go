package propagate

import (
	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// Flags maps each known class to the trace-flag fields it inherits,
// root-most class first. A task object handed to another thread gets every
// one of those flags set, so whichever of its ancestors implements run()
// or onSuccess() finds its own flag raised.
type Flags struct {
	own       map[string]ir.FieldRef
	ancestors map[string][]ir.FieldRef
}

// DeclareFlags adds the public boolean trace flag to every class in
// classes that lacks one and precomputes the ancestor lists for the whole
// program.
func DeclareFlags(p *ir.Program, classes []*ir.Class) (*Flags, int, error) {
	n := 0
	for _, c := range classes {
		if c.IsInterface() || c.Field(abi.TraceFlagName(c.Name)) != nil {
			continue
		}
		f := &ir.Field{Name: abi.TraceFlagName(c.Name), Type: ir.Boolean, Mods: ir.ModPublic}
		if err := c.AddField(f); err != nil {
			return nil, n, err
		}
		n++
	}
	return BuildFlags(p), n, nil
}

// BuildFlags computes the ancestor lists from the flags already declared
// in p.
func BuildFlags(p *ir.Program) *Flags {
	fl := &Flags{
		own:       make(map[string]ir.FieldRef),
		ancestors: make(map[string][]ir.FieldRef),
	}
	for _, c := range p.Classes() {
		if f := c.Field(abi.TraceFlagName(c.Name)); f != nil && f.Type == ir.Boolean && !f.IsStatic() {
			fl.own[c.Name] = f.Ref()
		}
	}
	for _, c := range p.Classes() {
		chain := p.Superclasses(c.Name)
		var refs []ir.FieldRef
		for i := len(chain) - 1; i >= 0; i-- {
			if chain[i].Name == abi.ObjectClass {
				continue
			}
			if ref, ok := fl.own[chain[i].Name]; ok {
				refs = append(refs, ref)
			}
		}
		if len(refs) > 0 {
			fl.ancestors[c.Name] = refs
		}
	}
	return fl
}

// Own returns the trace flag declared by class itself.
func (fl *Flags) Own(class string) (ir.FieldRef, bool) {
	ref, ok := fl.own[class]
	return ref, ok
}

// Ancestors returns the trace flags of class and its superclasses,
// outermost first. Interfaces and unknown classes have none.
func (fl *Flags) Ancestors(class string) []ir.FieldRef {
	return fl.ancestors[class]
}

// Len returns the number of classes that declare a flag.
func (fl *Flags) Len() int { return len(fl.own) }
