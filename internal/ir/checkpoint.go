package ir

import "slices"

// Checkpoint holds a copy of a class's members and bodies so that a failed
// edit can be undone.
type Checkpoint struct {
	class   *Class
	fields  []*Field
	methods []*Method
	bodies  map[*Method]*Body
}

// Save records the current members of c and a copy of every body.
func Save(c *Class) *Checkpoint {
	cp := &Checkpoint{
		class:   c,
		fields:  slices.Clone(c.Fields),
		methods: slices.Clone(c.Methods),
		bodies:  make(map[*Method]*Body, len(c.Methods)),
	}
	for _, m := range c.Methods {
		if m.HasBody() {
			cp.bodies[m], _ = m.Body.Clone()
		}
	}
	return cp
}

// Restore puts the class back as it was at Save and returns the methods
// declared since, which are detached from the class. Restored bodies are
// copies: statements taken from the class before Restore no longer belong
// to it.
func (cp *Checkpoint) Restore() []*Method {
	var added []*Method
	for _, m := range cp.class.Methods {
		if !slices.Contains(cp.methods, m) {
			added = append(added, m)
		}
	}
	cp.class.Fields = cp.fields
	cp.class.Methods = cp.methods
	for _, m := range cp.methods {
		if b, ok := cp.bodies[m]; ok {
			m.Body = b
		}
	}
	return added
}
