// Package irtest builds programs from jir source for tests.
package irtest

import (
	"strings"
	"testing"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/ir/jir"
)

// Load parses src, which may omit the "jir 1.0" header, into a program
// that also declares the runtime and library classes.
func Load(t testing.TB, src string) *ir.Program {
	t.Helper()
	if !strings.HasPrefix(strings.TrimSpace(src), "jir ") {
		src = "jir " + jir.FormatVersion + "\n" + src
	}
	f, err := jir.Parse(t.Name()+".jir", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := ir.NewProgram()
	abi.DeclareLibrary(p)
	if err := f.AddTo(p); err != nil {
		t.Fatalf("add classes: %v", err)
	}
	return p
}

// Method returns the method of class named name. It fails the test when
// the lookup is ambiguous or empty.
func Method(t testing.TB, p *ir.Program, class, name string) *ir.Method {
	t.Helper()
	c := p.Class(class)
	if c == nil {
		t.Fatalf("class %s not found", class)
	}
	ms := c.MethodsByName(name)
	if len(ms) != 1 {
		t.Fatalf("%s.%s: found %d methods, want 1", class, name, len(ms))
	}
	return ms[0]
}

// Print renders the application classes of p.
func Print(t testing.TB, p *ir.Program) string {
	t.Helper()
	var b strings.Builder
	if err := jir.PrintProgram(&b, p); err != nil {
		t.Fatalf("print: %v", err)
	}
	return b.String()
}
