package ir

import (
	"strings"
	"testing"
)

func TestParseMethodSignature(t *testing.T) {
	tests := []struct {
		sig     string
		name    string
		params  int
		wantErr bool
	}{
		{"<demo.W: void run()>", "run", 0, false},
		{"<demo.W: int compute(int,java.lang.String)>", "compute", 2, false},
		{"<demo.W: void <init>(long)>", "<init>", 1, false},
		{"demo.W: void run()", "", 0, true},
		{"<demo.W: run()>", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			ref, err := ParseMethodSignature(tt.sig)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMethodSignature(%q) succeeded, want error", tt.sig)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ref.Name != tt.name || len(ref.Params) != tt.params {
				t.Errorf("got %s with %d params", ref.Name, len(ref.Params))
			}
			if ref.Signature() != tt.sig {
				t.Errorf("Signature() = %s, want %s", ref.Signature(), tt.sig)
			}
		})
	}
}

func TestParseFieldSignature(t *testing.T) {
	f, err := ParseFieldSignature("<demo.W: java.util.Queue pending>")
	if err != nil {
		t.Fatal(err)
	}
	if f.Class != "demo.W" || f.Name != "pending" || f.Type != RefType("java.util.Queue") {
		t.Errorf("parsed %+v", f)
	}
	if _, err := ParseFieldSignature("<demo.W: void run()>"); err == nil {
		t.Error("method signature accepted as field")
	}
}

func hierarchy(t *testing.T) *Program {
	t.Helper()
	p := NewProgram()
	p.DeclareInterface("java.lang.Runnable")
	p.Declare("java.lang.Object", "")
	base := NewClass("demo.Base", "java.lang.Object", ModPublic)
	base.Interfaces = []string{"java.lang.Runnable"}
	run := &Method{Name: "run", Return: Void, Mods: ModPublic, Body: &Body{Stmts: []Stmt{NewReturnVoid()}}}
	if err := base.AddMethod(run); err != nil {
		t.Fatal(err)
	}
	if err := base.AddField(&Field{Name: "count", Type: Int}); err != nil {
		t.Fatal(err)
	}
	sub := NewClass("demo.Sub", "demo.Base", ModPublic)
	for _, c := range []*Class{base, sub} {
		if err := p.AddClass(c); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestProgramHierarchy(t *testing.T) {
	p := hierarchy(t)

	chain := p.Superclasses("demo.Sub")
	if len(chain) != 3 || chain[0].Name != "demo.Sub" || chain[2].Name != "java.lang.Object" {
		t.Errorf("Superclasses = %v", chain)
	}
	if !p.IsSubtype("demo.Sub", "java.lang.Runnable") {
		t.Error("Sub should implement Runnable through Base")
	}
	if p.IsSubtype("demo.Base", "demo.Sub") {
		t.Error("Base is not a subtype of Sub")
	}
	if !p.Implements("demo.Sub", "java.lang.Runnable") {
		t.Error("Implements(Sub, Runnable) = false")
	}

	m := p.Dispatch("demo.Sub", MethodRef{Class: "java.lang.Runnable", Name: "run", Return: Void})
	if m == nil || m.Class.Name != "demo.Base" {
		t.Errorf("Dispatch found %v", m)
	}
	if f := p.ResolveField(FieldRef{Class: "demo.Sub", Name: "count"}); f == nil {
		t.Error("inherited field not resolved")
	}
	if got := len(p.ApplicationClasses()); got != 2 {
		t.Errorf("ApplicationClasses = %d, want 2", got)
	}
}

func TestProgramDuplicates(t *testing.T) {
	p := hierarchy(t)
	if err := p.AddClass(NewClass("demo.Base", "", 0)); err == nil {
		t.Error("duplicate class accepted")
	}
	full := NewClass("java.lang.Object", "", ModPublic)
	if err := p.AddClass(full); err != nil {
		t.Errorf("replacing a phantom failed: %v", err)
	}
	base := p.Class("demo.Base")
	if err := base.AddField(&Field{Name: "count", Type: Long}); err == nil {
		t.Error("duplicate field accepted")
	}
	dup := &Method{Name: "run", Return: Void}
	err := base.AddMethod(dup)
	if err == nil {
		t.Fatal("duplicate method accepted")
	}
	if !strings.Contains(err.Error(), "void run() already declared") {
		t.Errorf("duplicate method error = %v", err)
	}
	if dup.Class != nil {
		t.Error("rejected method was attached to the class")
	}
}
