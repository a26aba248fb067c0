package ir

import (
	"fmt"
	"strings"
)

// MethodRef names a method by declaring class and shape.
type MethodRef struct {
	Class  string
	Name   string
	Params []Type
	Return Type
}

// Signature returns the fully qualified signature "<C: R name(P1,P2)>".
func (m MethodRef) Signature() string {
	return "<" + m.Class + ": " + m.SubSignature() + ">"
}

// SubSignature returns the class-relative signature "R name(P1,P2)".
func (m MethodRef) SubSignature() string {
	var b strings.Builder
	b.WriteString(m.Return.String())
	b.WriteByte(' ')
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	return b.String()
}

// String implements fmt.Stringer.
func (m MethodRef) String() string { return m.Signature() }

// WithName returns a copy of m that refers to a sibling method called name.
func (m MethodRef) WithName(name string) MethodRef {
	return MethodRef{Class: m.Class, Name: name, Params: append([]Type(nil), m.Params...), Return: m.Return}
}

// SameShape reports whether a and b take the same parameters and return the
// same type. Names and declaring classes are ignored.
func SameShape(a, b MethodRef) bool {
	if a.Return != b.Return || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}

// FieldRef names a field by declaring class, name and type.
type FieldRef struct {
	Class  string
	Name   string
	Type   Type
	Static bool
}

// Signature returns "<C: T name>".
func (f FieldRef) Signature() string {
	return "<" + f.Class + ": " + f.Type.String() + " " + f.Name + ">"
}

// String implements fmt.Stringer.
func (f FieldRef) String() string { return f.Signature() }

// ParseMethodSignature parses "<C: R name(P1,P2)>".
func ParseMethodSignature(sig string) (MethodRef, error) {
	class, rest, err := splitSignature(sig)
	if err != nil {
		return MethodRef{}, err
	}
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return MethodRef{}, fmt.Errorf("malformed method signature %q", sig)
	}
	head := strings.Fields(rest[:open])
	if len(head) != 2 {
		return MethodRef{}, fmt.Errorf("malformed method signature %q: want return type and name", sig)
	}
	ref := MethodRef{Class: class, Return: ParseType(head[0]), Name: head[1]}
	if params := strings.TrimSpace(rest[open+1 : len(rest)-1]); params != "" {
		for _, p := range strings.Split(params, ",") {
			ref.Params = append(ref.Params, ParseType(strings.TrimSpace(p)))
		}
	}
	return ref, nil
}

// ParseFieldSignature parses "<C: T name>". The Static flag of the result is
// false; callers set it from context.
func ParseFieldSignature(sig string) (FieldRef, error) {
	class, rest, err := splitSignature(sig)
	if err != nil {
		return FieldRef{}, err
	}
	parts := strings.Fields(rest)
	if len(parts) != 2 || strings.ContainsAny(rest, "()") {
		return FieldRef{}, fmt.Errorf("malformed field signature %q", sig)
	}
	return FieldRef{Class: class, Type: ParseType(parts[0]), Name: parts[1]}, nil
}

// IsMethodSignature reports whether sig has the shape of a method signature.
func IsMethodSignature(sig string) bool {
	return strings.HasSuffix(sig, ")>")
}

func splitSignature(sig string) (class, rest string, err error) {
	if len(sig) < 2 || sig[0] != '<' || sig[len(sig)-1] != '>' {
		return "", "", fmt.Errorf("signature %q must be enclosed in <>", sig)
	}
	inner := sig[1 : len(sig)-1]
	colon := strings.Index(inner, ": ")
	if colon <= 0 {
		return "", "", fmt.Errorf("signature %q lacks a declaring class", sig)
	}
	return inner[:colon], strings.TrimSpace(inner[colon+2:]), nil
}
