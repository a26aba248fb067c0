package ir

import (
	"fmt"
	"strings"
)

// Error is a build-time failure located in a class, method or statement.
//
// The formatted message names the location first so that pipeline logs can
// be grepped by class:
//
//	demo.Worker.compute[#7]: call site has no receiver
//
//	Suggestion: Hoist the receiver into a local before instrumenting
//
// Fields:
//   - Class: declaring class (always set)
//   - Method: method name, empty for class-level errors
//   - Stmt: 1-based statement position within the body, 0 if not applicable
//   - Line: source line of the statement, 0 if unknown
//   - Message: what went wrong
//   - Suggestion: optional hint for fixing it
//   - Err: optional underlying cause, exposed through Unwrap
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type Error struct {
	Class      string
	Method     string
	Stmt       int
	Line       int
	Message    string
	Suggestion string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Class)
	if e.Method != "" {
		b.WriteByte('.')
		b.WriteString(e.Method)
	}
	if e.Stmt > 0 {
		fmt.Fprintf(&b, "[#%d]", e.Stmt)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Suggestion != "" {
		b.WriteString("\n\nSuggestion: ")
		b.WriteString(e.Suggestion)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds an error located at statement s of method m. Either m or
// s may be nil.
func NewError(m *Method, s Stmt, msg string) *Error {
	e := &Error{Message: msg}
	if m != nil {
		e.Method = m.Name
		if m.Class != nil {
			e.Class = m.Class.Name
		}
		if s != nil && m.Body != nil {
			e.Stmt = m.Body.IndexOf(s) + 1
		}
	}
	if s != nil {
		e.Line = s.Position().Line
	}
	return e
}

// NewErrorWithSuggestion is NewError plus a fix-it hint.
func NewErrorWithSuggestion(m *Method, s Stmt, msg, suggestion string) *Error {
	e := NewError(m, s, msg)
	e.Suggestion = suggestion
	return e
}

// WrapError locates err at method m.
func WrapError(m *Method, msg string, err error) *Error {
	e := NewError(m, nil, msg)
	e.Err = err
	return e
}
