package ir

import (
	"strconv"
	"strings"
)

// Value is an operand or expression.
type Value interface {
	// Type returns the static type of the value.
	Type() Type
	String() string
	isValue()
}

// Local is a method-scoped variable.
type Local struct {
	Name string
	typ  Type

	// Generated marks a temporary declared by an instrumentation pass.
	Generated bool
}

// NewLocal returns a local that is not yet attached to any body.
func NewLocal(name string, t Type) *Local {
	return &Local{Name: name, typ: t}
}

func (l *Local) Type() Type     { return l.typ }
func (l *Local) String() string { return l.Name }
func (*Local) isValue()         {}

// Constant is a literal. Value holds the Go representation of the literal:
// bool, int8 (byte), uint16 (char), int16 (short), int32, int64, float32,
// float64, string, or nil for null.
type Constant struct {
	typ   Type
	Value any
}

// Constant constructors.
func IntConst(v int32) *Constant       { return &Constant{typ: Int, Value: v} }
func LongConst(v int64) *Constant      { return &Constant{typ: Long, Value: v} }
func FloatConst(v float32) *Constant   { return &Constant{typ: Float, Value: v} }
func DoubleConst(v float64) *Constant  { return &Constant{typ: Double, Value: v} }
func Bool(v bool) *Constant            { return &Constant{typ: Boolean, Value: v} }
func ByteConst(v int8) *Constant       { return &Constant{typ: Byte, Value: v} }
func ShortConst(v int16) *Constant     { return &Constant{typ: Short, Value: v} }
func CharConst(v uint16) *Constant     { return &Constant{typ: Char, Value: v} }
func StringConst(v string) *Constant   { return &Constant{typ: StringType, Value: v} }
func Null(t Type) *Constant            { return &Constant{typ: t} }
func (c *Constant) Type() Type         { return c.typ }
func (*Constant) isValue()             {}
func (c *Constant) IsNull() bool       { return c.Value == nil }

// String renders the constant in jir syntax.
func (c *Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int8:
		return strconv.Itoa(int(v)) + "B"
	case int16:
		return strconv.Itoa(int(v)) + "S"
	case uint16:
		return strconv.QuoteRune(rune(v))
	case int32:
		return strconv.Itoa(int(v))
	case int64:
		return strconv.FormatInt(v, 10) + "L"
	case float32:
		return formatFloat(float64(v), 32) + "F"
	case float64:
		return formatFloat(v, 64) + "D"
	case string:
		return strconv.Quote(v)
	}
	return "?"
}

func formatFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

// InstanceFieldRef reads or writes a field of the object held in Base.
type InstanceFieldRef struct {
	Base  *Local
	Field FieldRef
}

func (r *InstanceFieldRef) Type() Type     { return r.Field.Type }
func (r *InstanceFieldRef) String() string { return r.Base.Name + "." + r.Field.Signature() }
func (*InstanceFieldRef) isValue()         {}

// StaticFieldRef reads or writes a static field.
type StaticFieldRef struct {
	Field FieldRef
}

func (r *StaticFieldRef) Type() Type     { return r.Field.Type }
func (r *StaticFieldRef) String() string { return r.Field.Signature() }
func (*StaticFieldRef) isValue()         {}

// InvokeKind selects the dispatch rule of an invocation.
type InvokeKind uint8

// Invocation kinds.
const (
	InvokeVirtual InvokeKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
)

var invokeKindNames = [...]string{
	InvokeVirtual:   "virtualinvoke",
	InvokeSpecial:   "specialinvoke",
	InvokeStatic:    "staticinvoke",
	InvokeInterface: "interfaceinvoke",
}

func (k InvokeKind) String() string { return invokeKindNames[k] }

// ParseInvokeKind maps a keyword such as "virtualinvoke" to its kind.
func ParseInvokeKind(word string) (InvokeKind, bool) {
	for k, n := range invokeKindNames {
		if n == word {
			return InvokeKind(k), true
		}
	}
	return 0, false
}

// InvokeExpr calls Method. Base is nil for static invocations.
type InvokeExpr struct {
	Kind   InvokeKind
	Base   *Local
	Method MethodRef
	Args   []Value
}

// NewStaticInvoke builds a static call.
func NewStaticInvoke(m MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: InvokeStatic, Method: m, Args: args}
}

// NewInstanceInvoke builds a virtual, special or interface call on base.
func NewInstanceInvoke(kind InvokeKind, base *Local, m MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: kind, Base: base, Method: m, Args: args}
}

func (e *InvokeExpr) Type() Type { return e.Method.Return }
func (*InvokeExpr) isValue()     {}

func (e *InvokeExpr) String() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteByte(' ')
	if e.Base != nil {
		b.WriteString(e.Base.Name)
		b.WriteByte('.')
	}
	b.WriteString(e.Method.Signature())
	b.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Op is a binary operator.
type Op string

// Binary operators.
const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpRem Op = "%"
	OpAnd Op = "&"
	OpOr  Op = "|"
	OpXor Op = "^"
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
)

var allOps = []Op{OpAdd, OpSub, OpMul, OpDiv, OpRem, OpAnd, OpOr, OpXor, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe}

// ParseOp maps an operator token to an Op.
func ParseOp(s string) (Op, bool) {
	for _, op := range allOps {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// IsComparison reports whether op yields a boolean.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// BinopExpr applies Op to X and Y.
type BinopExpr struct {
	Op   Op
	X, Y Value
}

func (e *BinopExpr) Type() Type {
	if e.Op.IsComparison() {
		return Boolean
	}
	return e.X.Type()
}
func (e *BinopExpr) String() string { return e.X.String() + " " + string(e.Op) + " " + e.Y.String() }
func (*BinopExpr) isValue()         {}

// Eq and Ne build the comparisons used by generated guards.
func Eq(x, y Value) *BinopExpr { return &BinopExpr{Op: OpEq, X: x, Y: y} }
func Ne(x, y Value) *BinopExpr { return &BinopExpr{Op: OpNe, X: x, Y: y} }

// CastExpr converts X to To.
type CastExpr struct {
	To Type
	X  Value
}

func (e *CastExpr) Type() Type     { return e.To }
func (e *CastExpr) String() string { return "(" + e.To.String() + ") " + e.X.String() }
func (*CastExpr) isValue()         {}

// NewExpr allocates an uninitialized instance of Class.
type NewExpr struct {
	Class string
}

func (e *NewExpr) Type() Type     { return RefType(e.Class) }
func (e *NewExpr) String() string { return "new " + e.Class }
func (*NewExpr) isValue()         {}

// ThisRef is the receiver bound by an identity statement.
type ThisRef struct {
	typ Type
}

// NewThisRef returns the receiver reference for class t.
func NewThisRef(t Type) *ThisRef     { return &ThisRef{typ: t} }
func (r *ThisRef) Type() Type        { return r.typ }
func (r *ThisRef) String() string    { return "@this: " + r.typ.String() }
func (*ThisRef) isValue()            {}

// ParamRef is the Index-th parameter bound by an identity statement.
type ParamRef struct {
	Index int
	typ   Type
}

// NewParamRef returns the reference to parameter index of type t.
func NewParamRef(index int, t Type) *ParamRef { return &ParamRef{Index: index, typ: t} }
func (r *ParamRef) Type() Type                { return r.typ }
func (r *ParamRef) String() string            { return "@parameter" + strconv.Itoa(r.Index) + ": " + r.typ.String() }
func (*ParamRef) isValue()                    {}

// CaughtExceptionRef is the exception delivered to a handler.
type CaughtExceptionRef struct {
	typ Type
}

// NewCaughtExceptionRef returns the handler-entry reference.
func NewCaughtExceptionRef() *CaughtExceptionRef { return &CaughtExceptionRef{typ: ThrowableType} }
func (r *CaughtExceptionRef) Type() Type          { return r.typ }
func (*CaughtExceptionRef) String() string        { return "@caughtexception" }
func (*CaughtExceptionRef) isValue()              {}

// Walk calls fn for v and, depth first, every value nested inside it.
func Walk(v Value, fn func(Value)) {
	if v == nil {
		return
	}
	fn(v)
	switch e := v.(type) {
	case *InstanceFieldRef:
		Walk(e.Base, fn)
	case *InvokeExpr:
		if e.Base != nil {
			Walk(e.Base, fn)
		}
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *BinopExpr:
		Walk(e.X, fn)
		Walk(e.Y, fn)
	case *CastExpr:
		Walk(e.X, fn)
	}
}
