package ir

// Kind classifies a Type.
type Kind uint8

// Type kinds. KindRef covers classes, interfaces and boxed values.
const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindBoolean: "boolean",
	KindByte:    "byte",
	KindChar:    "char",
	KindShort:   "short",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
}

// Type is a value type. Class is set only for KindRef.
//
// Type is comparable and can be used as a map key.
type Type struct {
	Kind  Kind
	Class string
}

// Primitive and void types.
var (
	Void    = Type{Kind: KindVoid}
	Boolean = Type{Kind: KindBoolean}
	Byte    = Type{Kind: KindByte}
	Char    = Type{Kind: KindChar}
	Short   = Type{Kind: KindShort}
	Int     = Type{Kind: KindInt}
	Long    = Type{Kind: KindLong}
	Float   = Type{Kind: KindFloat}
	Double  = Type{Kind: KindDouble}
)

// Frequently used reference types.
var (
	ObjectType    = RefType("java.lang.Object")
	StringType    = RefType("java.lang.String")
	ThrowableType = RefType("java.lang.Throwable")
)

// RefType returns the reference type for class.
func RefType(class string) Type {
	return Type{Kind: KindRef, Class: class}
}

// ParseType maps a type name to a Type. Any name that is not a primitive
// keyword denotes a reference type.
func ParseType(name string) Type {
	for k, n := range kindNames {
		if n != "" && n == name {
			return Type{Kind: Kind(k)}
		}
	}
	return RefType(name)
}

// String returns the source-level spelling of the type.
func (t Type) String() string {
	if t.Kind == KindRef {
		return t.Class
	}
	if int(t.Kind) < len(kindNames) {
		return kindNames[t.Kind]
	}
	return "?"
}

// IsPrimitive reports whether t is one of the eight primitive types.
func (t Type) IsPrimitive() bool {
	return t.Kind > KindVoid && t.Kind < KindRef
}

// IsRef reports whether t is a reference type.
func (t Type) IsRef() bool { return t.Kind == KindRef }

// IsVoid reports whether t is void.
func (t Type) IsVoid() bool { return t.Kind == KindVoid }

// ZeroValue returns the constant a freshly declared variable of type t
// holds: 0, 0L, 0.0F, 0.0D, false, '\0' or null.
func ZeroValue(t Type) *Constant {
	switch t.Kind {
	case KindBoolean:
		return Bool(false)
	case KindByte:
		return ByteConst(0)
	case KindChar:
		return CharConst(0)
	case KindShort:
		return ShortConst(0)
	case KindInt:
		return IntConst(0)
	case KindLong:
		return LongConst(0)
	case KindFloat:
		return FloatConst(0)
	case KindDouble:
		return DoubleConst(0)
	default:
		return Null(t)
	}
}
