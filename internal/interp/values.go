package interp

import (
	"fmt"
	"math"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// Values are represented as:
//
//	boolean  bool        byte   int8     char  uint16   short  int16
//	int      int32       long   int64    float float32  double float64
//	String   string      other references *Object, null is nil

// zero returns the default value of t.
func zero(t ir.Type) any {
	switch t.Kind {
	case ir.KindBoolean:
		return false
	case ir.KindByte:
		return int8(0)
	case ir.KindChar:
		return uint16(0)
	case ir.KindShort:
		return int16(0)
	case ir.KindInt:
		return int32(0)
	case ir.KindLong:
		return int64(0)
	case ir.KindFloat:
		return float32(0)
	case ir.KindDouble:
		return float64(0)
	}
	return nil
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	i, ok := toInt64(v)
	return float64(i), ok
}

// coerce converts a primitive value to the representation of t. Reference
// types pass through.
func coerce(v any, t ir.Type) any {
	if !t.IsPrimitive() || v == nil {
		return v
	}
	if t.Kind == ir.KindBoolean {
		if b, ok := v.(bool); ok {
			return b
		}
		i, _ := toInt64(v)
		return i != 0
	}
	if t.Kind == ir.KindFloat || t.Kind == ir.KindDouble {
		f, ok := toFloat64(v)
		if !ok {
			return v
		}
		if t.Kind == ir.KindFloat {
			return float32(f)
		}
		return f
	}
	i, ok := toInt64(v)
	if !ok {
		return v
	}
	switch t.Kind {
	case ir.KindByte:
		return int8(i)
	case ir.KindChar:
		return uint16(i)
	case ir.KindShort:
		return int16(i)
	case ir.KindInt:
		return int32(i)
	}
	return i
}

// promoted returns the binary numeric promotion of x and y.
func promoted(x, y any) ir.Type {
	switch {
	case isKind[float64](x) || isKind[float64](y):
		return ir.Double
	case isKind[float32](x) || isKind[float32](y):
		return ir.Float
	case isKind[int64](x) || isKind[int64](y):
		return ir.Long
	}
	return ir.Int
}

func isKind[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int8, uint16, int16, int32, int64, float32, float64:
		return true
	}
	return false
}

// errDivideByZero is turned into an ArithmeticException by the caller.
var errDivideByZero = fmt.Errorf("/ by zero")

// binop evaluates x op y.
func binop(op ir.Op, x, y any) (any, error) {
	if bx, ok := x.(bool); ok {
		if by, ok := y.(bool); ok {
			switch op {
			case ir.OpAnd:
				return bx && by, nil
			case ir.OpOr:
				return bx || by, nil
			case ir.OpXor, ir.OpNe:
				return bx != by, nil
			case ir.OpEq:
				return bx == by, nil
			}
			return nil, fmt.Errorf("operator %s on booleans", op)
		}
	}
	if !isNumeric(x) || !isNumeric(y) {
		switch op {
		case ir.OpEq:
			return refEqual(x, y), nil
		case ir.OpNe:
			return !refEqual(x, y), nil
		}
		return nil, fmt.Errorf("operator %s on %T and %T", op, x, y)
	}

	t := promoted(x, y)
	if t.Kind == ir.KindFloat || t.Kind == ir.KindDouble {
		a, _ := toFloat64(x)
		b, _ := toFloat64(y)
		var r float64
		switch op {
		case ir.OpAdd:
			r = a + b
		case ir.OpSub:
			r = a - b
		case ir.OpMul:
			r = a * b
		case ir.OpDiv:
			r = a / b
		case ir.OpRem:
			r = math.Mod(a, b)
		case ir.OpEq:
			return a == b, nil
		case ir.OpNe:
			return a != b, nil
		case ir.OpLt:
			return a < b, nil
		case ir.OpLe:
			return a <= b, nil
		case ir.OpGt:
			return a > b, nil
		case ir.OpGe:
			return a >= b, nil
		default:
			return nil, fmt.Errorf("operator %s on floating-point values", op)
		}
		return coerce(r, t), nil
	}

	a, _ := toInt64(x)
	b, _ := toInt64(y)
	var r int64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv, ir.OpRem:
		if b == 0 {
			return nil, errDivideByZero
		}
		if op == ir.OpDiv {
			r = a / b
		} else {
			r = a % b
		}
	case ir.OpAnd:
		r = a & b
	case ir.OpOr:
		r = a | b
	case ir.OpXor:
		r = a ^ b
	case ir.OpEq:
		return a == b, nil
	case ir.OpNe:
		return a != b, nil
	case ir.OpLt:
		return a < b, nil
	case ir.OpLe:
		return a <= b, nil
	case ir.OpGt:
		return a > b, nil
	case ir.OpGe:
		return a >= b, nil
	}
	return coerce(r, t), nil
}

// refEqual is reference equality. Views of one object compare equal, so
// do equal strings.
func refEqual(x, y any) bool {
	ox, okx := x.(*Object)
	oy, oky := y.(*Object)
	switch {
	case okx && oky:
		if ox == nil || oy == nil {
			return ox == nil && oy == nil
		}
		return ox.Same(oy)
	case okx:
		return ox == nil && y == nil
	case oky:
		return oy == nil && x == nil
	}
	return x == y
}

// wrappers maps each wrapper class to the primitive it carries.
var wrappers = func() map[string]ir.Type {
	m := make(map[string]ir.Type)
	for _, b := range abi.Boxing {
		m[b.Class] = b.Carrier
	}
	return m
}()

// primitiveOfWrapper returns the primitive carried by a wrapper class, or
// void for any other class.
func primitiveOfWrapper(class string) ir.Type {
	if t, ok := wrappers[class]; ok {
		return t
	}
	return ir.Void
}

// classOf returns the runtime class of a reference value.
func classOf(v any) string {
	switch x := v.(type) {
	case *Object:
		return x.Class
	case string:
		return abi.StringClass
	}
	return ""
}
