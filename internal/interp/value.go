package interp

import (
	"math"

	"forge/internal/array"
	"forge/internal/errors"
	"forge/internal/ir"
)

// domain picks the computation domain of a binary operation: complex beats
// float; two unsigned operands compute unsigned, and any other integer or
// bool mix computes signed.
func domain(a, b array.Scalar) array.DType {
	ta, tb := a.Type, b.Type
	switch {
	case ta.IsComplex() || tb.IsComplex():
		return array.Complex128
	case ta.IsFloat() || tb.IsFloat():
		return array.Float64
	case ta.IsUnsigned() && tb.IsUnsigned():
		return array.Uint64
	default:
		return array.Int64
	}
}

// evalBinary applies a binary operator to two scalars in their common
// domain. The caller casts the result on store.
func evalBinary(op ir.Opcode, a, b array.Scalar) (array.Scalar, error) {
	switch op {
	case ir.Equal:
		return boolOf(compare(a, b) == 0), nil
	case ir.NotEqual:
		return boolOf(compare(a, b) != 0), nil
	case ir.Less:
		return boolOf(compare(a, b) < 0), nil
	case ir.LessEqual:
		return boolOf(compare(a, b) <= 0), nil
	case ir.Greater:
		return boolOf(compare(a, b) > 0), nil
	case ir.GreaterEqual:
		return boolOf(compare(a, b) >= 0), nil
	case ir.LogicalAnd:
		return boolOf(a.AsBool() && b.AsBool()), nil
	case ir.LogicalOr:
		return boolOf(a.AsBool() || b.AsBool()), nil
	case ir.LogicalXor:
		return boolOf(a.AsBool() != b.AsBool()), nil
	}

	switch domain(a, b) {
	case array.Complex128:
		return evalComplex(op, a.AsComplex128(), b.AsComplex128())
	case array.Float64:
		return evalFloat(op, a.AsFloat64(), b.AsFloat64())
	case array.Uint64:
		return evalUint(op, a.AsUint64(), b.AsUint64())
	default:
		return evalInt(op, a.AsInt64(), b.AsInt64())
	}
}

func boolOf(v bool) array.Scalar {
	return array.BoolScalar(v)
}

// compare orders two scalars in their common domain; complex compares by
// real part.
func compare(a, b array.Scalar) int {
	switch domain(a, b) {
	case array.Complex128, array.Float64:
		x, y := a.AsFloat64(), b.AsFloat64()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case array.Uint64:
		x, y := a.AsUint64(), b.AsUint64()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	default:
		x, y := a.AsInt64(), b.AsInt64()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
}

func evalFloat(op ir.Opcode, a, b float64) (array.Scalar, error) {
	var v float64
	switch op {
	case ir.Add:
		v = a + b
	case ir.Subtract:
		v = a - b
	case ir.Multiply:
		v = a * b
	case ir.Divide:
		v = a / b
	case ir.Mod:
		v = math.Mod(a, b)
	case ir.Power:
		v = math.Pow(a, b)
	case ir.Maximum:
		v = math.Max(a, b)
	case ir.Minimum:
		v = math.Min(a, b)
	case ir.Arctan2:
		v = math.Atan2(a, b)
	default:
		return array.Scalar{}, errors.E(errors.UnknownOperator, "no float evaluation for %s", op)
	}
	return array.Float64Scalar(v), nil
}

func evalInt(op ir.Opcode, a, b int64) (array.Scalar, error) {
	var v int64
	switch op {
	case ir.Add:
		v = a + b
	case ir.Subtract:
		v = a - b
	case ir.Multiply:
		v = a * b
	case ir.Divide:
		if b == 0 {
			v = 0
		} else {
			v = a / b
		}
	case ir.Mod:
		if b == 0 {
			v = 0
		} else {
			v = a % b
		}
	case ir.Power:
		return array.Float64Scalar(math.Pow(float64(a), float64(b))), nil
	case ir.Maximum:
		v = a
		if b > a {
			v = b
		}
	case ir.Minimum:
		v = a
		if b < a {
			v = b
		}
	case ir.BitwiseAnd:
		v = a & b
	case ir.BitwiseOr:
		v = a | b
	case ir.BitwiseXor:
		v = a ^ b
	case ir.LeftShift:
		v = a << uint64(b)
	case ir.RightShift:
		v = a >> uint64(b)
	default:
		return array.Scalar{}, errors.E(errors.UnknownOperator, "no integer evaluation for %s", op)
	}
	return array.Int64Scalar(v), nil
}

func evalUint(op ir.Opcode, a, b uint64) (array.Scalar, error) {
	var v uint64
	switch op {
	case ir.Add:
		v = a + b
	case ir.Subtract:
		v = a - b
	case ir.Multiply:
		v = a * b
	case ir.Divide:
		if b == 0 {
			v = 0
		} else {
			v = a / b
		}
	case ir.Mod:
		if b == 0 {
			v = 0
		} else {
			v = a % b
		}
	case ir.Power:
		return array.Float64Scalar(math.Pow(float64(a), float64(b))), nil
	case ir.Maximum:
		v = a
		if b > a {
			v = b
		}
	case ir.Minimum:
		v = a
		if b < a {
			v = b
		}
	case ir.BitwiseAnd:
		v = a & b
	case ir.BitwiseOr:
		v = a | b
	case ir.BitwiseXor:
		v = a ^ b
	case ir.LeftShift:
		v = a << b
	case ir.RightShift:
		v = a >> b
	default:
		return array.Scalar{}, errors.E(errors.UnknownOperator, "no unsigned evaluation for %s", op)
	}
	return array.Scalar{Type: array.Uint64, Uint: v}, nil
}

func evalComplex(op ir.Opcode, a, b complex128) (array.Scalar, error) {
	var v complex128
	switch op {
	case ir.Add:
		v = a + b
	case ir.Subtract:
		v = a - b
	case ir.Multiply:
		v = a * b
	case ir.Divide:
		v = a / b
	default:
		return array.Scalar{}, errors.E(errors.UnknownOperator, "no complex evaluation for %s", op)
	}
	return array.Scalar{Type: array.Complex128, Cmplx: v}, nil
}

// evalUnary applies a unary operator in the scalar's own domain.
func evalUnary(op ir.Opcode, a array.Scalar) (array.Scalar, error) {
	switch op {
	case ir.Identity:
		return a, nil
	case ir.LogicalNot:
		return boolOf(!a.AsBool()), nil
	case ir.Invert:
		if a.Type == array.Bool {
			return boolOf(!a.AsBool()), nil
		}
		if a.Type.IsUnsigned() {
			return array.Scalar{Type: array.Uint64, Uint: ^a.AsUint64()}, nil
		}
		return array.Int64Scalar(^a.AsInt64()), nil
	case ir.Absolute:
		switch {
		case a.Type.IsComplex():
			return array.Float64Scalar(cmplxAbs(a.AsComplex128())), nil
		case a.Type.IsUnsigned():
			return a, nil
		case a.Type.IsFloat():
			return array.Float64Scalar(math.Abs(a.AsFloat64())), nil
		default:
			v := a.AsInt64()
			if v < 0 {
				v = -v
			}
			return array.Int64Scalar(v), nil
		}
	case ir.Sqrt:
		return array.Float64Scalar(math.Sqrt(a.AsFloat64())), nil
	case ir.Exp:
		return array.Float64Scalar(math.Exp(a.AsFloat64())), nil
	case ir.Log:
		return array.Float64Scalar(math.Log(a.AsFloat64())), nil
	case ir.Log10:
		return array.Float64Scalar(math.Log10(a.AsFloat64())), nil
	case ir.Sin:
		return array.Float64Scalar(math.Sin(a.AsFloat64())), nil
	case ir.Cos:
		return array.Float64Scalar(math.Cos(a.AsFloat64())), nil
	case ir.Tan:
		return array.Float64Scalar(math.Tan(a.AsFloat64())), nil
	case ir.Floor:
		return array.Float64Scalar(math.Floor(a.AsFloat64())), nil
	case ir.Ceil:
		return array.Float64Scalar(math.Ceil(a.AsFloat64())), nil
	case ir.Trunc:
		return array.Float64Scalar(math.Trunc(a.AsFloat64())), nil
	}
	return array.Scalar{}, errors.E(errors.UnknownOperator, "no unary evaluation for %s", op)
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}

// neutralScalar is the numeric mirror of the backend's neutral-element
// table.
func neutralScalar(op ir.Opcode, t array.DType) array.Scalar {
	switch op {
	case ir.Add, ir.LogicalOr, ir.LogicalXor, ir.BitwiseOr, ir.BitwiseXor:
		return array.ScalarOf(t, 0)
	case ir.Multiply, ir.LogicalAnd:
		return array.ScalarOf(t, 1)
	case ir.Maximum:
		return typeMin(t)
	case ir.Minimum:
		return typeMax(t)
	case ir.BitwiseAnd:
		switch {
		case t == array.Bool:
			return array.BoolScalar(true)
		case t.IsUnsigned():
			return array.Scalar{Type: t, Uint: ^uint64(0)}.Cast(t)
		default:
			return array.Int64Scalar(-1).Cast(t)
		}
	}
	return array.ScalarOf(t, 0)
}

func typeMin(t array.DType) array.Scalar {
	switch t {
	case array.Bool:
		return array.BoolScalar(false)
	case array.Int8:
		return array.Int64Scalar(math.MinInt8).Cast(t)
	case array.Int16:
		return array.Int64Scalar(math.MinInt16).Cast(t)
	case array.Int32:
		return array.Int64Scalar(math.MinInt32).Cast(t)
	case array.Int64:
		return array.Int64Scalar(math.MinInt64)
	case array.Float32:
		return array.Scalar{Type: array.Float32, Float: -math.MaxFloat32}
	case array.Float64, array.Complex64, array.Complex128:
		return array.Scalar{Type: array.Float64, Float: -math.MaxFloat64}.Cast(t)
	default: // unsigned
		return array.Scalar{Type: t}
	}
}

func typeMax(t array.DType) array.Scalar {
	switch t {
	case array.Bool:
		return array.BoolScalar(true)
	case array.Int8:
		return array.Int64Scalar(math.MaxInt8).Cast(t)
	case array.Int16:
		return array.Int64Scalar(math.MaxInt16).Cast(t)
	case array.Int32:
		return array.Int64Scalar(math.MaxInt32).Cast(t)
	case array.Int64:
		return array.Int64Scalar(math.MaxInt64)
	case array.Uint8:
		return array.Scalar{Type: t, Uint: math.MaxUint8}
	case array.Uint16:
		return array.Scalar{Type: t, Uint: math.MaxUint16}
	case array.Uint32:
		return array.Scalar{Type: t, Uint: math.MaxUint32}
	case array.Uint64:
		return array.Scalar{Type: t, Uint: math.MaxUint64}
	case array.Float32:
		return array.Scalar{Type: array.Float32, Float: math.MaxFloat32}
	default:
		return array.Scalar{Type: array.Float64, Float: math.MaxFloat64}.Cast(t)
	}
}
