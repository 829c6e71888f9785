package backend

import (
	"fmt"

	"forge/internal/array"
	"forge/internal/codegen"
	"forge/internal/errors"
	"forge/internal/ir"
)

// CSyntax is the C99 operator catalogue: type names, neutral-element
// literals, and operator expressions. It is stateless.
type CSyntax struct{}

var _ codegen.Syntax = CSyntax{}

func (CSyntax) CType(t array.DType) string {
	switch t {
	case array.Bool:
		return "bool"
	case array.Int8:
		return "int8_t"
	case array.Int16:
		return "int16_t"
	case array.Int32:
		return "int32_t"
	case array.Int64:
		return "int64_t"
	case array.Uint8:
		return "uint8_t"
	case array.Uint16:
		return "uint16_t"
	case array.Uint32:
		return "uint32_t"
	case array.Uint64:
		return "uint64_t"
	case array.Float32:
		return "float"
	case array.Float64:
		return "double"
	case array.Complex64:
		return "float complex"
	case array.Complex128:
		return "double complex"
	}
	return "void"
}

// NeutralElement returns the identity literal an accumulator of op starts
// at: 0 for add and the or/xor family, 1 for multiply and logical and,
// type-min for maximum, type-max for minimum, and all-ones for bitwise and.
func (CSyntax) NeutralElement(op ir.Opcode, t array.DType) (string, error) {
	switch op {
	case ir.Add, ir.LogicalOr, ir.LogicalXor, ir.BitwiseOr, ir.BitwiseXor:
		return "0", nil
	case ir.Multiply, ir.LogicalAnd:
		return "1", nil
	case ir.Maximum:
		switch t {
		case array.Bool:
			return "0", nil
		case array.Int8:
			return "INT8_MIN", nil
		case array.Int16:
			return "INT16_MIN", nil
		case array.Int32:
			return "INT32_MIN", nil
		case array.Int64:
			return "INT64_MIN", nil
		case array.Uint8, array.Uint16, array.Uint32, array.Uint64:
			return "0", nil
		case array.Float32:
			return "-FLT_MAX", nil
		case array.Float64:
			return "-DBL_MAX", nil
		}
	case ir.Minimum:
		switch t {
		case array.Bool:
			return "1", nil
		case array.Int8:
			return "INT8_MAX", nil
		case array.Int16:
			return "INT16_MAX", nil
		case array.Int32:
			return "INT32_MAX", nil
		case array.Int64:
			return "INT64_MAX", nil
		case array.Uint8:
			return "UINT8_MAX", nil
		case array.Uint16:
			return "UINT16_MAX", nil
		case array.Uint32:
			return "UINT32_MAX", nil
		case array.Uint64:
			return "UINT64_MAX", nil
		case array.Float32:
			return "FLT_MAX", nil
		case array.Float64:
			return "DBL_MAX", nil
		}
	case ir.BitwiseAnd:
		switch t {
		case array.Bool:
			return "1", nil
		case array.Int8, array.Int16, array.Int32, array.Int64:
			return "-1", nil
		case array.Uint8:
			return "UINT8_MAX", nil
		case array.Uint16:
			return "UINT16_MAX", nil
		case array.Uint32:
			return "UINT32_MAX", nil
		case array.Uint64:
			return "UINT64_MAX", nil
		}
	}
	return "", errors.E(errors.UnknownOperator, "no neutral element for %s over %s", op, t)
}

// OpExpr returns the C expression applying op to its inputs.
func (s CSyntax) OpExpr(op ir.Opcode, t array.DType, in1, in2 string) (string, error) {
	switch op {
	case ir.Add:
		return fmt.Sprintf("(%s + %s)", in1, in2), nil
	case ir.Subtract:
		return fmt.Sprintf("(%s - %s)", in1, in2), nil
	case ir.Multiply:
		return fmt.Sprintf("(%s * %s)", in1, in2), nil
	case ir.Divide:
		return fmt.Sprintf("(%s / %s)", in1, in2), nil
	case ir.Mod:
		if t.IsFloat() {
			return fmt.Sprintf("fmod(%s, %s)", in1, in2), nil
		}
		return fmt.Sprintf("(%s %% %s)", in1, in2), nil
	case ir.Power:
		if t.IsComplex() {
			return cmplxCall("cpow", t, in1+", "+in2), nil
		}
		return fmt.Sprintf("pow(%s, %s)", in1, in2), nil
	case ir.Maximum:
		return fmt.Sprintf("(%s < %s ? %s : %s)", in1, in2, in2, in1), nil
	case ir.Minimum:
		return fmt.Sprintf("(%s < %s ? %s : %s)", in1, in2, in1, in2), nil
	case ir.Equal:
		return fmt.Sprintf("(%s == %s)", in1, in2), nil
	case ir.NotEqual:
		return fmt.Sprintf("(%s != %s)", in1, in2), nil
	case ir.Less:
		return fmt.Sprintf("(%s < %s)", in1, in2), nil
	case ir.LessEqual:
		return fmt.Sprintf("(%s <= %s)", in1, in2), nil
	case ir.Greater:
		return fmt.Sprintf("(%s > %s)", in1, in2), nil
	case ir.GreaterEqual:
		return fmt.Sprintf("(%s >= %s)", in1, in2), nil
	case ir.LogicalAnd:
		return fmt.Sprintf("(%s && %s)", in1, in2), nil
	case ir.LogicalOr:
		return fmt.Sprintf("(%s || %s)", in1, in2), nil
	case ir.LogicalXor:
		return fmt.Sprintf("(!%s != !%s)", in1, in2), nil
	case ir.BitwiseAnd:
		return fmt.Sprintf("(%s & %s)", in1, in2), nil
	case ir.BitwiseOr:
		return fmt.Sprintf("(%s | %s)", in1, in2), nil
	case ir.BitwiseXor:
		return fmt.Sprintf("(%s ^ %s)", in1, in2), nil
	case ir.LeftShift:
		return fmt.Sprintf("(%s << %s)", in1, in2), nil
	case ir.RightShift:
		return fmt.Sprintf("(%s >> %s)", in1, in2), nil
	case ir.Arctan2:
		return fmt.Sprintf("atan2(%s, %s)", in1, in2), nil
	case ir.Identity:
		return in1, nil
	case ir.LogicalNot:
		return fmt.Sprintf("(!%s)", in1), nil
	case ir.Invert:
		if t == array.Bool {
			return fmt.Sprintf("(!%s)", in1), nil
		}
		return fmt.Sprintf("(~%s)", in1), nil
	case ir.Absolute:
		switch {
		case t == array.Complex128:
			return fmt.Sprintf("cabs(%s)", in1), nil
		case t == array.Complex64:
			return fmt.Sprintf("cabsf(%s)", in1), nil
		case t.IsFloat():
			return fmt.Sprintf("fabs(%s)", in1), nil
		default:
			return fmt.Sprintf("(%s < 0 ? -%s : %s)", in1, in1, in1), nil
		}
	case ir.Sqrt:
		return cmplxOrReal("sqrt", t, in1), nil
	case ir.Exp:
		return cmplxOrReal("exp", t, in1), nil
	case ir.Log:
		return cmplxOrReal("log", t, in1), nil
	case ir.Log10:
		return cmplxOrReal("log10", t, in1), nil
	case ir.Sin:
		return cmplxOrReal("sin", t, in1), nil
	case ir.Cos:
		return cmplxOrReal("cos", t, in1), nil
	case ir.Tan:
		return cmplxOrReal("tan", t, in1), nil
	case ir.Floor:
		return fmt.Sprintf("floor(%s)", in1), nil
	case ir.Ceil:
		return fmt.Sprintf("ceil(%s)", in1), nil
	case ir.Trunc:
		return fmt.Sprintf("trunc(%s)", in1), nil
	}
	return "", errors.E(errors.UnknownOperator, "no expression for %s", op)
}

func cmplxOrReal(fn string, t array.DType, in1 string) string {
	if t.IsComplex() {
		return cmplxCall("c"+fn, t, in1)
	}
	return fmt.Sprintf("%s(%s)", fn, in1)
}

func cmplxCall(fn string, t array.DType, args string) string {
	if t == array.Complex64 {
		return fmt.Sprintf("%sf(%s)", fn, args)
	}
	return fmt.Sprintf("%s(%s)", fn, args)
}
