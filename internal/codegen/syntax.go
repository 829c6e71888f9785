package codegen

import (
	"forge/internal/array"
	"forge/internal/ir"
)

// Syntax is the textual operator catalogue a backend provides: type names,
// neutral-element literals, and operator expressions in the backend's
// concrete syntax.
type Syntax interface {
	// CType returns the element-type name.
	CType(t array.DType) string
	// NeutralElement returns the literal the accumulator of op starts at.
	NeutralElement(op ir.Opcode, t array.DType) (string, error)
	// OpExpr returns the expression applying op to in1 (and in2 for binary
	// operators).
	OpExpr(op ir.Opcode, t array.DType, in1, in2 string) (string, error)
}
