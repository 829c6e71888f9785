package fuse

import (
	"forge/internal/array"
	"forge/internal/ir"
)

// Fusible decides whether two instructions may share a kernel under the
// given model. The predicates never fail; they answer with booleans.
func Fusible(m Model, a, b *ir.Instruction) bool {
	switch m {
	case Broadest:
		return fuseBroadest(a, b)
	case NoXsweep:
		return fuseNoXsweep(a, b)
	case NoXsweepScalarSeparate:
		return fuseNoXsweepScalarSeparate(a, b)
	case NoXsweepScalarSeparateShapeMatch:
		return fuseNoXsweepScalarSeparateShapeMatch(a, b)
	case SameShape:
		return fuseSameShape(a, b)
	case SameShapeStreamCreduce:
		return fuseSameShapeStreamCreduce(a, b)
	case SameShapeStreamCreducePreduceOnce:
		return fuseSameShapeStreamCreducePreduceOnce(a, b)
	default:
		return fuseBroadest(a, b)
	}
}

// fuseBroadest admits any pair whose co-iteration is safe: every operand of
// one, its output included, must be disjoint from or aligned with the output
// of the other.
func fuseBroadest(a, b *ir.Instruction) bool {
	if a.Opcode.IsSystem() || b.Opcode.IsSystem() {
		return true
	}
	for i := range a.Operands {
		if !array.Disjoint(b.Operands[0], a.Operands[i]) &&
			!array.Aligned(b.Operands[0], a.Operands[i]) {
			return false
		}
	}
	for i := range b.Operands {
		if !array.Disjoint(a.Operands[0], b.Operands[i]) &&
			!array.Aligned(a.Operands[0], b.Operands[i]) {
			return false
		}
	}
	return true
}

// fuseNoXsweep additionally keeps two sweeps of the same input rank but
// different sweep axes out of the same kernel.
func fuseNoXsweep(a, b *ir.Instruction) bool {
	return fuseBroadest(a, b) &&
		!(a.Opcode.IsSweep() && b.Opcode.IsSweep() &&
			a.Operands[1].NDim() == b.Operands[1].NDim() &&
			a.SweepAxis() != b.SweepAxis())
}

// scalarish treats a 1-element output, or a rank-1 scan, as scalar.
func scalarish(in *ir.Instruction) bool {
	return in.Operands[0].IsScalar() ||
		(in.Opcode.IsAccumulate() && in.Operands[0].NDim() == 1)
}

func fuseNoXsweepScalarSeparate(a, b *ir.Instruction) bool {
	sa, sb := scalarish(a), scalarish(b)
	return fuseNoXsweep(a, b) && (sa == sb)
}

func fuseNoXsweepScalarSeparateShapeMatch(a, b *ir.Instruction) bool {
	if a.Opcode.IsSystem() || b.Opcode.IsSystem() {
		return true
	}
	va := a.Operands[0]
	if a.Opcode.IsSweep() {
		va = a.Operands[1]
	}
	vb := b.Operands[0]
	if b.Opcode.IsSweep() {
		vb = b.Operands[1]
	}
	ndim := va.NDim()
	if vb.NDim() < ndim {
		ndim = vb.NDim()
	}
	for i := 1; i <= ndim; i++ {
		// The innermost dimensions must match.
		if va.Shape[va.NDim()-i] != vb.Shape[vb.NDim()-i] {
			return false
		}
	}
	return fuseNoXsweepScalarSeparate(a, b)
}

func fuseSameShape(a, b *ir.Instruction) bool {
	if a.Opcode.IsSystem() || b.Opcode.IsSystem() {
		return true
	}
	if !a.Opcode.IsElementwise() || !b.Opcode.IsElementwise() {
		return false
	}
	shape := a.Operands[0].Shape
	if !operandsMatchShape(a, shape, 1) || !operandsMatchShape(b, shape, 0) {
		return false
	}
	return fuseBroadest(a, b)
}

func operandsMatchShape(in *ir.Instruction, shape []int64, from int) bool {
	for i := from; i < len(in.Operands); i++ {
		v := in.Operands[i]
		if v.IsConstant() {
			continue
		}
		if !array.ShapeEqual(v.Shape, shape) {
			return false
		}
	}
	return true
}

func isStreamable(op ir.Opcode) bool {
	return op == ir.Range || op == ir.Random || op.IsElementwise() || op.IsReduction()
}

// fuseSameShapeStreamCreduce accepts elementwise, RANGE, RANDOM and
// reductions; at most one reduction per kernel. The non-reduction side must
// not consume the reduce output and must match the reduction's input shape.
func fuseSameShapeStreamCreduce(a, b *ir.Instruction) bool {
	if a.Opcode.IsSystem() || b.Opcode.IsSystem() {
		return true
	}
	if !isStreamable(a.Opcode) || !isStreamable(b.Opcode) {
		return false
	}

	aRed := a.Opcode.IsReduction()
	bRed := b.Opcode.IsReduction()
	switch {
	case aRed && bRed:
		return false
	case aRed != bRed:
		red, other := a, b
		if bRed {
			red, other = b, a
		}
		for _, v := range other.Operands {
			if !v.IsConstant() && v.Base == red.Operands[0].Base {
				return false
			}
		}
		if !operandsMatchShape(other, red.Operands[1].Shape, 0) {
			return false
		}
	default:
		if !a.Operands[0].IsScalar() {
			if !operandsMatchShape(b, a.Operands[0].Shape, 0) {
				return false
			}
		}
	}
	return fuseBroadest(a, b)
}

// fuseSameShapeStreamCreducePreduceOnce refines the single-reduction rule:
// the other side must match the reduction's output shape when it consumes
// the reduce result and the input shape when it does not.
func fuseSameShapeStreamCreducePreduceOnce(a, b *ir.Instruction) bool {
	if a.Opcode.IsSystem() || b.Opcode.IsSystem() {
		return true
	}
	if !isStreamable(a.Opcode) || !isStreamable(b.Opcode) {
		return false
	}

	aRed := a.Opcode.IsReduction()
	bRed := b.Opcode.IsReduction()
	switch {
	case aRed && bRed:
		return false
	case aRed != bRed:
		red, other := a, b
		if bRed {
			red, other = b, a
		}
		consumes := false
		for _, v := range other.Operands {
			if !v.IsConstant() && v.Base == red.Operands[0].Base {
				consumes = true
				break
			}
		}
		ref := red.Operands[1]
		if consumes {
			ref = red.Operands[0]
		}
		// Non-reduction operands share one shape, so comparing the output
		// operand suffices.
		if !array.ShapeEqual(other.Operands[0].Shape, ref.Shape) {
			return false
		}
	default:
		if !a.Operands[0].IsScalar() {
			if !operandsMatchShape(b, a.Operands[0].Shape, 0) {
				return false
			}
		}
	}
	return fuseBroadest(a, b)
}
