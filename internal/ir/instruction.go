package ir

import (
	"strings"

	"forge/internal/array"
)

// Instruction is a single deferred operation: an opcode and an ordered
// operand list with the output first. Sweeps carry their axis in Constant;
// elementwise operations use Constant for scalar literals.
type Instruction struct {
	Opcode   Opcode
	Operands []array.View
	Constant array.Scalar
}

// New builds an instruction over the given operands. The instruction owns
// its windows: every view is deep-copied so in-place transforms never touch
// the caller's views.
func New(op Opcode, operands ...array.View) *Instruction {
	owned := make([]array.View, len(operands))
	for i, v := range operands {
		owned[i] = v.Clone()
	}
	return &Instruction{Opcode: op, Operands: owned}
}

// NewSweep builds a reduction or scan of in along axis.
func NewSweep(op Opcode, out, in array.View, axis int64) *Instruction {
	return &Instruction{
		Opcode:   op,
		Operands: []array.View{out.Clone(), in.Clone(), array.ConstView(array.Int64Scalar(axis))},
		Constant: array.Int64Scalar(axis),
	}
}

// Views returns pointers to the non-constant operands.
func (in *Instruction) Views() []*array.View {
	out := make([]*array.View, 0, len(in.Operands))
	for i := range in.Operands {
		if !in.Operands[i].IsConstant() {
			out = append(out, &in.Operands[i])
		}
	}
	return out
}

// Bases returns the distinct bases the instruction references, in operand
// order.
func (in *Instruction) Bases() []*array.Base {
	var out []*array.Base
	seen := map[*array.Base]bool{}
	for _, v := range in.Operands {
		if v.IsConstant() || seen[v.Base] {
			continue
		}
		seen[v.Base] = true
		out = append(out, v.Base)
	}
	return out
}

// AllSameShape reports whether every non-constant operand shares the shape
// of the output.
func (in *Instruction) AllSameShape() bool {
	if len(in.Operands) == 0 {
		return true
	}
	first := in.Operands[0]
	for _, v := range in.Operands[1:] {
		if v.IsConstant() {
			continue
		}
		if !first.SameShape(v) {
			return false
		}
	}
	return true
}

// IsContiguous reports whether every non-constant operand is contiguous
// row-major.
func (in *Instruction) IsContiguous() bool {
	for _, v := range in.Views() {
		if !v.IsContiguous() {
			return false
		}
	}
	return true
}

// Reshapable reports whether the instruction may be reshaped: all operands
// share one shape, all are contiguous, and the opcode is neither a sweep
// nor GATHER.
func (in *Instruction) Reshapable() bool {
	return in.AllSameShape() && in.IsContiguous() && !in.Opcode.IsSweep() && in.Opcode != Gather
}

// Shape returns the principal shape of the instruction: the pre-sweep input
// for sweeps, the output for GATHER, the index/input operand for scatters,
// and the output otherwise.
func (in *Instruction) Shape() []int64 {
	switch {
	case in.Opcode.IsSweep():
		return in.Operands[1].Shape
	case in.Opcode == Gather:
		return in.Operands[0].Shape
	case in.Opcode == Scatter || in.Opcode == CondScatter:
		return in.Operands[2].Shape
	case len(in.Operands) == 0:
		return nil
	default:
		return in.Operands[0].Shape
	}
}

// NDim returns the rank of the principal shape.
func (in *Instruction) NDim() int {
	return len(in.Shape())
}

// SweepAxis returns the axis a sweep operates along, or MaxDim for
// non-sweep opcodes.
func (in *Instruction) SweepAxis() int {
	if in.Opcode.IsSweep() {
		return int(in.Constant.AsInt64())
	}
	return array.MaxDim
}

// OperandType returns the element type of operand i; constants answer with
// the inline constant's type.
func (in *Instruction) OperandType(i int) array.DType {
	v := in.Operands[i]
	if v.IsConstant() {
		if v.Const.Type != array.DTypeUnknown {
			return v.Const.Type
		}
		return in.Constant.Type
	}
	return v.Base.Type
}

// Pprint renders the instruction with its operands. Python notation writes
// views as slice expressions.
func (in *Instruction) Pprint(python bool) string {
	var sb strings.Builder
	sb.WriteString(in.Opcode.String())
	for _, v := range in.Operands {
		sb.WriteString(" ")
		if v.IsConstant() && v.Const.Type == array.DTypeUnknown {
			sb.WriteString(in.Constant.String())
		} else {
			sb.WriteString(v.Pprint(python))
		}
	}
	return sb.String()
}

func (in *Instruction) String() string {
	return in.Pprint(true)
}

// Depends reports whether a and b must keep their relative order: one
// writes an array the other accesses through a possibly-aliasing view.
func Depends(a, b *Instruction) bool {
	if len(a.Operands) == 0 || len(b.Operands) == 0 {
		return false
	}
	for i := range a.Operands {
		if !array.Disjoint(b.Operands[0], a.Operands[i]) {
			return true
		}
	}
	for i := range b.Operands {
		if !array.Disjoint(a.Operands[0], b.Operands[i]) {
			return true
		}
	}
	return false
}
