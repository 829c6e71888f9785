package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"forge/internal/array"
)

func ewAdd(t *testing.T, shape []int64) *Instruction {
	t.Helper()
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	in1 := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	in2 := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	return New(Add, out, in1, in2)
}

func sumAlong(t *testing.T, inShape []int64, axis int64) *Instruction {
	t.Helper()
	outShape := append([]int64(nil), inShape...)
	outShape = append(outShape[:axis], outShape[axis+1:]...)
	if len(outShape) == 0 {
		outShape = []int64{1}
	}
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(outShape)), outShape)
	in := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(inShape)), inShape)
	return NewSweep(AddReduce, out, in, axis)
}

func TestOpcodeTable(t *testing.T) {
	assert.True(t, Add.IsElementwise())
	assert.Equal(t, 3, Add.Arity())
	assert.True(t, AddReduce.IsReduction())
	assert.True(t, AddReduce.IsSweep())
	assert.True(t, AddAccumulate.IsAccumulate())
	assert.True(t, AddAccumulate.IsSweep())
	assert.False(t, AddAccumulate.IsReduction())
	assert.True(t, Free.IsSystem())
	assert.Equal(t, Add, AddReduce.BaseOperator())
	assert.Equal(t, Multiply, MultiplyAccumulate.BaseOperator())
	assert.Equal(t, Minimum, MinimumReduce.BaseOperator())
	assert.True(t, Opcode(1234).IsExtension())
}

func TestPrincipalShape(t *testing.T) {
	ew := ewAdd(t, []int64{2, 3})
	assert.Equal(t, []int64{2, 3}, ew.Shape())

	red := sumAlong(t, []int64{4, 5}, 0)
	assert.Equal(t, []int64{4, 5}, red.Shape(), "sweep principal shape is the pre-sweep input")
	assert.Equal(t, 0, red.SweepAxis())
	assert.Equal(t, array.MaxDim, ew.SweepAxis())
}

func TestPrincipalShapeGatherScatter(t *testing.T) {
	src := array.ContiguousView(array.NewBase(array.Float64, 10), []int64{10})
	idx := array.ContiguousView(array.NewBase(array.Int64, 4), []int64{4})
	out := array.ContiguousView(array.NewBase(array.Float64, 4), []int64{4})
	g := New(Gather, out, src, idx)
	assert.Equal(t, []int64{4}, g.Shape(), "gather principal shape is the output")

	dst := array.ContiguousView(array.NewBase(array.Float64, 10), []int64{10})
	s := New(Scatter, dst, out, idx)
	assert.Equal(t, []int64{4}, s.Shape(), "scatter principal shape is the index operand")
}

func TestReshapable(t *testing.T) {
	assert.True(t, ewAdd(t, []int64{2, 3}).Reshapable())
	assert.False(t, sumAlong(t, []int64{2, 3}, 0).Reshapable())

	ew := ewAdd(t, []int64{4, 4})
	ew.Operands[1].Stride = []int64{1, 4} // column-major: no longer contiguous
	assert.False(t, ew.Reshapable())
}

func TestDepends(t *testing.T) {
	base := array.NewBase(array.Float64, 10)
	write := New(Identity,
		array.NewView(base, 0, []int64{5}, []int64{1}),
		array.ConstView(array.Float64Scalar(1)))
	read := New(Add,
		array.ContiguousView(array.NewBase(array.Float64, 5), []int64{5}),
		array.NewView(base, 2, []int64{5}, []int64{1}),
		array.ConstView(array.Float64Scalar(1)))

	assert.True(t, Depends(write, read), "overlapping write/read windows must depend")
	assert.True(t, Depends(read, write), "dependency is symmetric")

	far := New(Add,
		array.ContiguousView(array.NewBase(array.Float64, 3), []int64{3}),
		array.NewView(base, 7, []int64{3}, []int64{1}),
		array.ConstView(array.Float64Scalar(1)))
	assert.False(t, Depends(write, far))
}

func TestPprint(t *testing.T) {
	ew := ewAdd(t, []int64{2, 3})
	s := ew.String()
	assert.Contains(t, s, "ADD")
	assert.Contains(t, s, "[")
}
