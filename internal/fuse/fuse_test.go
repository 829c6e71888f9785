package fuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/array"
	"forge/internal/ir"
)

func ew(shape []int64) *ir.Instruction {
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	in := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	return ir.New(ir.Multiply, out, in, array.ConstView(array.Float64Scalar(2)))
}

func reduce(inShape []int64, axis int64) *ir.Instruction {
	outShape := append([]int64(nil), inShape...)
	outShape = append(outShape[:axis], outShape[axis+1:]...)
	if len(outShape) == 0 {
		outShape = []int64{1}
	}
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(outShape)), outShape)
	in := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(inShape)), inShape)
	return ir.NewSweep(ir.AddReduce, out, in, axis)
}

func reduceOf(in array.View, axis int64) *ir.Instruction {
	outShape := append([]int64(nil), in.Shape...)
	outShape = append(outShape[:axis], outShape[axis+1:]...)
	if len(outShape) == 0 {
		outShape = []int64{1}
	}
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(outShape)), outShape)
	return ir.NewSweep(ir.AddReduce, out, in, axis)
}

func allModels() []Model {
	return []Model{
		Broadest,
		NoXsweep,
		NoXsweepScalarSeparate,
		NoXsweepScalarSeparateShapeMatch,
		SameShape,
		SameShapeStreamCreduce,
		SameShapeStreamCreducePreduceOnce,
	}
}

func TestModelNames(t *testing.T) {
	for _, m := range allModels() {
		back, ok := ModelFromName(m.String())
		require.True(t, ok)
		assert.Equal(t, m, back)
	}
	_, ok := ModelFromName("NO_XSWEEP")
	assert.True(t, ok, "matching is case-insensitive")
	_, ok = ModelFromName("does-not-exist")
	assert.False(t, ok)
}

func TestModelFromEnvFallback(t *testing.T) {
	t.Setenv(EnvVar, "bogus")
	assert.Equal(t, DefaultModel, ModelFromEnv())

	t.Setenv(EnvVar, "Same_Shape")
	assert.Equal(t, SameShape, ModelFromEnv())

	t.Setenv(EnvVar, "")
	assert.Equal(t, DefaultModel, ModelFromEnv())
}

func TestSystemOpcodesAlwaysFuse(t *testing.T) {
	free := ir.New(ir.Free, array.CompleteView(array.NewBase(array.Float64, 4)))
	for _, m := range allModels() {
		assert.True(t, Fusible(m, free, ew([]int64{4})), "model %s", m)
		assert.True(t, Fusible(m, ew([]int64{4}), free), "model %s", m)
	}
}

func TestBroadestRejectsPartialOverlap(t *testing.T) {
	base := array.NewBase(array.Float64, 10)
	a := ir.New(ir.Identity,
		array.NewView(base, 0, []int64{5}, []int64{1}),
		array.ConstView(array.Float64Scalar(1)))
	b := ir.New(ir.Add,
		array.ContiguousView(array.NewBase(array.Float64, 5), []int64{5}),
		array.NewView(base, 2, []int64{5}, []int64{1}),
		array.ConstView(array.Float64Scalar(1)))

	assert.False(t, Fusible(Broadest, a, b),
		"overlapping but unaligned views must not share a kernel")
}

func TestBroadestAcceptsAlignedChain(t *testing.T) {
	base := array.NewBase(array.Float64, 6)
	v := array.CompleteView(base)
	a := ir.New(ir.Identity, v, array.ConstView(array.Float64Scalar(1)))
	b := ir.New(ir.Multiply,
		array.ContiguousView(array.NewBase(array.Float64, 6), []int64{6}),
		v, array.ConstView(array.Float64Scalar(2)))

	assert.True(t, Fusible(Broadest, a, b))
}

func TestNoXsweepCrossAxis(t *testing.T) {
	a := reduce([]int64{4, 5}, 0)
	b := reduce([]int64{4, 5}, 1)
	assert.True(t, Fusible(Broadest, a, b))
	assert.False(t, Fusible(NoXsweep, a, b))

	sameAxis := reduce([]int64{4, 5}, 0)
	assert.True(t, Fusible(NoXsweep, a, sameAxis))
}

func TestScalarSeparate(t *testing.T) {
	big := ew([]int64{100})
	scalarRed := reduce([]int64{100}, 0)
	assert.False(t, Fusible(NoXsweepScalarSeparate, big, scalarRed))
	assert.True(t, Fusible(NoXsweep, big, scalarRed))
}

func TestSameShapeElementwiseOnly(t *testing.T) {
	a := ew([]int64{4, 4})
	b := ew([]int64{4, 4})
	assert.True(t, Fusible(SameShape, a, b))

	c := ew([]int64{2, 8})
	assert.False(t, Fusible(SameShape, a, c))

	red := reduce([]int64{4, 4}, 0)
	assert.False(t, Fusible(SameShape, a, red))
}

func TestStreamCreduceSingleReduction(t *testing.T) {
	a := ew([]int64{100})
	red := reduceOf(a.Operands[0], 0)
	assert.True(t, Fusible(SameShapeStreamCreduce, a, red),
		"an elementwise producer streams into a reduction of the same shape")

	red2 := reduce([]int64{100}, 0)
	assert.False(t, Fusible(SameShapeStreamCreduce, red, red2),
		"two reductions never share a kernel")
}

func TestStreamCreduceRejectsReduceConsumer(t *testing.T) {
	red := reduce([]int64{100}, 0)
	// An elementwise op reading the reduce output must not stream.
	consumer := ir.New(ir.Multiply,
		array.ContiguousView(array.NewBase(array.Float64, 1), []int64{1}),
		red.Operands[0],
		array.ConstView(array.Float64Scalar(2)))
	assert.False(t, Fusible(SameShapeStreamCreduce, consumer, red))
}

func TestPreduceOnceConsumerShape(t *testing.T) {
	red := reduce([]int64{10, 20}, 0)
	// Consumer of the reduce result with the reduction's output shape.
	consumer := ir.New(ir.Multiply,
		array.ContiguousView(array.NewBase(array.Float64, 20), []int64{20}),
		red.Operands[0],
		array.ConstView(array.Float64Scalar(2)))
	assert.True(t, Fusible(SameShapeStreamCreducePreduceOnce, consumer, red))
	assert.False(t, Fusible(SameShapeStreamCreduce, consumer, red))
}

func TestModelsAreSymmetric(t *testing.T) {
	pairs := [][2]*ir.Instruction{
		{ew([]int64{8}), ew([]int64{8})},
		{ew([]int64{8}), reduce([]int64{8}, 0)},
		{reduce([]int64{4, 5}, 0), reduce([]int64{4, 5}, 1)},
		{ew([]int64{2, 4}), ew([]int64{8})},
	}
	for _, m := range allModels() {
		for _, p := range pairs {
			assert.Equal(t, Fusible(m, p[0], p[1]), Fusible(m, p[1], p[0]),
				"model %s must be symmetric", m)
		}
	}
}

func TestModelsRefineMonotonically(t *testing.T) {
	chains := [][]Model{
		{Broadest, NoXsweep, NoXsweepScalarSeparate, NoXsweepScalarSeparateShapeMatch},
		{Broadest, SameShape},
	}
	pairs := [][2]*ir.Instruction{
		{ew([]int64{8}), ew([]int64{8})},
		{ew([]int64{8}), ew([]int64{2, 4})},
		{ew([]int64{100}), reduce([]int64{100}, 0)},
		{reduce([]int64{4, 5}, 0), reduce([]int64{4, 5}, 1)},
		{reduce([]int64{4, 5}, 0), reduce([]int64{4, 5}, 0)},
	}
	for _, chain := range chains {
		for i := 1; i < len(chain); i++ {
			looser, tighter := chain[i-1], chain[i]
			for _, p := range pairs {
				if Fusible(tighter, p[0], p[1]) {
					assert.True(t, Fusible(looser, p[0], p[1]),
						"%s admitted a pair that %s rejected", tighter, looser)
				}
			}
		}
	}
}
