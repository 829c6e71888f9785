package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/array"
	"forge/internal/block"
	"forge/internal/ir"
)

// testSyntax is a minimal C-flavoured catalogue so the codegen tests do not
// depend on the backend package.
type testSyntax struct{}

func (testSyntax) CType(t array.DType) string {
	if t == array.Float64 {
		return "double"
	}
	return "int64_t"
}

func (testSyntax) NeutralElement(op ir.Opcode, t array.DType) (string, error) {
	return "0", nil
}

func (testSyntax) OpExpr(op ir.Opcode, t array.DType, in1, in2 string) (string, error) {
	if in2 == "" {
		return in1, nil
	}
	return "(" + in1 + " ? " + in2 + ")", nil
}

func buildBlock(t *testing.T, instrs ...*ir.Instruction) (*block.Arena, block.ID) {
	t.Helper()
	a := block.NewArena()
	root, err := block.CreateNested(a, instrs)
	require.NoError(t, err)
	return a, root
}

func ewInstr(shape []int64) *ir.Instruction {
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	in := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(shape)), shape)
	return ir.New(ir.Multiply, out, in, array.ConstView(array.Float64Scalar(2)))
}

func reduceInstr(inShape []int64, axis int64) *ir.Instruction {
	outShape := append([]int64(nil), inShape...)
	outShape = append(outShape[:axis], outShape[axis+1:]...)
	if len(outShape) == 0 {
		outShape = []int64{1}
	}
	out := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(outShape)), outShape)
	in := array.ContiguousView(array.NewBase(array.Float64, array.ShapeProd(inShape)), inShape)
	return ir.NewSweep(ir.AddReduce, out, in, axis)
}

func TestClassifyOperand(t *testing.T) {
	base := array.NewBase(array.Float64, 24)
	none := map[*array.Base]struct{}{}

	assert.Equal(t, LayoutScalarConst, ClassifyOperand(array.ConstView(array.Float64Scalar(1)), none))
	assert.Equal(t, LayoutContiguous, ClassifyOperand(array.ContiguousView(base, []int64{2, 12}), none))
	assert.Equal(t, LayoutScalar, ClassifyOperand(array.NewView(base, 0, []int64{1}, []int64{1}), none))
	assert.Equal(t, LayoutStrided, ClassifyOperand(array.NewView(base, 0, []int64{4}, []int64{2}), none))
	assert.Equal(t, LayoutConsecutive, ClassifyOperand(array.NewView(base, 0, []int64{2, 3}, []int64{12, 1}), none))

	temps := map[*array.Base]struct{}{base: {}}
	assert.Equal(t, LayoutScalarTemp, ClassifyOperand(array.NewView(base, 0, []int64{1}, []int64{1}), temps))
}

func TestBuildIterspace(t *testing.T) {
	a, root := buildBlock(t, ewInstr([]int64{2, 3, 4}))
	it := BuildIterspace(a, root)
	assert.Equal(t, 3, it.NDim)
	assert.Equal(t, []int64{2, 3, 4}, it.Shape)
	assert.Equal(t, 2, it.Axis)
	assert.Equal(t, int64(24), it.Nelem)
	assert.Equal(t, LayoutContiguous, it.Layout)
}

func TestEmitterOperandDedup(t *testing.T) {
	shape := []int64{8}
	producer := ewInstr(shape)
	// The consumer reads the producer's output through an equal view.
	consumer := ir.New(ir.Add,
		array.ContiguousView(array.NewBase(array.Float64, 8), shape),
		producer.Operands[0],
		array.ConstView(array.Float64Scalar(1)))

	a, root := buildBlock(t, producer, consumer)
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	ex, err := e.Executable()
	require.NoError(t, err)
	// producer: out, in, const; consumer: out, shared in, const.
	assert.Len(t, ex.Operands, 5)
	assert.Len(t, ex.Buffers, 3)
	assert.Equal(t, ex.Instrs[0].Out, ex.Instrs[1].In1, "equal views share one argument")
}

func TestGenerateSourceSingleRank(t *testing.T) {
	a, root := buildBlock(t, ewInstr([]int64{64}))
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	src, err := e.GenerateSource()
	require.NoError(t, err)
	assert.Contains(t, src, "#pragma omp parallel")
	assert.Contains(t, src, "#pragma omp for schedule(static)")
	assert.Contains(t, src, "#pragma omp simd")
	assert.Contains(t, src, "FORGE_CHUNKSIZE")
	assert.Contains(t, src, "opd0[idx0]")
	assert.NotContains(t, src, "collapse", "rank-1 kernels do not collapse")
}

func TestGenerateSourceNested(t *testing.T) {
	a, root := buildBlock(t, ewInstr([]int64{2, 3, 4}))
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	src, err := e.GenerateSource()
	require.NoError(t, err)
	assert.Contains(t, src, "#pragma omp parallel for schedule(static) collapse(2)")
	assert.Contains(t, src, "for (int64_t idx0 = 0; idx0 < iterspace_shape_d0; ++idx0)")
	assert.Contains(t, src, "for (int64_t idx2 = 0; idx2 < iterspace_shape_d2; ++idx2)")
}

func TestGenerateSourceReduction(t *testing.T) {
	a, root := buildBlock(t, reduceInstr([]int64{100}, 0))
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	src, err := e.GenerateSource()
	require.NoError(t, err)
	assert.Contains(t, src, "acc0_shared")
	assert.Contains(t, src, "acc0_priv")
	assert.Contains(t, src, "#pragma omp atomic update")
	assert.Contains(t, src, "reduction(+:acc0_priv)")
	assert.Contains(t, src, "*(buf0_data + opd0_start) = acc0_shared;")
}

func TestGenerateSourceMinReductionUsesCritical(t *testing.T) {
	inShape := []int64{100}
	out := array.ContiguousView(array.NewBase(array.Float64, 1), []int64{1})
	in := array.ContiguousView(array.NewBase(array.Float64, 100), inShape)
	red := ir.NewSweep(ir.MinimumReduce, out, in, 0)

	a, root := buildBlock(t, red)
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	src, err := e.GenerateSource()
	require.NoError(t, err)
	assert.Contains(t, src, "#pragma omp critical(accusync)")
	assert.NotContains(t, src, "reduction(", "min carries no simd reduction clause")
}

func TestGenerateSourceScanIsSerialOverAxis(t *testing.T) {
	shape := []int64{16}
	out := array.ContiguousView(array.NewBase(array.Float64, 16), shape)
	in := array.ContiguousView(array.NewBase(array.Float64, 16), shape)
	scan := ir.NewSweep(ir.AddAccumulate, out, in, 0)

	a, root := buildBlock(t, scan)
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)

	src, err := e.GenerateSource()
	require.NoError(t, err)
	assert.NotContains(t, src, "#pragma omp for", "scans are not parallelised across the scan axis")
	assert.Contains(t, src, "acc0_priv")
}

func TestSymbolStability(t *testing.T) {
	build := func() string {
		a, root := buildBlock(t, ewInstr([]int64{32}))
		e, err := NewEmitter(a, root, testSyntax{})
		require.NoError(t, err)
		return e.Symbol()
	}
	s1, s2 := build(), build()
	assert.Equal(t, s1, s2, "symbols depend on structure, not identity")
	assert.True(t, strings.HasPrefix(s1, "FORGE_"))

	a, root := buildBlock(t, ewInstr([]int64{2, 16}))
	e, err := NewEmitter(a, root, testSyntax{})
	require.NoError(t, err)
	assert.NotEqual(t, s1, e.Symbol(), "rank changes the symbol")
}

func TestExtensionOpcodeRejected(t *testing.T) {
	out := array.ContiguousView(array.NewBase(array.Float64, 4), []int64{4})
	ext := ir.New(ir.ExtensionOpcodeStart+1, out)

	a := block.NewArena()
	root, err := block.CreateNested(a, []*ir.Instruction{ext})
	require.NoError(t, err)

	_, err = NewEmitter(a, root, testSyntax{})
	require.Error(t, err)
}

func TestIdenticalSourceForIdenticalStructure(t *testing.T) {
	gen := func() string {
		a, root := buildBlock(t, ewInstr([]int64{16}))
		e, err := NewEmitter(a, root, testSyntax{})
		require.NoError(t, err)
		src, err := e.GenerateSource()
		require.NoError(t, err)
		return src
	}
	assert.Equal(t, gen(), gen(), "the emitter is a pure function of the block structure")
}
