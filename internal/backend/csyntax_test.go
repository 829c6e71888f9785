package backend

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/array"
	"forge/internal/ir"
)

func TestNeutralElements(t *testing.T) {
	syn := CSyntax{}
	cases := []struct {
		op   ir.Opcode
		t    array.DType
		want string
	}{
		{ir.Add, array.Float64, "0"},
		{ir.LogicalOr, array.Bool, "0"},
		{ir.LogicalXor, array.Bool, "0"},
		{ir.BitwiseOr, array.Uint32, "0"},
		{ir.Multiply, array.Int64, "1"},
		{ir.LogicalAnd, array.Bool, "1"},
		{ir.Maximum, array.Int32, "INT32_MIN"},
		{ir.Maximum, array.Uint16, "0"},
		{ir.Maximum, array.Float64, "-DBL_MAX"},
		{ir.Minimum, array.Int8, "INT8_MAX"},
		{ir.Minimum, array.Uint64, "UINT64_MAX"},
		{ir.Minimum, array.Float32, "FLT_MAX"},
		{ir.BitwiseAnd, array.Bool, "1"},
		{ir.BitwiseAnd, array.Int64, "-1"},
		{ir.BitwiseAnd, array.Uint8, "UINT8_MAX"},
	}
	for _, c := range cases {
		got, err := syn.NeutralElement(c.op, c.t)
		require.NoError(t, err, "%s over %s", c.op, c.t)
		assert.Equal(t, c.want, got, "%s over %s", c.op, c.t)
	}
}

func TestNeutralElementUnknown(t *testing.T) {
	_, err := CSyntax{}.NeutralElement(ir.Subtract, array.Float64)
	assert.Error(t, err, "subtract is not a reduction operator")
}

func TestOpExpr(t *testing.T) {
	syn := CSyntax{}
	cases := []struct {
		op   ir.Opcode
		t    array.DType
		want string
	}{
		{ir.Add, array.Float64, "(a + b)"},
		{ir.Multiply, array.Int32, "(a * b)"},
		{ir.Mod, array.Float64, "fmod(a, b)"},
		{ir.Mod, array.Int64, "(a % b)"},
		{ir.Maximum, array.Float64, "(a < b ? b : a)"},
		{ir.Minimum, array.Float64, "(a < b ? a : b)"},
		{ir.LogicalXor, array.Bool, "(!a != !b)"},
	}
	for _, c := range cases {
		got, err := syn.OpExpr(c.op, c.t, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestOpExprUnary(t *testing.T) {
	syn := CSyntax{}
	got, err := syn.OpExpr(ir.Sqrt, array.Float64, "x", "")
	require.NoError(t, err)
	assert.Equal(t, "sqrt(x)", got)

	got, err = syn.OpExpr(ir.Sqrt, array.Complex64, "x", "")
	require.NoError(t, err)
	assert.Equal(t, "csqrtf(x)", got)

	got, err = syn.OpExpr(ir.Absolute, array.Complex128, "x", "")
	require.NoError(t, err)
	assert.Equal(t, "cabs(x)", got)

	got, err = syn.OpExpr(ir.Identity, array.Float64, "x", "")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestCTypeNames(t *testing.T) {
	syn := CSyntax{}
	assert.Equal(t, "double", syn.CType(array.Float64))
	assert.Equal(t, "uint8_t", syn.CType(array.Uint8))
	assert.Equal(t, "double complex", syn.CType(array.Complex128))
	assert.Equal(t, "bool", syn.CType(array.Bool))
}

func TestKernelCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewKernelCache(dir)

	_, ok := cache.Lookup("void k() {}")
	assert.False(t, ok)

	calls := 0
	cache.Insert("void k() {}", "FORGE_cafe", func(*KernelArgs) error { calls++; return nil })

	k, ok := cache.Lookup("void k() {}")
	require.True(t, ok)
	require.NoError(t, k(nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())

	// The source is persisted at the deterministic symbol path.
	data, err := os.ReadFile(cache.SourcePath("FORGE_cafe"))
	require.NoError(t, err)
	assert.Equal(t, "void k() {}", string(data))
}
