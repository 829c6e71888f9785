package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/array"
	"forge/internal/backend"
	"forge/internal/bridge"
	"forge/internal/fuse"
	"forge/internal/interp"
	"forge/internal/ir"
)

func newTestRuntime(t *testing.T, model fuse.Model) (*Runtime, *interp.Engine) {
	t.Helper()
	cache := backend.NewKernelCache(t.TempDir())
	engine := interp.New(cache)
	rt := New(Config{FuseModel: model, CacheDir: t.TempDir()}, engine)
	return rt, engine
}

func valuesOf(t *testing.T, v array.View) []float64 {
	t.Helper()
	require.NotNil(t, v.Base.Data, "base not materialised")
	var out []float64
	idx := make([]int64, v.NDim())
	for i := int64(0); i < v.Nelem(); i++ {
		out = append(out, v.Base.Load(v.ElemOffset(idx)).AsFloat64())
		for d := v.NDim() - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < v.Shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

func runScript(t *testing.T, rt *Runtime, source string) *bridge.Compiled {
	t.Helper()
	compiled, err := bridge.CompileSource("test.fg", source)
	require.NoError(t, err)
	require.NoError(t, rt.Execute(compiled.Batch))
	return compiled
}

// Scenario: arange, reshape and basic indexing stay one kernel; the slice
// is a window into the same storage.
func TestArangeReshapeIndex(t *testing.T) {
	rt, engine := newTestRuntime(t, fuse.Broadest)
	compiled := runScript(t, rt, `
a = arange(6)
b = reshape(a, [2, 3])
c = b[1]
`)
	a := compiled.Vars["a"]
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, valuesOf(t, a))

	c := compiled.Vars["c"]
	assert.Same(t, a.Base, c.Base, "the slice views the arange buffer")
	assert.Equal(t, int64(3), c.Start)
	assert.Equal(t, []int64{3}, c.Shape)
	assert.Equal(t, []int64{1}, c.Stride)
	assert.Equal(t, []float64{3, 4, 5}, valuesOf(t, c))

	assert.Equal(t, 1, engine.Compiles(), "one generator kernel")
}

// Scenario: multiply, add and the reduction stream into one kernel under
// the creduce model; the scalar-separate model splits the reduction off.
func TestStreamingReduction(t *testing.T) {
	const source = `
x = arange(1000000)
y = x * 2.0 + 1.0
s = sum(y, 0)
`
	rt, engine := newTestRuntime(t, fuse.SameShapeStreamCreduce)
	compiled := runScript(t, rt, source)
	s := compiled.Vars["s"]
	assert.Equal(t, 1.0e12, valuesOf(t, s)[0])
	assert.Equal(t, 1, engine.Compiles(),
		"the generator, multiply, add and reduction stream into one kernel")

	rt2, engine2 := newTestRuntime(t, fuse.NoXsweepScalarSeparate)
	compiled2 := runScript(t, rt2, source)
	assert.Equal(t, 1.0e12, valuesOf(t, compiled2.Vars["s"])[0])
	assert.Equal(t, 2, engine2.Compiles(),
		"the scalar reduction must not share the elementwise kernel")
}

// Scenario: two reductions of unrelated shapes fuse under broadest and the
// result matches sequential execution; the stream models keep them apart.
func TestUnrelatedReductionsUnderBroadest(t *testing.T) {
	build := func() ([]*ir.Instruction, array.View, array.View) {
		in1 := array.ContiguousView(array.NewBase(array.Float64, 6), []int64{6})
		out1 := array.ContiguousView(array.NewBase(array.Float64, 1), []int64{1})
		in2 := array.ContiguousView(array.NewBase(array.Float64, 8), []int64{2, 4})
		out2 := array.ContiguousView(array.NewBase(array.Float64, 4), []int64{4})
		batch := []*ir.Instruction{
			ir.New(ir.Range, in1),
			ir.New(ir.Range, in2),
			ir.NewSweep(ir.AddReduce, out1, in1, 0),
			ir.NewSweep(ir.AddReduce, out2, in2, 0),
		}
		return batch, out1, out2
	}

	rt, _ := newTestRuntime(t, fuse.Broadest)
	batch, out1, out2 := build()
	require.NoError(t, rt.Execute(batch))
	assert.Equal(t, []float64{15}, valuesOf(t, out1))
	assert.Equal(t, []float64{4, 6, 8, 10}, valuesOf(t, out2))

	rt2, _ := newTestRuntime(t, fuse.SameShapeStreamCreduce)
	batch2, out1b, out2b := build()
	require.NoError(t, rt2.Execute(batch2))
	assert.Equal(t, []float64{15}, valuesOf(t, out1b))
	assert.Equal(t, []float64{4, 6, 8, 10}, valuesOf(t, out2b))
}

// Scenario: a write-then-read hazard through overlapping windows lands in
// separate kernels and still executes in submission order.
func TestWriteReadHazard(t *testing.T) {
	rt, engine := newTestRuntime(t, fuse.Broadest)

	base := array.NewBase(array.Float64, 10)
	writeWin := array.NewView(base, 0, []int64{5}, []int64{1})
	readWin := array.NewView(base, 2, []int64{5}, []int64{1})
	out := array.ContiguousView(array.NewBase(array.Float64, 5), []int64{5})

	batch := []*ir.Instruction{
		ir.New(ir.Identity, writeWin, array.ConstView(array.Float64Scalar(1))),
		ir.New(ir.Add, out, readWin, array.ConstView(array.Float64Scalar(1))),
	}
	require.NoError(t, rt.Execute(batch))

	got := valuesOf(t, out)
	// The written prefix reads back 1, so adding 1 yields 2; the aliased
	// tail beyond the write stays at the zero fill.
	assert.Equal(t, []float64{2, 2, 2, 1, 1}, got)
	assert.Equal(t, 2, engine.Compiles(), "hazard forces two kernels")
}

// Scenario: transposing a reduction rewrites its sweep axis, so the result
// equals the un-transposed sweep along the other axis.
func TestReductionTranspose(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)

	in := array.ContiguousView(array.NewBase(array.Float64, 6), []int64{2, 3})
	fill := ir.New(ir.Range, in)

	out := array.ContiguousView(array.NewBase(array.Float64, 3), []int64{3})
	red := ir.NewSweep(ir.AddReduce, out, in, 0)
	require.NoError(t, red.Transpose(0, 1))
	assert.Equal(t, 1, red.SweepAxis())

	require.NoError(t, rt.Execute([]*ir.Instruction{fill, red}))

	// The transposed instruction still computes the axis-0 sum of
	// [[0,1,2],[3,4,5]]: transposing views and sweep axis together leaves
	// the result unchanged.
	assert.Equal(t, []float64{3, 5, 7}, valuesOf(t, out))
}

// Scenario: ten identical batches compile each of their two kernels once;
// the other nine batches are cache hits.
func TestKernelCacheReuse(t *testing.T) {
	cache := backend.NewKernelCache(t.TempDir())
	engine := interp.New(cache)
	rt := New(Config{FuseModel: fuse.SameShape, CacheDir: t.TempDir()}, engine)

	const source = `
a = arange(16)
b = a * 3.0
`
	var last *bridge.Compiled
	for i := 0; i < 10; i++ {
		last = runScript(t, rt, source)
	}
	assert.Equal(t, []float64{0, 3, 6, 9, 12, 15, 18, 21, 24, 27, 30, 33, 36, 39, 42, 45},
		valuesOf(t, last.Vars["b"]))
	assert.Equal(t, 2, engine.Compiles(),
		"one arange kernel and one multiply kernel, everything else cached")
}

// Scans accumulate along their axis inside one batch.
func TestScanExecution(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)
	compiled := runScript(t, rt, `
a = arange(5)
c = cumsum(a, 0)
`)
	assert.Equal(t, []float64{0, 1, 3, 6, 10}, valuesOf(t, compiled.Vars["c"]))
}

// Elementwise chains over views of one buffer fuse and compute correctly.
func TestElementwiseChain(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)
	compiled := runScript(t, rt, `
a = arange(4)
b = a * a + a
`)
	assert.Equal(t, []float64{0, 2, 6, 12}, valuesOf(t, compiled.Vars["b"]))
}

// A freed base stops being allocated after its group runs.
func TestFreeReleasesStorage(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)
	compiled := runScript(t, rt, `
a = arange(8)
b = a + 1.0
free(a)
`)
	assert.Nil(t, compiled.Vars["a"].Base.Data, "a is released")
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, valuesOf(t, compiled.Vars["b"]))
}

// A FREE on a base no computation touches is folded away before grouping.
func TestPrefilterDropsUncomputedFrees(t *testing.T) {
	rt, engine := newTestRuntime(t, fuse.Broadest)

	unused := array.NewBase(array.Float64, 4)
	out := array.ContiguousView(array.NewBase(array.Float64, 4), []int64{4})
	batch := []*ir.Instruction{
		ir.New(ir.Free, array.CompleteView(unused)),
		ir.New(ir.Range, out),
	}
	require.NoError(t, rt.Execute(batch))
	assert.Equal(t, []float64{0, 1, 2, 3}, valuesOf(t, out))
	assert.Equal(t, 1, engine.Compiles())
}

// Dependency order survives grouping: a chain of aliased writes lands in
// submission order even when groups split.
func TestDependencyOrderPreserved(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.SameShape)

	base := array.NewBase(array.Float64, 4)
	whole := array.CompleteView(base)
	half := array.NewView(base, 0, []int64{2}, []int64{1})
	outA := array.ContiguousView(array.NewBase(array.Float64, 4), []int64{4})

	batch := []*ir.Instruction{
		// Fill the whole buffer with 5.
		ir.New(ir.Identity, whole, array.ConstView(array.Float64Scalar(5))),
		// Overwrite the first half with 9 (aliases the whole view, unaligned).
		ir.New(ir.Identity, half, array.ConstView(array.Float64Scalar(9))),
		// Read everything.
		ir.New(ir.Identity, outA, whole),
	}
	require.NoError(t, rt.Execute(batch))
	assert.Equal(t, []float64{9, 9, 5, 5}, valuesOf(t, outA))
}

// Gather reads elements by flat index.
func TestGather(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)
	compiled := runScript(t, rt, `
a = arange(6)
i = arange(3)
g = gather(a, i)
`)
	assert.Equal(t, []float64{0, 1, 2}, valuesOf(t, compiled.Vars["g"]))
}

// Random generation is deterministic for a fixed seed.
func TestRandomDeterministic(t *testing.T) {
	rt, _ := newTestRuntime(t, fuse.Broadest)
	c1 := runScript(t, rt, `r = random(8, 7)`)
	rt2, _ := newTestRuntime(t, fuse.Broadest)
	c2 := runScript(t, rt2, `r = random(8, 7)`)
	assert.Equal(t, valuesOf(t, c1.Vars["r"]), valuesOf(t, c2.Vars["r"]))
}
