package bridge

import (
	"fmt"

	"forge/grammar"
	"forge/internal/array"
	"forge/internal/ir"
)

var reduceOps = map[string]ir.Opcode{
	"sum":  ir.AddReduce,
	"prod": ir.MultiplyReduce,
	"min":  ir.MinimumReduce,
	"max":  ir.MaximumReduce,
	"any":  ir.LogicalOrReduce,
	"all":  ir.LogicalAndReduce,
}

var scanOps = map[string]ir.Opcode{
	"cumsum":  ir.AddAccumulate,
	"cumprod": ir.MultiplyAccumulate,
}

var unaryOps = map[string]ir.Opcode{
	"abs":   ir.Absolute,
	"sqrt":  ir.Sqrt,
	"exp":   ir.Exp,
	"log":   ir.Log,
	"log10": ir.Log10,
	"sin":   ir.Sin,
	"cos":   ir.Cos,
	"tan":   ir.Tan,
	"floor": ir.Floor,
	"ceil":  ir.Ceil,
	"trunc": ir.Trunc,
}

func (c *Compiler) call(call *grammar.Call) (array.View, error) {
	if op, ok := reduceOps[call.Func]; ok {
		return c.sweep(call, op, true)
	}
	if op, ok := scanOps[call.Func]; ok {
		return c.sweep(call, op, false)
	}
	if op, ok := unaryOps[call.Func]; ok {
		return c.unary(call, op)
	}
	switch call.Func {
	case "arange":
		return c.arange(call)
	case "random":
		return c.random(call)
	case "reshape":
		return c.reshape(call)
	case "transpose":
		return c.transposeCall(call)
	case "gather":
		return c.gather(call)
	case "scatter":
		return c.scatter(call)
	}
	return array.View{}, fmt.Errorf("unknown builtin %q", call.Func)
}

func (c *Compiler) argView(call *grammar.Call, i int) (array.View, error) {
	if i >= len(call.Args) || call.Args[i].Expr == nil {
		return array.View{}, fmt.Errorf("%s: argument %d must be an array", call.Func, i+1)
	}
	v, err := c.exprValue(call.Args[i].Expr)
	if err != nil {
		return array.View{}, err
	}
	return c.materialize(v)
}

func (c *Compiler) argInt(call *grammar.Call, i int) (int64, error) {
	if i >= len(call.Args) || call.Args[i].Expr == nil {
		return 0, fmt.Errorf("%s: argument %d must be an integer", call.Func, i+1)
	}
	v, err := c.exprValue(call.Args[i].Expr)
	if err != nil {
		return 0, err
	}
	if !v.isLit {
		return 0, fmt.Errorf("%s: argument %d must be a literal", call.Func, i+1)
	}
	return int64(v.scalar), nil
}

// argDType reads an optional trailing dtype name argument.
func (c *Compiler) argDType(call *grammar.Call, i int, def array.DType) (array.DType, error) {
	if i >= len(call.Args) {
		return def, nil
	}
	e := call.Args[i].Expr
	if e == nil || e.Left == nil || e.Left.Left == nil || e.Left.Left.Ident == nil {
		return def, fmt.Errorf("%s: argument %d must be a type name", call.Func, i+1)
	}
	t, ok := array.DTypeFromName(*e.Left.Left.Ident)
	if !ok {
		return def, fmt.Errorf("%s: unknown type %q", call.Func, *e.Left.Left.Ident)
	}
	return t, nil
}

// arange(n [, dtype]) fills a fresh contiguous array with 0..n-1.
func (c *Compiler) arange(call *grammar.Call) (array.View, error) {
	n, err := c.argInt(call, 0)
	if err != nil {
		return array.View{}, err
	}
	dtype, err := c.argDType(call, 1, array.Int64)
	if err != nil {
		return array.View{}, err
	}
	out := array.ContiguousView(array.NewBase(dtype, n), []int64{n})
	c.emit(ir.New(ir.Range, out))
	return out, nil
}

// random(n [, seed]) fills a fresh array with counter-based random words.
func (c *Compiler) random(call *grammar.Call) (array.View, error) {
	n, err := c.argInt(call, 0)
	if err != nil {
		return array.View{}, err
	}
	seed := int64(42)
	if len(call.Args) > 1 {
		if seed, err = c.argInt(call, 1); err != nil {
			return array.View{}, err
		}
	}
	out := array.ContiguousView(array.NewBase(array.Uint64, n), []int64{n})
	c.emit(ir.New(ir.Random, out,
		array.ConstView(array.Scalar{Type: array.Uint64, Uint: uint64(seed)}),
		array.ConstView(array.Scalar{Type: array.Uint64, Uint: 0})))
	return out, nil
}

// reshape(x, [dims]) is a pure view rewrite over a contiguous source.
func (c *Compiler) reshape(call *grammar.Call) (array.View, error) {
	src, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	if len(call.Args) < 2 || call.Args[1].Shape == nil {
		return array.View{}, fmt.Errorf("reshape: second argument must be a shape literal")
	}
	dims := call.Args[1].Shape.Dims
	if array.ShapeProd(dims) != src.Nelem() {
		return array.View{}, fmt.Errorf("reshape: %d elements cannot fill shape %v", src.Nelem(), dims)
	}
	if !src.IsContiguous() {
		return array.View{}, fmt.Errorf("reshape: source view is not contiguous")
	}
	v := array.View{Base: src.Base, Start: src.Start, Shape: append([]int64(nil), dims...)}
	v.SetContiguousStride()
	return v, nil
}

// transpose(x, ax1, ax2) swaps two view dimensions.
func (c *Compiler) transposeCall(call *grammar.Call) (array.View, error) {
	src, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	ax1, err := c.argInt(call, 1)
	if err != nil {
		return array.View{}, err
	}
	ax2, err := c.argInt(call, 2)
	if err != nil {
		return array.View{}, err
	}
	nd := int64(src.NDim())
	if ax1 < 0 || ax1 >= nd || ax2 < 0 || ax2 >= nd || ax1 == ax2 {
		return array.View{}, fmt.Errorf("transpose: invalid axes (%d, %d)", ax1, ax2)
	}
	v := src.Clone()
	v.Transpose(int(ax1), int(ax2))
	return v, nil
}

// sweep lowers reductions (drop the axis) and scans (keep the shape).
func (c *Compiler) sweep(call *grammar.Call, op ir.Opcode, reduce bool) (array.View, error) {
	src, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	axis := int64(0)
	if len(call.Args) > 1 {
		if axis, err = c.argInt(call, 1); err != nil {
			return array.View{}, err
		}
	}
	if axis < 0 || axis >= int64(src.NDim()) {
		return array.View{}, fmt.Errorf("%s: axis %d out of range", call.Func, axis)
	}

	var outShape []int64
	if reduce {
		outShape = append([]int64(nil), src.Shape...)
		outShape = append(outShape[:axis], outShape[axis+1:]...)
		if len(outShape) == 0 {
			outShape = []int64{1}
		}
	} else {
		outShape = append([]int64(nil), src.Shape...)
	}
	out := array.ContiguousView(array.NewBase(src.Base.Type, array.ShapeProd(outShape)), outShape)
	c.emit(ir.NewSweep(op, out, src, axis))
	return out, nil
}

func (c *Compiler) unary(call *grammar.Call, op ir.Opcode) (array.View, error) {
	src, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	dtype := array.Float64
	if op == ir.Absolute {
		dtype = src.Base.Type
	}
	out := array.ContiguousView(array.NewBase(dtype, src.Nelem()), src.Shape)
	c.emit(ir.New(op, out, src))
	return out, nil
}

// gather(x, idx) reads x.base at the flat positions idx holds.
func (c *Compiler) gather(call *grammar.Call) (array.View, error) {
	src, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	index, err := c.argView(call, 1)
	if err != nil {
		return array.View{}, err
	}
	out := array.ContiguousView(array.NewBase(src.Base.Type, index.Nelem()), index.Shape)
	c.emit(ir.New(ir.Gather, out, src, index))
	return out, nil
}

// scatter(dst, src, idx) writes src into dst.base at the flat positions idx
// holds and answers with dst.
func (c *Compiler) scatter(call *grammar.Call) (array.View, error) {
	dst, err := c.argView(call, 0)
	if err != nil {
		return array.View{}, err
	}
	src, err := c.argView(call, 1)
	if err != nil {
		return array.View{}, err
	}
	index, err := c.argView(call, 2)
	if err != nil {
		return array.View{}, err
	}
	c.emit(ir.New(ir.Scatter, dst, src, index))
	return dst, nil
}
