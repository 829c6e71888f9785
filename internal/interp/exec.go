package interp

import (
	"forge/internal/array"
	"forge/internal/backend"
	"forge/internal/codegen"
	"forge/internal/errors"
	"forge/internal/ir"
)

// operandAt resolves the call-time view of a kernel argument.
func operandAt(args *backend.KernelArgs, id int) array.View {
	return args.Operands[id].View
}

// principalShape resolves the iteration space of one instruction from the
// call-time arguments. Shapes are runtime data: a cached kernel serves any
// executable with identical source, the way the emitted C reads its extents
// from the iterspace argument.
func principalShape(spec codegen.InstrSpec, args *backend.KernelArgs) []int64 {
	switch spec.Class {
	case codegen.ClassReduceComplete, codegen.ClassReducePartial, codegen.ClassScan:
		return operandAt(args, spec.In1).Shape
	case codegen.ClassScatter, codegen.ClassCondScatter:
		return operandAt(args, spec.In2).Shape
	default:
		return operandAt(args, spec.Out).Shape
	}
}

// load reads one element of a view at a multidimensional index. Constants
// and broadcast dimensions collapse as their strides dictate; a view of
// lower rank than the index is addressed by its trailing dimensions.
func load(v array.View, idx []int64) array.Scalar {
	if v.IsConstant() {
		return v.Const
	}
	return v.Base.Load(offsetOf(v, idx))
}

func store(v array.View, idx []int64, s array.Scalar) {
	v.Base.Store(offsetOf(v, idx), s)
}

func offsetOf(v array.View, idx []int64) int64 {
	off := v.Start
	nd := v.NDim()
	skip := len(idx) - nd
	if skip < 0 {
		skip = 0
	}
	for i := skip; i < len(idx); i++ {
		off += idx[i] * v.Stride[i-skip]
	}
	return off
}

// forEachIndex walks a shape in row-major order.
func forEachIndex(shape []int64, f func(idx []int64, flat int64) error) error {
	idx := make([]int64, len(shape))
	nelem := array.ShapeProd(shape)
	for flat := int64(0); flat < nelem; flat++ {
		if err := f(idx, flat); err != nil {
			return err
		}
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return nil
}

func runElementwise(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	in1 := operandAt(args, spec.In1)
	shape := principalShape(spec, args)
	if spec.Class == codegen.ClassZip {
		in2 := operandAt(args, spec.In2)
		return forEachIndex(shape, func(idx []int64, _ int64) error {
			v, err := evalBinary(spec.Oper, load(in1, idx), load(in2, idx))
			if err != nil {
				return err
			}
			store(out, idx, v)
			return nil
		})
	}
	return forEachIndex(shape, func(idx []int64, _ int64) error {
		v, err := evalUnary(spec.Oper, load(in1, idx))
		if err != nil {
			return err
		}
		store(out, idx, v)
		return nil
	})
}

// forgeRandom matches the counter-based hash the emitted source uses.
func forgeRandom(idx, key, start uint64) uint64 {
	z := (start+idx)*0x9E3779B97F4A7C15 + key
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func runGenerate(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	shape := principalShape(spec, args)
	if spec.Opcode == ir.Random {
		key := operandAt(args, spec.In1).Const.AsUint64()
		start := operandAt(args, spec.In2).Const.AsUint64()
		return forEachIndex(shape, func(idx []int64, flat int64) error {
			store(out, idx, array.Scalar{Type: array.Uint64, Uint: forgeRandom(uint64(flat), key, start)})
			return nil
		})
	}
	return forEachIndex(shape, func(idx []int64, flat int64) error {
		store(out, idx, array.Int64Scalar(flat))
		return nil
	})
}

// runReduce folds the input along the sweep axis. A complete reduction
// keeps one accumulator for the whole space; a partial reduction keeps one
// per output position, reset whenever a non-sweep index advances.
func runReduce(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	in := operandAt(args, spec.In1)
	shape := principalShape(spec, args)
	axis := spec.SweepAxis
	if axis < 0 || axis >= len(shape) {
		return errors.E(errors.UnknownOperator, "reduce with sweep axis %d out of range", axis)
	}
	dtype := inputType(in)
	neutral := neutralScalar(spec.Oper, dtype)

	if spec.Class == codegen.ClassReduceComplete {
		acc := neutral
		err := forEachIndex(shape, func(idx []int64, _ int64) error {
			var err error
			acc, err = evalBinary(spec.Oper, acc, load(in, idx))
			return err
		})
		if err != nil {
			return err
		}
		store(out, make([]int64, out.NDim()), acc)
		return nil
	}

	outer := outerShape(shape, axis)
	return forEachIndex(outer, func(oidx []int64, _ int64) error {
		acc := neutral
		idx := expandIndex(oidx, axis)
		for k := int64(0); k < shape[axis]; k++ {
			idx[axis] = k
			var err error
			acc, err = evalBinary(spec.Oper, acc, load(in, idx))
			if err != nil {
				return err
			}
		}
		store(out, oidx, acc)
		return nil
	})
}

// runScan accumulates along the sweep axis, writing every step.
func runScan(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	in := operandAt(args, spec.In1)
	shape := principalShape(spec, args)
	axis := spec.SweepAxis
	if axis < 0 || axis >= len(shape) {
		return errors.E(errors.UnknownOperator, "scan with sweep axis %d out of range", axis)
	}
	dtype := inputType(in)
	neutral := neutralScalar(spec.Oper, dtype)

	outer := outerShape(shape, axis)
	return forEachIndex(outer, func(oidx []int64, _ int64) error {
		acc := neutral
		idx := expandIndex(oidx, axis)
		for k := int64(0); k < shape[axis]; k++ {
			idx[axis] = k
			var err error
			acc, err = evalBinary(spec.Oper, acc, load(in, idx))
			if err != nil {
				return err
			}
			store(out, idx, acc)
		}
		return nil
	})
}

func runGather(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	in := operandAt(args, spec.In1)
	index := operandAt(args, spec.In2)
	return forEachIndex(principalShape(spec, args), func(idx []int64, _ int64) error {
		at := in.Start + load(index, idx).AsInt64()
		store(out, idx, in.Base.Load(at))
		return nil
	})
}

func runScatter(spec codegen.InstrSpec, args *backend.KernelArgs) error {
	out := operandAt(args, spec.Out)
	in := operandAt(args, spec.In1)
	index := operandAt(args, spec.In2)
	cond := spec.Class == codegen.ClassCondScatter
	var mask array.View
	if cond {
		mask = operandAt(args, spec.In3)
	}
	return forEachIndex(principalShape(spec, args), func(idx []int64, _ int64) error {
		if cond && !load(mask, idx).AsBool() {
			return nil
		}
		at := out.Start + load(index, idx).AsInt64()
		out.Base.Store(at, load(in, idx))
		return nil
	})
}

func inputType(v array.View) array.DType {
	if v.IsConstant() {
		return v.Const.Type
	}
	return v.Base.Type
}

func outerShape(shape []int64, axis int) []int64 {
	outer := make([]int64, 0, len(shape)-1)
	for d, s := range shape {
		if d != axis {
			outer = append(outer, s)
		}
	}
	return outer
}

// expandIndex widens an outer index with a hole at the sweep axis.
func expandIndex(oidx []int64, axis int) []int64 {
	idx := make([]int64, len(oidx)+1)
	copy(idx[:axis], oidx[:axis])
	copy(idx[axis+1:], oidx[axis:])
	return idx
}
