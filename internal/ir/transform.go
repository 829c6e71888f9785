package ir

import (
	"forge/internal/array"
	"forge/internal/errors"
)

// Reshape rewrites every operand to new contiguous row-major views of the
// given shape. Only reshapable instructions accept it.
func (in *Instruction) Reshape(shape []int64) error {
	if !in.Reshapable() {
		return errors.E(errors.InvalidReshape, "%s is not reshapable", in.Opcode)
	}
	return in.ReshapeForce(shape)
}

// ReshapeForce applies the reshape without the reshapable gate. The block
// builder uses it on instructions whose same-shape precondition was already
// established by the fusion policy.
func (in *Instruction) ReshapeForce(shape []int64) error {
	total := array.ShapeProd(shape)
	for _, v := range in.Views() {
		if v.Nelem() != total {
			return errors.E(errors.InvalidReshape,
				"shape mismatch: %d elements vs %v", v.Nelem(), shape)
		}
	}
	for _, v := range in.Views() {
		v.Shape = append([]int64(nil), shape...)
		v.SetContiguousStride()
	}
	return nil
}

// RemoveAxis drops the given axis from every non-constant operand. The
// sweep-axis constant is corrected when it sits above the removed axis;
// removing the sweep axis itself is an error.
func (in *Instruction) RemoveAxis(axis int) error {
	if axis < 0 || axis >= in.NDim() {
		return errors.E(errors.InvalidTransform, "remove_axis: axis %d out of range", axis)
	}
	if len(in.Operands) == 0 {
		return nil
	}
	sa := in.SweepAxis()
	if sa == axis {
		return errors.E(errors.InvalidTransform, "remove_axis: cannot remove the sweep axis")
	}

	// Inputs simply drop the axis; gather's index operand keeps its shape.
	for o := 1; o < len(in.Operands); o++ {
		v := &in.Operands[o]
		if v.IsConstant() || (o == 2 && in.Opcode == Gather) {
			continue
		}
		v.RemoveAxis(axis)
	}
	if sa > axis && sa < array.MaxDim {
		in.Constant = array.Int64Scalar(int64(sa - 1))
	}

	// The output of a scatter is allowed any shape.
	if in.Opcode == Scatter || in.Opcode == CondScatter {
		return nil
	}

	out := &in.Operands[0]
	if in.Opcode.IsReduction() {
		// The output has the sweep axis removed already, so the axis index
		// shifts when the sweep axis sits below it.
		if sa < axis {
			out.RemoveAxis(axis - 1)
		} else {
			out.RemoveAxis(axis)
		}
	} else {
		out.RemoveAxis(axis)
	}
	return nil
}

// Transpose swaps two axes of every operand. A sweep along one of the
// swapped axes has its axis constant rewritten to the other.
func (in *Instruction) Transpose(axis1, axis2 int) error {
	nd := in.NDim()
	if axis1 < 0 || axis1 >= nd || axis2 < 0 || axis2 >= nd {
		return errors.E(errors.InvalidTransform, "transpose: axis out of range (%d, %d)", axis1, axis2)
	}
	if axis1 == axis2 {
		return errors.E(errors.InvalidTransform, "transpose: axes are equal")
	}
	if len(in.Operands) == 0 {
		return nil
	}

	for o := 1; o < len(in.Operands); o++ {
		v := &in.Operands[o]
		if v.IsConstant() || (o == 2 && in.Opcode == Gather) {
			continue
		}
		v.Transpose(axis1, axis2)
	}

	sa := in.SweepAxis()
	if sa == axis1 {
		in.Constant = array.Int64Scalar(int64(axis2))
	} else if sa == axis2 {
		in.Constant = array.Int64Scalar(int64(axis1))
	}

	// The output of a scatter is allowed any shape.
	if in.Opcode == Scatter || in.Opcode == CondScatter {
		return nil
	}

	out := &in.Operands[0]
	if in.Opcode.IsReduction() {
		if sa != axis1 && sa != axis2 {
			t1 := axis1
			t2 := axis2
			if sa < axis1 {
				t1 = axis1 - 1
			}
			if sa < axis2 {
				t2 = axis2 - 1
			}
			out.Transpose(t1, t2)
		} else {
			// Reducing one of the swapped axes: insert a dummy dimension at
			// the reduced axis, transpose, and remove the dummy again.
			if sa != axis1 {
				axis1, axis2 = axis2, axis1
			}
			out.InsertAxis(axis1, 1, 1)
			out.Transpose(axis1, axis2)
			out.RemoveAxis(axis2)
		}
	} else {
		out.Transpose(axis1, axis2)
	}
	return nil
}

// TransposeAll reverses every axis by repeated pairwise transposes.
func (in *Instruction) TransposeAll() error {
	lc := 0
	rc := in.NDim() - 1
	for lc < rc {
		if err := in.Transpose(lc, rc); err != nil {
			return err
		}
		lc++
		rc--
	}
	return nil
}
