package array

import (
	"fmt"
	"strings"
)

// View is a strided window over a base. A view with a nil base marks the
// operand as a constant and carries the scalar payload inline. Views are
// value types: Clone before mutating a view that is shared.
type View struct {
	Base   *Base
	Const  Scalar // payload when Base == nil
	Start  int64
	Shape  []int64
	Stride []int64
}

// NewView builds a view over base. shape and stride are not copied.
func NewView(base *Base, start int64, shape, stride []int64) View {
	return View{Base: base, Start: start, Shape: shape, Stride: stride}
}

// ConstView wraps a scalar as a constant operand.
func ConstView(s Scalar) View {
	return View{Const: s}
}

// CompleteView is the one-dimensional view covering the whole base.
func CompleteView(base *Base) View {
	return View{Base: base, Start: 0, Shape: []int64{base.Nelem}, Stride: []int64{1}}
}

// ContiguousView is the row-major view of shape over base starting at
// element zero.
func ContiguousView(base *Base, shape []int64) View {
	v := View{Base: base, Start: 0, Shape: append([]int64(nil), shape...)}
	v.SetContiguousStride()
	return v
}

func (v View) IsConstant() bool {
	return v.Base == nil
}

func (v View) NDim() int {
	return len(v.Shape)
}

// Nelem returns the number of element positions in the view.
func (v View) Nelem() int64 {
	n := int64(1)
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// NelemNonBroadcast counts elements ignoring broadcast (stride-0) dimensions.
func (v View) NelemNonBroadcast() int64 {
	n := int64(1)
	for i, s := range v.Shape {
		if v.Stride[i] != 0 {
			n *= s
		}
	}
	return n
}

// IsScalar reports whether the view addresses exactly one element.
func (v View) IsScalar() bool {
	return v.Nelem() == 1
}

// IsContiguous reports whether the view is contiguous row-major: the last
// non-unit stride is 1 and strides telescope outward.
func (v View) IsContiguous() bool {
	if v.IsConstant() {
		return false
	}
	s := int64(1)
	for i := v.NDim() - 1; i >= 0; i-- {
		if v.Shape[i] == 1 && v.Stride[i] == 0 {
			continue
		}
		if v.Stride[i] != s {
			return false
		}
		s *= v.Shape[i]
	}
	return true
}

// SetContiguousStride rewrites the stride to contiguous row-major and
// returns the total number of elements.
func (v *View) SetContiguousStride() int64 {
	v.Stride = make([]int64, len(v.Shape))
	s := int64(1)
	for i := len(v.Shape) - 1; i >= 0; i-- {
		v.Stride[i] = s
		s *= v.Shape[i]
	}
	return s
}

// Clone deep-copies the shape and stride slices. The base stays shared.
func (v View) Clone() View {
	out := v
	out.Shape = append([]int64(nil), v.Shape...)
	out.Stride = append([]int64(nil), v.Stride...)
	return out
}

// SameShape reports pointwise shape equality.
func (v View) SameShape(o View) bool {
	return ShapeEqual(v.Shape, o.Shape)
}

// Equal reports whether the two views are identical windows over the same
// base. Constants are never equal.
func (v View) Equal(o View) bool {
	if v.IsConstant() || o.IsConstant() {
		return false
	}
	if v.Base != o.Base || v.Start != o.Start || v.NDim() != o.NDim() {
		return false
	}
	for i := range v.Shape {
		if v.Shape[i] != o.Shape[i] || v.Stride[i] != o.Stride[i] {
			return false
		}
	}
	return true
}

// RemoveAxis drops the given dimension.
func (v *View) RemoveAxis(axis int) {
	v.Shape = append(v.Shape[:axis:axis], v.Shape[axis+1:]...)
	v.Stride = append(v.Stride[:axis:axis], v.Stride[axis+1:]...)
}

// InsertAxis inserts a dimension of the given size and stride before axis.
func (v *View) InsertAxis(axis int, size, stride int64) {
	v.Shape = append(v.Shape[:axis:axis], append([]int64{size}, v.Shape[axis:]...)...)
	v.Stride = append(v.Stride[:axis:axis], append([]int64{stride}, v.Stride[axis:]...)...)
}

// Transpose swaps two dimensions.
func (v *View) Transpose(ax1, ax2 int) {
	v.Shape[ax1], v.Shape[ax2] = v.Shape[ax2], v.Shape[ax1]
	v.Stride[ax1], v.Stride[ax2] = v.Stride[ax2], v.Stride[ax1]
}

// ElemOffset maps a multidimensional index to the flat element offset within
// the base, including the view's start.
func (v View) ElemOffset(idx []int64) int64 {
	off := v.Start
	for i, x := range idx {
		off += x * v.Stride[i]
	}
	return off
}

// Pprint renders the view. With python notation the window is written as a
// slice expression over the base; otherwise start/shape/stride are listed.
func (v View) Pprint(python bool) string {
	if v.IsConstant() {
		return v.Const.String()
	}
	var sb strings.Builder
	sb.WriteString(v.Base.String())
	if python {
		sb.WriteString("[")
		for i := range v.Shape {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d:%d:%d", v.Start, v.Start+v.Shape[i]*v.Stride[i], v.Stride[i])
		}
		sb.WriteString("]")
	} else {
		fmt.Fprintf(&sb, "(start=%d, shape=%v, stride=%v)", v.Start, v.Shape, v.Stride)
	}
	return sb.String()
}

func (v View) String() string {
	return v.Pprint(true)
}

// ShapeEqual reports pointwise equality of two shapes.
func ShapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ShapeProd returns the element count of a shape.
func ShapeProd(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}
