package codegen

import (
	"strings"

	"forge/internal/array"
)

// Layout tags how an operand is addressed inside a kernel. The iterspace
// carries the most general (highest-valued) operand layout it covers.
type Layout uint32

const (
	LayoutScalarConst Layout = 1 << iota
	LayoutScalar
	LayoutScalarTemp
	LayoutContractable
	LayoutContiguous
	LayoutConsecutive
	LayoutStrided
	LayoutSparse
)

var layoutNames = []struct {
	l    Layout
	name string
}{
	{LayoutScalarConst, "SCALAR_CONST"},
	{LayoutScalar, "SCALAR"},
	{LayoutScalarTemp, "SCALAR_TEMP"},
	{LayoutContractable, "CONTRACTABLE"},
	{LayoutContiguous, "CONTIGUOUS"},
	{LayoutConsecutive, "CONSECUTIVE"},
	{LayoutStrided, "STRIDED"},
	{LayoutSparse, "SPARSE"},
}

func (l Layout) String() string {
	var parts []string
	for _, e := range layoutNames {
		if l&e.l != 0 {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// isArrayLayout reports layouts that walk a buffer with the loop indexes.
func (l Layout) isArrayLayout() bool {
	return l&(LayoutContiguous|LayoutConsecutive|LayoutStrided) != 0
}

// ClassifyOperand derives the layout of one operand view. temps holds the
// bases whose whole lifetime sits inside the kernel; a scalar temp never
// needs backing storage.
func ClassifyOperand(v array.View, temps map[*array.Base]struct{}) Layout {
	if v.IsConstant() {
		return LayoutScalarConst
	}
	if v.IsScalar() {
		if _, ok := temps[v.Base]; ok {
			return LayoutScalarTemp
		}
		return LayoutScalar
	}
	if v.IsContiguous() {
		return LayoutContiguous
	}
	if nd := v.NDim(); nd > 0 && v.Stride[nd-1] == 1 {
		return LayoutConsecutive
	}
	return LayoutStrided
}
