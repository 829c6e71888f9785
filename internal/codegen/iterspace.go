package codegen

import (
	"forge/internal/array"
	"forge/internal/block"
)

// Iterspace describes how a block is iterated: the loop ranks with their
// extents, the designated innermost vectorisable rank, and the most general
// of the operand layouts encountered.
type Iterspace struct {
	NDim   int
	Shape  []int64
	Axis   int
	Layout Layout
	Nelem  int64
}

// BuildIterspace derives the iterspace of a block from its loop spine and
// the layouts of the operands it touches.
func BuildIterspace(a *block.Arena, root block.ID) Iterspace {
	var shape []int64
	for id := root; ; {
		n := a.Get(id)
		if n.IsInstr() {
			break
		}
		shape = append(shape, n.Size)
		next := block.ID(-1)
		for _, c := range n.Children {
			if !a.Get(c).IsInstr() {
				next = c
				break
			}
		}
		if next < 0 {
			break
		}
		id = next
	}
	if len(shape) == 0 {
		shape = []int64{1}
	}

	it := Iterspace{
		NDim:  len(shape),
		Shape: shape,
		Axis:  len(shape) - 1,
		Nelem: array.ShapeProd(shape),
	}
	temps := a.Temps(root)
	for _, instr := range a.AllInstrs(root) {
		if instr.Opcode.IsSystem() {
			continue
		}
		for _, v := range instr.Operands {
			// The summary is the most general layout encountered; the bit
			// values are ordered by generality.
			if l := ClassifyOperand(v, temps); l > it.Layout {
				it.Layout = l
			}
		}
	}
	return it
}
