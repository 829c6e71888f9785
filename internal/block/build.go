package block

import (
	"forge/internal/array"
	"forge/internal/errors"
	"forge/internal/ir"
)

// CreateNested builds the loop nest for a fusion group: one loop per rank
// of the dominating shape, with the instruction leaves inside the innermost
// loop. The dominating shape is the principal shape of the last instruction;
// an instruction that does not already match it is force-reshaped to it when
// forceReshapable admits the rewrite, and is left as it is otherwise.
// Sweep instructions are registered on the loop whose rank equals their
// sweep axis.
func CreateNested(a *Arena, instrs []*ir.Instruction) (ID, error) {
	if len(instrs) == 0 {
		return -1, errors.E(errors.InvalidReshape, "cannot build a block from an empty group")
	}
	dom := append([]int64(nil), instrs[len(instrs)-1].Shape()...)
	if len(dom) == 0 {
		dom = []int64{1}
	}

	reshapable := true
	for _, instr := range instrs {
		if instr.Opcode.IsSystem() {
			continue
		}
		if !array.ShapeEqual(instr.Shape(), dom) && forceReshapable(instr, dom) {
			if err := instr.ReshapeForce(dom); err != nil {
				return -1, err
			}
		}
		if !instr.Reshapable() {
			reshapable = false
		}
	}

	root := buildRank(a, instrs, dom, 0)
	a.Get(root).Reshapable = reshapable

	for _, instr := range instrs {
		if instr.Opcode.IsSweep() {
			registerSweep(a, root, instr)
		}
	}
	return root, nil
}

// forceReshapable reports whether the instruction can be rewritten to the
// dominating shape: sweeps and gathers keep their own principal shape, and
// every view must hold exactly prod(dom) elements. Groups admitted by the
// same-shape policies always pass; the broadest policies may legitimately
// carry mixed shapes, which then iterate their own principal space.
func forceReshapable(instr *ir.Instruction, dom []int64) bool {
	if instr.Opcode.IsSweep() || instr.Opcode == ir.Gather ||
		instr.Opcode == ir.Scatter || instr.Opcode == ir.CondScatter {
		return false
	}
	total := array.ShapeProd(dom)
	for _, v := range instr.Views() {
		if v.Nelem() != total || !v.IsContiguous() {
			return false
		}
	}
	return true
}

func buildRank(a *Arena, instrs []*ir.Instruction, dom []int64, rank int) ID {
	loop := a.NewLoop(rank, dom[rank])
	if rank == len(dom)-1 {
		leaves := make([]ID, 0, len(instrs))
		for _, instr := range instrs {
			leaves = append(leaves, a.NewLeaf(instr, rank+1))
		}
		a.Get(loop).Children = leaves
		return loop
	}
	inner := buildRank(a, instrs, dom, rank+1)
	a.Get(loop).Children = []ID{inner}
	return loop
}

// registerSweep walks down to the loop whose rank equals the instruction's
// sweep axis and adds the instruction to its sweep set. An axis beyond the
// nest depth lands on the innermost loop.
func registerSweep(a *Arena, id ID, instr *ir.Instruction) {
	axis := instr.SweepAxis()
	cur := id
	for {
		n := a.Get(cur)
		if n.Rank == axis || a.IsInnermost(cur) {
			n.Sweeps[instr] = struct{}{}
			return
		}
		next := ID(-1)
		for _, c := range n.Children {
			if !a.Get(c).IsInstr() {
				next = c
				break
			}
		}
		if next < 0 {
			n.Sweeps[instr] = struct{}{}
			return
		}
		cur = next
	}
}
