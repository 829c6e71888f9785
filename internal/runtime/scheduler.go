package runtime

import (
	"forge/internal/array"
	"forge/internal/block"
	"forge/internal/codegen"
	"forge/internal/fuse"
	"forge/internal/ir"
	"forge/internal/mem"
)

// scheduler splits one batch into dependency-respecting fusion groups and
// runs each group as one kernel.
type scheduler struct {
	rt *Runtime
}

func newScheduler(rt *Runtime) *scheduler {
	return &scheduler{rt: rt}
}

func (s *scheduler) run(batch []*ir.Instruction) error {
	// System instructions on bases no computation ever touches are folded
	// away up front.
	instrs, earlyFrees := removeNonComputedSystem(batch)
	for b := range earlyFrees {
		if err := mem.Free(b); err != nil {
			return err
		}
	}

	groups := s.fusionGroups(instrs)
	s.rt.log.Debugf("batch split into %d fusion groups", len(groups))
	for _, group := range groups {
		if err := s.runGroup(group); err != nil {
			return err
		}
	}
	return nil
}

// removeNonComputedSystem drops SYNC/FREE/DISCARD instructions whose base
// never feeds a computation and collects the bases to release.
func removeNonComputedSystem(batch []*ir.Instruction) ([]*ir.Instruction, map[*array.Base]struct{}) {
	computed := map[*array.Base]bool{}
	for _, instr := range batch {
		if instr.Opcode.IsSystem() {
			continue
		}
		for _, b := range instr.Bases() {
			computed[b] = true
		}
	}

	frees := map[*array.Base]struct{}{}
	out := make([]*ir.Instruction, 0, len(batch))
	for _, instr := range batch {
		if instr.Opcode.IsSystem() && len(instr.Operands) > 0 {
			base := instr.Operands[0].Base
			if base != nil && !computed[base] {
				if instr.Opcode == ir.Free || instr.Opcode == ir.Discard {
					frees[base] = struct{}{}
				}
				continue
			}
		}
		out = append(out, instr)
	}
	return out, frees
}

// fusionGroups walks the batch in order, adding each instruction to the
// open group when it is fusible with every member and not dependency-
// blocked by a deferred instruction; everything else waits for a later
// group. The partition is a function of the instruction order alone.
func (s *scheduler) fusionGroups(instrs []*ir.Instruction) [][]*ir.Instruction {
	model := s.rt.cfg.FuseModel
	remaining := instrs
	var groups [][]*ir.Instruction
	for len(remaining) > 0 {
		var group []*ir.Instruction
		var deferred []*ir.Instruction
		for _, x := range remaining {
			ok := true
			for _, y := range group {
				if !s.fusible(model, x, y) {
					ok = false
					break
				}
			}
			if ok {
				for _, d := range deferred {
					if ir.Depends(x, d) {
						ok = false
						break
					}
				}
			}
			if ok {
				group = append(group, x)
			} else {
				deferred = append(deferred, x)
			}
		}
		groups = append(groups, group)
		remaining = deferred
	}
	return groups
}

func (s *scheduler) fusible(model fuse.Model, a, b *ir.Instruction) bool {
	// Extension operations run alone.
	if a.Opcode.IsExtension() || b.Opcode.IsExtension() {
		return false
	}
	return fuse.Fusible(model, a, b)
}

func (s *scheduler) runGroup(group []*ir.Instruction) error {
	var compute []*ir.Instruction
	var syncs []*array.Base
	var frees []*array.Base
	for _, instr := range group {
		switch instr.Opcode {
		case ir.Sync:
			syncs = append(syncs, instr.Operands[0].Base)
		case ir.Free, ir.Discard:
			frees = append(frees, instr.Operands[0].Base)
		default:
			compute = append(compute, instr)
		}
	}

	if len(compute) > 0 {
		if err := s.runKernel(compute, frees); err != nil {
			return err
		}
	}
	for _, b := range syncs {
		if err := mem.EnsureAllocated(b); err != nil {
			return err
		}
	}
	for _, b := range frees {
		if err := mem.Free(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *scheduler) runKernel(compute []*ir.Instruction, frees []*array.Base) error {
	normalizeSweeps(compute)

	arena := block.NewArena()
	root, err := block.CreateNested(arena, compute)
	if err != nil {
		return err
	}
	s.attachNews(arena, root, compute)
	attachFrees(arena, root, frees)

	emitter, err := codegen.NewEmitter(arena, root, s.rt.syn)
	if err != nil {
		return err
	}
	ex, err := emitter.Executable()
	if err != nil {
		return err
	}

	if err := s.rt.ensureAllocated(arena.AllBases(root)); err != nil {
		return err
	}
	return s.rt.engine.Execute(ex)
}

// normalizeSweeps rotates each sweep instruction so its sweep axis is the
// innermost rank, which is where the emitter accumulates.
func normalizeSweeps(instrs []*ir.Instruction) {
	for _, instr := range instrs {
		if !instr.Opcode.IsSweep() {
			continue
		}
		nd := instr.NDim()
		if sa := instr.SweepAxis(); nd > 1 && sa != nd-1 {
			// The transpose cannot fail here: both axes are in range and
			// distinct.
			_ = instr.Transpose(sa, nd-1)
		}
	}
}

// attachNews registers each base on the group's outermost block the first
// time any kernel writes it.
func (s *scheduler) attachNews(a *block.Arena, root block.ID, compute []*ir.Instruction) {
	node := a.Get(root)
	for _, instr := range compute {
		out := instr.Operands[0]
		if out.IsConstant() {
			continue
		}
		if !s.rt.seen[out.Base] && out.Base.Data == nil {
			node.News[out.Base] = struct{}{}
		}
		s.rt.seen[out.Base] = true
	}
}

// attachFrees puts each freed base on the innermost loop, the block that
// contains every instruction referencing it.
func attachFrees(a *block.Arena, root block.ID, frees []*array.Base) {
	inner := innermostLoop(a, root)
	node := a.Get(inner)
	for _, b := range frees {
		node.Frees[b] = struct{}{}
	}
}

func innermostLoop(a *block.Arena, root block.ID) block.ID {
	id := root
	for !a.IsInnermost(id) {
		next := id
		for _, c := range a.Get(id).Children {
			if !a.Get(c).IsInstr() {
				next = c
				break
			}
		}
		if next == id {
			break
		}
		id = next
	}
	return id
}
