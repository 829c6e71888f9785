package block

import (
	"fmt"
	"strings"

	"forge/internal/array"
	"forge/internal/errors"
	"forge/internal/ir"
)

// ID names a node in an arena. Nodes are never removed, so ids are stable
// and value-equality of blocks is id equality.
type ID int

// Node is one block: an instruction leaf (Instr != nil, no children) or a
// loop carrying child blocks. Loops own the sweep/new/free bookkeeping for
// their rank.
type Node struct {
	Rank       int
	Size       int64
	Reshapable bool
	Instr      *ir.Instruction
	Children   []ID
	Sweeps     map[*ir.Instruction]struct{}
	News       map[*array.Base]struct{}
	Frees      map[*array.Base]struct{}

	id ID
}

// IsInstr reports whether the node is an instruction leaf.
func (n *Node) IsInstr() bool {
	return n.Instr != nil
}

func (n *Node) ID() ID {
	return n.id
}

// Arena owns block nodes; children are referenced by index so rewrites
// (append/prepend) never invalidate outstanding ids.
type Arena struct {
	nodes []Node
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Get returns the node for an id.
func (a *Arena) Get(id ID) *Node {
	return &a.nodes[id]
}

// NewLeaf adds an instruction leaf at the given rank.
func (a *Arena) NewLeaf(instr *ir.Instruction, rank int) ID {
	id := ID(len(a.nodes))
	a.nodes = append(a.nodes, Node{id: id, Instr: instr, Rank: rank})
	return id
}

// NewLoop adds an empty loop node of the given rank and extent.
func (a *Arena) NewLoop(rank int, size int64) ID {
	id := ID(len(a.nodes))
	a.nodes = append(a.nodes, Node{
		id:     id,
		Rank:   rank,
		Size:   size,
		Sweeps: map[*ir.Instruction]struct{}{},
		News:   map[*array.Base]struct{}{},
		Frees:  map[*array.Base]struct{}{},
	})
	return id
}

// IsInnermost reports whether every child of the loop is an instruction
// leaf.
func (a *Arena) IsInnermost(id ID) bool {
	n := a.Get(id)
	for _, c := range n.Children {
		if !a.Get(c).IsInstr() {
			return false
		}
	}
	return true
}

// IsSystemOnly reports whether the block holds nothing but system
// instructions.
func (a *Arena) IsSystemOnly(id ID) bool {
	n := a.Get(id)
	if n.IsInstr() {
		return n.Instr.Opcode.IsSystem()
	}
	for _, c := range n.Children {
		if !a.IsSystemOnly(c) {
			return false
		}
	}
	return true
}

// AllInstrs returns every instruction in the block, nested blocks included,
// in source order.
func (a *Arena) AllInstrs(id ID) []*ir.Instruction {
	var out []*ir.Instruction
	a.walkInstrs(id, &out)
	return out
}

func (a *Arena) walkInstrs(id ID, out *[]*ir.Instruction) {
	n := a.Get(id)
	if n.IsInstr() {
		*out = append(*out, n.Instr)
		return
	}
	for _, c := range n.Children {
		a.walkInstrs(c, out)
	}
}

// LocalInstrs returns the instructions of direct leaf children only.
func (a *Arena) LocalInstrs(id ID) []*ir.Instruction {
	var out []*ir.Instruction
	for _, c := range a.Get(id).Children {
		if n := a.Get(c); n.IsInstr() {
			out = append(out, n.Instr)
		}
	}
	return out
}

// AllBases returns the distinct bases accessed anywhere in the block.
func (a *Arena) AllBases(id ID) map[*array.Base]struct{} {
	out := map[*array.Base]struct{}{}
	for _, instr := range a.AllInstrs(id) {
		for _, b := range instr.Bases() {
			out[b] = struct{}{}
		}
	}
	return out
}

// AllNews collects the news sets of the block and everything below it.
func (a *Arena) AllNews(id ID) map[*array.Base]struct{} {
	out := map[*array.Base]struct{}{}
	a.walkSets(id, out, func(n *Node) map[*array.Base]struct{} { return n.News })
	return out
}

// AllFrees collects the frees sets of the block and everything below it.
func (a *Arena) AllFrees(id ID) map[*array.Base]struct{} {
	out := map[*array.Base]struct{}{}
	a.walkSets(id, out, func(n *Node) map[*array.Base]struct{} { return n.Frees })
	return out
}

func (a *Arena) walkSets(id ID, out map[*array.Base]struct{}, pick func(*Node) map[*array.Base]struct{}) {
	n := a.Get(id)
	if n.IsInstr() {
		return
	}
	for b := range pick(n) {
		out[b] = struct{}{}
	}
	for _, c := range n.Children {
		a.walkSets(c, out, pick)
	}
}

// Temps returns the bases whose whole lifetime sits inside the block: both
// created and freed here.
func (a *Arena) Temps(id ID) map[*array.Base]struct{} {
	news := a.AllNews(id)
	frees := a.AllFrees(id)
	out := map[*array.Base]struct{}{}
	for b := range news {
		if _, ok := frees[b]; ok {
			out[b] = struct{}{}
		}
	}
	return out
}

// DependOn reports whether block x must execute after block y.
func (a *Arena) DependOn(x, y ID) bool {
	for _, xi := range a.AllInstrs(x) {
		for _, yi := range a.AllInstrs(y) {
			if xi != yi && ir.Depends(xi, yi) {
				return true
			}
		}
	}
	return false
}

// FindInstrBlock returns the leaf holding instr, or -1.
func (a *Arena) FindInstrBlock(id ID, instr *ir.Instruction) ID {
	n := a.Get(id)
	if n.IsInstr() {
		if n.Instr == instr {
			return id
		}
		return -1
	}
	for _, c := range n.Children {
		if found := a.FindInstrBlock(c, instr); found >= 0 {
			return found
		}
	}
	return -1
}

// AppendInstrs inserts instructions after the last leaf of the innermost
// trailing loop, force-reshaping them to that neighbour's dominating shape.
func (a *Arena) AppendInstrs(id ID, instrs []*ir.Instruction) error {
	n := a.Get(id)
	if n.IsInstr() {
		return errors.E(errors.InvalidReshape, "cannot append to an instruction leaf")
	}
	last := a.Get(n.Children[len(n.Children)-1])
	if !last.IsInstr() {
		return a.AppendInstrs(last.id, instrs)
	}
	shape := last.Instr.Shape()
	for _, instr := range instrs {
		if !array.ShapeEqual(instr.Shape(), shape) {
			if err := instr.ReshapeForce(shape); err != nil {
				return err
			}
		}
		leaf := a.NewLeaf(instr, n.Rank+1)
		// Re-fetch: NewLeaf may have grown the arena.
		a.Get(id).Children = append(a.Get(id).Children, leaf)
	}
	return nil
}

// PrependInstrs inserts instructions before the first leaf of the innermost
// leading loop, force-reshaping them to that neighbour's dominating shape.
func (a *Arena) PrependInstrs(id ID, instrs []*ir.Instruction) error {
	n := a.Get(id)
	if n.IsInstr() {
		return errors.E(errors.InvalidReshape, "cannot prepend to an instruction leaf")
	}
	first := a.Get(n.Children[0])
	if !first.IsInstr() {
		return a.PrependInstrs(first.id, instrs)
	}
	shape := first.Instr.Shape()
	fresh := make([]ID, 0, len(instrs))
	for _, instr := range instrs {
		if !array.ShapeEqual(instr.Shape(), shape) {
			if err := instr.ReshapeForce(shape); err != nil {
				return err
			}
		}
		fresh = append(fresh, a.NewLeaf(instr, n.Rank+1))
	}
	node := a.Get(id)
	node.Children = append(fresh, node.Children...)
	return nil
}

// Pprint renders the block tree for tracing.
func (a *Arena) Pprint(id ID) string {
	var sb strings.Builder
	a.pprint(id, &sb)
	return sb.String()
}

func (a *Arena) pprint(id ID, sb *strings.Builder) {
	n := a.Get(id)
	indent := strings.Repeat("  ", n.Rank)
	if n.IsInstr() {
		fmt.Fprintf(sb, "%s%s\n", indent, n.Instr)
		return
	}
	fmt.Fprintf(sb, "%srank %d, size %d", indent, n.Rank, n.Size)
	if n.Reshapable {
		sb.WriteString(", reshapable")
	}
	if len(n.Sweeps) > 0 {
		fmt.Fprintf(sb, ", sweeps %d", len(n.Sweeps))
	}
	sb.WriteString(":\n")
	for _, c := range n.Children {
		a.pprint(c, sb)
	}
}
