package codegen

import (
	"fmt"
	"strings"

	"github.com/dgryski/go-farm"

	"forge/internal/array"
	"forge/internal/ir"
)

// Class is the emission class of an instruction inside a kernel.
type Class int

const (
	ClassMap Class = iota
	ClassZip
	ClassGenerate
	ClassReduceComplete
	ClassReducePartial
	ClassScan
	ClassGather
	ClassScatter
	ClassCondScatter
)

func (c Class) String() string {
	switch c {
	case ClassMap:
		return "MAP"
	case ClassZip:
		return "ZIP"
	case ClassGenerate:
		return "GENERATE"
	case ClassReduceComplete:
		return "REDUCE_COMPLETE"
	case ClassReducePartial:
		return "REDUCE_PARTIAL"
	case ClassScan:
		return "SCAN"
	case ClassGather:
		return "GATHER"
	case ClassScatter:
		return "SCATTER"
	case ClassCondScatter:
		return "COND_SCATTER"
	}
	return "UNKNOWN"
}

// Operand is one kernel argument: a view plus its layout and backing
// buffer. Constants carry no buffer.
type Operand struct {
	ID       int
	View     array.View
	Layout   Layout
	BufferID int // -1 for constants
}

// InstrSpec is one lowered instruction: emission class, operator, the
// computation dtype, and the kernel-argument ids of its operands.
type InstrSpec struct {
	Class     Class
	Opcode    ir.Opcode
	Oper      ir.Opcode
	DType     array.DType
	Shape     []int64
	SweepAxis int // -1 when the instruction does not sweep
	Out       int
	In1       int // -1 when absent
	In2       int // -1 when absent
	In3       int // -1 when absent
}

// Executable is everything an engine needs to run one kernel: the generated
// source (the cache key), the symbol (the persistence key), and the lowered
// instruction list with its argument table.
type Executable struct {
	Symbol   string
	Source   string
	Iter     Iterspace
	Instrs   []InstrSpec
	Operands []Operand
	Buffers  []*array.Base
}

// Symbol derives the stable kernel symbol from the opcode sequence, the
// operand layouts, and the dtype tuple.
func Symbol(instrs []InstrSpec, operands []Operand) string {
	var sb strings.Builder
	for _, in := range instrs {
		sb.WriteString(in.Opcode.String())
		sb.WriteString("~")
	}
	sb.WriteString("/")
	for _, opd := range operands {
		fmt.Fprintf(&sb, "%s~%s~%d~", opd.Layout, dtypeOf(opd), opd.View.NDim())
	}
	return fmt.Sprintf("FORGE_%016x", farm.Fingerprint64([]byte(sb.String())))
}

func dtypeOf(opd Operand) array.DType {
	if opd.View.IsConstant() {
		return opd.View.Const.Type
	}
	return opd.View.Base.Type
}
