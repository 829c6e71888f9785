// Package pprint is the trace filter: it renders instruction batches for
// humans, either to numbered trace files or to the console.
package pprint

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"forge/internal/array"
	"forge/internal/ir"
)

var traceCount int64

// WriteTrace writes the pprinted batch to the next trace-N.txt file in the
// working directory and returns its path.
func WriteTrace(batchID uuid.UUID, instrs []*ir.Instruction) (string, error) {
	n := atomic.AddInt64(&traceCount, 1)
	path := fmt.Sprintf("trace-%d.txt", n)

	f, err := os.Create(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	fmt.Fprintf(f, "Trace %d (batch %s):\n", n, batchID)
	for _, instr := range instrs {
		fmt.Fprintln(f, instr)
	}
	fmt.Fprintln(f)
	return path, nil
}

// PrintBatch dumps the batch to stdout with the opcode highlighted.
func PrintBatch(instrs []*ir.Instruction) {
	fmt.Printf("# ------ batch with %d instructions ------ #\n", len(instrs))
	opcode := color.New(color.FgCyan).SprintFunc()
	for _, instr := range instrs {
		fmt.Printf("%s", opcode(instr.Opcode.String()))
		for _, v := range instr.Operands {
			if v.IsConstant() && v.Const.Type == array.DTypeUnknown {
				fmt.Printf(" %s", instr.Constant)
			} else {
				fmt.Printf(" %s", v.Pprint(true))
			}
		}
		fmt.Println()
	}
}
