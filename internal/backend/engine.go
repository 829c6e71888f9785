package backend

import (
	"forge/internal/array"
	"forge/internal/codegen"
)

// KernelArgs is the call-time argument pack of a kernel: the operand table
// and buffer list of the executable being run. Kernels compiled from
// identical source are shared across executables, so everything that can
// differ between them travels here.
type KernelArgs struct {
	Iter     codegen.Iterspace
	Operands []codegen.Operand
	Buffers  []*array.Base
}

// Kernel is one compiled, callable unit of work.
type Kernel func(args *KernelArgs) error

// Engine turns executables into side effects on array bases. The reference
// engine interprets the lowered instruction list; an external engine would
// hand the source to a compiler and dlopen the result.
type Engine interface {
	// Execute runs one kernel, compiling (or fetching from the cache) as
	// needed.
	Execute(ex *codegen.Executable) error
}

// CompileCounter is implemented by engines that count real compilations;
// cache hits do not count. It exists for observability and tests.
type CompileCounter interface {
	Compiles() int
}
