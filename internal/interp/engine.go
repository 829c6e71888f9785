// Package interp is the reference execution engine: it "compiles" a lowered
// kernel into a callable that walks each instruction's principal space
// directly, with the same accumulator semantics the emitted source has.
// Compiled kernels are cached by source string, so identical kernels
// compile once.
package interp

import (
	"github.com/tliron/commonlog"

	"forge/internal/backend"
	"forge/internal/codegen"
	"forge/internal/errors"
)

// Engine is the interpreting backend.
type Engine struct {
	cache    *backend.KernelCache
	compiles int
	log      commonlog.Logger
}

var _ backend.Engine = (*Engine)(nil)
var _ backend.CompileCounter = (*Engine)(nil)

// New builds an engine over a kernel cache.
func New(cache *backend.KernelCache) *Engine {
	return &Engine{cache: cache, log: commonlog.GetLogger("forge.interp")}
}

// Compiles returns the number of real compilations; cache hits do not
// count.
func (e *Engine) Compiles() int {
	return e.compiles
}

// Execute runs one executable, compiling its kernel unless the source is
// already cached.
func (e *Engine) Execute(ex *codegen.Executable) error {
	kernel, ok := e.cache.Lookup(ex.Source)
	if !ok {
		var err error
		kernel, err = e.compile(ex)
		if err != nil {
			return err
		}
		e.compiles++
		e.cache.Insert(ex.Source, ex.Symbol, kernel)
		e.log.Debugf("compiled kernel %s (%d instructions)", ex.Symbol, len(ex.Instrs))
	}
	args := &backend.KernelArgs{Iter: ex.Iter, Operands: ex.Operands, Buffers: ex.Buffers}
	return kernel(args)
}

// compile builds one executor per instruction. The executors close over the
// structural spec only; operand views and buffers come from the call-time
// arguments, so a cached kernel is reusable by any executable with
// identical source.
func (e *Engine) compile(ex *codegen.Executable) (backend.Kernel, error) {
	type executor func(args *backend.KernelArgs) error
	executors := make([]executor, 0, len(ex.Instrs))
	for i, spec := range ex.Instrs {
		spec := spec
		switch spec.Class {
		case codegen.ClassMap, codegen.ClassZip:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runElementwise(spec, args)
			})
		case codegen.ClassGenerate:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runGenerate(spec, args)
			})
		case codegen.ClassReduceComplete, codegen.ClassReducePartial:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runReduce(spec, args)
			})
		case codegen.ClassScan:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runScan(spec, args)
			})
		case codegen.ClassGather:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runGather(spec, args)
			})
		case codegen.ClassScatter, codegen.ClassCondScatter:
			executors = append(executors, func(args *backend.KernelArgs) error {
				return runScatter(spec, args)
			})
		default:
			return nil, errors.E(errors.UnknownOperator,
				"instruction %d: no interpretation for %s", i, spec.Opcode)
		}
	}
	return func(args *backend.KernelArgs) error {
		for _, run := range executors {
			if err := run(args); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
