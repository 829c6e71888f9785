// Package runtime drives a submitted instruction batch through fusion,
// block construction, emission, compilation and execution. One client
// thread owns the whole pass; the runtime spawns no background work of its
// own.
package runtime

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"forge/internal/array"
	"forge/internal/backend"
	"forge/internal/interp"
	"forge/internal/ir"
	"forge/internal/mem"
	"forge/internal/pprint"
)

// Runtime accepts instruction batches and executes them in submission
// order.
type Runtime struct {
	cfg    Config
	engine backend.Engine
	syn    backend.CSyntax
	log    commonlog.Logger

	// seen marks bases that some earlier kernel has already written, so a
	// group can tell which bases it materialises first.
	seen map[*array.Base]bool
}

// New builds a runtime over an explicit engine.
func New(cfg Config, engine backend.Engine) *Runtime {
	return &Runtime{
		cfg:    cfg,
		engine: engine,
		log:    commonlog.GetLogger("forge.runtime"),
		seen:   map[*array.Base]bool{},
	}
}

// NewDefault builds a runtime with the interpreting engine and a shared
// kernel cache.
func NewDefault(cfg Config) *Runtime {
	cache := backend.NewKernelCache(cfg.CacheDir)
	return New(cfg, interp.New(cache))
}

// Engine returns the runtime's execution engine.
func (r *Runtime) Engine() backend.Engine {
	return r.engine
}

// Execute runs one batch. Side effects on array bases land in
// instruction-submission order; an error aborts the rest of the batch
// without rolling back kernels that already ran.
func (r *Runtime) Execute(batch []*ir.Instruction) error {
	batchID := uuid.New()
	r.log.Infof("batch %s: %d instructions", batchID, len(batch))
	if r.cfg.Trace {
		if path, err := pprint.WriteTrace(batchID, batch); err != nil {
			r.log.Warningf("trace not written: %s", err)
		} else {
			r.log.Infof("batch %s: trace written to %s", batchID, path)
		}
	}

	sched := newScheduler(r)
	return sched.run(batch)
}

// ensureAllocated materialises every base a group touches.
func (r *Runtime) ensureAllocated(bases map[*array.Base]struct{}) error {
	for b := range bases {
		if err := mem.EnsureAllocated(b); err != nil {
			return err
		}
	}
	return nil
}
