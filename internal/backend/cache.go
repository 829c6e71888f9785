package backend

import (
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

// KernelCache maps generated kernel source to its compiled kernel. The map
// is shared read/write across submissions and guarded by a single mutex;
// identical source always yields the same kernel. Sources are persisted to
// the cache directory keyed by the kernel symbol so the object cache
// survives across invocations.
type KernelCache struct {
	mu      sync.Mutex
	kernels map[string]Kernel
	dir     string
	log     commonlog.Logger
}

// NewKernelCache builds a cache persisting sources under dir. An empty dir
// disables persistence.
func NewKernelCache(dir string) *KernelCache {
	return &KernelCache{
		kernels: map[string]Kernel{},
		dir:     dir,
		log:     commonlog.GetLogger("forge.kernel"),
	}
}

// Lookup returns the kernel compiled from the given source, if any.
func (c *KernelCache) Lookup(source string) (Kernel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.kernels[source]
	return k, ok
}

// Insert registers a freshly compiled kernel and persists its source at the
// deterministic path for the symbol.
func (c *KernelCache) Insert(source, symbol string, k Kernel) {
	c.mu.Lock()
	c.kernels[source] = k
	c.mu.Unlock()

	if c.dir == "" {
		return
	}
	if err := c.persist(source, symbol); err != nil {
		c.log.Warningf("could not persist kernel source: %s", err)
	}
}

// SourcePath returns the deterministic path a symbol's source is written
// to.
func (c *KernelCache) SourcePath(symbol string) string {
	return filepath.Join(c.dir, symbol+".c")
}

func (c *KernelCache) persist(source, symbol string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return pkgerrors.Wrap(err, "creating kernel cache dir")
	}
	path := c.SourcePath(symbol)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return pkgerrors.Wrapf(err, "writing %s", path)
	}
	c.log.Debugf("persisted kernel source %s", path)
	return nil
}

// Len returns the number of cached kernels.
func (c *KernelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kernels)
}
