package runtime

import (
	"os"
	"path/filepath"

	"forge/internal/fuse"
)

// Config is the process-wide runtime configuration. Construct it explicitly
// in tests; DefaultConfig is the only place the environment is read.
type Config struct {
	// FuseModel gates which instruction pairs may share a kernel.
	FuseModel fuse.Model
	// CacheDir is where generated kernel sources are persisted. Empty
	// disables persistence.
	CacheDir string
	// Trace writes a pprinted trace file per submitted batch.
	Trace bool
}

// DefaultConfig reads FUSE_MODEL, FORGE_CACHE_DIR and FORGE_TRACE.
func DefaultConfig() Config {
	cacheDir := os.Getenv("FORGE_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "forge-kernels")
	}
	return Config{
		FuseModel: fuse.ModelFromEnv(),
		CacheDir:  cacheDir,
		Trace:     os.Getenv("FORGE_TRACE") != "",
	}
}
