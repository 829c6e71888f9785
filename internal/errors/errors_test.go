package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := E(InvalidReshape, "shape mismatch: %d vs %d", 6, 8)
	assert.Contains(t, err.Error(), "F0200")
	assert.Contains(t, err.Error(), "Transform")
	assert.Contains(t, err.Error(), "shape mismatch: 6 vs 8")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("mmap: cannot allocate memory")
	err := Wrap(cause, OutOfMemory, "could not allocate a1")
	assert.True(t, Is(err, OutOfMemory))
	assert.False(t, Is(err, CompileFailure))
	assert.Contains(t, err.Error(), "cannot allocate memory")
}

func TestIsSeesThroughLayers(t *testing.T) {
	inner := E(OutOfMemory, "pages exhausted")
	outer := Wrap(inner, CompileFailure, "kernel build aborted")
	assert.True(t, Is(outer, CompileFailure))
	assert.True(t, Is(outer, OutOfMemory))
}

func TestCategories(t *testing.T) {
	assert.Equal(t, "Memory", Category(OutOfMemory))
	assert.Equal(t, "Transform", Category(InvalidTransform))
	assert.Equal(t, "Emitter", Category(UnknownOperator))
	assert.Equal(t, "Backend", Category(CompileFailure))
	assert.Equal(t, "API", Category(NullView))
}

func TestDescriptions(t *testing.T) {
	for _, k := range []Kind{
		OutOfMemory, InvalidReshape, InvalidTransform, UnknownOperator,
		UnsupportedLayout, CompileFailure, NullView, InvalidDataPointer,
	} {
		assert.NotEqual(t, "Unknown error kind", Description(k))
	}
}
