// Package mem owns the backing pages of array bases. Allocation is a lazy
// anonymous memory map, so freed bases hand their pages straight back to
// the OS.
package mem

import (
	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"
	"github.com/tliron/commonlog"
	"golang.org/x/sys/unix"

	"forge/internal/array"
	"forge/internal/errors"
)

var log = commonlog.GetLogger("forge.mem")

// EnsureAllocated maps pages for the base unless it already has data.
// Zero-sized bases are allowed and stay unmapped.
func EnsureAllocated(b *array.Base) error {
	if b == nil || b.Data != nil {
		return nil
	}
	bytes := b.Bytes()
	if bytes == 0 {
		return nil
	}
	if bytes < 0 {
		return errors.E(errors.OutOfMemory, "negative allocation of %d bytes", bytes)
	}
	data, err := unix.Mmap(-1, 0, int(bytes),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return errors.Wrap(pkgerrors.Wrapf(err, "mmap of %s", humanize.IBytes(uint64(bytes))),
			errors.OutOfMemory, "could not allocate %s", b)
	}
	b.Data = data
	b.Mapped = true
	log.Debugf("allocated %s for %s", humanize.IBytes(uint64(bytes)), b)
	return nil
}

// Free releases the base's memory and nulls the pointer. Freeing an
// unallocated base is a silent success.
func Free(b *array.Base) error {
	if b == nil || b.Data == nil {
		return nil
	}
	if b.Mapped {
		if err := unix.Munmap(b.Data); err != nil {
			return errors.Wrap(pkgerrors.Wrap(err, "munmap"),
				errors.OutOfMemory, "could not free %s", b)
		}
	}
	b.Data = nil
	b.Mapped = false
	return nil
}

// SetData hands externally owned memory to the view's base. Setting non-nil
// data is valid only while the base has no data; passing nil clears the
// data at any time.
func SetData(v *array.View, data []byte) error {
	if v == nil {
		return errors.E(errors.NullView, "set data on a nil view")
	}
	if v.Base == nil {
		return errors.E(errors.NullView, "set data on a constant operand")
	}
	if v.Base.Data != nil && data != nil {
		return errors.E(errors.InvalidDataPointer, "base %s already has data", v.Base)
	}
	v.Base.Data = data
	v.Base.Mapped = false
	return nil
}

// GetData returns the raw bytes behind the view's base; nil while the base
// is unmaterialised.
func GetData(v *array.View) ([]byte, error) {
	if v == nil {
		return nil, errors.E(errors.NullView, "get data on a nil view")
	}
	if v.Base == nil {
		return nil, errors.E(errors.NullView, "get data on a constant operand")
	}
	return v.Base.Data, nil
}
