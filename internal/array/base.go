package array

import (
	"fmt"
	"unsafe"
)

// MaxDim is the maximum number of dimensions a view can carry.
const MaxDim = 16

// Base is the backing storage of an array: a flat, one-dimensional buffer.
// Data stays nil until the first kernel that writes the base materialises it.
// A base is shared between every view that references it; the memory manager
// sets Mapped when it owns the pages.
type Base struct {
	Type   DType
	Nelem  int64
	Data   []byte
	Mapped bool

	label int64
}

var baseLabels int64

// NewBase returns an unallocated base of nelem elements of type t.
func NewBase(t DType, nelem int64) *Base {
	baseLabels++
	return &Base{Type: t, Nelem: nelem, label: baseLabels}
}

// Bytes returns the size of the base in bytes.
func (b *Base) Bytes() int64 {
	return b.Nelem * b.Type.Size()
}

func (b *Base) String() string {
	alloc := "unallocated"
	if b.Data != nil {
		alloc = "allocated"
	}
	return fmt.Sprintf("a%d{%s, %d, %s}", b.label, b.Type, b.Nelem, alloc)
}

// Load reads the element at flat index i. The base must be allocated.
func (b *Base) Load(i int64) Scalar {
	p := unsafe.Pointer(&b.Data[i*b.Type.Size()])
	s := Scalar{Type: b.Type}
	switch b.Type {
	case Bool:
		if *(*byte)(p) != 0 {
			s.Int = 1
		}
	case Int8:
		s.Int = int64(*(*int8)(p))
	case Int16:
		s.Int = int64(*(*int16)(p))
	case Int32:
		s.Int = int64(*(*int32)(p))
	case Int64:
		s.Int = *(*int64)(p)
	case Uint8:
		s.Uint = uint64(*(*uint8)(p))
	case Uint16:
		s.Uint = uint64(*(*uint16)(p))
	case Uint32:
		s.Uint = uint64(*(*uint32)(p))
	case Uint64:
		s.Uint = *(*uint64)(p)
	case Float32:
		s.Float = float64(*(*float32)(p))
	case Float64:
		s.Float = *(*float64)(p)
	case Complex64:
		s.Cmplx = complex128(*(*complex64)(p))
	case Complex128:
		s.Cmplx = *(*complex128)(p)
	}
	return s
}

// Store writes v (cast to the base's type) at flat index i.
func (b *Base) Store(i int64, v Scalar) {
	v = v.Cast(b.Type)
	p := unsafe.Pointer(&b.Data[i*b.Type.Size()])
	switch b.Type {
	case Bool:
		*(*byte)(p) = byte(v.Int)
	case Int8:
		*(*int8)(p) = int8(v.Int)
	case Int16:
		*(*int16)(p) = int16(v.Int)
	case Int32:
		*(*int32)(p) = int32(v.Int)
	case Int64:
		*(*int64)(p) = v.Int
	case Uint8:
		*(*uint8)(p) = uint8(v.Uint)
	case Uint16:
		*(*uint16)(p) = uint16(v.Uint)
	case Uint32:
		*(*uint32)(p) = uint32(v.Uint)
	case Uint64:
		*(*uint64)(p) = v.Uint
	case Float32:
		*(*float32)(p) = float32(v.Float)
	case Float64:
		*(*float64)(p) = v.Float
	case Complex64:
		*(*complex64)(p) = complex64(v.Cmplx)
	case Complex128:
		*(*complex128)(p) = v.Cmplx
	}
}
