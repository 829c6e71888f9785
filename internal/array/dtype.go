package array

import "fmt"

// DType enumerates the scalar element types a base can hold. The set is
// closed: extension operators may be registered, extension types may not.
type DType int

const (
	DTypeUnknown DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Complex64
	Complex128
)

var dtypeNames = map[DType]string{
	Bool:       "bool",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

var dtypeSizes = map[DType]int64{
	Bool:       1,
	Int8:       1,
	Int16:      2,
	Int32:      4,
	Int64:      8,
	Uint8:      1,
	Uint16:     2,
	Uint32:     4,
	Uint64:     8,
	Float32:    4,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
}

func (t DType) String() string {
	if s, ok := dtypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", int(t))
}

// Size returns the element size in bytes.
func (t DType) Size() int64 {
	return dtypeSizes[t]
}

func (t DType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

func (t DType) IsUnsigned() bool {
	switch t {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

func (t DType) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned()
}

func (t DType) IsFloat() bool {
	return t == Float32 || t == Float64
}

func (t DType) IsComplex() bool {
	return t == Complex64 || t == Complex128
}

// DTypeFromName resolves a type name as written in forge scripts
// ("f64", "i32", ...). The long names used by String() are accepted too.
func DTypeFromName(name string) (DType, bool) {
	switch name {
	case "bool":
		return Bool, true
	case "i8", "int8":
		return Int8, true
	case "i16", "int16":
		return Int16, true
	case "i32", "int32":
		return Int32, true
	case "i64", "int64":
		return Int64, true
	case "u8", "uint8":
		return Uint8, true
	case "u16", "uint16":
		return Uint16, true
	case "u32", "uint32":
		return Uint32, true
	case "u64", "uint64":
		return Uint64, true
	case "f32", "float32":
		return Float32, true
	case "f64", "float64":
		return Float64, true
	case "c64", "complex64":
		return Complex64, true
	case "c128", "complex128":
		return Complex128, true
	}
	return DTypeUnknown, false
}
