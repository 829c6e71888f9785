package errors

// Error codes for the forge runtime. The codes are stable identifiers used
// in error messages and logs.
//
// Error code ranges:
// F0100-F0199: memory manager errors
// F0200-F0299: instruction transformation errors
// F0300-F0399: emitter errors
// F0400-F0499: backend/compile errors
// F0500-F0599: API misuse errors

// Kind identifies a class of runtime failure.
type Kind string

const (
	// F0100: allocation of a base's backing pages failed
	OutOfMemory Kind = "F0100"

	// F0200: shape product mismatch or non-reshapable instruction
	InvalidReshape Kind = "F0200"

	// F0201: removing the sweep axis, transposing equal axes, out-of-range axis
	InvalidTransform Kind = "F0201"

	// F0300: the emitter has no lowering for an opcode
	UnknownOperator Kind = "F0300"

	// F0301: the emitter has no lowering for an operand layout
	UnsupportedLayout Kind = "F0301"

	// F0400: the backend compiler returned a non-zero status
	CompileFailure Kind = "F0400"

	// F0500: a nil view was handed to the data-pointer API
	NullView Kind = "F0500"

	// F0501: setting a data pointer on a base that already has one
	InvalidDataPointer Kind = "F0501"
)

// Description returns a human-readable description of the error kind.
func Description(k Kind) string {
	switch k {
	case OutOfMemory:
		return "Could not allocate backing memory for a base"
	case InvalidReshape:
		return "Instruction cannot be reshaped to the requested shape"
	case InvalidTransform:
		return "Axis transformation is not applicable to the instruction"
	case UnknownOperator:
		return "No kernel lowering exists for the opcode"
	case UnsupportedLayout:
		return "No kernel lowering exists for the operand layout"
	case CompileFailure:
		return "Backend compiler rejected the generated kernel source"
	case NullView:
		return "Data-pointer operation on a nil view"
	case InvalidDataPointer:
		return "Base already carries a data pointer"
	default:
		return "Unknown error kind"
	}
}

// Category returns the subsystem an error kind belongs to.
func Category(k Kind) string {
	switch {
	case k >= "F0100" && k < "F0200":
		return "Memory"
	case k >= "F0200" && k < "F0300":
		return "Transform"
	case k >= "F0300" && k < "F0400":
		return "Emitter"
	case k >= "F0400" && k < "F0500":
		return "Backend"
	case k >= "F0500" && k < "F0600":
		return "API"
	default:
		return "Unknown"
	}
}
