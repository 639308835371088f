package gpufilter

import "fmt"

// ElemType is the storage type of a single matrix element.
//
// It is a closed set: every switch over ElemType in this module is
// exhaustive and panics on an unknown value instead of falling through.
type ElemType uint8

const (
	// Int8 is an unsigned 8-bit integer, normalized to [0, 1] by 255.
	Int8 ElemType = iota

	// Int16 is an unsigned 16-bit integer, normalized to [0, 1] by 65535.
	Int16

	// Float16 is an IEEE 754 binary16 float.
	Float16

	// Float32 is an IEEE 754 binary32 float.
	Float32

	elemTypeCount
)

// Size returns the element size in bytes.
func (t ElemType) Size() int {
	switch t {
	case Int8:
		return 1
	case Int16, Float16:
		return 2
	case Float32:
		return 4
	default:
		panic(fmt.Sprintf("gpufilter: invalid element type %d", t))
	}
}

// IsFloat reports whether the type stores floating point values.
func (t ElemType) IsFloat() bool {
	switch t {
	case Int8, Int16:
		return false
	case Float16, Float32:
		return true
	default:
		panic(fmt.Sprintf("gpufilter: invalid element type %d", t))
	}
}

// Valid reports whether t is one of the declared element types.
func (t ElemType) Valid() bool {
	return t < elemTypeCount
}

// String returns a string representation of the element type.
func (t ElemType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("ElemType(%d)", uint8(t))
	}
}

// ElemTypes returns all element types in declaration order.
func ElemTypes() []ElemType {
	return []ElemType{Int8, Int16, Float16, Float32}
}

// ParseElemType returns the element type with the given name, as returned
// by String.
func ParseElemType(name string) (ElemType, bool) {
	for _, t := range ElemTypes() {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}
