package gpufilter

import "fmt"

// Location identifies where a matrix stores its elements.
type Location uint8

const (
	// Host is CPU memory.
	Host Location = iota

	// DeviceBuffer is a device storage buffer.
	DeviceBuffer

	// DeviceImage is a device 2D texture.
	DeviceImage
)

// String returns a string representation of the location.
func (l Location) String() string {
	switch l {
	case Host:
		return "host"
	case DeviceBuffer:
		return "buffer"
	case DeviceImage:
		return "image"
	default:
		return fmt.Sprintf("Location(%d)", uint8(l))
	}
}

// Geometry describes the shape and element layout of a typed matrix.
// Elements are stored row-major with C interleaved channels and no row
// padding.
type Geometry struct {
	W, H   int
	C      int
	Type   ElemType
	Format ColorFormat
}

// NewGeometry returns a geometry whose channel count is taken from format.
func NewGeometry(w, h int, format ColorFormat, t ElemType) Geometry {
	return Geometry{W: w, H: h, C: format.Channels(), Type: t, Format: format}
}

// Empty reports whether the geometry describes no elements.
func (g Geometry) Empty() bool {
	return g.W <= 0 || g.H <= 0 || g.C <= 0
}

// Elems returns the number of elements.
func (g Geometry) Elems() int {
	if g.Empty() {
		return 0
	}
	return g.W * g.H * g.C
}

// Bytes returns the tightly packed size in bytes.
func (g Geometry) Bytes() int {
	if g.Empty() {
		return 0
	}
	return g.Elems() * g.Type.Size()
}

// RowBytes returns the size of one row in bytes.
func (g Geometry) RowBytes() int {
	return g.W * g.C * g.Type.Size()
}

// SameSize reports whether both geometries have the same width and height.
func (g Geometry) SameSize(o Geometry) bool {
	return g.W == o.W && g.H == o.H
}

// Validate checks that the geometry can hold pixels. Planar formats have
// no interleaved channel count, so the format is checked before the
// channels and they report ErrUnsupportedFormat rather than ErrEmptyMat.
func (g Geometry) Validate() error {
	switch {
	case g.W <= 0 || g.H <= 0:
		return ErrEmptyMat
	case !g.Type.Valid():
		return fmt.Errorf("%w: %d", ErrInvalidType, g.Type)
	case !g.Format.Supported():
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, g.Format)
	case g.C <= 0:
		return ErrEmptyMat
	case g.C != g.Format.Channels():
		return fmt.Errorf("%w: %s has %d channels, got %d",
			ErrGeometryMismatch, g.Format, g.Format.Channels(), g.C)
	}
	return nil
}

// String returns a compact description such as "640x480x4 ABGR int8".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d %s %s", g.W, g.H, g.C, g.Format, g.Type)
}

// Matrix is implemented by every typed matrix variant.
type Matrix interface {
	// Geometry returns the current shape of the matrix.
	Geometry() Geometry

	// Location returns where the elements live.
	Location() Location
}
