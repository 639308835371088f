package gpufilter

import "errors"

var (
	// ErrEmptyMat is returned when an operation needs pixel data but the
	// matrix has zero width, height or channels.
	ErrEmptyMat = errors.New("gpufilter: empty matrix")

	// ErrUnsupportedFormat is returned for color formats that have no
	// interleaved pixel layout (the YUV family).
	ErrUnsupportedFormat = errors.New("gpufilter: unsupported color format")

	// ErrInvalidType is returned for an element type outside the declared set.
	ErrInvalidType = errors.New("gpufilter: invalid element type")

	// ErrGeometryMismatch is returned when a channel count disagrees with
	// its color format.
	ErrGeometryMismatch = errors.New("gpufilter: channel count does not match format")

	// ErrInvalidOperator is returned by every call on an operator whose
	// construction failed. The destination is left untouched.
	ErrInvalidOperator = errors.New("gpufilter: invalid operator")
)
