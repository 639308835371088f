// Package filter provides single-input compute filter operators.
//
// Every operator follows the same contract:
//   - It is constructed with a runtime and an adapter index and builds its
//     pipelines once.
//   - Filter accepts any combination of host, buffer and image matrices for
//     source and destination.
//   - Filter blocks until the destination is fully written.
//
// The destination is described as the source size in 4-channel Int8 ABGR,
// except for CIE (plot size), Transpose (swapped size) and ColorConvert
// (caller's layout).
//
// An operator whose construction failed reports Valid() == false and every
// call returns gpufilter.ErrInvalidOperator without touching its arguments.
//
// Operators:
//   - Hue: hue rotation in HSV space
//   - Filter2D: 2D convolution with clamp-to-edge borders
//   - CIE: chromaticity plot built by clear, accumulate and merge passes
//   - Transpose: transpose with optional mirroring
//   - ColorConvert: format and element type conversion
package filter
