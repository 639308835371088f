// Package gpufilter provides GPU compute image filters for Go.
//
// # Overview
//
// gpufilter runs image filters as compute shaders on the GoGPU stack.
// Shaders are written in WGSL, compiled to SPIR-V with gogpu/naga at
// runtime, and dispatched through gogpu/wgpu. A Go reference executor
// runs the same programs on the CPU when no GPU is present.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpufilter"
//	    "github.com/gogpu/gpufilter/compute"
//	    "github.com/gogpu/gpufilter/filter"
//	)
//
//	rt, err := compute.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	hue := filter.NewHue(rt, compute.DefaultDevice)
//	defer hue.Close()
//
//	src, _ := gpufilter.FromImage(img, gpufilter.ABGR, gpufilter.Int8)
//	var dst gpufilter.Mat
//	if err := hue.Filter(src, &dst, 90); err != nil {
//	    log.Fatal(err)
//	}
//
// # Typed Matrices
//
// All filters consume and produce typed matrices: a width, height,
// channel count, color format and element type. Three storage variants
// share this schema:
//   - [Mat]: host memory
//   - compute.BufferMat: a device storage buffer
//   - compute.ImageMat: a device 2D texture
//
// Moving data between variants is always explicit (compute.Command.RecordClone).
//
// # Architecture
//
// The library is organized into:
//   - gpufilter: matrix schema, pixel codec, logging
//   - compute: runtime, devices, allocators, pipelines, command recording
//   - shader: WGSL template assembly and compilation
//   - filter: Hue, Filter2D, CIE, Transpose, ColorConvert
//   - fusion: two-input transitions (SquaresWire, Squeeze)
package gpufilter

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
