package compute

import (
	"fmt"

	"github.com/gogpu/gpufilter"
)

// Usage is the role of an allocated block.
type Usage uint8

const (
	// UsageStorage is a device-local storage buffer. Blob allocators only.
	UsageStorage Usage = iota

	// UsageUniform is a device-local parameter block. Blob allocators only.
	UsageUniform

	// UsageUpload is a host-visible source of copies. Staging allocators only.
	UsageUpload

	// UsageReadback is a host-visible destination of copies. Staging
	// allocators only.
	UsageReadback

	// UsageImage is a 2D storage image. Blob allocators only.
	UsageImage
)

// String returns a string representation of the usage.
func (u Usage) String() string {
	switch u {
	case UsageStorage:
		return "storage"
	case UsageUniform:
		return "uniform"
	case UsageUpload:
		return "upload"
	case UsageReadback:
		return "readback"
	case UsageImage:
		return "image"
	default:
		return fmt.Sprintf("Usage(%d)", uint8(u))
	}
}

// staging reports whether the usage lives in host-visible memory.
func (u Usage) staging() bool {
	return u == UsageUpload || u == UsageReadback
}

// op is one recorded command. Engines switch over the concrete types.
type op interface {
	kind() string
}

// copyOp copies size bytes between buffers.
type copyOp struct {
	src, dst memory
	size     int
}

// bufferToImageOp fills an image from a tightly packed buffer.
type bufferToImageOp struct {
	src, dst memory
	g        gpufilter.Geometry
}

// imageToBufferOp packs an image into a buffer.
type imageToBufferOp struct {
	src, dst memory
	g        gpufilter.Geometry
}

// imageCopyOp copies between images of the same geometry.
type imageCopyOp struct {
	src, dst memory
	g        gpufilter.Geometry
}

// fillOp zeroes the first size bytes of a buffer.
type fillOp struct {
	dst  memory
	size int
}

// dispatchOp runs a program over groups workgroups. bufs are bound at
// 0..n-1 and params, when present, at n.
type dispatchOp struct {
	prog   program
	bufs   []memory
	params memory
	groups [3]uint32
}

func (copyOp) kind() string          { return "copy" }
func (bufferToImageOp) kind() string { return "buffer-to-image" }
func (imageToBufferOp) kind() string { return "image-to-buffer" }
func (imageCopyOp) kind() string     { return "image-copy" }
func (fillOp) kind() string          { return "fill" }
func (dispatchOp) kind() string      { return "dispatch" }
