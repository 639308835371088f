package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpufilter"
)

// BufferMat is a matrix stored in a device storage buffer, tightly packed
// in the same layout as a host Mat.
type BufferMat struct {
	geom  gpufilter.Geometry
	alloc *Allocator
	block *Block
}

// NewBufferMat allocates a buffer matrix from the pair's blob allocator.
// An empty geometry creates an unallocated matrix that Create can size later.
func NewBufferMat(pair *AllocatorPair, g gpufilter.Geometry) (*BufferMat, error) {
	m := &BufferMat{alloc: pair.Blob}
	if g.Empty() {
		return m, nil
	}
	if err := m.Create(g); err != nil {
		return nil, err
	}
	return m, nil
}

// Geometry implements gpufilter.Matrix.
func (m *BufferMat) Geometry() gpufilter.Geometry { return m.geom }

// Location implements gpufilter.Matrix.
func (m *BufferMat) Location() gpufilter.Location { return gpufilter.DeviceBuffer }

// Device returns the device that owns the matrix.
func (m *BufferMat) Device() *Device { return m.alloc.dev }

// Create re-describes the matrix with g, reallocating only when the
// current block is too small. Contents are undefined afterwards.
func (m *BufferMat) Create(g gpufilter.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if m.block != nil && !m.block.freed && m.block.size >= g.Bytes() {
		m.geom = g
		return nil
	}
	if err := m.Release(); err != nil {
		return err
	}
	b, err := m.alloc.Allocate(g.Bytes(), UsageStorage)
	if err != nil {
		return err
	}
	m.block = b
	m.geom = g
	return nil
}

// Release frees the buffer. The matrix becomes empty.
func (m *BufferMat) Release() error {
	if m.block == nil {
		return nil
	}
	err := m.alloc.Free(m.block)
	m.block = nil
	m.geom = gpufilter.Geometry{}
	return err
}

func (m *BufferMat) mem() (memory, error) {
	if m.block == nil || m.block.freed {
		return nil, ErrReleased
	}
	return m.block.mem, nil
}

// ImageMat is a matrix stored in a 2D storage image. Images hold four
// channels; Int8 maps to an 8-bit unorm format and the float types to
// 16- and 32-bit float formats.
type ImageMat struct {
	geom  gpufilter.Geometry
	alloc *Allocator
	block *Block
}

// NewImageMat allocates an image matrix from the pair's blob allocator.
// An empty geometry creates an unallocated matrix that Create can size later.
func NewImageMat(pair *AllocatorPair, g gpufilter.Geometry) (*ImageMat, error) {
	m := &ImageMat{alloc: pair.Blob}
	if g.Empty() {
		return m, nil
	}
	if err := m.Create(g); err != nil {
		return nil, err
	}
	return m, nil
}

// Geometry implements gpufilter.Matrix.
func (m *ImageMat) Geometry() gpufilter.Geometry { return m.geom }

// Location implements gpufilter.Matrix.
func (m *ImageMat) Location() gpufilter.Location { return gpufilter.DeviceImage }

// Device returns the device that owns the matrix.
func (m *ImageMat) Device() *Device { return m.alloc.dev }

// Create re-describes the image with g. The image is recreated unless
// the texel layout is unchanged.
func (m *ImageMat) Create(g gpufilter.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if _, err := imageFormat(g); err != nil {
		return err
	}
	if m.block != nil && !m.block.freed && m.geom.SameSize(g) && m.geom.Type == g.Type {
		m.geom = g
		return nil
	}
	if err := m.Release(); err != nil {
		return err
	}
	b, err := m.alloc.AllocateImage(g)
	if err != nil {
		return err
	}
	m.block = b
	m.geom = g
	return nil
}

// Release frees the image. The matrix becomes empty.
func (m *ImageMat) Release() error {
	if m.block == nil {
		return nil
	}
	err := m.alloc.Free(m.block)
	m.block = nil
	m.geom = gpufilter.Geometry{}
	return err
}

func (m *ImageMat) mem() (memory, error) {
	if m.block == nil || m.block.freed {
		return nil, ErrReleased
	}
	return m.block.mem, nil
}

// imageFormat returns the texture format that stores g texel for texel.
// Four-channel layouts are copied byte for byte, so ARGB uses the BGRA
// ordering of its bytes.
func imageFormat(g gpufilter.Geometry) (gputypes.TextureFormat, error) {
	if g.C != 4 {
		return 0, fmt.Errorf("%w: images need 4 channels, got %s", ErrIncompatibleFormat, g)
	}
	switch g.Type {
	case gpufilter.Int8:
		if g.Format == gpufilter.ARGB {
			return gputypes.TextureFormatBGRA8Unorm, nil
		}
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpufilter.Float16:
		return gputypes.TextureFormatRGBA16Float, nil
	case gpufilter.Float32:
		return gputypes.TextureFormatRGBA32Float, nil
	case gpufilter.Int16:
		return 0, fmt.Errorf("%w: no storage image format for %s", ErrIncompatibleFormat, g.Type)
	default:
		panic(fmt.Sprintf("compute: invalid element type %d", g.Type))
	}
}

// deviceMatrix is implemented by BufferMat and ImageMat.
type deviceMatrix interface {
	gpufilter.Matrix
	Device() *Device
	mem() (memory, error)
}

var (
	_ deviceMatrix = (*BufferMat)(nil)
	_ deviceMatrix = (*ImageMat)(nil)
)
