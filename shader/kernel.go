package shader

import (
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gpufilter"
)

// Invocation identifies one shader invocation, as global_invocation_id.
type Invocation struct {
	X, Y, Z uint32
}

// Buffer is a storage binding as seen by a host kernel. Data is always
// 4-byte aligned and a whole number of words long.
type Buffer struct {
	Data []byte
}

// LoadRGBA reads pixel (x, y) of a matrix with geometry g.
func (b Buffer) LoadRGBA(g gpufilter.Geometry, x, y int) [4]float32 {
	return gpufilter.LoadRGBA(b.Data, g, x, y)
}

// StoreRGBA writes pixel (x, y) of a matrix with geometry g.
func (b Buffer) StoreRGBA(g gpufilter.Geometry, x, y int, rgba [4]float32) {
	gpufilter.StoreRGBA(b.Data, g, x, y, rgba)
}

// Float32 returns word i as a float.
func (b Buffer) Float32(i int) float32 {
	return gpufilter.LoadElem(b.Data, i, gpufilter.Float32)
}

// AtomicAddInt32 adds delta to word i, like atomicAdd on atomic<i32>.
func (b Buffer) AtomicAddInt32(i int, delta int32) int32 {
	return atomic.AddInt32(b.int32At(i), delta)
}

// AtomicLoadInt32 reads word i, like atomicLoad on atomic<i32>.
func (b Buffer) AtomicLoadInt32(i int) int32 {
	return atomic.LoadInt32(b.int32At(i))
}

// AtomicStoreInt32 writes word i, like atomicStore on atomic<i32>.
func (b Buffer) AtomicStoreInt32(i int, v int32) {
	atomic.StoreInt32(b.int32At(i), v)
}

func (b Buffer) int32At(i int) *int32 {
	_ = b.Data[i*4+3]
	return (*int32)(unsafe.Pointer(&b.Data[i*4]))
}

// Kernel is the host rendition of a program body. It is called once per
// dispatch with the encoded parameter block and the storage bindings in
// binding order, and returns the function run for every invocation. Like
// the shader, that function must bounds-check its invocation.
type Kernel func(params []byte, bufs []Buffer) func(inv Invocation)

// Program pairs a template with its host kernel.
type Program struct {
	Template Template
	Kernel   Kernel

	// Params is a zero value of the parameter struct bound as the uniform
	// block, or nil when the program takes no parameters.
	Params any
}

// ParamsSize returns the size of the parameter block in bytes.
func (p Program) ParamsSize() int {
	if p.Params == nil {
		return 0
	}
	return ParamsSize(p.Params)
}

// Name returns the template name.
func (p Program) Name() string { return p.Template.Name }

// MatGeometry rebuilds a matrix geometry from the scalars a parameter
// block carries for it.
func MatGeometry(w, h, cstep, format, etype int32) gpufilter.Geometry {
	return gpufilter.Geometry{
		W:      int(w),
		H:      int(h),
		C:      int(cstep),
		Type:   gpufilter.ElemType(etype),
		Format: gpufilter.ColorFormat(format),
	}
}
