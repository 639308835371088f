package compute

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/internal/parallel"
	"github.com/gogpu/gpufilter/shader"
)

func init() {
	backends.Register("host", func() backend { return &hostBackend{} })
}

// hostBackend runs programs' Go kernels on a CPU worker pool. It exposes a
// single adapter and is always available.
type hostBackend struct{}

func (*hostBackend) name() string { return "host" }

func (*hostBackend) enumerate(Config) ([]AdapterInfo, error) {
	return []AdapterInfo{{
		Name:    fmt.Sprintf("Go host executor (%d CPUs)", runtime.GOMAXPROCS(0)),
		Vendor:  "gpufilter",
		Driver:  runtime.Version(),
		Backend: "host",
		Type:    gpucontext.AdapterTypeSoftware,
	}}, nil
}

func (*hostBackend) open(_ AdapterInfo, cfg Config) (engine, error) {
	return &hostEngine{pool: parallel.NewWorkerPool(cfg.Workers)}, nil
}

func (*hostBackend) close() {}

// hostMemory is word-backed so atomic kernels can address it as int32.
type hostMemory struct {
	words []uint32
	data  []byte
}

func newHostMemory(size int) *hostMemory {
	words := make([]uint32, alignWord(size)/4)
	return &hostMemory{
		words: words,
		data:  unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*4),
	}
}

func (m *hostMemory) destroy() {
	m.words, m.data = nil, nil
}

// hostProgram is a linked program on the host engine.
type hostProgram struct {
	kernel shader.Kernel
	local  [3]uint32
	name   string
}

func (*hostProgram) destroy() {}

// hostEngine executes recorded operations synchronously.
type hostEngine struct {
	pool *parallel.WorkerPool
}

func (e *hostEngine) newBuffer(_ string, size int, _ Usage) (memory, error) {
	return newHostMemory(size), nil
}

func (e *hostEngine) newImage(_ string, g gpufilter.Geometry) (memory, error) {
	return newHostMemory(g.Bytes()), nil
}

func (e *hostEngine) write(dst memory, data []byte) error {
	copy(dst.(*hostMemory).data, data)
	return nil
}

func (e *hostEngine) read(src memory, dst []byte) error {
	copy(dst, src.(*hostMemory).data)
	return nil
}

func (e *hostEngine) newProgram(mod *shader.Module, prog shader.Program) (program, error) {
	if prog.Kernel == nil {
		return nil, fmt.Errorf("program %s has no host kernel", prog.Name())
	}
	return &hostProgram{kernel: prog.Kernel, local: mod.Workgroup, name: mod.Name}, nil
}

func (e *hostEngine) submit(ctx context.Context, _ string, ops []op) error {
	for _, o := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch o := o.(type) {
		case copyOp:
			copy(o.dst.(*hostMemory).data[:o.size], o.src.(*hostMemory).data[:o.size])
		case bufferToImageOp:
			n := o.g.Bytes()
			copy(o.dst.(*hostMemory).data[:n], o.src.(*hostMemory).data[:n])
		case imageToBufferOp:
			n := o.g.Bytes()
			copy(o.dst.(*hostMemory).data[:n], o.src.(*hostMemory).data[:n])
		case imageCopyOp:
			n := o.g.Bytes()
			copy(o.dst.(*hostMemory).data[:n], o.src.(*hostMemory).data[:n])
		case fillOp:
			clear(o.dst.(*hostMemory).data[:o.size])
		case dispatchOp:
			e.dispatch(o)
		default:
			panic(fmt.Sprintf("compute: host engine cannot execute %s", o.kind()))
		}
	}
	return nil
}

// dispatch runs every invocation of the grid, one workgroup per work item.
func (e *hostEngine) dispatch(o dispatchOp) {
	prog := o.prog.(*hostProgram)

	bufs := make([]shader.Buffer, len(o.bufs))
	for i, m := range o.bufs {
		bufs[i] = shader.Buffer{Data: m.(*hostMemory).data}
	}
	var params []byte
	if o.params != nil {
		params = o.params.(*hostMemory).data
	}
	invoke := prog.kernel(params, bufs)

	local := prog.local
	e.pool.Dispatch(o.groups[0], o.groups[1], o.groups[2], func(gx, gy, gz uint32) {
		for lz := range local[2] {
			for ly := range local[1] {
				for lx := range local[0] {
					invoke(shader.Invocation{
						X: gx*local[0] + lx,
						Y: gy*local[1] + ly,
						Z: gz*local[2] + lz,
					})
				}
			}
		}
	})
}

func (e *hostEngine) waitIdle() error { return nil }

func (e *hostEngine) destroy() {
	e.pool.Close()
}
