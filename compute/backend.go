package compute

import (
	"context"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// Backend names in selection order. Hardware backends come first; the
// host backend always opens, so the wgpu software interpreter is only
// reached when forced with WithBackend("software").
var backendPriority = []string{"vulkan", "metal", "dx12", "gles", "host", "software"}

// backends holds every backend compiled into the binary.
var backends = gpucontext.NewRegistry[backend](gpucontext.WithPriority(backendPriority...))

// Backends returns the names of the registered backends in priority order.
func Backends() []string {
	var names []string
	for _, name := range backendPriority {
		if backends.Has(name) {
			names = append(names, name)
		}
	}
	return names
}

// backend is one device API. Factories return a fresh, unopened value.
type backend interface {
	// name returns the registry name.
	name() string

	// enumerate initializes the backend and lists its adapters.
	enumerate(cfg Config) ([]AdapterInfo, error)

	// open creates a logical device on an enumerated adapter.
	open(a AdapterInfo, cfg Config) (engine, error)

	// close releases the backend instance.
	close()
}

// engine is an opened logical device. All methods are called with the
// owning Device's lock held or from a single Command at a time.
type engine interface {
	newBuffer(label string, size int, usage Usage) (memory, error)
	newImage(label string, g gpufilter.Geometry) (memory, error)

	// write fills a host-visible buffer immediately.
	write(dst memory, data []byte) error

	// read copies a host-visible buffer into dst. Only valid after the
	// work that produced it has completed.
	read(src memory, dst []byte) error

	newProgram(mod *shader.Module, prog shader.Program) (program, error)

	// submit executes ops in order and waits for them to finish.
	submit(ctx context.Context, label string, ops []op) error

	// waitIdle blocks until all submitted work has completed.
	waitIdle() error

	destroy()
}

// memory is a device allocation owned by an engine.
type memory interface {
	destroy()
}

// program is a linked compute pipeline owned by an engine.
type program interface {
	destroy()
}

// selectBackend returns the first backend that enumerates at least one
// adapter. A forced backend is the only candidate.
func selectBackend(cfg Config) (backend, []AdapterInfo, error) {
	candidates := backendPriority
	if cfg.Backend != "" {
		candidates = []string{cfg.Backend}
	}

	log := gpufilter.Logger()
	for _, name := range candidates {
		if !backends.Has(name) {
			log.Debug("compute: backend not compiled in", "backend", name)
			continue
		}
		b := backends.Get(name)
		adapters, err := b.enumerate(cfg)
		if err != nil {
			log.Debug("compute: backend unavailable", "backend", name, "err", err)
			b.close()
			continue
		}
		if len(adapters) == 0 {
			log.Debug("compute: backend has no adapters", "backend", name)
			b.close()
			continue
		}
		sortAdapters(adapters)
		return b, adapters, nil
	}
	return nil, nil, ErrNoBackend
}
