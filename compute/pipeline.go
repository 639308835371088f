package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// Pipeline is a compiled, linked compute program. It is configured with
// SetOptimalLocalSize, built once with Create and immutable afterwards.
//
// Pipeline is safe for concurrent use.
type Pipeline struct {
	dev *Device

	mu       sync.Mutex
	local    [3]uint32
	localSet bool
	mod      *shader.Module
	prog     shader.Program
	impl     program
}

// NewPipeline returns an unconfigured pipeline for dev.
func NewPipeline(dev *Device) *Pipeline {
	return &Pipeline{dev: dev}
}

// SetOptimalLocalSize sets the workgroup size. It must be called before
// Create; zero sizes are rejected.
func (p *Pipeline) SetOptimalLocalSize(x, y, z uint32) error {
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("compute: invalid local size %dx%dx%d", x, y, z)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mod != nil {
		return ErrPipelineCreated
	}
	p.local = [3]uint32{x, y, z}
	p.localSet = true
	return nil
}

// Create compiles prog with consts plus the local size constants and
// links it. expect is the number of storage bindings the caller will
// record; a module declaring a different number fails with
// ErrPipelineLink, as does a module whose storage bindings are not
// numbered 0..expect-1 with the parameter block right after.
func (p *Pipeline) Create(prog shader.Program, consts shader.Constants, expect int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.mod != nil:
		return ErrPipelineCreated
	case !p.localSet:
		return ErrLocalSizeUnset
	}
	if err := p.dev.checkOpen(); err != nil {
		return err
	}

	consts = consts.Merge(shader.LocalSize(p.local[0], p.local[1], p.local[2]))
	mod, err := p.dev.modules.Compile(prog.Template, consts)
	if err != nil {
		return err
	}
	if err := checkLayout(mod, prog, expect); err != nil {
		return err
	}

	impl, err := p.dev.eng.newProgram(mod, prog)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPipelineLink, prog.Name(), err)
	}

	p.mod = mod
	p.prog = prog
	p.impl = impl
	gpufilter.Logger().Debug("compute: pipeline created",
		"program", prog.Name(), "local", p.local, "bindings", len(mod.Bindings))
	return nil
}

// checkLayout verifies the binding layout a module declares.
func checkLayout(mod *shader.Module, prog shader.Program, expect int) error {
	if n := mod.StorageBindings(); n != expect {
		return fmt.Errorf("%w: %s declares %d storage bindings, expected %d",
			ErrPipelineLink, mod.Name, n, expect)
	}
	for i, b := range mod.Bindings {
		//nolint:gosec // G115: binding counts are tiny
		if b.Index != uint32(i) {
			return fmt.Errorf("%w: %s binding %d is not contiguous", ErrPipelineLink, mod.Name, b.Index)
		}
		if (b.Kind == shader.BindingUniform) != (i == expect) {
			return fmt.Errorf("%w: %s binding %d: %s out of place", ErrPipelineLink, mod.Name, b.Index, b.Kind)
		}
	}
	_, hasUniform := mod.Uniform()
	if hasUniform != (prog.Params != nil) {
		return fmt.Errorf("%w: %s parameter block does not match program", ErrPipelineLink, mod.Name)
	}
	return nil
}

// LocalSize returns the configured workgroup size.
func (p *Pipeline) LocalSize() [3]uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

// Bindings returns the bindings declared by the module, or nil before Create.
func (p *Pipeline) Bindings() []shader.Binding {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mod == nil {
		return nil
	}
	return append([]shader.Binding(nil), p.mod.Bindings...)
}

// Module returns the compiled module, or nil before Create.
func (p *Pipeline) Module() *shader.Module {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mod
}

// Created reports whether Create succeeded.
func (p *Pipeline) Created() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.impl != nil
}

// Destroy releases the linked pipeline. The pipeline cannot be created
// again. Destroy is safe to call multiple times.
func (p *Pipeline) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.impl != nil {
		p.impl.destroy()
		p.impl = nil
	}
}

// state returns the linked pipeline for recording.
func (p *Pipeline) state() (program, shader.Program, *shader.Module, [3]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.impl == nil {
		return nil, shader.Program{}, nil, p.local, ErrPipelineNotCreated
	}
	return p.impl, p.prog, p.mod, p.local, nil
}
