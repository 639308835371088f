//go:build !nogpu

package compute

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends" // register every platform backend

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// halVariants maps registry names onto wgpu hal backends. The software
// interpreter registers as BackendEmpty.
var halVariants = map[string]gputypes.Backend{
	"vulkan":   gputypes.BackendVulkan,
	"metal":    gputypes.BackendMetal,
	"dx12":     gputypes.BackendDX12,
	"gles":     gputypes.BackendGL,
	"software": gputypes.BackendEmpty,
}

func init() {
	for name, variant := range halVariants {
		if _, ok := hal.GetBackend(variant); !ok {
			continue
		}
		backends.Register(name, func() backend {
			return &halBackend{label: name, variant: variant}
		})
	}
}

// halBackend drives a wgpu hal backend.
type halBackend struct {
	label    string
	variant  gputypes.Backend
	instance hal.Instance
	exposed  []hal.ExposedAdapter
}

func (b *halBackend) name() string { return b.label }

func (b *halBackend) enumerate(cfg Config) ([]AdapterInfo, error) {
	be, ok := hal.GetBackend(b.variant)
	if !ok {
		return nil, fmt.Errorf("hal backend %s not registered", b.label)
	}

	var flags gputypes.InstanceFlags
	if cfg.Validation {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := be.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << b.variant,
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s instance: %w", b.label, err)
	}
	b.instance = instance
	b.exposed = instance.EnumerateAdapters(nil)

	list := make([]AdapterInfo, 0, len(b.exposed))
	for i, ea := range b.exposed {
		list = append(list, AdapterInfo{
			Name:    ea.Info.Name,
			Vendor:  ea.Info.Vendor,
			Driver:  ea.Info.Driver,
			Backend: b.label,
			Type:    adapterType(ea.Info.DeviceType),
			ordinal: i,
		})
	}
	return list, nil
}

func (b *halBackend) open(a AdapterInfo, _ Config) (engine, error) {
	if a.ordinal < 0 || a.ordinal >= len(b.exposed) {
		return nil, fmt.Errorf("adapter %d not enumerated", a.ordinal)
	}
	ea := b.exposed[a.ordinal]
	od, err := ea.Adapter.Open(0, ea.Capabilities.Limits)
	if err != nil {
		return nil, err
	}
	return &halEngine{device: od.Device, queue: od.Queue}, nil
}

func (b *halBackend) close() {
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.exposed = nil
}

// halBuffer tracks the last usage of a buffer for barriers.
type halBuffer struct {
	dev   hal.Device
	buf   hal.Buffer
	size  uint64
	state gputypes.BufferUsage
}

func (m *halBuffer) destroy() {
	if m.buf != nil {
		m.dev.DestroyBuffer(m.buf)
		m.buf = nil
	}
}

// halImage tracks the last usage of a texture for barriers.
type halImage struct {
	dev   hal.Device
	tex   hal.Texture
	g     gpufilter.Geometry
	state gputypes.TextureUsage
}

func (m *halImage) destroy() {
	if m.tex != nil {
		m.dev.DestroyTexture(m.tex)
		m.tex = nil
	}
}

// halProgram holds the objects of one linked compute pipeline.
type halProgram struct {
	dev      hal.Device
	module   hal.ShaderModule
	layout   hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// destroy releases objects in reverse creation order.
func (p *halProgram) destroy() {
	if p.pipeline != nil {
		p.dev.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLay != nil {
		p.dev.DestroyPipelineLayout(p.pipeLay)
		p.pipeLay = nil
	}
	if p.layout != nil {
		p.dev.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
	if p.module != nil {
		p.dev.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// halEngine is a logical device of a wgpu hal backend.
type halEngine struct {
	device hal.Device
	queue  hal.Queue

	// external engines wrap a provider's device and never destroy it.
	external bool
}

func bufferUsage(u Usage) gputypes.BufferUsage {
	switch u {
	case UsageStorage:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	case UsageUniform:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	case UsageUpload:
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case UsageReadback:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	default:
		panic(fmt.Sprintf("compute: no buffer usage for %s", u))
	}
}

func (e *halEngine) newBuffer(label string, size int, usage Usage) (memory, error) {
	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size), //nolint:gosec // G115: size is positive
		Usage: bufferUsage(usage),
	})
	if err != nil {
		return nil, err
	}
	return &halBuffer{dev: e.device, buf: buf, size: uint64(size)}, nil //nolint:gosec // G115: size is positive
}

func (e *halEngine) newImage(label string, g gpufilter.Geometry) (memory, error) {
	format, err := imageFormat(g)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: dimensions are validated
	tex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(g.W), Height: uint32(g.H), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage: gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc |
			gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &halImage{dev: e.device, tex: tex, g: g}, nil
}

func (e *halEngine) write(dst memory, data []byte) error {
	return e.queue.WriteBuffer(dst.(*halBuffer).buf, 0, data)
}

func (e *halEngine) read(src memory, dst []byte) error {
	b := src.(*halBuffer)
	size := uint64(alignWord(len(dst))) //nolint:gosec // G115: length is non-negative
	mapping, err := e.device.MapBuffer(b.buf, 0, size)
	if err != nil {
		return fmt.Errorf("map readback buffer: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), len(dst)))
	return e.device.UnmapBuffer(b.buf)
}

func (e *halEngine) newProgram(mod *shader.Module, prog shader.Program) (program, error) {
	p := &halProgram{dev: e.device}

	sm, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  prog.Name(),
		Source: hal.ShaderSource{WGSL: mod.Source, SPIRV: mod.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("shader module: %w", err)
	}
	p.module = sm

	entries := make([]gputypes.BindGroupLayoutEntry, len(mod.Bindings))
	for i, b := range mod.Bindings {
		bt := gputypes.BufferBindingTypeStorage
		switch b.Kind {
		case shader.BindingStorageRead:
			bt = gputypes.BufferBindingTypeReadOnlyStorage
		case shader.BindingUniform:
			bt = gputypes.BufferBindingTypeUniform
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    b.Index,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bt},
		}
	}

	p.layout, err = e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   prog.Name() + "-bgl",
		Entries: entries,
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("bind group layout: %w", err)
	}

	p.pipeLay, err = e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            prog.Name() + "-layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.layout},
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("pipeline layout: %w", err)
	}

	p.pipeline, err = e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  prog.Name(),
		Layout: p.pipeLay,
		Compute: hal.ComputeState{
			Module:     sm,
			EntryPoint: shader.EntryPoint,
		},
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("compute pipeline: %w", err)
	}
	return p, nil
}

// encodeState collects per-submit objects released after completion.
type encodeState struct {
	enc    hal.CommandEncoder
	groups []hal.BindGroup
}

func (e *halEngine) submit(ctx context.Context, label string, ops []op) error {
	enc, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	st := &encodeState{enc: enc}
	defer e.release(st)

	if err := enc.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	for _, o := range ops {
		if err := e.encode(st, o); err != nil {
			enc.DiscardEncoding()
			return fmt.Errorf("encode %s: %w", o.kind(), err)
		}
	}
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return e.device.WaitIdle()
}

func (e *halEngine) release(st *encodeState) {
	for _, bg := range st.groups {
		e.device.DestroyBindGroup(bg)
	}
	st.enc.Destroy()
}

// useBuffer records a barrier when b's usage changes.
func useBuffer(enc hal.CommandEncoder, b *halBuffer, usage gputypes.BufferUsage) {
	if b.state == usage {
		return
	}
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: b.buf,
		Usage:  hal.BufferUsageTransition{OldUsage: b.state, NewUsage: usage},
	}})
	b.state = usage
}

// useImage records a layout transition when m's usage changes.
func useImage(enc hal.CommandEncoder, m *halImage, usage gputypes.TextureUsage) {
	if m.state == usage {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: m.tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: m.state, NewUsage: usage},
	}})
	m.state = usage
}

// imageCopy describes a whole-image copy with tight rows.
func imageCopy(img *halImage, g gpufilter.Geometry) []hal.BufferTextureCopy {
	//nolint:gosec // G115: dimensions are validated
	return []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			BytesPerRow:  uint32(g.RowBytes()),
			RowsPerImage: uint32(g.H),
		},
		TextureBase: hal.ImageCopyTexture{Texture: img.tex, Aspect: gputypes.TextureAspectAll},
		Size:        hal.Extent3D{Width: uint32(g.W), Height: uint32(g.H), DepthOrArrayLayers: 1},
	}}
}

func (e *halEngine) encode(st *encodeState, o op) error {
	enc := st.enc
	switch o := o.(type) {
	case copyOp:
		src, dst := o.src.(*halBuffer), o.dst.(*halBuffer)
		useBuffer(enc, src, gputypes.BufferUsageCopySrc)
		useBuffer(enc, dst, gputypes.BufferUsageCopyDst)
		enc.CopyBufferToBuffer(src.buf, dst.buf, []hal.BufferCopy{{Size: uint64(o.size)}}) //nolint:gosec // G115: size is positive

	case bufferToImageOp:
		src, dst := o.src.(*halBuffer), o.dst.(*halImage)
		useBuffer(enc, src, gputypes.BufferUsageCopySrc)
		useImage(enc, dst, gputypes.TextureUsageCopyDst)
		enc.CopyBufferToTexture(src.buf, dst.tex, imageCopy(dst, o.g))

	case imageToBufferOp:
		src, dst := o.src.(*halImage), o.dst.(*halBuffer)
		useImage(enc, src, gputypes.TextureUsageCopySrc)
		useBuffer(enc, dst, gputypes.BufferUsageCopyDst)
		enc.CopyTextureToBuffer(src.tex, dst.buf, imageCopy(src, o.g))

	case imageCopyOp:
		src, dst := o.src.(*halImage), o.dst.(*halImage)
		useImage(enc, src, gputypes.TextureUsageCopySrc)
		useImage(enc, dst, gputypes.TextureUsageCopyDst)
		//nolint:gosec // G115: dimensions are validated
		enc.CopyTextureToTexture(src.tex, dst.tex, []hal.TextureCopy{{
			SrcBase: hal.ImageCopyTexture{Texture: src.tex, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: dst.tex, Aspect: gputypes.TextureAspectAll},
			Size:    hal.Extent3D{Width: uint32(o.g.W), Height: uint32(o.g.H), DepthOrArrayLayers: 1},
		}})

	case fillOp:
		dst := o.dst.(*halBuffer)
		useBuffer(enc, dst, gputypes.BufferUsageCopyDst)
		enc.ClearBuffer(dst.buf, 0, uint64(o.size)) //nolint:gosec // G115: size is positive

	case dispatchOp:
		return e.encodeDispatch(st, o)

	default:
		return errors.New("unknown operation")
	}
	return nil
}

func (e *halEngine) encodeDispatch(st *encodeState, o dispatchOp) error {
	prog := o.prog.(*halProgram)

	entries := make([]gputypes.BindGroupEntry, 0, len(o.bufs)+1)
	for i, m := range o.bufs {
		b := m.(*halBuffer)
		useBuffer(st.enc, b, gputypes.BufferUsageStorage)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // G115: binding counts are tiny
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Size: b.size},
		})
	}
	if o.params != nil {
		b := o.params.(*halBuffer)
		useBuffer(st.enc, b, gputypes.BufferUsageUniform)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(o.bufs)), //nolint:gosec // G115: binding counts are tiny
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Size: b.size},
		})
	}

	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "gpufilter-bindings",
		Layout:  prog.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("bind group: %w", err)
	}
	st.groups = append(st.groups, bg)

	pass := st.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "gpufilter"})
	pass.SetPipeline(prog.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(o.groups[0], o.groups[1], o.groups[2])
	pass.End()
	return nil
}

func (e *halEngine) waitIdle() error {
	return e.device.WaitIdle()
}

func (e *halEngine) destroy() {
	if e.external {
		return
	}
	_ = e.device.WaitIdle()
	e.device.Destroy()
}
