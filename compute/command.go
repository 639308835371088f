package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// State is the lifecycle position of a Command.
type State uint8

const (
	// Idle commands hold no recorded work.
	Idle State = iota

	// Recording commands hold work that has not been submitted.
	Recording

	// Submitted commands have completed and must be Reset before reuse.
	Submitted
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// CloneOptions controls RecordClone.
type CloneOptions struct {
	// Convert re-describes the destination as Format and Type at the
	// source's size. Without it an empty destination takes the source
	// geometry and a described destination keeps its own.
	Convert bool
	Format  gpufilter.ColorFormat
	Type    gpufilter.ElemType
}

// Command records copies and dispatches against one device and executes
// them in recording order on SubmitAndWait.
//
// Transient buffers come from the command's allocator pair and live until
// Reset. A Command is not safe for concurrent use.
type Command struct {
	dev  *Device
	pair *AllocatorPair

	mu        sync.Mutex
	state     State
	ops       []op
	post      []func() error
	transient []*Block
}

// NewCommand returns an idle command drawing transient memory from pair.
func NewCommand(dev *Device, pair *AllocatorPair) *Command {
	return &Command{dev: dev, pair: pair}
}

// State returns the current lifecycle state.
func (c *Command) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len returns the number of recorded device operations.
func (c *Command) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

// mark is a rollback point.
type mark struct {
	ops, post, transient int
}

// record runs fn as one atomic recording step: on error everything fn
// appended is discarded and the command keeps its previous state.
func (c *Command) record(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Submitted {
		return ErrNotReset
	}
	if c.pair == nil || c.pair.dev != c.dev {
		return ErrDeviceMismatch
	}
	if err := c.dev.checkOpen(); err != nil {
		return err
	}

	m := mark{len(c.ops), len(c.post), len(c.transient)}
	if err := fn(); err != nil {
		c.rollback(m)
		return err
	}
	if len(c.ops) > m.ops || len(c.post) > m.post {
		c.state = Recording
	}
	return nil
}

func (c *Command) rollback(m mark) {
	for _, b := range c.transient[m.transient:] {
		_ = b.owner.Free(b)
	}
	clear(c.ops[m.ops:])
	clear(c.post[m.post:])
	clear(c.transient[m.transient:])
	c.ops = c.ops[:m.ops]
	c.post = c.post[:m.post]
	c.transient = c.transient[:m.transient]
}

func (c *Command) alloc(size int, usage Usage) (memory, error) {
	a := c.pair.Blob
	if usage.staging() {
		a = c.pair.Staging
	}
	b, err := a.Allocate(size, usage)
	if err != nil {
		return nil, err
	}
	c.transient = append(c.transient, b)
	return b.mem, nil
}

// upload stages data into a fresh device buffer.
func (c *Command) upload(data []byte, usage Usage) (memory, error) {
	staging, err := c.alloc(len(data), UsageUpload)
	if err != nil {
		return nil, err
	}
	if err := c.dev.eng.write(staging, data); err != nil {
		return nil, err
	}
	dst, err := c.alloc(len(data), usage)
	if err != nil {
		return nil, err
	}
	c.ops = append(c.ops, copyOp{src: staging, dst: dst, size: alignWord(len(data))})
	return dst, nil
}

// download records a copy of src into host memory dst.
func (c *Command) download(src memory, dst []byte) error {
	staging, err := c.alloc(len(dst), UsageReadback)
	if err != nil {
		return err
	}
	c.ops = append(c.ops, copyOp{src: src, dst: staging, size: alignWord(len(dst))})
	c.post = append(c.post, func() error {
		return c.dev.eng.read(staging, dst)
	})
	return nil
}

// deviceMem returns the memory of a device matrix owned by this command's device.
func (c *Command) deviceMem(m deviceMatrix) (memory, error) {
	if m.Device() != c.dev {
		return nil, ErrDeviceMismatch
	}
	return m.mem()
}

// stageIn returns a storage buffer holding m's elements.
func (c *Command) stageIn(m gpufilter.Matrix) (memory, error) {
	g := m.Geometry()
	if g.Empty() {
		return nil, gpufilter.ErrEmptyMat
	}
	switch m := m.(type) {
	case *gpufilter.Mat:
		return c.upload(m.Data, UsageStorage)
	case *BufferMat:
		return c.deviceMem(m)
	case *ImageMat:
		img, err := c.deviceMem(m)
		if err != nil {
			return nil, err
		}
		buf, err := c.alloc(g.Bytes(), UsageStorage)
		if err != nil {
			return nil, err
		}
		c.ops = append(c.ops, imageToBufferOp{src: img, dst: buf, g: g})
		return buf, nil
	default:
		return nil, fmt.Errorf("compute: unsupported matrix %T", m)
	}
}

// stageOut returns a storage buffer for m's elements and a function that
// records copying it back into m after the writer. When preload is set the
// buffer starts with m's current contents.
func (c *Command) stageOut(m gpufilter.Matrix, preload bool) (memory, func() error, error) {
	g := m.Geometry()
	if g.Empty() {
		return nil, nil, gpufilter.ErrEmptyMat
	}
	none := func() error { return nil }

	switch m := m.(type) {
	case *gpufilter.Mat:
		var buf memory
		var err error
		if preload {
			buf, err = c.upload(m.Data, UsageStorage)
		} else {
			buf, err = c.alloc(g.Bytes(), UsageStorage)
		}
		if err != nil {
			return nil, nil, err
		}
		return buf, func() error { return c.download(buf, m.Data) }, nil
	case *BufferMat:
		buf, err := c.deviceMem(m)
		return buf, none, err
	case *ImageMat:
		img, err := c.deviceMem(m)
		if err != nil {
			return nil, nil, err
		}
		buf, err := c.alloc(g.Bytes(), UsageStorage)
		if err != nil {
			return nil, nil, err
		}
		if preload {
			c.ops = append(c.ops, imageToBufferOp{src: img, dst: buf, g: g})
		}
		return buf, func() error {
			c.ops = append(c.ops, bufferToImageOp{src: buf, dst: img, g: g})
			return nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("compute: unsupported matrix %T", m)
	}
}

// redescribe gives m the geometry g, allocating as needed.
func redescribe(m gpufilter.Matrix, g gpufilter.Geometry) error {
	if m.Geometry() == g {
		return nil
	}
	switch m := m.(type) {
	case *gpufilter.Mat:
		return m.Create(g)
	case *BufferMat:
		return m.Create(g)
	case *ImageMat:
		return m.Create(g)
	default:
		return fmt.Errorf("compute: unsupported matrix %T", m)
	}
}

// Redescribe gives dst the geometry g. Host matrices reuse their backing
// array, device matrices reallocate only when they must.
func Redescribe(dst gpufilter.Matrix, g gpufilter.Geometry) error {
	return redescribe(dst, g)
}

// incompatible maps layout validation errors onto ErrIncompatibleFormat.
func incompatible(err error) error {
	if err == nil || errors.Is(err, ErrIncompatibleFormat) {
		return err
	}
	if errors.Is(err, gpufilter.ErrUnsupportedFormat) || errors.Is(err, gpufilter.ErrInvalidType) ||
		errors.Is(err, gpufilter.ErrGeometryMismatch) {
		return fmt.Errorf("%w: %w", ErrIncompatibleFormat, err)
	}
	return err
}

// RecordClone records copying src into dst. Any pair of host, buffer and
// image matrices is accepted. Equal geometries copy directly; differing
// formats or element types run the conversion program. Widths and heights
// must match.
func (c *Command) RecordClone(src, dst gpufilter.Matrix, opt CloneOptions) error {
	return c.record(func() error {
		sg := src.Geometry()
		if err := sg.Validate(); err != nil {
			return incompatible(err)
		}

		tg := dst.Geometry()
		switch {
		case opt.Convert:
			tg = gpufilter.NewGeometry(sg.W, sg.H, opt.Format, opt.Type)
		case tg.Empty():
			tg = sg
		}
		if err := tg.Validate(); err != nil {
			return incompatible(err)
		}
		if !sg.SameSize(tg) {
			return fmt.Errorf("%w: clone %s into %s", ErrIncompatibleFormat, sg, tg)
		}
		if dst.Location() == gpufilter.DeviceImage {
			if _, err := imageFormat(tg); err != nil {
				return err
			}
		}
		if err := redescribe(dst, tg); err != nil {
			return incompatible(err)
		}

		if sg == tg {
			return c.copyDirect(src, dst)
		}
		return c.convert(src, dst)
	})
}

// copyDirect records a layout-preserving copy.
func (c *Command) copyDirect(src, dst gpufilter.Matrix) error {
	g := src.Geometry()

	switch s := src.(type) {
	case *gpufilter.Mat:
		switch d := dst.(type) {
		case *gpufilter.Mat:
			c.post = append(c.post, func() error {
				copy(d.Data, s.Data)
				return nil
			})
			return nil
		case *BufferMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			staging, err := c.alloc(len(s.Data), UsageUpload)
			if err != nil {
				return err
			}
			if err := c.dev.eng.write(staging, s.Data); err != nil {
				return err
			}
			c.ops = append(c.ops, copyOp{src: staging, dst: dm, size: alignWord(len(s.Data))})
			return nil
		case *ImageMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			staging, err := c.alloc(len(s.Data), UsageUpload)
			if err != nil {
				return err
			}
			if err := c.dev.eng.write(staging, s.Data); err != nil {
				return err
			}
			c.ops = append(c.ops, bufferToImageOp{src: staging, dst: dm, g: g})
			return nil
		}

	case *BufferMat:
		sm, err := c.deviceMem(s)
		if err != nil {
			return err
		}
		switch d := dst.(type) {
		case *gpufilter.Mat:
			return c.download(sm, d.Data)
		case *BufferMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			c.ops = append(c.ops, copyOp{src: sm, dst: dm, size: alignWord(g.Bytes())})
			return nil
		case *ImageMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			c.ops = append(c.ops, bufferToImageOp{src: sm, dst: dm, g: g})
			return nil
		}

	case *ImageMat:
		sm, err := c.deviceMem(s)
		if err != nil {
			return err
		}
		switch d := dst.(type) {
		case *gpufilter.Mat:
			staging, err := c.alloc(g.Bytes(), UsageReadback)
			if err != nil {
				return err
			}
			c.ops = append(c.ops, imageToBufferOp{src: sm, dst: staging, g: g})
			c.post = append(c.post, func() error {
				return c.dev.eng.read(staging, d.Data)
			})
			return nil
		case *BufferMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			c.ops = append(c.ops, imageToBufferOp{src: sm, dst: dm, g: g})
			return nil
		case *ImageMat:
			dm, err := c.deviceMem(d)
			if err != nil {
				return err
			}
			c.ops = append(c.ops, imageCopyOp{src: sm, dst: dm, g: g})
			return nil
		}
	}
	return fmt.Errorf("compute: unsupported clone %T to %T", src, dst)
}

// convert records a conversion dispatch from src into dst.
func (c *Command) convert(src, dst gpufilter.Matrix) error {
	p, err := c.dev.convertPipeline()
	if err != nil {
		return err
	}
	params := shader.MustEncodeParams(NewConvertParams(src.Geometry(), dst.Geometry()))
	return c.recordDispatch(p, []gpufilter.Matrix{src, dst}, params, dst.Geometry())
}

// RecordPipeline records one dispatch of p. bindings are bound in order
// as storage bindings 0..n-1 and params as the uniform block at n. Image
// and host bindings are staged through transient buffers; bindings the
// program writes are copied back after the dispatch. The grid covers out
// with one invocation per pixel.
func (c *Command) RecordPipeline(p *Pipeline, bindings []gpufilter.Matrix, params []byte, out gpufilter.Geometry) error {
	return c.record(func() error {
		return c.recordDispatch(p, bindings, params, out)
	})
}

func (c *Command) recordDispatch(p *Pipeline, bindings []gpufilter.Matrix, params []byte, out gpufilter.Geometry) error {
	if p.dev != c.dev {
		return ErrDeviceMismatch
	}
	impl, prog, mod, local, err := p.state()
	if err != nil {
		return err
	}
	if len(bindings) != mod.StorageBindings() {
		return fmt.Errorf("%w: %s has %d storage bindings, got %d",
			ErrBindingMismatch, mod.Name, mod.StorageBindings(), len(bindings))
	}
	if len(params) != prog.ParamsSize() {
		return fmt.Errorf("%w: %s expects %d bytes, got %d",
			ErrParamSize, mod.Name, prog.ParamsSize(), len(params))
	}
	if out.W <= 0 || out.H <= 0 {
		return gpufilter.ErrEmptyMat
	}

	bufs := make([]memory, len(bindings))
	var finish []func() error
	for i, m := range bindings {
		if mod.Bindings[i].Kind == shader.BindingStorageRead {
			bufs[i], err = c.stageIn(m)
		} else {
			var done func() error
			bufs[i], done, err = c.stageOut(m, true)
			finish = append(finish, done)
		}
		if err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}

	var uniform memory
	if len(params) > 0 {
		if uniform, err = c.upload(params, UsageUniform); err != nil {
			return err
		}
	}

	//nolint:gosec // G115: output dimensions are positive
	c.ops = append(c.ops, dispatchOp{
		prog:   impl,
		bufs:   bufs,
		params: uniform,
		groups: [3]uint32{
			groupCount(uint32(out.W), local[0]),
			groupCount(uint32(out.H), local[1]),
			1,
		},
	})

	for _, done := range finish {
		if err := done(); err != nil {
			return err
		}
	}
	return nil
}

// RecordFill records zeroing every element of a device buffer matrix.
func (c *Command) RecordFill(m *BufferMat) error {
	return c.record(func() error {
		mem, err := c.deviceMem(m)
		if err != nil {
			return err
		}
		c.ops = append(c.ops, fillOp{dst: mem, size: alignWord(m.Geometry().Bytes())})
		return nil
	})
}

func groupCount(n, local uint32) uint32 {
	return (n + local - 1) / local
}

// SubmitAndWait executes the recorded work and blocks until it and every
// readback have completed. An idle command only waits for the device.
// ctx is honoured until the work is handed to the device.
func (c *Command) SubmitAndWait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Idle:
		return c.dev.Sync()
	case Submitted:
		return ErrNotReset
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dev.submitMu.Lock()
	err := c.dev.eng.submit(ctx, "gpufilter-command", c.ops)
	c.dev.submitMu.Unlock()
	c.state = Submitted
	if err != nil {
		return err
	}

	for _, fn := range c.post {
		if err := fn(); err != nil {
			return err
		}
	}
	gpufilter.Logger().Debug("compute: command completed", "ops", len(c.ops), "transient", len(c.transient))
	return nil
}

// Reset frees every transient buffer and returns the command to Idle.
func (c *Command) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollback(mark{})
	c.state = Idle
}
