// Package op is the shared base of the filter and fusion operators.
//
// A Base acquires a device and an allocator pair, builds one pipeline per
// stage and keeps a default command for its lifetime. Construction never
// fails outright: a failure is logged, remembered, and every later call
// returns gpufilter.ErrInvalidOperator without touching its destination.
package op

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/shader"
)

// DefaultLocalSize is the workgroup size of stages that do not set one.
var DefaultLocalSize = [3]uint32{8, 8, 1}

// Stage describes one pipeline of an operator.
type Stage struct {
	Program shader.Program
	Consts  shader.Constants

	// Bindings is the number of storage bindings the stage records.
	Bindings int

	// Local is the workgroup size; zero means DefaultLocalSize.
	Local [3]uint32

	// Err is a failure building Program.
	Err error
}

// Base holds the device state shared by every operator.
//
// Base is safe for concurrent use; calls on one Base are serialized.
type Base struct {
	name string

	mu    sync.Mutex
	dev   *compute.Device
	pair  *compute.AllocatorPair
	pipes []*compute.Pipeline
	cmd   *compute.Command
	err   error

	// owned releases operator resources allocated from pair, newest first.
	owned []func() error
}

// New builds an operator base on adapter gpuIndex of rt. A nil rt means
// compute.Default().
func New(name string, rt *compute.Runtime, gpuIndex int, stages ...Stage) *Base {
	b := &Base{name: name}
	if err := b.init(rt, gpuIndex, stages); err != nil {
		_ = b.release()
		b.dev = nil
		b.err = err
		gpufilter.Logger().Warn("op: construction failed", "op", name, "gpu", gpuIndex, "err", err)
		return b
	}
	gpufilter.Logger().Debug("op: created", "op", name, "adapter", b.dev.Info().Name, "stages", len(stages))
	return b
}

func (b *Base) init(rt *compute.Runtime, gpuIndex int, stages []Stage) error {
	if rt == nil {
		rt = compute.Default()
	}
	if rt == nil {
		return fmt.Errorf("%w: no runtime, call compute.Init", compute.ErrDeviceUnavailable)
	}

	dev, err := rt.Acquire(gpuIndex)
	if err != nil {
		return err
	}
	b.dev = dev

	pair, err := dev.AcquireAllocators()
	if err != nil {
		return err
	}
	b.pair = pair

	for _, st := range stages {
		if st.Err != nil {
			return st.Err
		}
		p := compute.NewPipeline(dev)
		b.pipes = append(b.pipes, p)

		local := st.Local
		if local == ([3]uint32{}) {
			local = DefaultLocalSize
		}
		if err := p.SetOptimalLocalSize(local[0], local[1], local[2]); err != nil {
			return err
		}
		if err := p.Create(st.Program, st.Consts, st.Bindings); err != nil {
			return fmt.Errorf("stage %s: %w", st.Program.Name(), err)
		}
	}

	b.cmd = compute.NewCommand(dev, pair)
	return nil
}

// release frees owned resources and whatever init managed to acquire.
// Callers hold mu or own b exclusively.
func (b *Base) release() error {
	var errs []error
	if b.cmd != nil {
		b.cmd.Reset()
		b.cmd = nil
	}
	for i := len(b.owned) - 1; i >= 0; i-- {
		if err := b.owned[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.owned = nil
	for _, p := range b.pipes {
		p.Destroy()
	}
	b.pipes = nil
	if b.pair != nil {
		if err := b.pair.Release(); err != nil {
			gpufilter.Logger().Warn("op: release allocators", "op", b.name, "err", err)
			errs = append(errs, err)
		}
		b.pair = nil
	}
	return errors.Join(errs...)
}

// Own registers release to run under the operator lock when the operator
// is closed or fails, before its allocator pair is returned. On an invalid
// operator release runs immediately.
func (b *Base) Own(release func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return release()
	}
	b.owned = append(b.owned, release)
	return nil
}

// Name returns the operator name.
func (b *Base) Name() string { return b.name }

// Valid reports whether construction succeeded and Close has not run.
func (b *Base) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err == nil
}

// Err returns the construction failure, compute.ErrClosed after Close, or nil.
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Device returns the operator's device, or nil when invalid.
func (b *Base) Device() *compute.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev
}

// Pair returns the operator's allocator pair, or nil when invalid.
func (b *Base) Pair() *compute.AllocatorPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pair
}

// Pipeline returns stage i. It must only be called from a record callback.
func (b *Base) Pipeline(i int) *compute.Pipeline {
	return b.pipes[i]
}

// Close releases owned resources, the pipelines, the command and the
// allocator pair, and returns their release errors. Close is safe to call
// multiple times.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil
	}
	err := b.release()
	b.err = compute.ErrClosed
	return err
}

// Fail marks a valid operator invalid after construction steps that run
// outside New, such as uploading operator-owned buffers.
func (b *Base) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	if rerr := b.release(); rerr != nil {
		gpufilter.Logger().Warn("op: release after failure", "op", b.name, "err", rerr)
	}
	b.dev = nil
	b.err = err
	gpufilter.Logger().Warn("op: construction failed", "op", b.name, "err", err)
}

// check returns ErrInvalidOperator with the recorded cause. Callers hold mu.
func (b *Base) check() error {
	if b.err != nil {
		return b.invalid(b.err)
	}
	return nil
}

// Check returns ErrInvalidOperator with the cause when the operator cannot
// run, so operators can reject calls before validating their arguments.
func (b *Base) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check()
}

func (b *Base) invalid(cause error) error {
	return fmt.Errorf("%w: %s: %w", gpufilter.ErrInvalidOperator, b.name, cause)
}

// Run records work with the default command, submits it and waits. The
// command is reset on every path.
func (b *Base) Run(ctx context.Context, record func(cmd *compute.Command) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	defer b.cmd.Reset()

	if err := record(b.cmd); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	if err := b.cmd.SubmitAndWait(ctx); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	return nil
}

// Do is Run for work producing dst with geometry g. record receives the
// matrix to bind as output. A host dst is only replaced once the work has
// completed, so a failed call leaves it as it was; device destinations are
// re-described in place.
func (b *Base) Do(ctx context.Context, dst gpufilter.Matrix, g gpufilter.Geometry,
	record func(cmd *compute.Command, out gpufilter.Matrix) error) error {
	return b.DoFrom(ctx, nil, dst, g, record)
}

// DoFrom is Do for work that binds inputs. A device dst that is also one
// of the inputs is written through a scratch matrix and copied into place
// after the work completes, so the program never reads what it writes.
func (b *Base) DoFrom(ctx context.Context, inputs []gpufilter.Matrix, dst gpufilter.Matrix, g gpufilter.Geometry,
	record func(cmd *compute.Command, out gpufilter.Matrix) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	defer b.cmd.Reset()

	if aliased(dst, inputs) {
		if err := b.doAliased(ctx, dst, g, record); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		return nil
	}
	out, commit, err := output(dst, g)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	if err := record(b.cmd, out); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	if err := b.cmd.SubmitAndWait(ctx); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	commit()
	return nil
}

// Filter runs stage 0 over src into dst, which is described as
// Output(src). Bindings are src, dst, then extra. params encodes the
// parameter block from the source and output geometries.
func (b *Base) Filter(ctx context.Context, src, dst gpufilter.Matrix,
	params func(src, out gpufilter.Geometry) []byte, extra ...gpufilter.Matrix) error {
	if err := b.Check(); err != nil {
		return err
	}
	sg := src.Geometry()
	if err := CheckSource(sg); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}

	inputs := append([]gpufilter.Matrix{src}, extra...)
	return b.DoFrom(ctx, inputs, dst, Output(sg), func(cmd *compute.Command, out gpufilter.Matrix) error {
		og := out.Geometry()
		bindings := append([]gpufilter.Matrix{src, out}, extra...)
		return cmd.RecordPipeline(b.Pipeline(0), bindings, params(sg, og), og)
	})
}

// Output is the fixed result geometry of the filter operators: the source
// size as 4-channel Int8 ABGR.
func Output(src gpufilter.Geometry) gpufilter.Geometry {
	return gpufilter.NewGeometry(src.W, src.H, gpufilter.ABGR, gpufilter.Int8)
}

// CheckSource rejects sources the programs cannot read.
func CheckSource(g gpufilter.Geometry) error {
	if err := g.Validate(); err != nil {
		if g.Empty() {
			return err
		}
		return fmt.Errorf("%w: %w", compute.ErrIncompatibleFormat, err)
	}
	return nil
}

// output prepares the matrix a record callback writes into and the commit
// run after success.
func output(dst gpufilter.Matrix, g gpufilter.Geometry) (gpufilter.Matrix, func(), error) {
	if m, ok := dst.(*gpufilter.Mat); ok {
		tmp, err := gpufilter.NewMat(g)
		if err != nil {
			return nil, nil, err
		}
		return tmp, func() { m.Assign(tmp) }, nil
	}
	if err := compute.Redescribe(dst, g); err != nil {
		return nil, nil, err
	}
	return dst, func() {}, nil
}

// aliased reports whether the device matrix dst is also bound as an input.
func aliased(dst gpufilter.Matrix, inputs []gpufilter.Matrix) bool {
	if dst.Location() == gpufilter.Host {
		return false
	}
	for _, in := range inputs {
		if in == dst {
			return true
		}
	}
	return false
}

// doAliased records into a scratch matrix of dst's kind, submits, then
// copies the result into dst in a second submission. Callers hold mu.
func (b *Base) doAliased(ctx context.Context, dst gpufilter.Matrix, g gpufilter.Geometry,
	record func(cmd *compute.Command, out gpufilter.Matrix) error) (err error) {
	tmp, free, err := scratch(b.pair, dst, g)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := free(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if err := record(b.cmd, tmp); err != nil {
		return err
	}
	if err := b.cmd.SubmitAndWait(ctx); err != nil {
		return err
	}
	b.cmd.Reset()
	opt := compute.CloneOptions{Convert: true, Format: g.Format, Type: g.Type}
	if err := b.cmd.RecordClone(tmp, dst, opt); err != nil {
		return err
	}
	return b.cmd.SubmitAndWait(ctx)
}

// scratch allocates a matrix like dst with geometry g from pair.
func scratch(pair *compute.AllocatorPair, dst gpufilter.Matrix, g gpufilter.Geometry) (gpufilter.Matrix, func() error, error) {
	if dst.Location() == gpufilter.DeviceImage {
		m, err := compute.NewImageMat(pair, g)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Release, nil
	}
	m, err := compute.NewBufferMat(pair, g)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Release, nil
}

// Scalars returns the five values a parameter block carries for a matrix.
//
//nolint:gosec // G115: geometries are validated and small
func Scalars(g gpufilter.Geometry) (w, h, cstep, format, etype int32) {
	return int32(g.W), int32(g.H), int32(g.C), int32(g.Format), int32(g.Type)
}
