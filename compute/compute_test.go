package compute

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

type scaleParams struct {
	W      int32 `wgsl:"w"`
	H      int32 `wgsl:"h"`
	CStep  int32 `wgsl:"cstep"`
	Format int32 `wgsl:"format"`
	Type   int32 `wgsl:"etype"`
	Gain   float32
}

func newScaleParams(g gpufilter.Geometry, gain float32) []byte {
	//nolint:gosec // G115: test geometry is small
	return shader.MustEncodeParams(scaleParams{
		W: int32(g.W), H: int32(g.H), CStep: int32(g.C),
		Format: int32(g.Format), Type: int32(g.Type), Gain: gain,
	})
}

// scaleProgram multiplies every channel of binding 0 by gain into binding 1.
func scaleProgram(t *testing.T) shader.Program {
	t.Helper()
	params, err := shader.ParamsFragment(2, scaleParams{})
	if err != nil {
		t.Fatal(err)
	}
	return shader.Program{
		Template: shader.Template{
			Name: "scale",
			Fragments: []shader.Fragment{
				shader.Header(),
				params,
				shader.Storage("src", 0, shader.ReadOnly),
				shader.Storage("dst", 1, shader.WriteOnly),
				shader.Accessors("src", shader.ReadOnly),
				shader.Accessors("dst", shader.WriteOnly),
				shader.Body("scale", `fn scale_pixel(x: i32, y: i32) {
    let v = load_rgba_src(x, y, p.w, p.cstep, p.format, p.etype) * p.gain;
    store_rgba_dst(x, y, p.w, p.cstep, p.format, p.etype, v);
}`),
				shader.Entry("p.w", "p.h", "scale_pixel(gx, gy)"),
			},
		},
		Params: scaleParams{},
		Kernel: func(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
			p := shader.Params[scaleParams](params)
			g := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
			return func(inv shader.Invocation) {
				x, y := int(inv.X), int(inv.Y)
				if x >= g.W || y >= g.H {
					return
				}
				v := bufs[0].LoadRGBA(g, x, y)
				for i := range v {
					v[i] *= p.Gain
				}
				bufs[1].StoreRGBA(g, x, y, v)
			}
		},
	}
}

func openHost(t *testing.T, opts ...Option) (*Runtime, *Device) {
	t.Helper()
	rt, err := Open(append([]Option{WithBackend("host")}, opts...)...)
	if err != nil {
		t.Fatalf("Open(host): %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	dev, err := rt.Acquire(DefaultDevice)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return rt, dev
}

func acquirePair(t *testing.T, dev *Device) *AllocatorPair {
	t.Helper()
	pair, err := dev.AcquireAllocators()
	if err != nil {
		t.Fatalf("AcquireAllocators: %v", err)
	}
	t.Cleanup(func() { _ = pair.Release() })
	return pair
}

// gradient returns a host matrix whose pixels all differ.
func gradient(t *testing.T, w, h int, format gpufilter.ColorFormat, typ gpufilter.ElemType) *gpufilter.Mat {
	t.Helper()
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, format, typ))
	if err != nil {
		t.Fatal(err)
	}
	for y := range h {
		for x := range w {
			m.SetRGBA(x, y, [4]float32{
				float32(x) / float32(w),
				float32(y) / float32(h),
				float32((x+y)%5) / 4,
				1,
			})
		}
	}
	return m
}

func TestOpenHostBackend(t *testing.T) {
	rt, dev := openHost(t)

	if rt.Backend() != "host" {
		t.Errorf("Backend() = %q", rt.Backend())
	}
	if n := len(rt.Adapters()); n != 1 {
		t.Fatalf("Adapters() = %d entries", n)
	}
	again, err := rt.Acquire(0)
	if err != nil || again != dev {
		t.Errorf("Acquire(0) = %p, %v; want cached device %p", again, err, dev)
	}
	if _, err := rt.Acquire(3); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Acquire(3) = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := rt.Acquire(-2); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Acquire(-2) = %v, want ErrDeviceUnavailable", err)
	}

	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Acquire(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(WithBackend("no-such-api")); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Open = %v, want ErrNoBackend", err)
	}
}

func TestInitShutdown(t *testing.T) {
	if err := Init(WithBackend("host")); err != nil {
		t.Fatal(err)
	}
	if err := Init(WithBackend("host")); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v, want ErrAlreadyInitialized", err)
	}
	if Default() == nil {
		t.Fatal("Default() = nil after Init")
	}
	if err := Shutdown(); err != nil {
		t.Fatal(err)
	}
	if Default() != nil {
		t.Error("Default() != nil after Shutdown")
	}
	if err := Shutdown(); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestAllocatorReclaim(t *testing.T) {
	_, dev := openHost(t)

	blob, err := dev.AcquireBlobAllocator()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := blob.Allocate(1024, UsageStorage); err != nil {
		t.Fatal(err)
	}
	if err := dev.ReclaimStagingAllocator(blob); !errors.Is(err, ErrAllocatorReclaimed) {
		t.Errorf("reclaim blob as staging = %v", err)
	}
	if err := dev.ReclaimBlobAllocator(blob); err != nil {
		t.Fatalf("first reclaim: %v", err)
	}
	if err := dev.ReclaimBlobAllocator(blob); !errors.Is(err, ErrAllocatorReclaimed) {
		t.Errorf("second reclaim = %v, want ErrAllocatorReclaimed", err)
	}
	if _, err := blob.Allocate(16, UsageStorage); !errors.Is(err, ErrAllocatorReclaimed) {
		t.Errorf("Allocate after reclaim = %v, want ErrAllocatorReclaimed", err)
	}

	// The pooled arena comes back empty.
	next, err := dev.AcquireBlobAllocator()
	if err != nil {
		t.Fatal(err)
	}
	if next.Used() != 0 {
		t.Errorf("reacquired allocator holds %d bytes", next.Used())
	}
	if err := dev.ReclaimBlobAllocator(next); err != nil {
		t.Fatal(err)
	}

	pair, err := dev.AcquireAllocators()
	if err != nil {
		t.Fatal(err)
	}
	if err := pair.Release(); err != nil {
		t.Fatal(err)
	}
	if err := pair.Release(); err != nil {
		t.Errorf("second Release = %v, want nil", err)
	}

	err = dev.WithAllocators(func(p *AllocatorPair) error {
		_, err := p.Staging.Allocate(64, UsageUpload)
		return err
	})
	if err != nil {
		t.Errorf("WithAllocators: %v", err)
	}
}

func TestAllocatorBudget(t *testing.T) {
	_, dev := openHost(t, WithPoolSizes(1, 1), WithMaxPoolExpansions(1))
	pair := acquirePair(t, dev)

	const mb = 1024 * 1024
	if _, err := pair.Blob.Allocate(mb+mb/2, UsageStorage); err != nil {
		t.Fatalf("allocation within one expansion: %v", err)
	}
	if got := pair.Blob.Budget(); got != 2*mb {
		t.Errorf("Budget() = %d, want %d", got, 2*mb)
	}
	if _, err := pair.Blob.Allocate(mb, UsageStorage); !errors.Is(err, ErrOutOfDeviceMemory) {
		t.Errorf("allocation beyond expansions = %v, want ErrOutOfDeviceMemory", err)
	}
	if s := pair.Blob.Stats(); s.Blocks != 1 || s.Expansions != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	if _, err := pair.Staging.Allocate(16, UsageStorage); err == nil {
		t.Error("staging allocator accepted a storage block")
	}
	if _, err := pair.Blob.Allocate(16, UsageReadback); err == nil {
		t.Error("blob allocator accepted a readback block")
	}

	b, err := pair.Blob.Allocate(5, UsageStorage)
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 8 {
		t.Errorf("Size() = %d, want word-rounded 8", b.Size())
	}
	if err := pair.Blob.Reset(); err != nil {
		t.Fatal(err)
	}
	if pair.Blob.Used() != 0 {
		t.Errorf("Used() after Reset = %d", pair.Blob.Used())
	}
}

func TestPipelineCreate(t *testing.T) {
	_, dev := openHost(t)
	prog := scaleProgram(t)

	p := NewPipeline(dev)
	if err := p.Create(prog, nil, 2); !errors.Is(err, ErrLocalSizeUnset) {
		t.Errorf("Create before local size = %v, want ErrLocalSizeUnset", err)
	}
	if err := p.SetOptimalLocalSize(0, 8, 1); err == nil {
		t.Error("zero local size accepted")
	}
	if err := p.SetOptimalLocalSize(8, 8, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Create(prog, nil, 3); !errors.Is(err, ErrPipelineLink) {
		t.Errorf("Create expecting 3 bindings = %v, want ErrPipelineLink", err)
	}
	if err := p.Create(prog, nil, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := p.Create(prog, nil, 2); !errors.Is(err, ErrPipelineCreated) {
		t.Errorf("second Create = %v, want ErrPipelineCreated", err)
	}
	if got := p.LocalSize(); got != [3]uint32{8, 8, 1} {
		t.Errorf("LocalSize() = %v", got)
	}
	if n := len(p.Bindings()); n != 3 {
		t.Errorf("Bindings() = %d entries, want 3", n)
	}
	p.Destroy()
	p.Destroy()

	broken := prog
	broken.Template = prog.Template.With(shader.Helper("broken", "fn oops( {"))
	q := NewPipeline(dev)
	_ = q.SetOptimalLocalSize(8, 8, 1)
	if err := q.Create(broken, nil, 2); !errors.Is(err, shader.ErrCompile) {
		t.Errorf("Create(broken) = %v, want shader.ErrCompile", err)
	}
}

func TestRecordPipelineChecks(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)

	p := NewPipeline(dev)
	_ = p.SetOptimalLocalSize(8, 8, 1)

	src := gradient(t, 4, 4, gpufilter.ABGR, gpufilter.Int8)
	dst := &gpufilter.Mat{}
	cmd := NewCommand(dev, pair)
	params := newScaleParams(src.Geometry(), 1)

	if err := cmd.RecordPipeline(p, []gpufilter.Matrix{src, dst}, params, src.Geometry()); !errors.Is(err, ErrPipelineNotCreated) {
		t.Errorf("uncreated pipeline = %v", err)
	}
	if err := p.Create(scaleProgram(t), nil, 2); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RecordPipeline(p, []gpufilter.Matrix{src}, params, src.Geometry()); !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("one binding = %v, want ErrBindingMismatch", err)
	}
	if err := cmd.RecordPipeline(p, []gpufilter.Matrix{src, dst}, params[:8], src.Geometry()); !errors.Is(err, ErrParamSize) {
		t.Errorf("short params = %v, want ErrParamSize", err)
	}
	if err := cmd.RecordPipeline(p, []gpufilter.Matrix{src, dst}, params, src.Geometry()); !errors.Is(err, gpufilter.ErrEmptyMat) {
		t.Errorf("empty destination = %v, want ErrEmptyMat", err)
	}
	if cmd.State() != Idle || cmd.Len() != 0 {
		t.Errorf("failed records left state %s with %d ops", cmd.State(), cmd.Len())
	}
	if pair.Blob.Used() != 0 || pair.Staging.Used() != 0 {
		t.Errorf("failed records leaked %d+%d bytes", pair.Blob.Used(), pair.Staging.Used())
	}
}

func TestCommandLifecycle(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)
	cmd := NewCommand(dev, pair)
	ctx := context.Background()

	if err := cmd.SubmitAndWait(ctx); err != nil {
		t.Errorf("SubmitAndWait on idle = %v, want nil", err)
	}

	src := gradient(t, 5, 3, gpufilter.RGB, gpufilter.Int8)
	buf, err := NewBufferMat(pair, src.Geometry())
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.RecordClone(src, buf, CloneOptions{}); err != nil {
		t.Fatal(err)
	}
	if cmd.State() != Recording {
		t.Fatalf("State() = %s, want recording", cmd.State())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := cmd.SubmitAndWait(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled submit = %v", err)
	}
	if cmd.State() != Recording {
		t.Errorf("cancelled submit moved state to %s", cmd.State())
	}

	if err := cmd.SubmitAndWait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RecordClone(buf, src, CloneOptions{}); !errors.Is(err, ErrNotReset) {
		t.Errorf("record after submit = %v, want ErrNotReset", err)
	}
	if err := cmd.SubmitAndWait(ctx); !errors.Is(err, ErrNotReset) {
		t.Errorf("second submit = %v, want ErrNotReset", err)
	}

	used := pair.Staging.Used()
	cmd.Reset()
	if cmd.State() != Idle {
		t.Errorf("State() after Reset = %s", cmd.State())
	}
	if pair.Staging.Used() >= used {
		t.Errorf("Reset kept transient staging memory (%d bytes)", pair.Staging.Used())
	}
}

func TestCloneRoundTrip(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)
	ctx := context.Background()

	for _, typ := range gpufilter.ElemTypes() {
		for _, loc := range []gpufilter.Location{gpufilter.Host, gpufilter.DeviceBuffer, gpufilter.DeviceImage} {
			t.Run(typ.String()+"/"+loc.String(), func(t *testing.T) {
				src := gradient(t, 7, 5, gpufilter.ABGR, typ)
				g := src.Geometry()

				var mid gpufilter.Matrix
				var err error
				switch loc {
				case gpufilter.Host:
					mid = &gpufilter.Mat{}
				case gpufilter.DeviceBuffer:
					mid, err = NewBufferMat(pair, g)
				case gpufilter.DeviceImage:
					mid, err = NewImageMat(pair, g)
				}
				if typ == gpufilter.Int16 && loc == gpufilter.DeviceImage {
					if !errors.Is(err, ErrIncompatibleFormat) {
						t.Errorf("Int16 image = %v, want ErrIncompatibleFormat", err)
					}
					return
				}
				if err != nil {
					t.Fatal(err)
				}

				out := &gpufilter.Mat{}
				cmd := NewCommand(dev, pair)
				defer cmd.Reset()
				if err := cmd.RecordClone(src, mid, CloneOptions{}); err != nil {
					t.Fatal(err)
				}
				if err := cmd.RecordClone(mid, out, CloneOptions{}); err != nil {
					t.Fatal(err)
				}
				if err := cmd.SubmitAndWait(ctx); err != nil {
					t.Fatal(err)
				}
				if out.Geometry() != g {
					t.Fatalf("geometry %s, want %s", out.Geometry(), g)
				}
				for i := range src.Data {
					if out.Data[i] != src.Data[i] {
						t.Fatalf("byte %d = %d, want %d", i, out.Data[i], src.Data[i])
					}
				}
			})
		}
	}
}

func TestCloneConvert(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)

	// 13x7 is not a multiple of the 16x16 conversion workgroup.
	src := gradient(t, 13, 7, gpufilter.RGB, gpufilter.Int8)
	buf, err := NewBufferMat(pair, gpufilter.Geometry{})
	if err != nil {
		t.Fatal(err)
	}
	out := &gpufilter.Mat{}

	cmd := NewCommand(dev, pair)
	defer cmd.Reset()
	if err := cmd.RecordClone(src, buf, CloneOptions{Convert: true, Format: gpufilter.ABGR, Type: gpufilter.Float32}); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RecordClone(buf, out, CloneOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := cmd.SubmitAndWait(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := gpufilter.NewGeometry(13, 7, gpufilter.ABGR, gpufilter.Float32)
	if out.Geometry() != want {
		t.Fatalf("geometry %s, want %s", out.Geometry(), want)
	}
	for y := range 7 {
		for x := range 13 {
			got, exp := out.RGBA(x, y), src.RGBA(x, y)
			for c := range 4 {
				if math.Abs(float64(got[c]-exp[c])) > 1e-6 {
					t.Fatalf("pixel (%d,%d) channel %d = %v, want %v", x, y, c, got[c], exp[c])
				}
			}
		}
	}
}

func TestCloneIncompatible(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)
	cmd := NewCommand(dev, pair)

	src := gradient(t, 4, 4, gpufilter.RGB, gpufilter.Int8)
	tests := []struct {
		name string
		dst  gpufilter.Matrix
		opt  CloneOptions
	}{
		{"yuv target", &gpufilter.Mat{}, CloneOptions{Convert: true, Format: gpufilter.YUV420, Type: gpufilter.Int8}},
		{"int16 image", mustImage(t, pair), CloneOptions{Convert: true, Format: gpufilter.ABGR, Type: gpufilter.Int16}},
		{"three-channel image", mustEmptyImage(t, pair), CloneOptions{}},
		{"size mismatch", gradient(t, 3, 4, gpufilter.RGB, gpufilter.Int8), CloneOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cmd.RecordClone(src, tt.dst, tt.opt)
			if !errors.Is(err, ErrIncompatibleFormat) {
				t.Errorf("RecordClone = %v, want ErrIncompatibleFormat", err)
			}
			if errors.Is(err, ErrOutOfDeviceMemory) {
				t.Error("format error reported as out of memory")
			}
		})
	}
	if cmd.State() != Idle {
		t.Errorf("State() = %s after rejected clones", cmd.State())
	}
}

func mustImage(t *testing.T, pair *AllocatorPair) *ImageMat {
	t.Helper()
	m, err := NewImageMat(pair, gpufilter.NewGeometry(4, 4, gpufilter.ABGR, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustEmptyImage(t *testing.T, pair *AllocatorPair) *ImageMat {
	t.Helper()
	m, err := NewImageMat(pair, gpufilter.Geometry{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRecordPipelineImageBindings(t *testing.T) {
	_, dev := openHost(t)
	pair := acquirePair(t, dev)

	p := NewPipeline(dev)
	_ = p.SetOptimalLocalSize(4, 4, 1)
	if err := p.Create(scaleProgram(t), nil, 2); err != nil {
		t.Fatal(err)
	}

	src := gradient(t, 9, 6, gpufilter.ABGR, gpufilter.Float32)
	g := src.Geometry()
	in, err := NewImageMat(pair, g)
	if err != nil {
		t.Fatal(err)
	}
	outImg, err := NewImageMat(pair, g)
	if err != nil {
		t.Fatal(err)
	}
	out := &gpufilter.Mat{}

	cmd := NewCommand(dev, pair)
	defer cmd.Reset()
	steps := []func() error{
		func() error { return cmd.RecordClone(src, in, CloneOptions{}) },
		func() error {
			return cmd.RecordPipeline(p, []gpufilter.Matrix{in, outImg}, newScaleParams(g, 0.5), g)
		},
		func() error { return cmd.RecordClone(outImg, out, CloneOptions{}) },
		func() error { return cmd.SubmitAndWait(context.Background()) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	for y := range g.H {
		for x := range g.W {
			got, exp := out.RGBA(x, y), src.RGBA(x, y)
			for c := range 4 {
				if math.Abs(float64(got[c]-exp[c]*0.5)) > 1e-6 {
					t.Fatalf("pixel (%d,%d) channel %d = %v, want %v", x, y, c, got[c], exp[c]*0.5)
				}
			}
		}
	}
}

func TestDeviceMismatch(t *testing.T) {
	_, devA := openHost(t)
	_, devB := openHost(t)
	pairA := acquirePair(t, devA)
	pairB := acquirePair(t, devB)

	src := gradient(t, 2, 2, gpufilter.ABGR, gpufilter.Int8)
	buf, err := NewBufferMat(pairB, src.Geometry())
	if err != nil {
		t.Fatal(err)
	}
	cmd := NewCommand(devA, pairA)
	if err := cmd.RecordClone(src, buf, CloneOptions{}); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("cross-device clone = %v, want ErrDeviceMismatch", err)
	}
	if err := NewCommand(devA, pairB).RecordClone(src, buf, CloneOptions{}); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("foreign pair = %v, want ErrDeviceMismatch", err)
	}
}

func TestBackendsListsHost(t *testing.T) {
	names := Backends()
	found := false
	for _, n := range names {
		if n == "host" {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, missing host", names)
	}
}
