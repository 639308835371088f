package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

// Test helpers shared across filter tests.

// testEnv is a host runtime with one device and allocator pair for
// staging test matrices.
type testEnv struct {
	rt   *compute.Runtime
	dev  *compute.Device
	pair *compute.AllocatorPair
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rt, err := compute.Open(compute.WithBackend("host"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	dev, err := rt.Acquire(compute.DefaultDevice)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := dev.AcquireAllocators()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pair.Release() })
	return &testEnv{rt: rt, dev: dev, pair: pair}
}

var locations = []gpufilter.Location{gpufilter.Host, gpufilter.DeviceBuffer, gpufilter.DeviceImage}

// place copies m to loc. Images hold 4-channel data, so m is converted to
// ABGR on the way.
func (e *testEnv) place(t *testing.T, m *gpufilter.Mat, loc gpufilter.Location) gpufilter.Matrix {
	t.Helper()
	if loc == gpufilter.Host {
		return m
	}
	dst := e.empty(t, loc)
	opt := compute.CloneOptions{}
	if loc == gpufilter.DeviceImage {
		opt = compute.CloneOptions{Convert: true, Format: gpufilter.ABGR, Type: m.Geometry().Type}
	}
	e.run(t, func(cmd *compute.Command) error { return cmd.RecordClone(m, dst, opt) })
	return dst
}

func (e *testEnv) empty(t *testing.T, loc gpufilter.Location) gpufilter.Matrix {
	t.Helper()
	switch loc {
	case gpufilter.DeviceBuffer:
		m, err := compute.NewBufferMat(e.pair, gpufilter.Geometry{})
		if err != nil {
			t.Fatal(err)
		}
		return m
	case gpufilter.DeviceImage:
		m, err := compute.NewImageMat(e.pair, gpufilter.Geometry{})
		if err != nil {
			t.Fatal(err)
		}
		return m
	default:
		return &gpufilter.Mat{}
	}
}

// fetch returns the contents of m on the host.
func (e *testEnv) fetch(t *testing.T, m gpufilter.Matrix) *gpufilter.Mat {
	t.Helper()
	if h, ok := m.(*gpufilter.Mat); ok {
		return h
	}
	out := &gpufilter.Mat{}
	e.run(t, func(cmd *compute.Command) error { return cmd.RecordClone(m, out, compute.CloneOptions{}) })
	return out
}

func (e *testEnv) run(t *testing.T, record func(cmd *compute.Command) error) {
	t.Helper()
	cmd := compute.NewCommand(e.dev, e.pair)
	defer cmd.Reset()
	if err := record(cmd); err != nil {
		t.Fatal(err)
	}
	if err := cmd.SubmitAndWait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// solid returns a w x h RGB Int8 matrix filled with rgb.
func solid(t *testing.T, w, h int, rgb [3]float32) *gpufilter.Mat {
	t.Helper()
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.RGB, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	m.Fill([4]float32{rgb[0], rgb[1], rgb[2], 1})
	return m
}

// gradient returns a w x h RGB Int8 matrix with distinct pixels.
func gradient(t *testing.T, w, h int) *gpufilter.Mat {
	t.Helper()
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.RGB, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	for i := range m.Data {
		m.Data[i] = byte(i*37 + i/3)
	}
	return m
}

// bytesApproxEqual compares pixel bytes with tolerance.
func bytesApproxEqual(a, b []byte, tolerance int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < -tolerance || d > tolerance {
			return false
		}
	}
	return true
}

// asABGR converts m to the filters' output layout on the host.
func asABGR(t *testing.T, m *gpufilter.Mat) *gpufilter.Mat {
	t.Helper()
	g := m.Geometry()
	out, err := gpufilter.NewMat(gpufilter.NewGeometry(g.W, g.H, gpufilter.ABGR, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	for y := range g.H {
		for x := range g.W {
			out.SetRGBA(x, y, m.RGBA(x, y))
		}
	}
	return out
}

// operator is the surface shared by the single-pass filters.
type operator interface {
	Valid() bool
	Err() error
	Close() error
}

// checkInvalid asserts that an operator built without a runtime refuses
// to run and leaves dst untouched.
func checkInvalid(t *testing.T, f operator, run func(dst *gpufilter.Mat) error) {
	t.Helper()
	if f.Valid() {
		t.Fatal("Valid() = true without a runtime")
	}
	if !errors.Is(f.Err(), compute.ErrDeviceUnavailable) {
		t.Errorf("Err() = %v", f.Err())
	}
	dst := solid(t, 2, 2, [3]float32{0.2, 0.4, 0.6})
	before := dst.Clone()
	if err := run(dst); !errors.Is(err, gpufilter.ErrInvalidOperator) {
		t.Errorf("call on invalid operator = %v, want ErrInvalidOperator", err)
	}
	if dst.Geometry() != before.Geometry() || string(dst.Data) != string(before.Data) {
		t.Error("invalid operator modified destination")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
