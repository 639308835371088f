package fusion

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

var (
	red  = [3]float32{1, 0, 0}
	blue = [3]float32{0, 0, 1}
)

func hostRuntime(t *testing.T) *compute.Runtime {
	t.Helper()
	rt, err := compute.Open(compute.WithBackend("host"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func solid(t *testing.T, w, h int, rgb [3]float32) *gpufilter.Mat {
	t.Helper()
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.RGB, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	m.Fill([4]float32{rgb[0], rgb[1], rgb[2], 1})
	return m
}

func gradient(t *testing.T, w, h int) *gpufilter.Mat {
	t.Helper()
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.RGB, gpufilter.Int8))
	if err != nil {
		t.Fatal(err)
	}
	for i := range m.Data {
		m.Data[i] = byte(i*29 + i/5)
	}
	return m
}

// count returns how many pixels of m are exactly rgb.
func count(m *gpufilter.Mat, rgb [3]float32) int {
	want := [4]float32{rgb[0], rgb[1], rgb[2], 1}
	n := 0
	g := m.Geometry()
	for y := range g.H {
		for x := range g.W {
			if m.RGBA(x, y) == want {
				n++
			}
		}
	}
	return n
}

// devicePair returns a device and allocator pair for staging test
// matrices.
func devicePair(t *testing.T, rt *compute.Runtime) (*compute.Device, *compute.AllocatorPair) {
	t.Helper()
	dev, err := rt.Acquire(compute.DefaultDevice)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := dev.AcquireAllocators()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pair.Release() })
	return dev, pair
}

func bufferMat(t *testing.T, pair *compute.AllocatorPair) *compute.BufferMat {
	t.Helper()
	m, err := compute.NewBufferMat(pair, gpufilter.Geometry{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func clone(t *testing.T, dev *compute.Device, pair *compute.AllocatorPair, src, dst gpufilter.Matrix) {
	t.Helper()
	cmd := compute.NewCommand(dev, pair)
	defer cmd.Reset()
	if err := cmd.RecordClone(src, dst, compute.CloneOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := cmd.SubmitAndWait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSquaresWireEndpoints(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSquaresWire(rt, compute.DefaultDevice)
	if !f.Valid() {
		t.Fatalf("NewSquaresWire: %v", f.Err())
	}
	defer func() { _ = f.Close() }()

	from, to := solid(t, 13, 9, red), solid(t, 5, 7, blue)
	tests := []struct {
		name      string
		progress  float32
		direction [2]float32
		want      [3]float32
	}{
		{"start", 0, [2]float32{1, -1}, red},
		{"below start", -0.5, [2]float32{1, -1}, red},
		{"end", 1, [2]float32{1, 0}, blue},
		{"end vertical", 1, [2]float32{0, 1}, blue},
		{"end reversed", 1, [2]float32{-1, 0}, blue},
		{"past end", 3, [2]float32{0, 1}, blue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &gpufilter.Mat{}
			if err := f.Filter(from, to, dst, tt.progress, 10, tt.direction, 0.5); err != nil {
				t.Fatal(err)
			}
			if g := dst.Geometry(); g != gpufilter.NewGeometry(13, 9, gpufilter.ABGR, gpufilter.Int8) {
				t.Fatalf("geometry = %s", g)
			}
			if n := count(dst, tt.want); n != 13*9 {
				t.Errorf("%d of %d pixels are %v", n, 13*9, tt.want)
			}
		})
	}
}

func TestSquaresWireMidway(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSquaresWire(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	dst := &gpufilter.Mat{}
	if err := f.Filter(solid(t, 32, 32, red), solid(t, 32, 32, blue), dst, 0.5, 4, [2]float32{1, 0}, 0.5); err != nil {
		t.Fatal(err)
	}
	r, b := count(dst, red), count(dst, blue)
	if r == 0 || b == 0 || r+b != 32*32 {
		t.Errorf("midway: %d red, %d blue of %d", r, b, 32*32)
	}
	// The front sweeps along +x, so the left edge finishes first.
	if dst.RGBA(0, 16) != [4]float32{0, 0, 1, 1} {
		t.Errorf("left edge = %v, want blue", dst.RGBA(0, 16))
	}
	if dst.RGBA(31, 16) != [4]float32{1, 0, 0, 1} {
		t.Errorf("right edge = %v, want red", dst.RGBA(31, 16))
	}
}

func TestSquaresWireParams(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSquaresWire(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src := solid(t, 4, 4, red)
	tests := []struct {
		name       string
		squares    int
		direction  [2]float32
		smoothness float32
	}{
		{"no squares", 0, [2]float32{1, 0}, 1},
		{"zero direction", 10, [2]float32{}, 1},
		{"zero smoothness", 10, [2]float32{1, 0}, 0},
		{"negative smoothness", 10, [2]float32{1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &gpufilter.Mat{}
			err := f.Filter(src, src, dst, 0.5, tt.squares, tt.direction, tt.smoothness)
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Filter = %v, want ErrInvalidParams", err)
			}
			if !dst.Empty() {
				t.Error("failed call modified destination")
			}
		})
	}
}

func TestSqueezeEndpoints(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSqueeze(rt, compute.DefaultDevice)
	if !f.Valid() {
		t.Fatalf("NewSqueeze: %v", f.Err())
	}
	defer func() { _ = f.Close() }()

	from, to := solid(t, 10, 11, red), solid(t, 3, 3, blue)

	dst := &gpufilter.Mat{}
	if err := f.Filter(from, to, dst, 0, 0.04); err != nil {
		t.Fatal(err)
	}
	if n := count(dst, red); n != 10*11 {
		t.Errorf("progress 0: %d of %d pixels red", n, 10*11)
	}

	if err := f.Filter(from, to, dst, 1, 0.04); err != nil {
		t.Fatal(err)
	}
	// Everything but the middle row is outside the squeezed band.
	if n := count(dst, blue); n < 10*10 {
		t.Errorf("progress 1: %d of %d pixels blue", n, 10*11)
	}
}

func TestSqueezeBand(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSqueeze(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	dst := &gpufilter.Mat{}
	if err := f.Filter(solid(t, 8, 21, red), solid(t, 8, 21, blue), dst, 0.5, 0); err != nil {
		t.Fatal(err)
	}
	// At half progress the source fills the middle half of the rows.
	for y := range 21 {
		want := [4]float32{0, 0, 1, 1}
		if y >= 5 && y <= 15 {
			want = [4]float32{1, 0, 0, 1}
		}
		if got := dst.RGBA(4, y); got != want {
			t.Errorf("row %d = %v, want %v", y, got, want)
		}
	}
}

func TestSqueezeColorSeparation(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSqueeze(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src := gradient(t, 16, 16)
	plain, split := &gpufilter.Mat{}, &gpufilter.Mat{}
	if err := f.Filter(src, src, plain, 0.2, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.Filter(src, src, split, 0.2, 0.5); err != nil {
		t.Fatal(err)
	}

	var green, other bool
	for i := 0; i < len(plain.Data); i += 4 {
		if plain.Data[i+1] != split.Data[i+1] {
			green = true
		}
		if plain.Data[i] != split.Data[i] || plain.Data[i+2] != split.Data[i+2] {
			other = true
		}
	}
	if green {
		t.Error("color separation moved the green channel")
	}
	if !other {
		t.Error("color separation had no effect on red or blue")
	}
}

func TestFusionDeviceMatrices(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSqueeze(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src1, src2 := gradient(t, 9, 7), gradient(t, 4, 12)
	ref := &gpufilter.Mat{}
	if err := f.Filter(src1, src2, ref, 0.3, 0.1); err != nil {
		t.Fatal(err)
	}

	dev, pair := devicePair(t, rt)
	d1, d2, out := bufferMat(t, pair), bufferMat(t, pair), bufferMat(t, pair)
	clone(t, dev, pair, src1, d1)
	clone(t, dev, pair, src2, d2)
	if err := f.Filter(d1, d2, out, 0.3, 0.1); err != nil {
		t.Fatal(err)
	}
	got := &gpufilter.Mat{}
	clone(t, dev, pair, out, got)
	if got.Geometry() != ref.Geometry() || string(got.Data) != string(ref.Data) {
		t.Error("device result differs from host result")
	}
}

func TestFusionInvalid(t *testing.T) {
	sw := NewSquaresWire(nil, compute.DefaultDevice)
	sq := NewSqueeze(nil, compute.DefaultDevice)
	src := solid(t, 3, 3, red)

	tests := []struct {
		name  string
		valid func() bool
		run   func(dst gpufilter.Matrix) error
		close func() error
	}{
		{"squares wire", sw.Valid, func(dst gpufilter.Matrix) error {
			// Rejected before the parameters are checked.
			return sw.Filter(src, src, dst, 0.5, 0, [2]float32{}, 0)
		}, sw.Close},
		{"squeeze", sq.Valid, func(dst gpufilter.Matrix) error {
			return sq.Filter(src, src, dst, 0.5, 0.1)
		}, sq.Close},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.valid() {
				t.Fatal("Valid() = true without a runtime")
			}
			dst := solid(t, 2, 2, blue)
			before := dst.Clone()
			if err := tt.run(dst); !errors.Is(err, gpufilter.ErrInvalidOperator) {
				t.Errorf("Filter = %v, want ErrInvalidOperator", err)
			}
			if string(dst.Data) != string(before.Data) {
				t.Error("invalid operator modified destination")
			}
			if err := tt.close(); err != nil {
				t.Errorf("Close = %v", err)
			}
		})
	}
}

func TestFusionRejectsEmptySource(t *testing.T) {
	rt := hostRuntime(t)
	f := NewSqueeze(rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	dst := &gpufilter.Mat{}
	if err := f.Filter(solid(t, 2, 2, red), &gpufilter.Mat{}, dst, 0.5, 0); !errors.Is(err, gpufilter.ErrEmptyMat) {
		t.Errorf("Filter = %v, want ErrEmptyMat", err)
	}
}
