package filter

import (
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

func TestTranspose(t *testing.T) {
	env := newTestEnv(t)
	f := NewTranspose(env.rt, compute.DefaultDevice)
	if !f.Valid() {
		t.Fatalf("NewTranspose: %v", f.Err())
	}
	defer func() { _ = f.Close() }()

	src := gradient(t, 11, 6)
	tests := []struct {
		name         string
		flipX, flipY bool
	}{
		{"plain", false, false},
		{"flip x", true, false},
		{"flip y", false, true},
		{"both", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &gpufilter.Mat{}
			if err := f.Filter(src, dst, tt.flipX, tt.flipY); err != nil {
				t.Fatal(err)
			}
			if g := dst.Geometry(); g != gpufilter.NewGeometry(6, 11, gpufilter.ABGR, gpufilter.Int8) {
				t.Fatalf("geometry = %s", g)
			}
			for y := range 11 {
				for x := range 6 {
					sx, sy := y, x
					if tt.flipX {
						sx = 10 - sx
					}
					if tt.flipY {
						sy = 5 - sy
					}
					if got, want := dst.RGBA(x, y), src.RGBA(sx, sy); got != want {
						t.Fatalf("pixel (%d,%d) = %v, want source (%d,%d) %v", x, y, got, sx, sy, want)
					}
				}
			}
		})
	}
}

func TestTransposeTwiceIsIdentity(t *testing.T) {
	env := newTestEnv(t)
	f := NewTranspose(env.rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src := gradient(t, 9, 4)
	for _, loc := range locations {
		t.Run(loc.String(), func(t *testing.T) {
			mid := env.empty(t, loc)
			if err := f.Filter(src, mid, false, false); err != nil {
				t.Fatal(err)
			}
			out := env.empty(t, loc)
			if err := f.Filter(mid, out, false, false); err != nil {
				t.Fatal(err)
			}
			got := env.fetch(t, out)
			if want := asABGR(t, src); got.Geometry() != want.Geometry() || string(got.Data) != string(want.Data) {
				t.Error("transposing twice changed the image")
			}
		})
	}
}

func TestTransposeInPlace(t *testing.T) {
	env := newTestEnv(t)
	f := NewTranspose(env.rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src := gradient(t, 9, 4)
	want := &gpufilter.Mat{}
	if err := f.Filter(src, want, true, false); err != nil {
		t.Fatal(err)
	}
	for _, loc := range []gpufilter.Location{gpufilter.DeviceBuffer, gpufilter.DeviceImage} {
		t.Run(loc.String(), func(t *testing.T) {
			m := env.place(t, src, loc)
			if err := f.Filter(m, m, true, false); err != nil {
				t.Fatal(err)
			}
			got := env.fetch(t, m)
			if got.Geometry() != want.Geometry() || string(got.Data) != string(want.Data) {
				t.Errorf("in-place transpose = %s, want %s with the host result", got.Geometry(), want.Geometry())
			}
		})
	}
}

func TestTransposeInvalid(t *testing.T) {
	f := NewTranspose(nil, compute.DefaultDevice)
	checkInvalid(t, f, func(dst *gpufilter.Mat) error {
		return f.Filter(gradient(t, 3, 2), dst, true, false)
	})
}
