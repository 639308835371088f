package filter

import (
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

func TestHueRotation(t *testing.T) {
	env := newTestEnv(t)
	f := NewHue(env.rt, compute.DefaultDevice)
	if !f.Valid() {
		t.Fatalf("NewHue: %v", f.Err())
	}
	defer func() { _ = f.Close() }()

	tests := []struct {
		name    string
		in      [3]float32
		degrees float32
		want    [4]byte
	}{
		{"red to cyan", [3]float32{1, 0, 0}, 180, [4]byte{0, 255, 255, 255}},
		{"red to green", [3]float32{1, 0, 0}, 120, [4]byte{0, 255, 0, 255}},
		{"green to blue", [3]float32{0, 1, 0}, 120, [4]byte{0, 0, 255, 255}},
		{"full turn", [3]float32{1, 0, 0}, 360, [4]byte{255, 0, 0, 255}},
		{"negative", [3]float32{0, 0, 1}, -120, [4]byte{0, 255, 0, 255}},
		{"gray unchanged", [3]float32{0.5, 0.5, 0.5}, 90, [4]byte{128, 128, 128, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &gpufilter.Mat{}
			if err := f.Filter(solid(t, 2, 2, tt.in), dst, tt.degrees); err != nil {
				t.Fatal(err)
			}
			if g := dst.Geometry(); g != gpufilter.NewGeometry(2, 2, gpufilter.ABGR, gpufilter.Int8) {
				t.Fatalf("geometry = %s", g)
			}
			for px := range 4 {
				if !bytesApproxEqual(dst.Data[px*4:px*4+4], tt.want[:], 1) {
					t.Errorf("pixel %d = %v, want %v", px, dst.Data[px*4:px*4+4], tt.want)
				}
			}
		})
	}
}

func TestHueZeroIsIdentity(t *testing.T) {
	env := newTestEnv(t)
	f := NewHue(env.rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src := gradient(t, 7, 5)
	dst := &gpufilter.Mat{}
	if err := f.Filter(src, dst, 0); err != nil {
		t.Fatal(err)
	}
	if want := asABGR(t, src); !bytesApproxEqual(dst.Data, want.Data, 1) {
		t.Errorf("hue 0 changed the image:\n got %v\nwant %v", dst.Data, want.Data)
	}
}

func TestHueKeepsAlpha(t *testing.T) {
	env := newTestEnv(t)
	f := NewHue(env.rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	src, _ := gpufilter.NewMat(gpufilter.NewGeometry(1, 1, gpufilter.ABGR, gpufilter.Int8))
	src.SetRGBA(0, 0, [4]float32{1, 0, 0, 0.4})
	dst := &gpufilter.Mat{}
	if err := f.Filter(src, dst, 60); err != nil {
		t.Fatal(err)
	}
	if dst.Data[3] != src.Data[3] {
		t.Errorf("alpha = %d, want %d", dst.Data[3], src.Data[3])
	}
}

func TestHueLocations(t *testing.T) {
	env := newTestEnv(t)
	f := NewHue(env.rt, compute.DefaultDevice)
	defer func() { _ = f.Close() }()

	// 11x9 leaves partial 8x8 workgroups on both axes.
	src := gradient(t, 11, 9)
	ref := &gpufilter.Mat{}
	if err := f.Filter(src, ref, 45); err != nil {
		t.Fatal(err)
	}

	for _, inLoc := range locations {
		for _, outLoc := range locations {
			t.Run(inLoc.String()+"-to-"+outLoc.String(), func(t *testing.T) {
				in := env.place(t, src, inLoc)
				out := env.empty(t, outLoc)
				if err := f.Filter(in, out, 45); err != nil {
					t.Fatal(err)
				}
				got := env.fetch(t, out)
				if got.Geometry() != ref.Geometry() || string(got.Data) != string(ref.Data) {
					t.Error("result differs from host to host")
				}
			})
		}
	}
}

func TestHueInvalid(t *testing.T) {
	f := NewHue(nil, compute.DefaultDevice)
	checkInvalid(t, f, func(dst *gpufilter.Mat) error {
		return f.Filter(solid(t, 3, 3, [3]float32{1, 0, 0}), dst, 90)
	})
}

func TestHSVRoundTrip(t *testing.T) {
	colors := [][3]float32{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {0.2, 0.4, 0.6}, {0.9, 0.1, 0.5}, {0, 0, 0}, {1, 1, 1},
	}
	for _, c := range colors {
		h, s, v := rgbToHSV(c[0], c[1], c[2])
		r, g, b := hsvToRGB(h, s, v)
		if absf32(r-c[0]) > 1e-5 || absf32(g-c[1]) > 1e-5 || absf32(b-c[2]) > 1e-5 {
			t.Errorf("round trip %v = (%v, %v, %v)", c, r, g, b)
		}
	}
}

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
