package fusion

import (
	"testing"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

// TestShadersMatchHostKernels runs both transitions on every hal backend
// that opens and compares them with the host backend's Go kernels.
func TestShadersMatchHostKernels(t *testing.T) {
	var hals []*compute.Runtime
	for _, name := range compute.Backends() {
		if name == "host" {
			continue
		}
		rt, err := compute.Open(compute.WithBackend(name))
		if err != nil {
			t.Logf("%s: %v", name, err)
			continue
		}
		t.Cleanup(func() { _ = rt.Close() })
		hals = append(hals, rt)
	}
	if len(hals) == 0 {
		t.Skip("no hal backend available")
	}
	host := hostRuntime(t)
	src1, src2 := gradient(t, 12, 10), gradient(t, 7, 15)

	tests := []struct {
		name string
		run  func(rt *compute.Runtime, dst *gpufilter.Mat) error
	}{
		{"squareswire", func(rt *compute.Runtime, dst *gpufilter.Mat) error {
			f := NewSquaresWire(rt, compute.DefaultDevice)
			defer f.Close()
			return f.Filter(src1, src2, dst, 0.4, 4, [2]float32{1, -0.5}, 1.6)
		}},
		{"squeeze", func(rt *compute.Runtime, dst *gpufilter.Mat) error {
			f := NewSqueeze(rt, compute.DefaultDevice)
			defer f.Close()
			return f.Filter(src1, src2, dst, 0.35, 0.04)
		}},
	}
	for _, rt := range hals {
		for _, tt := range tests {
			t.Run(rt.Backend()+"/"+tt.name, func(t *testing.T) {
				want, got := &gpufilter.Mat{}, &gpufilter.Mat{}
				if err := tt.run(host, want); err != nil {
					t.Fatalf("host: %v", err)
				}
				if err := tt.run(rt, got); err != nil {
					t.Fatalf("%s: %v", rt.Backend(), err)
				}
				if got.Geometry() != want.Geometry() {
					t.Fatalf("geometry = %s, want %s", got.Geometry(), want.Geometry())
				}
				// Bilinear taps can round either way by two 8-bit steps, and a
				// pixel exactly on a square edge may land on either side.
				outliers := 0
				for i := range want.Data {
					if d := int(got.Data[i]) - int(want.Data[i]); d < -2 || d > 2 {
						outliers++
					}
				}
				if limit := len(want.Data) / 100; outliers > limit {
					t.Errorf("%d bytes differ from host, allowed %d", outliers, limit)
				}
			})
		}
	}
}
