package filter

import (
	"context"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// Filter2DParams is the parameter block of the convolution program.
type Filter2DParams struct {
	W         int32 `wgsl:"w"`
	H         int32 `wgsl:"h"`
	CStep     int32 `wgsl:"cstep"`
	Format    int32 `wgsl:"format"`
	Type      int32 `wgsl:"etype"`
	OutW      int32 `wgsl:"out_w"`
	OutH      int32 `wgsl:"out_h"`
	OutCStep  int32 `wgsl:"out_cstep"`
	OutFormat int32 `wgsl:"out_format"`
	OutType   int32 `wgsl:"out_etype"`
	KW        int32 `wgsl:"kw"`
	KH        int32 `wgsl:"kh"`
	AnchorX   int32 `wgsl:"ax"`
	AnchorY   int32 `wgsl:"ay"`
}

const filter2DBody = `fn convolve(x: i32, y: i32) {
    var acc = vec4<f32>(0.0);
    for (var ky = 0; ky < p.kh; ky = ky + 1) {
        let sy = clamp(y + ky - p.ay, 0, p.h - 1);
        for (var kx = 0; kx < p.kw; kx = kx + 1) {
            let sx = clamp(x + kx - p.ax, 0, p.w - 1);
            acc = acc + weights_data[ky * p.kw + kx] * load_rgba_src(sx, sy, p.w, p.cstep, p.format, p.etype);
        }
    }
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, clamp(acc, vec4<f32>(0.0), vec4<f32>(1.0)));
}`

// Filter2DLayout returns the convolution program layout. Binding 2 holds
// the kernel weights as f32.
func Filter2DLayout() op.Layout {
	return op.Layout{
		Name:   "filter2d",
		Params: Filter2DParams{},
		Bindings: []op.Binding{
			{Name: "src", Access: shader.ReadOnly},
			{Name: "dst", Access: shader.WriteOnly},
			{Name: "weights", Access: shader.ReadFloat},
		},
		Body:   filter2DBody,
		Width:  "p.out_w",
		Height: "p.out_h",
		Call:   "convolve(gx, gy)",
		Kernel: filter2DKernel,
	}
}

func filter2DKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[Filter2DParams](params)
	src := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
	out := shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType)
	kw, kh := int(p.KW), int(p.KH)
	ax, ay := int(p.AnchorX), int(p.AnchorY)
	weights := make([]float32, kw*kh)
	for i := range weights {
		weights[i] = bufs[2].Float32(i)
	}

	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= out.W || y >= out.H {
			return
		}
		var acc [4]float32
		for ky := range kh {
			sy := clampInt(y+ky-ay, 0, src.H-1)
			for kx := range kw {
				sx := clampInt(x+kx-ax, 0, src.W-1)
				w := weights[ky*kw+kx]
				v := bufs[0].LoadRGBA(src, sx, sy)
				for c := range acc {
					acc[c] += w * v[c]
				}
			}
		}
		for c := range acc {
			acc[c] = math32.Max(0, math32.Min(1, acc[c]))
		}
		bufs[1].StoreRGBA(out, x, y, acc)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Filter2D convolves images with a 2D kernel. Borders clamp to the edge
// and all four channels are convolved.
type Filter2D struct {
	base *op.Base
}

// NewFilter2D builds a convolution operator on adapter gpuIndex of rt.
func NewFilter2D(rt *compute.Runtime, gpuIndex int) *Filter2D {
	return &Filter2D{base: op.New("filter2d", rt, gpuIndex, Filter2DLayout().Stage(op.DefaultLocalSize))}
}

// Valid reports whether the operator can run.
func (f *Filter2D) Valid() bool { return f.base.Valid() }

// Err returns why the operator is invalid.
func (f *Filter2D) Err() error { return f.base.Err() }

// Close releases the operator's device resources.
func (f *Filter2D) Close() error { return f.base.Close() }

// Filter writes src convolved with k into dst.
func (f *Filter2D) Filter(src, dst gpufilter.Matrix, k Kernel) error {
	if err := f.base.Check(); err != nil {
		return err
	}
	if err := k.Validate(); err != nil {
		return err
	}
	ax, ay := k.Anchor()

	//nolint:gosec // G115: kernel sizes are validated and small
	return f.base.Filter(context.Background(), src, dst, func(sg, og gpufilter.Geometry) []byte {
		var p Filter2DParams
		p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(sg)
		p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(og)
		p.KW, p.KH = int32(k.W), int32(k.H)
		p.AnchorX, p.AnchorY = int32(ax), int32(ay)
		return shader.MustEncodeParams(p)
	}, k.mat())
}
