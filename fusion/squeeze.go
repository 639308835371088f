package fusion

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// SqueezeParams is the parameter block of the squeeze program.
type SqueezeParams struct {
	W               int32 `wgsl:"w"`
	H               int32 `wgsl:"h"`
	CStep           int32 `wgsl:"cstep"`
	Format          int32 `wgsl:"format"`
	Type            int32 `wgsl:"etype"`
	W2              int32 `wgsl:"w2"`
	H2              int32 `wgsl:"h2"`
	CStep2          int32 `wgsl:"cstep2"`
	Format2         int32 `wgsl:"format2"`
	Type2           int32 `wgsl:"etype2"`
	OutW            int32 `wgsl:"out_w"`
	OutH            int32 `wgsl:"out_h"`
	OutCStep        int32 `wgsl:"out_cstep"`
	OutFormat       int32 `wgsl:"out_format"`
	OutType         int32 `wgsl:"out_etype"`
	Progress        float32
	ColorSeparation float32 `wgsl:"color_separation"`
}

// minSqueeze keeps 1 - progress away from zero.
const minSqueeze = 1e-6

const squeezeBody = `fn squeeze(x: i32, y: i32) {
    let pt = point_of(x, y);
    let sy = 0.5 + (pt.y - 0.5) / max(1.0 - p.progress, 1e-6);
    var rgba: vec4<f32>;
    if (sy < 0.0 || sy > 1.0) {
        rgba = sample_src2(pt);
    } else {
        let fp = vec2<f32>(pt.x, sy);
        let off = p.progress * vec2<f32>(0.0, p.color_separation);
        let c = sample_src(fp);
        let cn = sample_src(clamp(fp - off, vec2<f32>(0.0), vec2<f32>(1.0)));
        let cp = sample_src(clamp(fp + off, vec2<f32>(0.0), vec2<f32>(1.0)));
        rgba = vec4<f32>(cn.x, c.y, cp.z, c.w);
    }
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, rgba);
}`

// SqueezeLayout returns the squeeze program layout.
func SqueezeLayout() op.Layout {
	return op.Layout{
		Name:   "squeeze",
		Params: SqueezeParams{},
		Body:   squeezeBody,
		Call:   "squeeze(gx, gy)",
		Kernel: squeezeKernel,
	}
}

func squeezeKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[SqueezeParams](params)
	g := geometry{
		src:  shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type),
		src2: shader.MatGeometry(p.W2, p.H2, p.CStep2, p.Format2, p.Type2),
		out:  shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType),
	}
	scale := math32.Max(1-p.Progress, minSqueeze)
	off := p.Progress * p.ColorSeparation

	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= g.out.W || y >= g.out.H {
			return
		}
		px, py := g.point(x, y)
		sy := 0.5 + (py-0.5)/scale
		if sy < 0 || sy > 1 {
			bufs[1].StoreRGBA(g.out, x, y, sample(bufs[2], g.src2, px, py))
			return
		}
		c := sample(bufs[0], g.src, px, sy)
		cn := sample(bufs[0], g.src, clamp01(px), clamp01(sy-off))
		cp := sample(bufs[0], g.src, clamp01(px), clamp01(sy+off))
		bufs[1].StoreRGBA(g.out, x, y, [4]float32{cn[0], c[1], cp[2], c[3]})
	}
}

// Squeeze squeezes src1 vertically into a shrinking band that reveals
// src2, splitting its red and blue channels apart as it goes.
type Squeeze struct {
	b base
}

// NewSqueeze builds a squeeze operator on adapter gpuIndex of rt.
func NewSqueeze(rt *compute.Runtime, gpuIndex int) *Squeeze {
	return &Squeeze{b: newBase("squeeze", rt, gpuIndex, SqueezeLayout())}
}

// Valid reports whether the operator can run.
func (f *Squeeze) Valid() bool { return f.b.Valid() }

// Err returns why the operator is invalid.
func (f *Squeeze) Err() error { return f.b.Err() }

// Close releases the operator's device resources.
func (f *Squeeze) Close() error { return f.b.Close() }

// Filter writes the transition from src1 to src2 at progress into dst.
// colorSeparation is the vertical red/blue offset at full progress, in
// normalized units. progress is clamped to [0, 1].
func (f *Squeeze) Filter(src1, src2, dst gpufilter.Matrix, progress, colorSeparation float32) error {
	return f.b.fuse(src1, src2, dst, func(g geometry) []byte {
		var p SqueezeParams
		p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(g.src)
		p.W2, p.H2, p.CStep2, p.Format2, p.Type2 = op.Scalars(g.src2)
		p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(g.out)
		p.Progress = clamp01(progress)
		p.ColorSeparation = colorSeparation
		return shader.MustEncodeParams(p)
	})
}
