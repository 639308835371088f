package fusion

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// SquaresWireParams is the parameter block of the squares-wire program.
type SquaresWireParams struct {
	W          int32 `wgsl:"w"`
	H          int32 `wgsl:"h"`
	CStep      int32 `wgsl:"cstep"`
	Format     int32 `wgsl:"format"`
	Type       int32 `wgsl:"etype"`
	W2         int32 `wgsl:"w2"`
	H2         int32 `wgsl:"h2"`
	CStep2     int32 `wgsl:"cstep2"`
	Format2    int32 `wgsl:"format2"`
	Type2      int32 `wgsl:"etype2"`
	OutW       int32 `wgsl:"out_w"`
	OutH       int32 `wgsl:"out_h"`
	OutCStep   int32 `wgsl:"out_cstep"`
	OutFormat  int32 `wgsl:"out_format"`
	OutType    int32 `wgsl:"out_etype"`
	Progress   float32
	Smoothness float32
	Size       int32 `wgsl:"size"`
	DirectionX float32 `wgsl:"direction_x"`
	DirectionY float32 `wgsl:"direction_y"`
}

const squaresWireBody = `fn squares_wire(x: i32, y: i32) {
    let pt = point_of(x, y);
    var v = normalize(vec2<f32>(p.direction_x, p.direction_y));
    v = v / (abs(v.x) + abs(v.y));
    let d = v.x * 0.5 + v.y * 0.5;
    let soft = p.smoothness;
    let pr = smoothstep(-soft, 0.0, v.x * pt.x + v.y * pt.y - (d - 0.5 + p.progress * (1.0 + soft)));
    let sq = fract(pt * f32(p.size));
    let lo = pr / 2.0;
    let hi = 1.0 - pr / 2.0;
    let a = (1.0 - step(p.progress, 0.0)) * step(lo, sq.x) * step(lo, sq.y) * step(sq.x, hi) * step(sq.y, hi);
    let rgba = mix(sample_src(pt), sample_src2(pt), vec4<f32>(a));
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, rgba);
}`

// SquaresWireLayout returns the squares-wire program layout.
func SquaresWireLayout() op.Layout {
	return op.Layout{
		Name:   "squares_wire",
		Params: SquaresWireParams{},
		Body:   squaresWireBody,
		Call:   "squares_wire(gx, gy)",
		Kernel: squaresWireKernel,
	}
}

func squaresWireKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[SquaresWireParams](params)
	g := geometry{
		src:  shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type),
		src2: shader.MatGeometry(p.W2, p.H2, p.CStep2, p.Format2, p.Type2),
		out:  shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType),
	}

	n := math32.Hypot(p.DirectionX, p.DirectionY)
	vx, vy := p.DirectionX/n, p.DirectionY/n
	l1 := math32.Abs(vx) + math32.Abs(vy)
	vx, vy = vx/l1, vy/l1
	d := vx*0.5 + vy*0.5
	soft := p.Smoothness
	squares := float32(p.Size)
	started := 1 - step(p.Progress, 0)

	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= g.out.W || y >= g.out.H {
			return
		}
		px, py := g.point(x, y)
		pr := smoothstep(-soft, 0, vx*px+vy*py-(d-0.5+p.Progress*(1+soft)))
		sx, sy := fract(px*squares), fract(py*squares)
		lo, hi := pr/2, 1-pr/2
		a := started * step(lo, sx) * step(lo, sy) * step(sx, hi) * step(sy, hi)

		from := sample(bufs[0], g.src, px, py)
		to := sample(bufs[2], g.src2, px, py)
		var rgba [4]float32
		for i := range rgba {
			rgba[i] = from[i]*(1-a) + to[i]*a
		}
		bufs[1].StoreRGBA(g.out, x, y, rgba)
	}
}

// step matches WGSL step: 1 when x >= edge.
func step(edge, x float32) float32 {
	if x < edge {
		return 0
	}
	return 1
}

// smoothstep matches WGSL smoothstep for e0 < e1.
func smoothstep(e0, e1, x float32) float32 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

// fract matches WGSL fract: x - floor(x).
func fract(x float32) float32 {
	return x - math32.Floor(x)
}

// SquaresWire reveals src2 through a grid of squares that grow along a
// sweeping front.
type SquaresWire struct {
	b base
}

// NewSquaresWire builds a squares-wire operator on adapter gpuIndex of rt.
func NewSquaresWire(rt *compute.Runtime, gpuIndex int) *SquaresWire {
	return &SquaresWire{b: newBase("squares_wire", rt, gpuIndex, SquaresWireLayout())}
}

// Valid reports whether the operator can run.
func (f *SquaresWire) Valid() bool { return f.b.Valid() }

// Err returns why the operator is invalid.
func (f *SquaresWire) Err() error { return f.b.Err() }

// Close releases the operator's device resources.
func (f *SquaresWire) Close() error { return f.b.Close() }

// Filter writes the transition from src1 to src2 at progress into dst.
// squares is the number of squares per axis, direction the sweep
// direction and smoothness the width of the sweeping front. progress is
// clamped to [0, 1].
func (f *SquaresWire) Filter(src1, src2, dst gpufilter.Matrix, progress float32, squares int, direction [2]float32, smoothness float32) error {
	if err := f.b.Check(); err != nil {
		return err
	}
	switch {
	case squares < 1:
		return fmt.Errorf("%w: %d squares", ErrInvalidParams, squares)
	case direction == [2]float32{}:
		return fmt.Errorf("%w: zero direction", ErrInvalidParams)
	case !(smoothness > 0):
		return fmt.Errorf("%w: smoothness %v", ErrInvalidParams, smoothness)
	}

	return f.b.fuse(src1, src2, dst, func(g geometry) []byte {
		var p SquaresWireParams
		p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(g.src)
		p.W2, p.H2, p.CStep2, p.Format2, p.Type2 = op.Scalars(g.src2)
		p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(g.out)
		p.Progress = clamp01(progress)
		p.Smoothness = smoothness
		p.Size = int32(min(squares, 1<<20)) //nolint:gosec // G115: bounded above
		p.DirectionX, p.DirectionY = direction[0], direction[1]
		return shader.MustEncodeParams(p)
	})
}
