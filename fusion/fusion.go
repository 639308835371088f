package fusion

import (
	"context"
	"errors"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// ErrInvalidParams is returned for transition parameters the programs
// cannot evaluate.
var ErrInvalidParams = errors.New("fusion: invalid parameters")

// bindings is the layout shared by the fusion programs.
var bindings = []op.Binding{
	{Name: "src", Access: shader.ReadOnly},
	{Name: "dst", Access: shader.WriteOnly},
	{Name: "src2", Access: shader.ReadOnly},
}

// samplers map a point in [0,1]^2, y up, to the nearest source pixel.
const samplers = `fn point_of(x: i32, y: i32) -> vec2<f32> {
    return vec2<f32>(f32(x) / f32(max(p.out_w - 1, 1)), 1.0 - f32(y) / f32(max(p.out_h - 1, 1)));
}

fn sample_src(pt: vec2<f32>) -> vec4<f32> {
    return load_rgba_src(i32(pt.x * f32(p.w - 1)), i32((1.0 - pt.y) * f32(p.h - 1)), p.w, p.cstep, p.format, p.etype);
}

fn sample_src2(pt: vec2<f32>) -> vec4<f32> {
    return load_rgba_src2(i32(pt.x * f32(p.w2 - 1)), i32((1.0 - pt.y) * f32(p.h2 - 1)), p.w2, p.cstep2, p.format2, p.etype2);
}`

// geometry is the part of every fusion parameter block that describes the
// three matrices.
type geometry struct {
	src, src2, out gpufilter.Geometry
}

func (g geometry) point(x, y int) (float32, float32) {
	return float32(x) / float32(max(g.out.W-1, 1)), 1 - float32(y)/float32(max(g.out.H-1, 1))
}

func sample(b shader.Buffer, g gpufilter.Geometry, px, py float32) [4]float32 {
	return b.LoadRGBA(g, int(px*float32(g.W-1)), int((1-py)*float32(g.H-1)))
}

// base runs a fusion program over two sources.
type base struct {
	*op.Base
}

func newBase(name string, rt *compute.Runtime, gpuIndex int, l op.Layout) base {
	l.Bindings = bindings
	l.Helpers = append([]shader.Fragment{shader.Helper("samplers", samplers)}, l.Helpers...)
	l.Width, l.Height = "p.out_w", "p.out_h"
	return base{op.New(name, rt, gpuIndex, l.Stage(op.DefaultLocalSize))}
}

// fuse validates both sources and records the program with the block
// params returns.
func (b base) fuse(src1, src2, dst gpufilter.Matrix, params func(geometry) []byte) error {
	if err := b.Check(); err != nil {
		return err
	}
	g1, g2 := src1.Geometry(), src2.Geometry()
	if err := op.CheckSource(g1); err != nil {
		return err
	}
	if err := op.CheckSource(g2); err != nil {
		return err
	}
	return b.DoFrom(context.Background(), []gpufilter.Matrix{src1, src2}, dst, op.Output(g1), func(cmd *compute.Command, out gpufilter.Matrix) error {
		og := out.Geometry()
		return cmd.RecordPipeline(b.Pipeline(0), []gpufilter.Matrix{src1, out, src2},
			params(geometry{src: g1, src2: g2, out: og}), og)
	})
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}
