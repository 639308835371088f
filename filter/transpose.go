package filter

import (
	"context"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// TransposeParams is the parameter block of the transpose program.
type TransposeParams struct {
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
	FlipX     int32 `wgsl:"flip_x"`
	FlipY     int32 `wgsl:"flip_y"`
}

const transposeBody = `fn transpose_pixel(x: i32, y: i32) {
    var sx = y;
    var sy = x;
    if (p.flip_x == 1) {
        sx = p.w - 1 - sx;
    }
    if (p.flip_y == 1) {
        sy = p.h - 1 - sy;
    }
    let rgba = load_rgba_src(sx, sy, p.w, p.cstep, p.format, p.etype);
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, rgba);
}`

// TransposeLayout returns the transpose program layout.
func TransposeLayout() op.Layout {
	return op.Layout{
		Name:   "transpose",
		Params: TransposeParams{},
		Bindings: []op.Binding{
			{Name: "src", Access: shader.ReadOnly},
			{Name: "dst", Access: shader.WriteOnly},
		},
		Body:   transposeBody,
		Width:  "p.out_w",
		Height: "p.out_h",
		Call:   "transpose_pixel(gx, gy)",
		Kernel: transposeKernel,
	}
}

func transposeKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[TransposeParams](params)
	src := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
	out := shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType)
	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= out.W || y >= out.H {
			return
		}
		sx, sy := y, x
		if p.FlipX == 1 {
			sx = src.W - 1 - sx
		}
		if p.FlipY == 1 {
			sy = src.H - 1 - sy
		}
		bufs[1].StoreRGBA(out, x, y, bufs[0].LoadRGBA(src, sx, sy))
	}
}

// Transpose swaps the axes of an image: output pixel (x, y) is source
// pixel (y, x), optionally mirrored along the source axes first.
type Transpose struct {
	base *op.Base
}

// NewTranspose builds a transpose operator on adapter gpuIndex of rt.
func NewTranspose(rt *compute.Runtime, gpuIndex int) *Transpose {
	return &Transpose{base: op.New("transpose", rt, gpuIndex, TransposeLayout().Stage(op.DefaultLocalSize))}
}

// Valid reports whether the operator can run.
func (f *Transpose) Valid() bool { return f.base.Valid() }

// Err returns why the operator is invalid.
func (f *Transpose) Err() error { return f.base.Err() }

// Close releases the operator's device resources.
func (f *Transpose) Close() error { return f.base.Close() }

// Filter writes src transposed into dst, described as H x W 4-channel
// Int8 ABGR. flipX mirrors source columns and flipY source rows.
func (f *Transpose) Filter(src, dst gpufilter.Matrix, flipX, flipY bool) error {
	if err := f.base.Check(); err != nil {
		return err
	}
	sg := src.Geometry()
	if err := op.CheckSource(sg); err != nil {
		return err
	}

	g := gpufilter.NewGeometry(sg.H, sg.W, gpufilter.ABGR, gpufilter.Int8)
	return f.base.DoFrom(context.Background(), []gpufilter.Matrix{src}, dst, g, func(cmd *compute.Command, out gpufilter.Matrix) error {
		var p TransposeParams
		p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(sg)
		p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(out.Geometry())
		p.FlipX, p.FlipY = boolParam(flipX), boolParam(flipY)
		return cmd.RecordPipeline(f.base.Pipeline(0), []gpufilter.Matrix{src, out}, shader.MustEncodeParams(p), out.Geometry())
	})
}

func boolParam(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
