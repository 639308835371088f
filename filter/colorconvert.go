package filter

import (
	"context"
	"fmt"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// ColorConvert rewrites images into another color format and element type
// with the same conversion program RecordClone uses.
type ColorConvert struct {
	base *op.Base
}

// NewColorConvert builds a conversion operator on adapter gpuIndex of rt.
func NewColorConvert(rt *compute.Runtime, gpuIndex int) *ColorConvert {
	return &ColorConvert{base: op.New("colorconvert", rt, gpuIndex, op.Stage{
		Program:  compute.ConvertProgram(),
		Bindings: 2,
		Local:    compute.ConvertLocalSize,
	})}
}

// Valid reports whether the operator can run.
func (f *ColorConvert) Valid() bool { return f.base.Valid() }

// Err returns why the operator is invalid.
func (f *ColorConvert) Err() error { return f.base.Err() }

// Close releases the operator's device resources.
func (f *ColorConvert) Close() error { return f.base.Close() }

// Filter writes src into dst, described as the source size in format with
// elements of type t. Planar formats are rejected with
// gpufilter.ErrUnsupportedFormat.
func (f *ColorConvert) Filter(src, dst gpufilter.Matrix, format gpufilter.ColorFormat, t gpufilter.ElemType) error {
	if err := f.base.Check(); err != nil {
		return err
	}
	sg := src.Geometry()
	if err := op.CheckSource(sg); err != nil {
		return err
	}
	if !format.Supported() {
		return fmt.Errorf("%w: %s", gpufilter.ErrUnsupportedFormat, format)
	}
	g := gpufilter.NewGeometry(sg.W, sg.H, format, t)
	if err := g.Validate(); err != nil {
		return err
	}
	return f.base.DoFrom(context.Background(), []gpufilter.Matrix{src}, dst, g, func(cmd *compute.Command, out gpufilter.Matrix) error {
		params := shader.MustEncodeParams(compute.NewConvertParams(sg, out.Geometry()))
		return cmd.RecordPipeline(f.base.Pipeline(0), []gpufilter.Matrix{src, out}, params, out.Geometry())
	})
}
