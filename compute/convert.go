package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// ConvertParams is the parameter block of the format conversion program.
type ConvertParams struct {
	W         int32 `wgsl:"w"`
	H         int32 `wgsl:"h"`
	CStep     int32 `wgsl:"cstep"`
	Format    int32 `wgsl:"format"`
	Type      int32 `wgsl:"etype"`
	OutCStep  int32 `wgsl:"out_cstep"`
	OutFormat int32 `wgsl:"out_format"`
	OutType   int32 `wgsl:"out_etype"`
}

// NewConvertParams describes a conversion from src to dst. Both must have
// the same width and height.
func NewConvertParams(src, dst gpufilter.Geometry) ConvertParams {
	//nolint:gosec // G115: geometry values are validated and small
	return ConvertParams{
		W:         int32(src.W),
		H:         int32(src.H),
		CStep:     int32(src.C),
		Format:    int32(src.Format),
		Type:      int32(src.Type),
		OutCStep:  int32(dst.C),
		OutFormat: int32(dst.Format),
		OutType:   int32(dst.Type),
	}
}

func (p ConvertParams) src() gpufilter.Geometry {
	return shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
}

func (p ConvertParams) dst() gpufilter.Geometry {
	return shader.MatGeometry(p.W, p.H, p.OutCStep, p.OutFormat, p.OutType)
}

// ConvertLocalSize is the workgroup size of the conversion program.
var ConvertLocalSize = [3]uint32{16, 16, 1}

var (
	convertOnce sync.Once
	convertProg shader.Program
)

// ConvertProgram returns the program that rewrites every pixel of binding
// 0 into binding 1 with a different format or element type. RecordClone
// uses it to bridge layouts, and the ColorConvert operator exposes it.
func ConvertProgram() shader.Program {
	convertOnce.Do(func() {
		params, err := shader.ParamsFragment(2, ConvertParams{})
		if err != nil {
			panic(fmt.Sprintf("compute: convert params: %v", err))
		}
		convertProg = shader.Program{
			Template: shader.Template{
				Name: "convert",
				Fragments: []shader.Fragment{
					shader.Header(),
					params,
					shader.Storage("src", 0, shader.ReadOnly),
					shader.Storage("dst", 1, shader.WriteOnly),
					shader.Accessors("src", shader.ReadOnly),
					shader.Accessors("dst", shader.WriteOnly),
					shader.Body("convert", `fn convert_pixel(x: i32, y: i32) {
    let v = load_rgba_src(x, y, p.w, p.cstep, p.format, p.etype);
    store_rgba_dst(x, y, p.w, p.out_cstep, p.out_format, p.out_etype, v);
}`),
					shader.Entry("p.w", "p.h", "convert_pixel(gx, gy)"),
				},
			},
			Kernel: convertKernel,
			Params: ConvertParams{},
		}
	})
	return convertProg
}

func convertKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[ConvertParams](params)
	src, dst := p.src(), p.dst()
	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= src.W || y >= src.H {
			return
		}
		bufs[1].StoreRGBA(dst, x, y, bufs[0].LoadRGBA(src, x, y))
	}
}
