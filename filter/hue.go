package filter

import (
	"context"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// HueParams is the parameter block of the hue program.
type HueParams struct {
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
	Hue       float32
}

// hsvHelpers converts between RGB and HSV with hue in [0, 1).
const hsvHelpers = `fn rgb_to_hsv(c: vec3<f32>) -> vec3<f32> {
    let mx = max(c.x, max(c.y, c.z));
    let mn = min(c.x, min(c.y, c.z));
    let d = mx - mn;
    var h = 0.0;
    if (d > 0.0) {
        if (mx == c.x) {
            h = (c.y - c.z) / d;
            if (h < 0.0) {
                h = h + 6.0;
            }
        } else if (mx == c.y) {
            h = (c.z - c.x) / d + 2.0;
        } else {
            h = (c.x - c.y) / d + 4.0;
        }
    }
    var s = 0.0;
    if (mx > 0.0) {
        s = d / mx;
    }
    return vec3<f32>(h / 6.0, s, mx);
}

fn hsv_channel(c: vec3<f32>, n: f32) -> f32 {
    let k = (n + c.x * 6.0) % 6.0;
    return c.z - c.z * c.y * max(min(min(k, 4.0 - k), 1.0), 0.0);
}

fn hsv_to_rgb(c: vec3<f32>) -> vec3<f32> {
    return vec3<f32>(hsv_channel(c, 5.0), hsv_channel(c, 3.0), hsv_channel(c, 1.0));
}`

const hueBody = `fn hue_pixel(x: i32, y: i32) {
    let rgba = load_rgba_src(x, y, p.w, p.cstep, p.format, p.etype);
    var hsv = rgb_to_hsv(rgba.xyz);
    hsv.x = fract(hsv.x + p.hue / 360.0);
    let rgb = hsv_to_rgb(hsv);
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, vec4<f32>(rgb, rgba.w));
}`

// HueLayout returns the hue program layout.
func HueLayout() op.Layout {
	return op.Layout{
		Name:   "hue",
		Params: HueParams{},
		Bindings: []op.Binding{
			{Name: "src", Access: shader.ReadOnly},
			{Name: "dst", Access: shader.WriteOnly},
		},
		Helpers: []shader.Fragment{shader.Helper("hsv", hsvHelpers)},
		Body:    hueBody,
		Width:   "p.out_w",
		Height:  "p.out_h",
		Call:    "hue_pixel(gx, gy)",
		Kernel:  hueKernel,
	}
}

func hueKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[HueParams](params)
	src := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
	out := shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType)
	shift := p.Hue / 360
	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= out.W || y >= out.H {
			return
		}
		rgba := bufs[0].LoadRGBA(src, x, y)
		h, s, v := rgbToHSV(rgba[0], rgba[1], rgba[2])
		h = fract(h + shift)
		r, g, b := hsvToRGB(h, s, v)
		bufs[1].StoreRGBA(out, x, y, [4]float32{r, g, b, rgba[3]})
	}
}

func rgbToHSV(r, g, b float32) (h, s, v float32) {
	mx := math32.Max(r, math32.Max(g, b))
	mn := math32.Min(r, math32.Min(g, b))
	d := mx - mn
	if d > 0 {
		switch mx {
		case r:
			h = (g - b) / d
			if h < 0 {
				h += 6
			}
		case g:
			h = (b-r)/d + 2
		default:
			h = (r-g)/d + 4
		}
	}
	if mx > 0 {
		s = d / mx
	}
	return h / 6, s, mx
}

func hsvChannel(h, s, v, n float32) float32 {
	k := math32.Mod(n+h*6, 6)
	return v - v*s*math32.Max(math32.Min(math32.Min(k, 4-k), 1), 0)
}

func hsvToRGB(h, s, v float32) (r, g, b float32) {
	return hsvChannel(h, s, v, 5), hsvChannel(h, s, v, 3), hsvChannel(h, s, v, 1)
}

// fract matches WGSL fract: x - floor(x).
func fract(x float32) float32 {
	return x - math32.Floor(x)
}

// Hue rotates the hue of every pixel.
type Hue struct {
	base *op.Base
}

// NewHue builds a hue operator on adapter gpuIndex of rt.
func NewHue(rt *compute.Runtime, gpuIndex int) *Hue {
	return &Hue{base: op.New("hue", rt, gpuIndex, HueLayout().Stage(op.DefaultLocalSize))}
}

// Valid reports whether the operator can run.
func (f *Hue) Valid() bool { return f.base.Valid() }

// Err returns why the operator is invalid.
func (f *Hue) Err() error { return f.base.Err() }

// Close releases the operator's device resources.
func (f *Hue) Close() error { return f.base.Close() }

// Filter writes src with its hue rotated by degrees into dst.
func (f *Hue) Filter(src, dst gpufilter.Matrix, degrees float32) error {
	return f.base.Filter(context.Background(), src, dst, func(sg, og gpufilter.Geometry) []byte {
		var p HueParams
		p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(sg)
		p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(og)
		p.Hue = degrees
		return shader.MustEncodeParams(p)
	})
}
