package filter

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/internal/op"
	"github.com/gogpu/gpufilter/shader"
)

// CIEClearParams is the parameter block of the clear pass.
type CIEClearParams struct {
	W int32 `wgsl:"w"`
	H int32 `wgsl:"h"`
}

// CIEAccumulateParams is the parameter block of the accumulate pass.
type CIEAccumulateParams struct {
	W         int32 `wgsl:"w"`
	H         int32 `wgsl:"h"`
	CStep     int32 `wgsl:"cstep"`
	Format    int32 `wgsl:"format"`
	Type      int32 `wgsl:"etype"`
	OutW      int32 `wgsl:"out_w"`
	OutH      int32 `wgsl:"out_h"`
	Mode      int32 `wgsl:"mode"`
	Intensity float32
}

// CIEMergeParams is the parameter block of the merge pass.
type CIEMergeParams struct {
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
	ShowColor int32 `wgsl:"show_color"`
}

const cieClearBody = `fn clear_cell(x: i32, y: i32) {
    atomicStore(&accum_data[y * p.w + x], 0);
}`

const cieAccumulateBody = `fn accumulate(x: i32, y: i32) {
    let rgba = load_rgba_src(x, y, p.w, p.cstep, p.format, p.etype);
    let xyz = vec3<f32>(
        toxyz_data[0] * rgba.x + toxyz_data[1] * rgba.y + toxyz_data[2] * rgba.z,
        toxyz_data[3] * rgba.x + toxyz_data[4] * rgba.y + toxyz_data[5] * rgba.z,
        toxyz_data[6] * rgba.x + toxyz_data[7] * rgba.y + toxyz_data[8] * rgba.z);
    var sum = xyz.x + xyz.y + xyz.z;
    if (sum == 0.0) {
        sum = 1.0;
    }
    let cx = xyz.x / sum;
    let cy = xyz.y / sum;
    var f = vec2<f32>(cx, cy);
    let d = -2.0 * cx + 12.0 * cy + 3.0;
    if (p.mode == 1) {
        f = vec2<f32>(4.0 * cx / d, 6.0 * cy / d);
    } else if (p.mode == 2) {
        f = vec2<f32>(4.0 * cx / d, 9.0 * cy / d);
    }
    let ix = i32(f32(p.out_w - 1) * f.x);
    let iy = (p.out_h - 1) - i32(f32(p.out_h - 1) * f.y);
    if (ix >= 0 && ix < p.out_w && iy >= 0 && iy < p.out_h) {
        atomicAdd(&accum_data[iy * p.out_w + ix], i32(p.intensity * 255.0));
    }
}`

const cieMergeBody = `fn merge(x: i32, y: i32) {
    var rgba = load_rgba_plot(x, y, p.w, p.cstep, p.format, p.etype);
    let hits = atomicLoad(&accum_data[y * p.w + x]);
    if (p.show_color == 1) {
        if (hits > 0) {
            rgba = rgba * (1.0 - clamp(f32(hits) / 255.0, 0.0, 1.0));
        }
    } else if (rgba.w > 0.49 && rgba.w < 0.51) {
    } else if (hits == 0) {
        rgba = vec4<f32>(0.0, 0.0, 0.0, 1.0);
    }
    rgba.w = 1.0;
    store_rgba_dst(x, y, p.out_w, p.out_cstep, p.out_format, p.out_etype, rgba);
}`

// CIE stages, in recording order.
const (
	cieClear = iota
	cieAccumulate
	cieMerge
)

// CIEClearLayout returns the program zeroing the accumulation buffer.
func CIEClearLayout() op.Layout {
	return op.Layout{
		Name:     "cie_clear",
		Params:   CIEClearParams{},
		Bindings: []op.Binding{{Name: "accum", Access: shader.AtomicInt}},
		Body:     cieClearBody,
		Width:    "p.w",
		Height:   "p.h",
		Call:     "clear_cell(gx, gy)",
		Kernel: func(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
			p := shader.Params[CIEClearParams](params)
			w, h := int(p.W), int(p.H)
			return func(inv shader.Invocation) {
				x, y := int(inv.X), int(inv.Y)
				if x >= w || y >= h {
					return
				}
				bufs[0].AtomicStoreInt32(y*w+x, 0)
			}
		},
	}
}

// CIEAccumulateLayout returns the program adding one hit per source pixel
// at its chromaticity. Binding 2 holds the row-major RGB to XYZ matrix.
func CIEAccumulateLayout() op.Layout {
	return op.Layout{
		Name:   "cie_accumulate",
		Params: CIEAccumulateParams{},
		Bindings: []op.Binding{
			{Name: "src", Access: shader.ReadOnly},
			{Name: "accum", Access: shader.AtomicInt},
			{Name: "toxyz", Access: shader.ReadFloat},
		},
		Body:   cieAccumulateBody,
		Width:  "p.w",
		Height: "p.h",
		Call:   "accumulate(gx, gy)",
		Kernel: cieAccumulateKernel,
	}
}

func cieAccumulateKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[CIEAccumulateParams](params)
	src := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
	var toXYZ mat3
	for i := range toXYZ {
		toXYZ[i] = bufs[2].Float32(i)
	}
	mode := CIEMode(p.Mode)
	outW, outH := int(p.OutW), int(p.OutH)
	delta := int32(p.Intensity * 255)

	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= src.W || y >= src.H {
			return
		}
		rgba := bufs[0].LoadRGBA(src, x, y)
		fx, fy := chromaticity(toXYZ, mode, [3]float32{rgba[0], rgba[1], rgba[2]})
		if cell, ok := plotCell(outW, outH, fx, fy); ok {
			bufs[1].AtomicAddInt32(cell, delta)
		}
	}
}

// CIEMergeLayout returns the program drawing the accumulation over the
// plot background.
func CIEMergeLayout() op.Layout {
	return op.Layout{
		Name:   "cie_merge",
		Params: CIEMergeParams{},
		Bindings: []op.Binding{
			{Name: "plot", Access: shader.ReadOnly},
			{Name: "dst", Access: shader.WriteOnly},
			{Name: "accum", Access: shader.AtomicInt},
		},
		Body:   cieMergeBody,
		Width:  "p.out_w",
		Height: "p.out_h",
		Call:   "merge(gx, gy)",
		Kernel: cieMergeKernel,
	}
}

func cieMergeKernel(params []byte, bufs []shader.Buffer) func(shader.Invocation) {
	p := shader.Params[CIEMergeParams](params)
	plot := shader.MatGeometry(p.W, p.H, p.CStep, p.Format, p.Type)
	out := shader.MatGeometry(p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType)
	showColor := p.ShowColor == 1

	return func(inv shader.Invocation) {
		x, y := int(inv.X), int(inv.Y)
		if x >= out.W || y >= out.H {
			return
		}
		rgba := bufs[0].LoadRGBA(plot, x, y)
		hits := bufs[2].AtomicLoadInt32(y*plot.W + x)
		switch {
		case showColor:
			if hits > 0 {
				k := 1 - min(max(float32(hits)/255, 0), 1)
				for i := range rgba {
					rgba[i] *= k
				}
			}
		case rgba[3] > 0.49 && rgba[3] < 0.51:
		case hits == 0:
			rgba = [4]float32{0, 0, 0, 1}
		}
		rgba[3] = 1
		bufs[1].StoreRGBA(out, x, y, rgba)
	}
}

// CIEOption configures a CIE operator.
type CIEOption func(*cieConfig)

type cieConfig struct {
	mode      CIEMode
	system    ColorSystem
	intensity float32
	showColor bool
	w, h      int
}

// Defaults of the CIE operator.
const (
	DefaultCIESize      = 256
	DefaultCIEIntensity = 0.5
)

func defaultCIEConfig() cieConfig {
	return cieConfig{
		mode:      XYY,
		system:    SRGB,
		intensity: DefaultCIEIntensity,
		showColor: true,
		w:         DefaultCIESize,
		h:         DefaultCIESize,
	}
}

func (c cieConfig) validate() error {
	switch {
	case c.mode < XYY || c.mode > LUV:
		return fmt.Errorf("filter: invalid CIE mode %d", c.mode)
	case c.w <= 1 || c.h <= 1:
		return fmt.Errorf("filter: invalid CIE plot size %dx%d", c.w, c.h)
	}
	if _, ok := colorSystems[c.system]; !ok {
		return fmt.Errorf("filter: invalid color system %d", c.system)
	}
	return nil
}

// WithMode selects the chromaticity coordinates.
func WithMode(m CIEMode) CIEOption {
	return func(c *cieConfig) { c.mode = m }
}

// WithColorSystem selects the RGB primaries.
func WithColorSystem(s ColorSystem) CIEOption {
	return func(c *cieConfig) { c.system = s }
}

// WithIntensity sets how much one source pixel adds to its cell, in
// units of 1/255.
func WithIntensity(v float32) CIEOption {
	return func(c *cieConfig) { c.intensity = v }
}

// WithShowColor selects whether hits darken the colored plot (true) or
// reveal it over black (false).
func WithShowColor(on bool) CIEOption {
	return func(c *cieConfig) { c.showColor = on }
}

// WithSize sets the plot and accumulation size.
func WithSize(w, h int) CIEOption {
	return func(c *cieConfig) { c.w, c.h = w, h }
}

// CIE plots the chromaticity of source pixels. It keeps a device int32
// accumulation buffer of the plot size across calls: Clear zeroes it,
// Accumulate adds the hits of one source, Merge draws it over the plot
// background. Filter runs all three in order in one submission.
type CIE struct {
	base *op.Base

	mu  sync.Mutex
	cfg cieConfig

	background *gpufilter.Mat
	toXYZ      *gpufilter.Mat
	plot       *compute.BufferMat
	accum      *compute.BufferMat
}

// NewCIE builds a CIE operator on adapter gpuIndex of rt.
func NewCIE(rt *compute.Runtime, gpuIndex int, opts ...CIEOption) *CIE {
	cfg := defaultCIEConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &CIE{cfg: cfg}
	c.base = op.New("cie", rt, gpuIndex,
		CIEClearLayout().Stage(op.DefaultLocalSize),
		CIEAccumulateLayout().Stage(op.DefaultLocalSize),
		CIEMergeLayout().Stage(op.DefaultLocalSize),
	)
	if c.base.Valid() {
		if err := c.init(); err != nil {
			c.base.Fail(err)
		}
	}
	return c
}

// init uploads the plot background and clears the accumulation buffer.
func (c *CIE) init() error {
	if err := c.cfg.validate(); err != nil {
		return err
	}
	bg, err := Plot(c.cfg.w, c.cfg.h, c.cfg.mode, c.cfg.system)
	if err != nil {
		return err
	}
	c.background = bg

	m := colorSystems[c.cfg.system].toXYZ
	c.toXYZ, _ = gpufilter.NewMat(gpufilter.NewGeometry(len(m), 1, gpufilter.Gray, gpufilter.Float32))
	for i, v := range m {
		gpufilter.StoreElem(c.toXYZ.Data, i, gpufilter.Float32, v)
	}

	pair := c.base.Pair()
	if c.plot, err = compute.NewBufferMat(pair, bg.Geometry()); err != nil {
		return err
	}
	if err := c.base.Own(c.plot.Release); err != nil {
		return err
	}
	// One 32-bit counter per plot cell.
	cells := gpufilter.NewGeometry(c.cfg.w, c.cfg.h, gpufilter.Gray, gpufilter.Float32)
	if c.accum, err = compute.NewBufferMat(pair, cells); err != nil {
		return err
	}
	if err := c.base.Own(c.accum.Release); err != nil {
		return err
	}

	return c.base.Run(context.Background(), func(cmd *compute.Command) error {
		if err := cmd.RecordClone(bg, c.plot, compute.CloneOptions{}); err != nil {
			return err
		}
		return c.recordClear(cmd)
	})
}

// Valid reports whether the operator can run.
func (c *CIE) Valid() bool { return c.base.Valid() }

// Err returns why the operator is invalid.
func (c *CIE) Err() error { return c.base.Err() }

// Close releases the plot and accumulation buffers and the operator's
// device resources.
func (c *CIE) Close() error { return c.base.Close() }

// Size returns the plot size.
func (c *CIE) Size() (w, h int) { return c.cfg.w, c.cfg.h }

// Background returns a copy of the plot background.
func (c *CIE) Background() *gpufilter.Mat {
	if c.background == nil {
		return nil
	}
	return c.background.Clone()
}

// SetIntensity changes the per-pixel increment for later accumulations.
func (c *CIE) SetIntensity(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.intensity = v
}

// SetShowColor changes the merge style for later merges.
func (c *CIE) SetShowColor(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.showColor = on
}

func (c *CIE) output() gpufilter.Geometry {
	return gpufilter.NewGeometry(c.cfg.w, c.cfg.h, gpufilter.ABGR, gpufilter.Int8)
}

func (c *CIE) recordClear(cmd *compute.Command) error {
	//nolint:gosec // G115: plot sizes are validated and small
	params := shader.MustEncodeParams(CIEClearParams{W: int32(c.cfg.w), H: int32(c.cfg.h)})
	return cmd.RecordPipeline(c.base.Pipeline(cieClear), []gpufilter.Matrix{c.accum}, params, c.accum.Geometry())
}

func (c *CIE) recordAccumulate(cmd *compute.Command, src gpufilter.Matrix) error {
	c.mu.Lock()
	var p CIEAccumulateParams
	p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(src.Geometry())
	//nolint:gosec // G115: plot sizes are validated and small
	p.OutW, p.OutH = int32(c.cfg.w), int32(c.cfg.h)
	p.Mode = int32(c.cfg.mode)
	p.Intensity = c.cfg.intensity
	c.mu.Unlock()

	bindings := []gpufilter.Matrix{src, c.accum, c.toXYZ}
	return cmd.RecordPipeline(c.base.Pipeline(cieAccumulate), bindings, shader.MustEncodeParams(p), src.Geometry())
}

func (c *CIE) recordMerge(cmd *compute.Command, out gpufilter.Matrix) error {
	c.mu.Lock()
	var p CIEMergeParams
	p.W, p.H, p.CStep, p.Format, p.Type = op.Scalars(c.plot.Geometry())
	p.OutW, p.OutH, p.OutCStep, p.OutFormat, p.OutType = op.Scalars(out.Geometry())
	if c.cfg.showColor {
		p.ShowColor = 1
	}
	c.mu.Unlock()

	bindings := []gpufilter.Matrix{c.plot, out, c.accum}
	return cmd.RecordPipeline(c.base.Pipeline(cieMerge), bindings, shader.MustEncodeParams(p), out.Geometry())
}

// Clear zeroes the accumulation buffer.
func (c *CIE) Clear() error {
	return c.base.Run(context.Background(), c.recordClear)
}

// ResetAccumulation zeroes the accumulation buffer between independent
// runs. It is the same as Clear.
func (c *CIE) ResetAccumulation() error {
	return c.Clear()
}

// Accumulate adds the chromaticity hits of every pixel of src.
func (c *CIE) Accumulate(src gpufilter.Matrix) error {
	if err := c.base.Check(); err != nil {
		return err
	}
	if err := op.CheckSource(src.Geometry()); err != nil {
		return err
	}
	return c.base.Run(context.Background(), func(cmd *compute.Command) error {
		return c.recordAccumulate(cmd, src)
	})
}

// Merge draws the current accumulation over the plot background into dst,
// described as the plot size in 4-channel Int8 ABGR.
func (c *CIE) Merge(dst gpufilter.Matrix) error {
	if err := c.base.Check(); err != nil {
		return err
	}
	return c.base.Do(context.Background(), dst, c.output(), c.recordMerge)
}

// Filter plots src alone: it clears, accumulates src and merges into dst
// in that order within one submission.
func (c *CIE) Filter(src, dst gpufilter.Matrix) error {
	if err := c.base.Check(); err != nil {
		return err
	}
	if err := op.CheckSource(src.Geometry()); err != nil {
		return err
	}
	return c.base.DoFrom(context.Background(), []gpufilter.Matrix{src}, dst, c.output(), func(cmd *compute.Command, out gpufilter.Matrix) error {
		if err := c.recordClear(cmd); err != nil {
			return err
		}
		if err := c.recordAccumulate(cmd, src); err != nil {
			return err
		}
		return c.recordMerge(cmd, out)
	})
}

// Accumulation returns the accumulation buffer, row-major, one counter per
// plot cell.
func (c *CIE) Accumulation() ([]int32, error) {
	host := &gpufilter.Mat{}
	err := c.base.Run(context.Background(), func(cmd *compute.Command) error {
		return cmd.RecordClone(c.accum, host, compute.CloneOptions{})
	})
	if err != nil {
		return nil, err
	}
	cells := make([]int32, len(host.Data)/4)
	for i := range cells {
		cells[i] = int32(binary.LittleEndian.Uint32(host.Data[i*4:]))
	}
	return cells, nil
}
