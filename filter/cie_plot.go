package filter

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
)

// CIEMode selects the chromaticity coordinates of the plot.
type CIEMode int32

const (
	// XYY plots CIE 1931 (x, y).
	XYY CIEMode = iota

	// UCS plots CIE 1960 (u, v).
	UCS

	// LUV plots CIE 1976 (u', v').
	LUV
)

// String returns a string representation of the mode.
func (m CIEMode) String() string {
	switch m {
	case XYY:
		return "xyY"
	case UCS:
		return "UCS"
	case LUV:
		return "LUV"
	default:
		return fmt.Sprintf("CIEMode(%d)", int32(m))
	}
}

// ColorSystem selects the RGB primaries used to convert pixels to XYZ.
type ColorSystem int

const (
	// SRGB is IEC 61966-2-1 with a D65 white point.
	SRGB ColorSystem = iota

	// Rec2020 is ITU-R BT.2020 with a D65 white point.
	Rec2020
)

// String returns a string representation of the color system.
func (c ColorSystem) String() string {
	switch c {
	case SRGB:
		return "sRGB"
	case Rec2020:
		return "Rec2020"
	default:
		return fmt.Sprintf("ColorSystem(%d)", int(c))
	}
}

type mat3 [9]float32

// colorSystems holds the RGB to XYZ matrix and the xy primaries (R, G, B).
var colorSystems = map[ColorSystem]struct {
	toXYZ     mat3
	primaries [3][2]float32
}{
	SRGB: {
		toXYZ: mat3{
			0.4124564, 0.3575761, 0.1804375,
			0.2126729, 0.7151522, 0.0721750,
			0.0193339, 0.1191920, 0.9503041,
		},
		primaries: [3][2]float32{{0.64, 0.33}, {0.30, 0.60}, {0.15, 0.06}},
	},
	Rec2020: {
		toXYZ: mat3{
			0.6369580, 0.1446169, 0.1688810,
			0.2627002, 0.6779981, 0.0593017,
			0.0000000, 0.0280727, 1.0609851,
		},
		primaries: [3][2]float32{{0.708, 0.292}, {0.170, 0.797}, {0.131, 0.046}},
	},
}

func (m mat3) apply(v [3]float32) [3]float32 {
	return [3]float32{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

func (m mat3) inverse() mat3 {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]
	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	inv := 1 / det
	return mat3{
		(e*i - f*h) * inv, (c*h - b*i) * inv, (b*f - c*e) * inv,
		(f*g - d*i) * inv, (a*i - c*g) * inv, (c*d - a*f) * inv,
		(d*h - e*g) * inv, (b*g - a*h) * inv, (a*e - b*d) * inv,
	}
}

// chromaticity maps an RGB value to plot coordinates in [0, 1] for mode.
// Black maps to (0, 0).
func chromaticity(toXYZ mat3, mode CIEMode, rgb [3]float32) (float32, float32) {
	xyz := toXYZ.apply(rgb)
	sum := xyz[0] + xyz[1] + xyz[2]
	if sum == 0 {
		sum = 1
	}
	x, y := xyz[0]/sum, xyz[1]/sum
	switch mode {
	case UCS:
		d := -2*x + 12*y + 3
		return 4 * x / d, 6 * y / d
	case LUV:
		d := -2*x + 12*y + 3
		return 4 * x / d, 9 * y / d
	default:
		return x, y
	}
}

// toXY inverts chromaticity's mode projection. Points with no xy
// preimage map to (0, 0).
func toXY(mode CIEMode, u, v float32) (float32, float32) {
	switch mode {
	case UCS:
		d := 2*u - 8*v + 4
		if d == 0 {
			return 0, 0
		}
		return 3 * u / d, 2 * v / d
	case LUV:
		d := 6*u - 16*v + 12
		if d == 0 {
			return 0, 0
		}
		return 9 * u / d, 4 * v / d
	default:
		return u, v
	}
}

// plotCell returns the accumulation cell of plot coordinates (fx, fy) on a
// w x h plot, or false outside it.
func plotCell(w, h int, fx, fy float32) (int, bool) {
	ix := int(float32(w-1) * fx)
	iy := (h - 1) - int(float32(h-1)*fy)
	if ix < 0 || ix >= w || iy < 0 || iy >= h {
		return 0, false
	}
	return iy*w + ix, true
}

// gridAlpha marks grid lines in the plot background. Merge keeps pixels of
// this alpha visible without accumulation.
const gridAlpha = 0.5

// Plot renders the chromaticity diagram background: the color system's
// gamut filled with its colors at full alpha, grid lines every 0.1 at
// half alpha, transparent black elsewhere. The result is w x h ABGR Int8.
func Plot(w, h int, mode CIEMode, system ColorSystem) (*gpufilter.Mat, error) {
	cs, ok := colorSystems[system]
	if !ok {
		return nil, fmt.Errorf("filter: unknown color system %d", system)
	}
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.ABGR, gpufilter.Int8))
	if err != nil {
		return nil, err
	}
	fromXYZ := cs.toXYZ.inverse()
	pr := cs.primaries

	for py := range h {
		fy := 1 - float32(py)/float32(max(h-1, 1))
		for px := range w {
			fx := float32(px) / float32(max(w-1, 1))

			x, y := toXY(mode, fx, fy)
			switch {
			case y > 0 && inTriangle(x, y, pr):
				rgb := fromXYZ.apply([3]float32{x / y, 1, (1 - x - y) / y})
				peak := math32.Max(rgb[0], math32.Max(rgb[1], rgb[2]))
				if peak > 0 {
					for i := range rgb {
						rgb[i] = math32.Max(0, rgb[i]/peak)
					}
				}
				m.SetRGBA(px, py, [4]float32{rgb[0], rgb[1], rgb[2], 1})
			case onGrid(fx, w) || onGrid(fy, h):
				m.SetRGBA(px, py, [4]float32{0.5, 0.5, 0.5, gridAlpha})
			}
		}
	}
	return m, nil
}

// onGrid reports whether coordinate f lies on a 0.1 grid line of an n
// pixel axis.
func onGrid(f float32, n int) bool {
	step := float32(n-1) / 10
	if step < 2 {
		return false
	}
	pos := f * float32(n-1)
	return math32.Abs(pos-math32.Round(pos/step)*step) < 0.5
}

func inTriangle(x, y float32, t [3][2]float32) bool {
	edge := func(a, b [2]float32) float32 {
		return (b[0]-a[0])*(y-a[1]) - (b[1]-a[1])*(x-a[0])
	}
	d0 := edge(t[0], t[1])
	d1 := edge(t[1], t[2])
	d2 := edge(t[2], t[0])
	neg := d0 < 0 || d1 < 0 || d2 < 0
	pos := d0 > 0 || d1 > 0 || d2 > 0
	return !(neg && pos)
}
