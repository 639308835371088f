package main

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
	"github.com/gogpu/gpufilter/filter"
	"github.com/gogpu/gpufilter/fusion"
)

// operator is the lifecycle every filter and fusion shares.
type operator interface {
	Valid() bool
	Err() error
	Close() error
}

// apply runs the operator o names over src and returns the result on the
// host.
func apply(rt *compute.Runtime, o options, src *gpufilter.Mat) (*gpufilter.Mat, error) {
	dst := &gpufilter.Mat{}
	var (
		op  operator
		run func() error
	)

	switch strings.ToLower(o.Op) {
	case "hue":
		f := filter.NewHue(rt, o.GPU)
		op, run = f, func() error { return f.Filter(src, dst, float32(o.Hue)) }
	case "filter2d":
		k, err := parseKernel(o.Kernel, o.Radius)
		if err != nil {
			return nil, err
		}
		f := filter.NewFilter2D(rt, o.GPU)
		op, run = f, func() error { return f.Filter(src, dst, k) }
	case "cie":
		mode, err := parseMode(o.Mode)
		if err != nil {
			return nil, err
		}
		system, err := parseSystem(o.System)
		if err != nil {
			return nil, err
		}
		f := filter.NewCIE(rt, o.GPU,
			filter.WithMode(mode),
			filter.WithColorSystem(system),
			filter.WithIntensity(float32(o.Intensity)),
			filter.WithShowColor(o.ShowColor),
			filter.WithSize(o.Size, o.Size),
		)
		op, run = f, func() error { return f.Filter(src, dst) }
	case "transpose":
		f := filter.NewTranspose(rt, o.GPU)
		op, run = f, func() error { return f.Filter(src, dst, o.FlipX, o.FlipY) }
	case "convert":
		format, ok := gpufilter.ParseColorFormat(strings.ToUpper(o.Format))
		if !ok {
			return nil, fmt.Errorf("unknown color format %q", o.Format)
		}
		t, ok := gpufilter.ParseElemType(strings.ToLower(o.Type))
		if !ok {
			return nil, fmt.Errorf("unknown element type %q", o.Type)
		}
		f := filter.NewColorConvert(rt, o.GPU)
		op, run = f, func() error { return f.Filter(src, dst, format, t) }
	case "squareswire", "squeeze":
		src2, err := loadInput(o.Input2, src.Geometry().W, src.Geometry().H, true)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(o.Op, "squeeze") {
			f := fusion.NewSqueeze(rt, o.GPU)
			op, run = f, func() error {
				return f.Filter(src, src2, dst, float32(o.Progress), float32(o.ColorSeparation))
			}
			break
		}
		f := fusion.NewSquaresWire(rt, o.GPU)
		dir := [2]float32{float32(o.DirectionX), float32(o.DirectionY)}
		op, run = f, func() error {
			return f.Filter(src, src2, dst, float32(o.Progress), o.Squares, dir, float32(o.Smoothness))
		}
	default:
		return nil, fmt.Errorf("unknown operator %q", o.Op)
	}

	defer func() { _ = op.Close() }()
	if !op.Valid() {
		return nil, fmt.Errorf("%s: %w", o.Op, op.Err())
	}
	if err := run(); err != nil {
		return nil, err
	}
	return dst, nil
}

func parseKernel(name string, radius float64) (filter.Kernel, error) {
	switch strings.ToLower(name) {
	case "gaussian":
		return filter.GaussianKernel(float32(radius)), nil
	case "box":
		return filter.BoxKernel(int(radius)), nil
	case "sharpen":
		return filter.SharpenKernel(), nil
	case "emboss":
		return filter.EmbossKernel(), nil
	case "identity":
		return filter.IdentityKernel(int(radius)*2 + 1), nil
	default:
		return filter.Kernel{}, fmt.Errorf("unknown kernel %q", name)
	}
}

func parseMode(name string) (filter.CIEMode, error) {
	for _, m := range []filter.CIEMode{filter.XYY, filter.UCS, filter.LUV} {
		if strings.EqualFold(m.String(), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown CIE mode %q", name)
}

func parseSystem(name string) (filter.ColorSystem, error) {
	for _, s := range []filter.ColorSystem{filter.SRGB, filter.Rec2020} {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown color system %q", name)
}
