package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// options is everything one run needs. A TOML preset fills the same
// fields; flags given on the command line win over the preset.
type options struct {
	Op      string `toml:"op"`
	Input   string `toml:"input"`
	Input2  string `toml:"input2"`
	Output  string `toml:"output"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	Backend string `toml:"backend"`
	GPU     int    `toml:"gpu"`
	Verbose bool   `toml:"verbose"`

	Hue float64 `toml:"hue"`

	Kernel string  `toml:"kernel"`
	Radius float64 `toml:"radius"`

	Mode      string  `toml:"mode"`
	System    string  `toml:"system"`
	Intensity float64 `toml:"intensity"`
	ShowColor bool    `toml:"show_color"`
	Size      int     `toml:"size"`

	FlipX bool `toml:"flip_x"`
	FlipY bool `toml:"flip_y"`

	Format string `toml:"format"`
	Type   string `toml:"type"`

	Progress        float64 `toml:"progress"`
	Squares         int     `toml:"squares"`
	DirectionX      float64 `toml:"direction_x"`
	DirectionY      float64 `toml:"direction_y"`
	Smoothness      float64 `toml:"smoothness"`
	ColorSeparation float64 `toml:"color_separation"`

	Preset       string `toml:"-"`
	ListBackends bool   `toml:"-"`
}

func defaultOptions() options {
	return options{
		Op:              "hue",
		Output:          "out.png",
		Width:           640,
		Height:          480,
		GPU:             -1,
		Hue:             90,
		Kernel:          "gaussian",
		Radius:          2,
		Mode:            "xyY",
		System:          "sRGB",
		Intensity:       0.5,
		ShowColor:       true,
		Size:            512,
		Format:          "ABGR",
		Type:            "int8",
		Progress:        0.5,
		Squares:         10,
		DirectionX:      1,
		DirectionY:      -0.5,
		Smoothness:      1.6,
		ColorSeparation: 0.04,
	}
}

func bind(fs *flag.FlagSet, o *options) {
	fs.StringVar(&o.Op, "op", o.Op, "operator: hue, filter2d, cie, transpose, convert, squareswire, squeeze")
	fs.StringVar(&o.Input, "in", o.Input, "input image (png, jpeg, bmp, tiff); empty draws a test pattern")
	fs.StringVar(&o.Input2, "in2", o.Input2, "second input of the fusion operators")
	fs.StringVar(&o.Output, "out", o.Output, "output image, encoded by extension")
	fs.IntVar(&o.Width, "width", o.Width, "test pattern width")
	fs.IntVar(&o.Height, "height", o.Height, "test pattern height")
	fs.StringVar(&o.Backend, "backend", o.Backend, "force a backend; empty selects by priority")
	fs.IntVar(&o.GPU, "gpu", o.GPU, "adapter index, -1 for the default")
	fs.BoolVar(&o.Verbose, "v", o.Verbose, "debug logging to stderr")

	fs.Float64Var(&o.Hue, "hue", o.Hue, "hue rotation in degrees")
	fs.StringVar(&o.Kernel, "kernel", o.Kernel, "filter2d kernel: gaussian, box, sharpen, emboss, identity")
	fs.Float64Var(&o.Radius, "radius", o.Radius, "filter2d kernel radius")
	fs.StringVar(&o.Mode, "mode", o.Mode, "cie mode: xyY, UCS, LUV")
	fs.StringVar(&o.System, "system", o.System, "cie color system: sRGB, Rec2020")
	fs.Float64Var(&o.Intensity, "intensity", o.Intensity, "cie per-pixel intensity")
	fs.BoolVar(&o.ShowColor, "show-color", o.ShowColor, "cie: darken the colored plot instead of revealing it")
	fs.IntVar(&o.Size, "size", o.Size, "cie plot size")
	fs.BoolVar(&o.FlipX, "flipx", o.FlipX, "transpose: mirror source columns")
	fs.BoolVar(&o.FlipY, "flipy", o.FlipY, "transpose: mirror source rows")
	fs.StringVar(&o.Format, "format", o.Format, "convert: target color format")
	fs.StringVar(&o.Type, "type", o.Type, "convert: target element type")
	fs.Float64Var(&o.Progress, "progress", o.Progress, "fusion progress in [0, 1]")
	fs.IntVar(&o.Squares, "squares", o.Squares, "squareswire: squares per axis")
	fs.Float64Var(&o.DirectionX, "dirx", o.DirectionX, "squareswire: sweep direction x")
	fs.Float64Var(&o.DirectionY, "diry", o.DirectionY, "squareswire: sweep direction y")
	fs.Float64Var(&o.Smoothness, "smoothness", o.Smoothness, "squareswire: front width")
	fs.Float64Var(&o.ColorSeparation, "separation", o.ColorSeparation, "squeeze: color separation")

	fs.StringVar(&o.Preset, "preset", o.Preset, "TOML preset; flags override its values")
	fs.BoolVar(&o.ListBackends, "backends", o.ListBackends, "list registered backends and exit")
}

// parseOptions parses args, loading a preset when one is named.
func parseOptions(args []string) (options, error) {
	o := defaultOptions()
	fs := flag.NewFlagSet("gpufilter", flag.ContinueOnError)
	bind(fs, &o)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.Preset == "" {
		return o, nil
	}

	p := defaultOptions()
	if err := loadPreset(o.Preset, &p); err != nil {
		return o, err
	}
	p.Preset = o.Preset

	// Replay the flags that were given explicitly on top of the preset.
	replay := flag.NewFlagSet("preset", flag.ContinueOnError)
	bind(replay, &p)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err == nil {
			err = replay.Set(f.Name, f.Value.String())
		}
	})
	return p, err
}

func loadPreset(path string, o *options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("preset: %w", err)
	}
	return decodePreset(string(data), o)
}

func decodePreset(src string, o *options) error {
	dec := toml.NewDecoder(strings.NewReader(src))
	dec.DisallowUnknownFields()
	if err := dec.Decode(o); err != nil {
		return fmt.Errorf("preset: %w", err)
	}
	return nil
}
