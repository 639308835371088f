package main

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunOperators(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		edit  func(o *options)
		wantW int
		wantH int
	}{
		{"hue", func(o *options) { o.Op = "hue" }, 24, 16},
		{"filter2d", func(o *options) { o.Op = "filter2d"; o.Kernel = "box"; o.Radius = 1 }, 24, 16},
		{"cie", func(o *options) { o.Op = "cie"; o.Size = 32; o.Mode = "ucs" }, 32, 32},
		{"transpose", func(o *options) { o.Op = "transpose"; o.FlipX = true }, 16, 24},
		{"convert", func(o *options) { o.Op = "convert"; o.Format = "bgr"; o.Type = "float16" }, 24, 16},
		{"squareswire", func(o *options) { o.Op = "squareswire" }, 24, 16},
		{"squeeze", func(o *options) { o.Op = "squeeze" }, 24, 16},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			o.Backend = "host"
			o.Width, o.Height = 24, 16
			o.Output = filepath.Join(dir, tt.name+[]string{".png", ".bmp", ".tiff"}[i%3])
			tt.edit(&o)

			var out bytes.Buffer
			if err := run(o, &out); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), o.Op) {
				t.Errorf("report %q does not name the operator", out.String())
			}

			f, err := os.Open(o.Output)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			cfg, _, err := image.DecodeConfig(f)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("output %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(o *options)
	}{
		{"unknown operator", func(o *options) { o.Op = "sepia" }},
		{"unknown kernel", func(o *options) { o.Op = "filter2d"; o.Kernel = "motion" }},
		{"unknown mode", func(o *options) { o.Op = "cie"; o.Mode = "lab" }},
		{"unknown format", func(o *options) { o.Op = "convert"; o.Format = "cmyk" }},
		{"missing input", func(o *options) { o.Input = "does-not-exist.png" }},
		{"bad extension", func(o *options) { o.Output = filepath.Join(filepath.Dir(o.Output), "out.xyz") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			o.Backend = "host"
			o.Width, o.Height = 8, 8
			o.Output = filepath.Join(t.TempDir(), filepath.Base(o.Output))
			tt.edit(&o)
			if err := run(o, &bytes.Buffer{}); err == nil {
				t.Error("run succeeded")
			}
		})
	}
}

func TestListBackends(t *testing.T) {
	o := defaultOptions()
	o.ListBackends = true
	var out bytes.Buffer
	if err := run(o, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "host") {
		t.Errorf("backends %q do not include host", out.String())
	}
}
