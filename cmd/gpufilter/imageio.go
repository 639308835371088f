package main

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif" // register decoder

	"github.com/chewxy/math32"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/gpufilter"
)

// loadInput decodes path into an RGB Int8 matrix, or draws a w x h test
// pattern when path is empty. alt selects the second pattern used as the
// other side of a fusion.
func loadInput(path string, w, h int, alt bool) (*gpufilter.Mat, error) {
	if path == "" {
		return pattern(w, h, alt)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gpufilter.FromImage(img, gpufilter.RGB, gpufilter.Int8)
}

// pattern draws a hue sweep over x with brightness falling off over y, or
// concentric rings for alt.
func pattern(w, h int, alt bool) (*gpufilter.Mat, error) {
	m, err := gpufilter.NewMat(gpufilter.NewGeometry(w, h, gpufilter.RGB, gpufilter.Int8))
	if err != nil {
		return nil, err
	}
	for y := range h {
		fy := float32(y) / float32(max(h-1, 1))
		for x := range w {
			fx := float32(x) / float32(max(w-1, 1))
			if alt {
				d := math32.Hypot(fx-0.5, fy-0.5)
				v := 0.5 + 0.5*math32.Cos(d*40)
				m.SetRGBA(x, y, [4]float32{v * 0.2, v * 0.6, v, 1})
				continue
			}
			v := 1 - 0.6*fy
			m.SetRGBA(x, y, [4]float32{
				v * (0.5 + 0.5*math32.Cos(2*math32.Pi*fx)),
				v * (0.5 + 0.5*math32.Cos(2*math32.Pi*(fx-1.0/3))),
				v * (0.5 + 0.5*math32.Cos(2*math32.Pi*(fx-2.0/3))),
				1,
			})
		}
	}
	return m, nil
}

// saveImage encodes m by the extension of path.
func saveImage(path string, m *gpufilter.Mat) (err error) {
	var encode func(io.Writer, image.Image) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		encode = png.Encode
	case ".jpg", ".jpeg":
		encode = func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
		}
	case ".bmp":
		encode = bmp.Encode
	case ".tif", ".tiff":
		encode = func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encode(f, m.ToImage())
}
