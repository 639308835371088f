package gpufilter

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// FromImage converts img into a host matrix of the given format and type.
// The image is first normalized to non-premultiplied RGBA.
func FromImage(img image.Image, format ColorFormat, t ElemType) (*Mat, error) {
	b := img.Bounds()
	m, err := NewMat(NewGeometry(b.Dx(), b.Dy(), format, t))
	if err != nil {
		return nil, err
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	}

	for y := range b.Dy() {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range b.Dx() {
			p := row[x*4 : x*4+4]
			m.SetRGBA(x, y, [4]float32{
				float32(p[0]) / 255,
				float32(p[1]) / 255,
				float32(p[2]) / 255,
				float32(p[3]) / 255,
			})
		}
	}
	return m, nil
}

// ToImage converts m to an *image.NRGBA, quantizing channels to 8 bits.
func (m *Mat) ToImage() *image.NRGBA {
	g := m.geom
	img := image.NewNRGBA(image.Rect(0, 0, g.W, g.H))
	for y := range g.H {
		for x := range g.W {
			rgba := m.RGBA(x, y)
			img.SetNRGBA(x, y, color.NRGBA{
				R: quantize8(rgba[0]),
				G: quantize8(rgba[1]),
				B: quantize8(rgba[2]),
				A: quantize8(rgba[3]),
			})
		}
	}
	return img
}

// Resize returns a copy of m scaled to w x h with Catmull-Rom resampling.
func (m *Mat) Resize(w, h int) (*Mat, error) {
	src := m.ToImage()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return FromImage(dst, m.geom.Format, m.geom.Type)
}

func quantize8(v float32) uint8 {
	return uint8(float32(clamp01(v)*255) + 0.5)
}
