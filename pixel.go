package gpufilter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Luma weights (BT.601) used when storing color into a Gray matrix.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// LoadElem reads element idx of a tightly packed little-endian slice and
// returns it as a normalized float. Integer types map to [0, 1].
func LoadElem(data []byte, idx int, t ElemType) float32 {
	switch t {
	case Int8:
		return float32(data[idx]) / 255
	case Int16:
		return float32(binary.LittleEndian.Uint16(data[idx*2:])) / 65535
	case Float16:
		return float16.Frombits(binary.LittleEndian.Uint16(data[idx*2:])).Float32()
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data[idx*4:]))
	default:
		panic(fmt.Sprintf("gpufilter: invalid element type %d", t))
	}
}

// StoreElem writes v as element idx. Integer types clamp v to [0, 1] and
// round half up, matching the shader store helpers bit for bit.
func StoreElem(data []byte, idx int, t ElemType, v float32) {
	switch t {
	case Int8:
		data[idx] = uint8(float32(clamp01(v)*255) + 0.5)
	case Int16:
		binary.LittleEndian.PutUint16(data[idx*2:], uint16(float32(clamp01(v)*65535)+0.5))
	case Float16:
		binary.LittleEndian.PutUint16(data[idx*2:], float16.Fromfloat32(v).Bits())
	case Float32:
		binary.LittleEndian.PutUint32(data[idx*4:], math.Float32bits(v))
	default:
		panic(fmt.Sprintf("gpufilter: invalid element type %d", t))
	}
}

// LoadRGBA reads pixel (x, y) of a matrix with geometry g and returns it
// in R, G, B, A order. Formats without alpha report A = 1.
func LoadRGBA(data []byte, g Geometry, x, y int) [4]float32 {
	base := (y*g.W + x) * g.C
	off := g.Format.Info().Offsets
	var rgba [4]float32
	for i := range 3 {
		rgba[i] = LoadElem(data, base+off[i], g.Type)
	}
	if off[3] >= 0 {
		rgba[3] = LoadElem(data, base+off[3], g.Type)
	} else {
		rgba[3] = 1
	}
	return rgba
}

// StoreRGBA writes rgba to pixel (x, y) using the channel order of g.
// Gray stores BT.601 luma, formats without alpha drop A.
func StoreRGBA(data []byte, g Geometry, x, y int, rgba [4]float32) {
	base := (y*g.W + x) * g.C
	if g.Format == Gray {
		StoreElem(data, base, g.Type, lumaR*rgba[0]+lumaG*rgba[1]+lumaB*rgba[2])
		return
	}
	off := g.Format.Info().Offsets
	for i := range 4 {
		if off[i] >= 0 {
			StoreElem(data, base+off[i], g.Type, rgba[i])
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
