package gpufilter

// ColorFormat is the channel layout of a matrix. The numeric values are
// shared with the shader header and must not be reordered.
type ColorFormat uint8

const (
	// Gray is a single luminance channel.
	Gray ColorFormat = iota

	// BGR is three channels stored B, G, R.
	BGR

	// ABGR is four channels stored R, G, B, A, which reads as 0xAABBGGRR
	// when a pixel is loaded as one little-endian word.
	ABGR

	// RGB is three channels stored R, G, B.
	RGB

	// ARGB is four channels stored B, G, R, A (0xAARRGGBB as a word).
	ARGB

	// YUV420 is planar YUV with quarter resolution chroma.
	YUV420

	// YUV422 is planar YUV with half horizontal resolution chroma.
	YUV422

	// YUV444 is planar YUV with full resolution chroma.
	YUV444

	// YUVA is planar YUV with an alpha plane.
	YUVA

	// NV12 is a luma plane followed by interleaved UV.
	NV12

	colorFormatCount
)

// FormatInfo contains metadata about a color format.
type FormatInfo struct {
	// Name is the display name.
	Name string

	// Channels is the number of interleaved channels, 0 for planar formats.
	Channels int

	// Offsets maps R, G, B, A to channel indices. -1 means absent.
	Offsets [4]int

	// Supported reports whether pixel conversion handles this format.
	Supported bool
}

var formatInfoTable = [colorFormatCount]FormatInfo{
	Gray: {
		Name:      "GRAY",
		Channels:  1,
		Offsets:   [4]int{0, 0, 0, -1},
		Supported: true,
	},
	BGR: {
		Name:      "BGR",
		Channels:  3,
		Offsets:   [4]int{2, 1, 0, -1},
		Supported: true,
	},
	ABGR: {
		Name:      "ABGR",
		Channels:  4,
		Offsets:   [4]int{0, 1, 2, 3},
		Supported: true,
	},
	RGB: {
		Name:      "RGB",
		Channels:  3,
		Offsets:   [4]int{0, 1, 2, -1},
		Supported: true,
	},
	ARGB: {
		Name:      "ARGB",
		Channels:  4,
		Offsets:   [4]int{2, 1, 0, 3},
		Supported: true,
	},
	YUV420: {Name: "YUV420", Offsets: [4]int{-1, -1, -1, -1}},
	YUV422: {Name: "YUV422", Offsets: [4]int{-1, -1, -1, -1}},
	YUV444: {Name: "YUV444", Offsets: [4]int{-1, -1, -1, -1}},
	YUVA:   {Name: "YUVA", Offsets: [4]int{-1, -1, -1, -1}},
	NV12:   {Name: "NV12", Offsets: [4]int{-1, -1, -1, -1}},
}

// Info returns the FormatInfo for this format.
func (f ColorFormat) Info() FormatInfo {
	if f >= colorFormatCount {
		return FormatInfo{Name: "Unknown", Offsets: [4]int{-1, -1, -1, -1}}
	}
	return formatInfoTable[f]
}

// Channels returns the number of interleaved channels.
func (f ColorFormat) Channels() int {
	return f.Info().Channels
}

// Supported reports whether pixels of this format can be loaded and stored.
func (f ColorFormat) Supported() bool {
	return f.Info().Supported
}

// HasAlpha returns true if this format has an alpha channel.
func (f ColorFormat) HasAlpha() bool {
	return f.Info().Offsets[3] >= 0
}

// Valid reports whether f is a declared format.
func (f ColorFormat) Valid() bool {
	return f < colorFormatCount
}

// String returns a string representation of the format.
func (f ColorFormat) String() string {
	return f.Info().Name
}

// ParseColorFormat returns the format with the given name (case-sensitive,
// as returned by String).
func ParseColorFormat(name string) (ColorFormat, bool) {
	for f := range colorFormatCount {
		if formatInfoTable[f].Name == name {
			return f, true
		}
	}
	return 0, false
}
