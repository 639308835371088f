package filter

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/internal/cache"
)

// ErrInvalidKernel is returned for kernels whose weights do not fill W x H
// or whose anchor lies outside the kernel.
var ErrInvalidKernel = errors.New("filter: invalid kernel")

// Kernel is a 2D convolution kernel with weights in row-major order.
type Kernel struct {
	W, H int

	// AnchorX and AnchorY locate the output pixel inside the kernel.
	// -1 means the center.
	AnchorX, AnchorY int

	Weights []float32
}

// Validate checks the kernel shape.
func (k Kernel) Validate() error {
	ax, ay := k.Anchor()
	switch {
	case k.W <= 0 || k.H <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidKernel, k.W, k.H)
	case len(k.Weights) != k.W*k.H:
		return fmt.Errorf("%w: %d weights for %dx%d", ErrInvalidKernel, len(k.Weights), k.W, k.H)
	case ax < 0 || ax >= k.W || ay < 0 || ay >= k.H:
		return fmt.Errorf("%w: anchor (%d,%d) outside %dx%d", ErrInvalidKernel, ax, ay, k.W, k.H)
	}
	return nil
}

// Anchor returns the resolved anchor.
func (k Kernel) Anchor() (x, y int) {
	x, y = k.AnchorX, k.AnchorY
	if x == -1 {
		x = KernelCenter(k.W)
	}
	if y == -1 {
		y = KernelCenter(k.H)
	}
	return x, y
}

// Sum returns the sum of all weights.
func (k Kernel) Sum() float32 {
	var s float32
	for _, w := range k.Weights {
		s += w
	}
	return s
}

// mat returns the weights as a one-row Float32 matrix for binding.
func (k Kernel) mat() *gpufilter.Mat {
	g := gpufilter.NewGeometry(len(k.Weights), 1, gpufilter.Gray, gpufilter.Float32)
	m, _ := gpufilter.NewMat(g)
	for i, w := range k.Weights {
		gpufilter.StoreElem(m.Data, i, gpufilter.Float32, w)
	}
	return m
}

// IdentityKernel returns an n x n kernel with all weight on the center.
// Even sizes are rounded up to the next odd size.
func IdentityKernel(n int) Kernel {
	n = oddSize(n)
	k := Kernel{W: n, H: n, AnchorX: -1, AnchorY: -1, Weights: make([]float32, n*n)}
	k.Weights[(n/2)*n+n/2] = 1
	return k
}

// BoxKernel returns a (2*radius+1)^2 kernel of equal weights summing to 1.
func BoxKernel(radius int) Kernel {
	if radius < 0 {
		radius = 0
	}
	n := radius*2 + 1
	k := Kernel{W: n, H: n, AnchorX: -1, AnchorY: -1, Weights: make([]float32, n*n)}
	val := float32(1) / float32(n*n)
	for i := range k.Weights {
		k.Weights[i] = val
	}
	return k
}

// GaussianKernel returns a 2D Gaussian kernel for sigma = radius, built as
// the outer product of the 1D kernel. The size is 2*ceil(radius*3)+1,
// covering three standard deviations, and the weights sum to 1.
//
// For radius <= 0 it returns the 1x1 identity.
func GaussianKernel(radius float32) Kernel {
	g := gaussian1D(radius)
	n := len(g)
	k := Kernel{W: n, H: n, AnchorX: -1, AnchorY: -1, Weights: make([]float32, n*n)}
	for y, wy := range g {
		for x, wx := range g {
			k.Weights[y*n+x] = wy * wx
		}
	}
	return k
}

// gaussian1D returns the normalized 1D Gaussian for sigma = radius.
func gaussian1D(radius float32) []float32 {
	if radius <= 0 {
		return []float32{1}
	}

	sigma := radius
	halfSize := int(math32.Ceil(sigma * 3))
	size := halfSize*2 + 1

	kernel := make([]float32, size)
	twoSigmaSq := 2 * sigma * sigma
	var sum float32
	for i := range size {
		x := float32(i - halfSize)
		val := math32.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = val
		sum += val
	}

	if sum > 0 {
		invSum := 1 / sum
		for i := range kernel {
			kernel[i] *= invSum
		}
	}
	return kernel
}

// kernels caches Gaussian kernels by radius quantized to 0.01.
var kernels = cache.New[int, Kernel](64)

// CachedGaussianKernel returns a cached Gaussian kernel for radius. The
// returned weights are shared and must not be modified.
func CachedGaussianKernel(radius float32) Kernel {
	key := int(radius * 100)
	k, _, _ := kernels.GetOrCreate(key, func() (Kernel, error) {
		return GaussianKernel(float32(key) / 100), nil
	})
	return k
}

// SharpenKernel returns the 3x3 sharpen kernel.
func SharpenKernel() Kernel {
	return Kernel{W: 3, H: 3, AnchorX: -1, AnchorY: -1, Weights: []float32{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}}
}

// EmbossKernel returns the 3x3 emboss kernel.
func EmbossKernel() Kernel {
	return Kernel{W: 3, H: 3, AnchorX: -1, AnchorY: -1, Weights: []float32{
		-2, -1, 0,
		-1, 1, 1,
		0, 1, 2,
	}}
}

// OptimalKernelSize returns the Gaussian kernel size for radius.
func OptimalKernelSize(radius float32) int {
	if radius <= 0 {
		return 1
	}
	return int(math32.Ceil(radius*3))*2 + 1
}

// KernelCenter returns the center index of a kernel of the given size.
func KernelCenter(kernelSize int) int {
	return kernelSize / 2
}

func oddSize(n int) int {
	if n < 1 {
		return 1
	}
	return n | 1
}
