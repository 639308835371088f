package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
)

// AllocatorKind distinguishes the two allocator pools of a device.
type AllocatorKind uint8

const (
	// BlobKind allocates device-local storage, uniform and image memory.
	BlobKind AllocatorKind = iota

	// StagingKind allocates host-visible upload and readback memory.
	StagingKind
)

// String returns a string representation of the allocator kind.
func (k AllocatorKind) String() string {
	switch k {
	case BlobKind:
		return "blob"
	case StagingKind:
		return "staging"
	default:
		return fmt.Sprintf("AllocatorKind(%d)", uint8(k))
	}
}

// AllocatorStats contains allocator usage statistics.
type AllocatorStats struct {
	// BudgetBytes is the current pool size.
	BudgetBytes uint64

	// UsedBytes is the memory held by live blocks.
	UsedBytes uint64

	// Blocks is the number of live blocks.
	Blocks int

	// Expansions is how often the pool has doubled.
	Expansions int
}

// String returns a human-readable string of allocator stats.
func (s AllocatorStats) String() string {
	return fmt.Sprintf("Allocator[%d/%d MB, %d blocks, %d expansions]",
		s.UsedBytes/(1024*1024), s.BudgetBytes/(1024*1024), s.Blocks, s.Expansions)
}

// arena is the pooled state behind allocator handles. It outlives every
// handle and keeps its grown budget between acquisitions.
type arena struct {
	kind          AllocatorKind
	eng           engine
	budget        uint64
	used          uint64
	expansions    int
	maxExpansions int
	blocks        map[*Block]struct{}
}

// Allocator is a handle to a device memory pool. A handle is valid from
// acquisition until it is reclaimed; after that every call returns
// ErrAllocatorReclaimed.
//
// Allocator is safe for concurrent use.
type Allocator struct {
	mu        sync.Mutex
	dev       *Device
	a         *arena
	reclaimed bool
}

// Block is one allocation.
type Block struct {
	owner *Allocator
	mem   memory
	size  int
	usage Usage
	freed bool
}

// Size returns the size of the block in bytes.
func (b *Block) Size() int { return b.size }

// Usage returns the role the block was allocated for.
func (b *Block) Usage() Usage { return b.usage }

// Kind returns which pool the allocator draws from.
func (a *Allocator) Kind() AllocatorKind { return a.a.kind }

// Allocate returns a buffer block of at least size bytes. Sizes are rounded
// up to whole 32-bit words. A request beyond the budget doubles the pool
// up to MaxPoolExpansions times before failing with ErrOutOfDeviceMemory.
func (a *Allocator) Allocate(size int, usage Usage) (*Block, error) {
	if usage == UsageImage {
		return nil, fmt.Errorf("compute: use AllocateImage for %s blocks", usage)
	}
	return a.allocate(size, usage, func(e engine, label string, n int) (memory, error) {
		return e.newBuffer(label, n, usage)
	})
}

// AllocateImage returns a 2D storage image holding g.
func (a *Allocator) AllocateImage(g gpufilter.Geometry) (*Block, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if _, err := imageFormat(g); err != nil {
		return nil, err
	}
	return a.allocate(g.Bytes(), UsageImage, func(e engine, label string, _ int) (memory, error) {
		return e.newImage(label, g)
	})
}

func (a *Allocator) allocate(size int, usage Usage, create func(engine, string, int) (memory, error)) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("compute: allocate %d bytes: %w", size, gpufilter.ErrEmptyMat)
	}
	size = alignWord(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reclaimed {
		return nil, ErrAllocatorReclaimed
	}
	if usage.staging() != (a.a.kind == StagingKind) {
		return nil, fmt.Errorf("compute: %s allocator cannot hold %s blocks", a.a.kind, usage)
	}
	if err := a.a.reserve(uint64(size)); err != nil {
		return nil, err
	}

	mem, err := create(a.a.eng, fmt.Sprintf("%s-%s-%d", a.a.kind, usage, size), size)
	if err != nil {
		a.a.used -= uint64(size)
		return nil, fmt.Errorf("%w: %v", ErrOutOfDeviceMemory, err)
	}

	b := &Block{owner: a, mem: mem, size: size, usage: usage}
	a.a.blocks[b] = struct{}{}
	return b, nil
}

// reserve accounts size bytes, growing the budget when allowed.
func (r *arena) reserve(size uint64) error {
	for r.used+size > r.budget {
		if r.expansions >= r.maxExpansions {
			return fmt.Errorf("%w: %s pool needs %d bytes, %d of %d in use",
				ErrOutOfDeviceMemory, r.kind, size, r.used, r.budget)
		}
		r.budget *= 2
		r.expansions++
		gpufilter.Logger().Debug("compute: pool expanded",
			"kind", r.kind, "budget", r.budget, "expansions", r.expansions)
	}
	r.used += size
	return nil
}

// Free releases a block. Freeing a block twice is a no-op.
func (a *Allocator) Free(b *Block) error {
	if b == nil {
		return nil
	}
	if b.owner != a {
		return fmt.Errorf("compute: block belongs to another allocator")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if b.freed {
		return nil
	}
	if a.reclaimed {
		return ErrAllocatorReclaimed
	}
	a.a.release(b)
	return nil
}

func (r *arena) release(b *Block) {
	if b.freed {
		return
	}
	b.freed = true
	b.mem.destroy()
	r.used -= uint64(b.size)
	delete(r.blocks, b)
}

// Reset frees every live block.
func (a *Allocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reclaimed {
		return ErrAllocatorReclaimed
	}
	a.a.reset()
	return nil
}

func (r *arena) reset() {
	for b := range r.blocks {
		r.release(b)
	}
}

// Used returns the bytes held by live blocks.
func (a *Allocator) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.a.used
}

// Budget returns the current pool size in bytes.
func (a *Allocator) Budget() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.a.budget
}

// Stats returns usage statistics.
func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AllocatorStats{
		BudgetBytes: a.a.budget,
		UsedBytes:   a.a.used,
		Blocks:      len(a.a.blocks),
		Expansions:  a.a.expansions,
	}
}

// detach marks the handle reclaimed and returns its arena. The second
// call reports ErrAllocatorReclaimed.
func (a *Allocator) detach() (*arena, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reclaimed {
		return nil, ErrAllocatorReclaimed
	}
	a.reclaimed = true
	a.a.reset()
	return a.a, nil
}

func alignWord(n int) int {
	return (n + 3) &^ 3
}

// AllocatorPair is a blob and a staging allocator acquired together.
// Release returns both to the device exactly once, so it may be deferred
// and also called early.
type AllocatorPair struct {
	Blob    *Allocator
	Staging *Allocator

	dev  *Device
	once sync.Once
	err  error
}

// Device returns the device that owns the pair.
func (p *AllocatorPair) Device() *Device { return p.dev }

// Release reclaims both allocators. Subsequent calls return the result of
// the first.
func (p *AllocatorPair) Release() error {
	p.once.Do(func() {
		errBlob := p.dev.ReclaimBlobAllocator(p.Blob)
		errStaging := p.dev.ReclaimStagingAllocator(p.Staging)
		switch {
		case errBlob != nil:
			p.err = errBlob
		case errStaging != nil:
			p.err = errStaging
		}
	})
	return p.err
}
