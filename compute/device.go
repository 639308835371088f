package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/shader"
)

// Device is an opened logical device with its allocator pools and its
// shader module cache.
//
// Device is safe for concurrent use.
type Device struct {
	info    AdapterInfo
	cfg     Config
	eng     engine
	modules *shader.Cache

	mu          sync.Mutex
	freeBlob    []*arena
	freeStaging []*arena
	live        map[*Allocator]struct{}
	closed      bool

	// submitMu serializes submissions to the engine.
	submitMu sync.Mutex

	convertOnce sync.Once
	convert     *Pipeline
	convertErr  error
}

func newDevice(info AdapterInfo, cfg Config, eng engine) *Device {
	return &Device{
		info:    info,
		cfg:     cfg,
		eng:     eng,
		modules: shader.NewCache(cfg.ModuleCacheSize),
		live:    make(map[*Allocator]struct{}),
	}
}

// Info returns the adapter the device was opened on.
func (d *Device) Info() AdapterInfo { return d.info }

// Modules returns the device's shader module cache.
func (d *Device) Modules() *shader.Cache { return d.modules }

// AcquireBlobAllocator returns an empty device-local allocator.
func (d *Device) AcquireBlobAllocator() (*Allocator, error) {
	return d.acquire(BlobKind)
}

// AcquireStagingAllocator returns an empty host-visible allocator.
func (d *Device) AcquireStagingAllocator() (*Allocator, error) {
	return d.acquire(StagingKind)
}

func (d *Device) acquire(kind AllocatorKind) (*Allocator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	free := &d.freeBlob
	poolMB := d.cfg.BlobPoolMB
	if kind == StagingKind {
		free = &d.freeStaging
		poolMB = d.cfg.StagingPoolMB
	}

	var r *arena
	if n := len(*free); n > 0 {
		r = (*free)[n-1]
		*free = (*free)[:n-1]
	} else {
		//nolint:gosec // G115: pool size is bounded by normalize
		r = &arena{
			kind:          kind,
			eng:           d.eng,
			budget:        uint64(poolMB) * 1024 * 1024,
			maxExpansions: d.cfg.MaxPoolExpansions,
			blocks:        make(map[*Block]struct{}),
		}
	}

	a := &Allocator{dev: d, a: r}
	d.live[a] = struct{}{}
	return a, nil
}

// ReclaimBlobAllocator frees every block of a and returns its pool to the
// device. Reclaiming twice, or reclaiming a staging allocator, returns
// ErrAllocatorReclaimed.
func (d *Device) ReclaimBlobAllocator(a *Allocator) error {
	return d.reclaim(a, BlobKind)
}

// ReclaimStagingAllocator is ReclaimBlobAllocator for staging allocators.
func (d *Device) ReclaimStagingAllocator(a *Allocator) error {
	return d.reclaim(a, StagingKind)
}

func (d *Device) reclaim(a *Allocator, kind AllocatorKind) error {
	if a == nil || a.dev != d {
		return fmt.Errorf("%w: allocator not acquired from this device", ErrAllocatorReclaimed)
	}
	if a.a.kind != kind {
		return fmt.Errorf("%w: %s allocator returned as %s", ErrAllocatorReclaimed, a.a.kind, kind)
	}

	r, err := a.detach()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.live, a)
	if d.closed {
		return nil
	}
	if kind == BlobKind {
		d.freeBlob = append(d.freeBlob, r)
	} else {
		d.freeStaging = append(d.freeStaging, r)
	}
	return nil
}

// AcquireAllocators acquires a blob and a staging allocator together.
// The caller must call Release on the pair, typically with defer.
func (d *Device) AcquireAllocators() (*AllocatorPair, error) {
	blob, err := d.AcquireBlobAllocator()
	if err != nil {
		return nil, err
	}
	staging, err := d.AcquireStagingAllocator()
	if err != nil {
		_ = d.ReclaimBlobAllocator(blob)
		return nil, err
	}
	return &AllocatorPair{Blob: blob, Staging: staging, dev: d}, nil
}

// WithAllocators runs fn with a freshly acquired pair and releases the
// pair when fn returns, whatever the outcome.
func (d *Device) WithAllocators(fn func(*AllocatorPair) error) (err error) {
	pair, err := d.AcquireAllocators()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := pair.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(pair)
}

// Sync blocks until all submitted work has completed.
func (d *Device) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.eng.waitIdle()
}

// Close waits for the device, frees every pooled allocator and destroys
// the logical device unless it is owned by a provider. Allocators still
// held become unusable. Close is safe to call multiple times.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	live := make([]*Allocator, 0, len(d.live))
	for a := range d.live {
		live = append(live, a)
	}
	d.live = nil
	d.mu.Unlock()

	err := d.eng.waitIdle()
	if d.convert != nil {
		d.convert.Destroy()
	}
	for _, a := range live {
		_, _ = a.detach()
	}
	for _, r := range d.freeBlob {
		r.reset()
	}
	for _, r := range d.freeStaging {
		r.reset()
	}
	d.freeBlob, d.freeStaging = nil, nil
	d.modules.Clear()

	d.eng.destroy()
	gpufilter.Logger().Debug("compute: device closed", "adapter", d.info.Name)
	return err
}

// convertPipeline returns the device's shared conversion pipeline,
// creating it on first use.
func (d *Device) convertPipeline() (*Pipeline, error) {
	d.convertOnce.Do(func() {
		p := NewPipeline(d)
		ls := ConvertLocalSize
		if err := p.SetOptimalLocalSize(ls[0], ls[1], ls[2]); err != nil {
			d.convertErr = err
			return
		}
		if err := p.Create(ConvertProgram(), nil, 2); err != nil {
			d.convertErr = err
			return
		}
		d.convert = p
	})
	return d.convert, d.convertErr
}

// checkOpen returns ErrClosed after Close.
func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}
