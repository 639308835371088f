// Package parallel runs compute workgroup grids on CPU goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool executes workgroup grids on a fixed set of goroutines.
//
// A dispatch is split into rows of workgroups. Helper workers and the
// dispatching goroutine claim rows from a shared cursor until none are
// left, so a row that exits early on a bounds check frees its worker for
// the next one.
//
// WorkerPool is safe for concurrent use. Concurrent dispatches share the
// workers.
type WorkerPool struct {
	workers int
	jobs    chan *grid
	wg      sync.WaitGroup

	// mu guards closed against a send on the closed jobs channel.
	mu     sync.RWMutex
	closed bool
}

// grid is one dispatch in flight.
type grid struct {
	x, y, rows uint32
	fn         func(gx, gy, gz uint32)
	next       atomic.Uint32
	helpers    sync.WaitGroup
}

// run claims rows until the grid is exhausted.
func (g *grid) run() {
	for {
		r := g.next.Add(1) - 1
		if r >= g.rows {
			return
		}
		gy, gz := r%g.y, r/g.y
		for gx := range g.x {
			g.fn(gx, gy, gz)
		}
	}
}

// NewWorkerPool starts a pool of workers goroutines. If workers is 0 or
// negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		jobs:    make(chan *grid, workers),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for g := range p.jobs {
		g.run()
		g.helpers.Done()
	}
}

// Dispatch runs fn once for every workgroup id in the x*y*z grid and
// waits for completion. After Close the grid runs on the calling
// goroutine alone.
func (p *WorkerPool) Dispatch(x, y, z uint32, fn func(gx, gy, gz uint32)) {
	if x == 0 || y == 0 || z == 0 {
		return
	}
	g := &grid{x: x, y: y, rows: y * z, fn: fn}

	p.mu.RLock()
	if !p.closed {
		// The caller works too, so one fewer helper is enough.
		n := min(p.workers, int(g.rows)) - 1
		g.helpers.Add(n)
		for range n {
			p.jobs <- g
		}
	}
	p.mu.RUnlock()

	g.run()
	g.helpers.Wait()
}

// Close stops the workers after in-flight grids finish. Close is safe to
// call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether dispatches are still spread across workers.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
