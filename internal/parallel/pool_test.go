package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero", 0, runtime.GOMAXPROCS(0)},
		{"negative", -5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			if pool.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", pool.Workers(), tt.want)
			}
			if !pool.IsRunning() {
				t.Error("Pool should be running after creation")
			}
		})
	}
}

func TestWorkerPool_DispatchAfterCloseRunsInline(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close() // idempotent

	// No synchronization: after Close every group runs on this goroutine.
	ran := 0
	pool.Dispatch(3, 2, 1, func(uint32, uint32, uint32) { ran++ })
	if ran != 6 {
		t.Errorf("ran = %d after Close, want 6", ran)
	}
	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
}

func TestWorkerPool_ConcurrentDispatch(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const callers = 8
	var total atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(10, 10, 1, func(uint32, uint32, uint32) { total.Add(1) })
		}()
	}
	wg.Wait()

	if got := total.Load(); got != callers*100 {
		t.Errorf("total = %d, want %d", got, callers*100)
	}
}

func TestWorkerPool_DispatchVisitsEveryGroupOnce(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z uint32
	}{
		{"1x1x1", 1, 1, 1},
		{"7x3x1", 7, 3, 1},
		{"16x16x2", 16, 16, 2},
		{"empty", 0, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(3)
			defer pool.Close()

			hits := make([]atomic.Int32, tt.x*tt.y*tt.z)
			pool.Dispatch(tt.x, tt.y, tt.z, func(gx, gy, gz uint32) {
				hits[(gz*tt.y+gy)*tt.x+gx].Add(1)
			})
			for i := range hits {
				if n := hits[i].Load(); n != 1 {
					t.Fatalf("group %d visited %d times", i, n)
				}
			}
		})
	}
}

// BenchmarkDispatch_HD benchmarks an 8x8-workgroup dispatch over 1920x1080.
func BenchmarkDispatch_HD(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	var sink atomic.Int64
	b.ResetTimer()
	for b.Loop() {
		pool.Dispatch(240, 135, 1, func(gx, gy, _ uint32) {
			sink.Add(int64(gx ^ gy))
		})
	}
}
