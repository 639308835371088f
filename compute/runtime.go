package compute

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpufilter"
)

// Runtime is the process-wide compute state: one initialized backend, its
// enumerated adapters, and the devices opened on them. Each adapter index
// is opened at most once and shared by every caller that acquires it.
//
// Runtime is safe for concurrent use.
type Runtime struct {
	cfg      Config
	backend  backend
	adapters []AdapterInfo

	mu      sync.Mutex
	devices map[int]*Device
	closed  bool
}

// Open selects a backend and enumerates its adapters. Without WithBackend
// the first backend in priority order that reports an adapter wins.
func Open(opts ...Option) (*Runtime, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	b, adapters, err := selectBackend(cfg)
	if err != nil {
		if cfg.Backend != "" {
			return nil, fmt.Errorf("%w: %q", err, cfg.Backend)
		}
		return nil, err
	}

	rt := &Runtime{
		cfg:      cfg,
		backend:  b,
		adapters: adapters,
		devices:  make(map[int]*Device),
	}
	gpufilter.Logger().Info("compute: runtime opened",
		"backend", b.name(), "adapters", len(adapters), "first", adapters[0].Name)
	return rt, nil
}

// Backend returns the name of the selected backend.
func (rt *Runtime) Backend() string { return rt.backend.name() }

// Config returns the effective configuration.
func (rt *Runtime) Config() Config { return rt.cfg }

// Adapters lists the enumerated adapters, discrete GPUs first.
func (rt *Runtime) Adapters() []AdapterInfo {
	return slices.Clone(rt.adapters)
}

// Acquire returns the device on adapter gpuIndex, opening it on first use.
// DefaultDevice selects adapter 0. Indices outside the enumerated list
// return ErrDeviceUnavailable.
func (rt *Runtime) Acquire(gpuIndex int) (*Device, error) {
	if gpuIndex == DefaultDevice {
		gpuIndex = 0
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.closed {
		return nil, ErrClosed
	}
	if gpuIndex < 0 || gpuIndex >= len(rt.adapters) {
		return nil, fmt.Errorf("%w: index %d of %d adapters", ErrDeviceUnavailable, gpuIndex, len(rt.adapters))
	}
	if d, ok := rt.devices[gpuIndex]; ok {
		return d, nil
	}

	info := rt.adapters[gpuIndex]
	eng, err := rt.backend.open(info, rt.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, info, err)
	}
	d := newDevice(info, rt.cfg, eng)
	rt.devices[gpuIndex] = d

	gpufilter.Logger().Info("compute: device opened", "adapter", info.String())
	return d, nil
}

// Close closes every opened device and the backend. Close is safe to call
// multiple times.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	devices := rt.devices
	rt.devices = nil
	rt.mu.Unlock()

	var errs []error
	for _, d := range devices {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.backend.close()
	return errors.Join(errs...)
}

var (
	defaultMu sync.Mutex
	defaultRT *Runtime
)

// Init opens the default runtime. It must be called once before Default;
// a second call returns ErrAlreadyInitialized until Shutdown.
func Init(opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRT != nil {
		return ErrAlreadyInitialized
	}
	rt, err := Open(opts...)
	if err != nil {
		return err
	}
	defaultRT = rt
	return nil
}

// Default returns the runtime opened by Init, or nil.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRT
}

// Shutdown closes the default runtime. It is a no-op when Init was never
// called or Shutdown already ran.
func Shutdown() error {
	defaultMu.Lock()
	rt := defaultRT
	defaultRT = nil
	defaultMu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.Close()
}
