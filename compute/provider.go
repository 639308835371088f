//go:build !nogpu

package compute

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// NewDeviceFromProvider wraps a device owned by a host application, such
// as a gogpu window, so filters share its GPU instead of opening another.
// The provider must expose HalDevice() and HalQueue() returning hal.Device
// and hal.Queue. Closing the returned Device releases gpufilter's
// resources but leaves the provider's device alive.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrDeviceUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrDeviceUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrDeviceUnavailable)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	ai := provider.AdapterInfo()
	info := AdapterInfo{Name: ai.Name, Type: ai.Type, Backend: "provider"}

	return newDevice(info, cfg, &halEngine{device: device, queue: queue, external: true}), nil
}
