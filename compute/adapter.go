package compute

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DefaultDevice selects the first enumerated adapter.
const DefaultDevice = -1

// AdapterInfo describes one compute-capable adapter of the selected backend.
type AdapterInfo struct {
	// Index is the value to pass to Runtime.Acquire.
	Index int

	// Name is the adapter name reported by the driver.
	Name string

	// Vendor and Driver are informational and may be empty.
	Vendor string
	Driver string

	// Backend is the name of the backend that enumerated the adapter.
	Backend string

	// Type is the adapter class used for ordering.
	Type gpucontext.AdapterType

	// ordinal is the backend's enumeration index.
	ordinal int
}

// String returns a compact description such as "#0 NVIDIA RTX (Discrete, vulkan)".
func (a AdapterInfo) String() string {
	return fmt.Sprintf("#%d %s (%s, %s)", a.Index, a.Name, a.Type, a.Backend)
}

// adapterType maps a gputypes device type onto the gpucontext classes.
func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// adapterRank orders discrete before integrated before everything else.
func adapterRank(t gpucontext.AdapterType) int {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return 0
	case gpucontext.AdapterTypeIntegrated:
		return 1
	case gpucontext.AdapterTypeUnknown:
		return 2
	default:
		return 3
	}
}

// sortAdapters orders adapters by rank, keeping enumeration order within a
// rank, and renumbers them.
func sortAdapters(list []AdapterInfo) {
	slices.SortStableFunc(list, func(a, b AdapterInfo) int {
		return cmp.Compare(adapterRank(a.Type), adapterRank(b.Type))
	})
	for i := range list {
		list[i].Index = i
	}
}
