package compute

import "errors"

var (
	// ErrDeviceUnavailable is returned when a device index does not name an
	// enumerated compute-capable adapter, or the adapter cannot be opened.
	ErrDeviceUnavailable = errors.New("compute: device unavailable")

	// ErrOutOfDeviceMemory is returned when an allocator cannot satisfy a
	// request even after expanding its pool.
	ErrOutOfDeviceMemory = errors.New("compute: out of device memory")

	// ErrAllocatorReclaimed is returned when an allocator is reclaimed twice,
	// reclaimed to the wrong pool, or used after reclaim.
	ErrAllocatorReclaimed = errors.New("compute: allocator already reclaimed")

	// ErrLocalSizeUnset is returned by Pipeline.Create before SetOptimalLocalSize.
	ErrLocalSizeUnset = errors.New("compute: pipeline local size not set")

	// ErrPipelineCreated is returned when Create is called twice.
	ErrPipelineCreated = errors.New("compute: pipeline already created")

	// ErrPipelineNotCreated is returned when recording an uncreated pipeline.
	ErrPipelineNotCreated = errors.New("compute: pipeline not created")

	// ErrPipelineLink is returned when the bindings a module declares do not
	// match what the caller expects, or the backend rejects the layout.
	ErrPipelineLink = errors.New("compute: pipeline link failed")

	// ErrBindingMismatch is returned when RecordPipeline gets a different
	// number of matrices than the pipeline has storage bindings.
	ErrBindingMismatch = errors.New("compute: binding count mismatch")

	// ErrParamSize is returned when a parameter payload does not match the
	// size of the pipeline's parameter block.
	ErrParamSize = errors.New("compute: parameter payload size mismatch")

	// ErrNotReset is returned when recording into a submitted command.
	ErrNotReset = errors.New("compute: command must be reset after submit")

	// ErrIncompatibleFormat is returned when a clone cannot bridge two
	// formats or element types, or an image cannot hold a geometry.
	ErrIncompatibleFormat = errors.New("compute: incompatible format")

	// ErrDeviceMismatch is returned when a matrix or pipeline belongs to a
	// different device than the command.
	ErrDeviceMismatch = errors.New("compute: resource belongs to another device")

	// ErrReleased is returned when using a released matrix.
	ErrReleased = errors.New("compute: matrix released")

	// ErrClosed is returned when using a closed runtime or device.
	ErrClosed = errors.New("compute: closed")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("compute: already initialized")

	// ErrNoBackend is returned when no backend could be opened.
	ErrNoBackend = errors.New("compute: no backend available")
)
