package compute

import "fmt"

// Default memory limits.
const (
	// DefaultBlobPoolMB is the initial device-local pool per allocator (64 MB).
	DefaultBlobPoolMB = 64

	// DefaultStagingPoolMB is the initial host-visible pool per allocator (32 MB).
	DefaultStagingPoolMB = 32

	// DefaultMaxPoolExpansions is how many times a pool may double.
	DefaultMaxPoolExpansions = 4

	// MinPoolMB is the smallest accepted pool size.
	MinPoolMB = 1
)

// Config holds runtime configuration. The zero value is not useful;
// start from DefaultConfig.
type Config struct {
	// Backend forces one backend by name ("vulkan", "metal", "dx12",
	// "gles", "software", "host"). Empty selects by priority.
	Backend string

	// Validation enables backend validation layers when available.
	Validation bool

	// BlobPoolMB is the initial pool size of each blob allocator.
	BlobPoolMB int

	// StagingPoolMB is the initial pool size of each staging allocator.
	StagingPoolMB int

	// MaxPoolExpansions bounds how often a pool may double under pressure.
	MaxPoolExpansions int

	// Workers is the host executor's worker count. 0 means GOMAXPROCS.
	Workers int

	// ModuleCacheSize bounds the per-device shader module cache.
	ModuleCacheSize int
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		BlobPoolMB:        DefaultBlobPoolMB,
		StagingPoolMB:     DefaultStagingPoolMB,
		MaxPoolExpansions: DefaultMaxPoolExpansions,
	}
}

func (c *Config) normalize() {
	if c.BlobPoolMB < MinPoolMB {
		c.BlobPoolMB = DefaultBlobPoolMB
	}
	if c.StagingPoolMB < MinPoolMB {
		c.StagingPoolMB = DefaultStagingPoolMB
	}
	if c.MaxPoolExpansions < 0 {
		c.MaxPoolExpansions = 0
	}
}

// String returns a compact description of the configuration.
func (c Config) String() string {
	backend := c.Backend
	if backend == "" {
		backend = "auto"
	}
	return fmt.Sprintf("Config[backend=%s blob=%dMB staging=%dMB expansions=%d]",
		backend, c.BlobPoolMB, c.StagingPoolMB, c.MaxPoolExpansions)
}

// Option configures a Runtime during Open.
//
// Example:
//
//	// Force the CPU reference backend
//	rt, err := compute.Open(compute.WithBackend("host"))
type Option func(*Config)

// WithBackend forces a backend by name.
func WithBackend(name string) Option {
	return func(c *Config) {
		c.Backend = name
	}
}

// WithValidation enables backend validation layers.
func WithValidation(enabled bool) Option {
	return func(c *Config) {
		c.Validation = enabled
	}
}

// WithPoolSizes sets the initial blob and staging pool sizes in megabytes.
func WithPoolSizes(blobMB, stagingMB int) Option {
	return func(c *Config) {
		c.BlobPoolMB = blobMB
		c.StagingPoolMB = stagingMB
	}
}

// WithMaxPoolExpansions bounds pool growth under memory pressure.
func WithMaxPoolExpansions(n int) Option {
	return func(c *Config) {
		c.MaxPoolExpansions = n
	}
}

// WithWorkers sets the host executor's worker count.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithModuleCacheSize bounds the shader module cache of each device.
func WithModuleCacheSize(n int) Option {
	return func(c *Config) {
		c.ModuleCacheSize = n
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}
