package shader

import (
	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/internal/cache"
)

// DefaultCacheSize is the module capacity used by NewCache(0).
const DefaultCacheSize = 64

// Cache shares compiled modules between pipelines. Keys are the digest of
// the assembled source, so two operators built from the same template and
// constants compile once.
type Cache struct {
	c *cache.Cache[[32]byte, *Module]
}

// CacheStats reports cache usage.
type CacheStats = cache.Stats

// NewCache creates a cache holding up to capacity modules.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c := cache.New[[32]byte, *Module](capacity)
	c.OnEvict(func(_ [32]byte, m *Module) {
		gpufilter.Logger().Debug("shader module evicted", "words", len(m.SPIRV))
	})
	return &Cache{c: c}
}

// Get returns the module compiled from the source with the given digest.
func (c *Cache) Get(digest [32]byte) (*Module, bool) {
	return c.c.Get(digest)
}

// Compile returns the cached module for t and consts, compiling on a miss.
// Compile errors are not cached.
func (c *Cache) Compile(t Template, consts Constants) (*Module, error) {
	src, err := t.Assemble(consts)
	if err != nil {
		return nil, err
	}
	mod, hit, err := c.c.GetOrCreate(Digest(src), func() (*Module, error) {
		return CompileSource(t.Name, src)
	})
	if err != nil {
		return nil, err
	}
	gpufilter.Logger().Debug("shader module", "name", t.Name, "cached", hit, "words", len(mod.SPIRV))
	return mod, nil
}

// Clear drops every cached module. Pipelines already created keep the
// modules they hold.
func (c *Cache) Clear() { c.c.Clear() }

// Len returns the number of cached modules.
func (c *Cache) Len() int { return c.c.Len() }

// Stats returns hit and miss counters.
func (c *Cache) Stats() CacheStats { return c.c.Stats() }
