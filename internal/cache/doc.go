// Package cache provides a generic LRU cache used to share compiled
// shader modules between pipelines.
//
//	c := cache.New[[32]byte, *Module](64)
//	mod, hit, err := c.GetOrCreate(digest, func() (*Module, error) {
//	    return compile(src)
//	})
//
// Values are built at most once per key, and a failed build is not stored.
// Eviction is least-recently-used and can be observed with OnEvict.
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
