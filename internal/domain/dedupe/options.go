package dedupe

// Option applies a configuration option to the memory cache.
type Option func(*memoryCache)

// WithMaxSize sets the maximum number of remembered keys.
// If maxSize <= 0 the cache never evicts.
func WithMaxSize(maxSize int) Option {
	return func(c *memoryCache) {
		c.maxSize = maxSize
	}
}
