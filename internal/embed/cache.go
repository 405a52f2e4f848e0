package embed

import (
	"context"
	"io"
	"sync"
)

// Factory builds an unloaded backend for key.
type Factory func(key Key) (BatchEmbedder, error)

// Cache holds at most one resident Extractor. Loading a different key evicts
// and closes the previous backend. A failed load leaves the cache empty.
type Cache struct {
	factory Factory

	mu      sync.Mutex
	current *Extractor
	loads   int
}

// NewCache returns an empty cache that builds backends with factory.
func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory}
}

// Load returns the extractor for key, loading it if it is not resident.
// onProgress is only called for an actual load, with normalized fractions.
// cached reports whether the resident extractor was reused.
func (c *Cache) Load(ctx context.Context, key Key, onProgress func(LoadProgress)) (ext *Extractor, cached bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.key == key {
		return c.current, true, nil
	}
	if c.current != nil {
		closeBackend(c.current.backend)
		c.current = nil
	}

	backend, err := c.factory(key)
	if err != nil {
		return nil, false, &ExtractionError{Op: "load", Model: key.Model, Err: err}
	}

	if loader, ok := backend.(Loader); ok {
		report := func(p LoadProgress) {
			if onProgress != nil {
				p.Progress = normalizeProgress(p.Progress)
				onProgress(p)
			}
		}
		if err := loader.Load(ctx, report); err != nil {
			closeBackend(backend)
			return nil, false, &ExtractionError{Op: "load", Model: key.Model, Err: err}
		}
	}

	c.current = NewExtractor(key, backend)
	c.loads++
	return c.current, false, nil
}

// Resident reports the key of the cached extractor, if any.
func (c *Cache) Resident() (Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Key{}, false
	}
	return c.current.key, true
}

// Loads returns how many loads have completed since the cache was created.
func (c *Cache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Close evicts the resident extractor.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	err := closeBackend(c.current.backend)
	c.current = nil
	return err
}

func closeBackend(b BatchEmbedder) error {
	if cl, ok := b.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
