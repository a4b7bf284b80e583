package decomp

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-decomp/pkg/cache"
)

// SummaryCache maps function fingerprints to summaries.
type SummaryCache = cache.LRU[Summary]

// NewSummaryCache returns an empty cache holding up to size summaries.
func NewSummaryCache(size int) *SummaryCache {
	return cache.New(cache.Options[Summary]{MaxSize: size})
}

// OpenSummaryCache loads the cache persisted at path. A missing file gives
// an empty cache; a file written by another format version is discarded and
// reported alongside the usable empty cache.
func OpenSummaryCache(path string, size int) (*SummaryCache, error) {
	c := NewSummaryCache(size)
	if err := c.LoadFromFile(path); err != nil {
		c.Clear()
		if errors.Is(err, cache.ErrVersionMismatch) {
			return c, fmt.Errorf("discarding summary cache %s: %w", path, err)
		}
		return c, fmt.Errorf("loading summary cache %s: %w", path, err)
	}
	return c, nil
}
