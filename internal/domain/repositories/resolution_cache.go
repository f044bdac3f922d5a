// Package repositories defines interfaces for domain persistence.
package repositories

import (
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// ResolutionCache stores rendered values by cache key.
// Implementations must be safe for concurrent use; on concurrent Put for
// the same key the last write wins.
type ResolutionCache interface {
	// Get returns the value stored under key.
	Get(key values.CacheKey) (entities.ResolvedValue, bool)

	// Put stores value under key.
	Put(key values.CacheKey, value entities.ResolvedValue)
}
