package values

import (
	"fmt"
	"strings"
)

// CacheKey identifies one rendering: which body, with which parameters,
// through which backend. Two renderings with equal keys produce equal text.
type CacheKey struct {
	Content Hash
	Params  Hash
	Engine  EngineID
}

// NewCacheKey creates a cache key
func NewCacheKey(content, params Hash, engine EngineID) CacheKey {
	return CacheKey{Content: content, Params: params, Engine: engine}
}

// String returns "engine:content:params" with hex hashes.
func (k CacheKey) String() string {
	return k.Engine.String() + ":" + k.Content.String() + ":" + k.Params.String()
}

// ParseCacheKey is the inverse of String.
func ParseCacheKey(s string) (CacheKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return CacheKey{}, fmt.Errorf("invalid cache key %q", s)
	}

	engine, err := ParseEngineID(parts[0])
	if err != nil {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	if !engine.IsSet() {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: missing engine", s)
	}

	content, err := ParseHash(parts[1])
	if err != nil {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	params, err := ParseHash(parts[2])
	if err != nil {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}

	return CacheKey{Content: content, Params: params, Engine: engine}, nil
}
