package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, body string, params map[string]any) values.CacheKey {
	t.Helper()
	ph, err := values.HashParams(params)
	require.NoError(t, err)
	return values.NewCacheKey(values.HashContent(body), ph, values.EnginePlain)
}

func Test_Cache_PutGet(t *testing.T) {
	c := NewCache()
	key := testKey(t, "Hello {name}!", map[string]any{"name": "Ada"})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, entities.ResolvedValue{Text: "Hello Ada!"})

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Hello Ada!", got.Text)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func Test_Cache_KeyComponents(t *testing.T) {
	c := NewCache()
	base := testKey(t, "{x}", map[string]any{"x": "1"})
	c.Put(base, entities.ResolvedValue{Text: "1"})

	otherParams := testKey(t, "{x}", map[string]any{"x": "2"})
	otherBody := testKey(t, "{x} ", map[string]any{"x": "1"})
	otherEngine := values.NewCacheKey(base.Content, base.Params, values.EngineDirective)

	for _, k := range []values.CacheKey{otherParams, otherBody, otherEngine} {
		_, ok := c.Get(k)
		assert.False(t, ok, k.String())
	}
}

func Test_Cache_LastWriteWins(t *testing.T) {
	c := NewCache()
	key := testKey(t, "x", nil)

	c.Put(key, entities.ResolvedValue{Text: "first"})
	c.Put(key, entities.ResolvedValue{Text: "second"})

	got, _ := c.Get(key)
	assert.Equal(t, "second", got.Text)
	assert.Equal(t, 1, c.Len())
}

func Test_Cache_Range_UsedOnly(t *testing.T) {
	c := NewCache()
	seeded := testKey(t, "seeded", nil)
	touched := testKey(t, "touched", nil)
	fresh := testKey(t, "fresh", nil)

	c.Seed(seeded, entities.ResolvedValue{Text: "s"})
	c.Seed(touched, entities.ResolvedValue{Text: "t"})
	c.Put(fresh, entities.ResolvedValue{Text: "f"})
	_, _ = c.Get(touched)

	var used []string
	c.Range(true, func(_ values.CacheKey, v entities.ResolvedValue) bool {
		used = append(used, v.Text)
		return true
	})
	assert.ElementsMatch(t, []string{"t", "f"}, used)

	all := 0
	c.Range(false, func(values.CacheKey, entities.ResolvedValue) bool {
		all++
		return true
	})
	assert.Equal(t, 3, all)
}

func Test_Cache_Clear(t *testing.T) {
	c := NewCache()
	c.Put(testKey(t, "a", nil), entities.ResolvedValue{Text: "a"})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func Test_Cache_Concurrent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey(t, fmt.Sprintf("body-%d", i%8), map[string]any{"i": i % 4})
			c.Put(key, entities.ResolvedValue{Text: key.String()})
			got, ok := c.Get(key)
			assert.True(t, ok)
			assert.Equal(t, key.String(), got.Text)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 32)
}
