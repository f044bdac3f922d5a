package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_HashContent_Deterministic(t *testing.T) {
	a := HashContent("Hello {name}!")
	b := HashContent("Hello {name}!")
	c := HashContent("Hello {name}?")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsZero())
}

func Test_HashParams_OrderIndependent(t *testing.T) {
	first := map[string]any{"a": "1", "b": []any{"x", "y"}}
	second := map[string]any{"b": []any{"x", "y"}, "a": "1"}

	h1, err := HashParams(first)
	require.NoError(t, err)
	h2, err := HashParams(second)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func Test_HashParams_DomainSeparated(t *testing.T) {
	// The same bytes never collide across content and params domains.
	empty, err := HashParams(nil)
	require.NoError(t, err)
	assert.NotEqual(t, HashContent(""), empty)
}

func Test_ParseHash(t *testing.T) {
	h := HashContent("x")

	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("abc")
	assert.Error(t, err)

	_, err = ParseHash("zz")
	assert.Error(t, err)
}

func Test_CacheKey_StringRoundTrip(t *testing.T) {
	params, err := HashParams(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	key := NewCacheKey(HashContent("Hello {name}!"), params, EnginePlain)

	parsed, err := ParseCacheKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func Test_ParseCacheKey_Invalid(t *testing.T) {
	h := HashContent("x").String()

	tests := []struct {
		name  string
		input string
	}{
		{"too few parts", "plain:" + h},
		{"unknown engine", "liquid:" + h + ":" + h},
		{"unset engine", ":" + h + ":" + h},
		{"bad hash", "plain:nothex:" + h},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCacheKey(tt.input)
			assert.Error(t, err)
		})
	}
}
