package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ValueOf(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"string", "x", String("x")},
		{"int", 42, String("42")},
		{"int64", int64(-3), String("-3")},
		{"float", 2.5, String("2.5")},
		{"bool", true, String("true")},
		{"nil", nil, String("")},
		{"list", []any{"a", 1}, List(String("a"), String("1"))},
		{"map", map[string]any{"k": "v"}, Map(map[string]Value{"k": String("v")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %#v", got)
		})
	}
}

func Test_ValueOf_Unsupported(t *testing.T) {
	_, err := ValueOf(struct{}{})
	assert.Error(t, err)

	_, err = ValueOf([]any{make(chan int)})
	assert.ErrorContains(t, err, "[0]")
}

func Test_Value_Text(t *testing.T) {
	s, ok := Strings("id", "name").Text()
	require.True(t, ok)
	assert.Equal(t, "id, name", s)

	_, ok = Map(nil).Text()
	assert.False(t, ok)

	_, ok = List(String("a"), Map(nil)).Text()
	assert.False(t, ok)
}

func Test_Value_Lookup(t *testing.T) {
	v := Map(map[string]Value{
		"user": Map(map[string]Value{"name": String("Ada")}),
	})

	got, ok := v.Lookup([]string{"user", "name"})
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Str())

	_, ok = v.Lookup([]string{"user", "email"})
	assert.False(t, ok)

	_, ok = v.Lookup([]string{"user", "name", "first"})
	assert.False(t, ok)
}

func Test_Value_Native(t *testing.T) {
	v := Map(map[string]Value{
		"tags": Strings("a", "b"),
		"name": String("n"),
	})

	assert.Equal(t, map[string]any{
		"tags": []any{"a", "b"},
		"name": "n",
	}, v.Native())
}

func Test_LocationAt(t *testing.T) {
	body := "ab\ncd{x"

	assert.Equal(t, Location{Line: 1, Column: 1}, LocationAt(body, 0))
	assert.Equal(t, Location{Line: 2, Column: 3}, LocationAt(body, 5))
	assert.Equal(t, "2:3", LocationAt(body, 5).String())
}
