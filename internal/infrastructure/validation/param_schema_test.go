package validation

import (
	"testing"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, raw map[string]any) entities.ParamSchema {
	t.Helper()
	ps, err := NewSchemaCompiler().Compile("query", raw)
	require.NoError(t, err)
	require.NotNil(t, ps)
	return ps
}

func Test_SchemaCompiler_Compile_Empty(t *testing.T) {
	ps, err := NewSchemaCompiler().Compile("query", nil)
	require.NoError(t, err)
	assert.Nil(t, ps)
}

func Test_SchemaCompiler_Compile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown type shorthand", map[string]any{"limit": "int"}},
		{"unknown type", map[string]any{"limit": map[string]any{"type": "decimal"}}},
		{"non-boolean required", map[string]any{"limit": map[string]any{"required": "yes"}}},
		{"bad constraint kind", map[string]any{"limit": 42}},
		{"default violates type", map[string]any{"limit": map[string]any{"type": "integer", "default": "ten"}}},
		{"default violates bound", map[string]any{"limit": map[string]any{"type": "integer", "minimum": 1, "default": 0}}},
		{"invalid keyword value", map[string]any{"name": map[string]any{"type": "string", "minLength": "three"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchemaCompiler().Compile("query", tt.raw)
			assert.Error(t, err)
		})
	}
}

func Test_ParamSchema_Names(t *testing.T) {
	ps := compile(t, map[string]any{"table": "string", "fields": "string", "limit": "integer"})
	assert.Equal(t, []string{"fields", "limit", "table"}, ps.Names())
}

func Test_ParamSchema_Apply_Defaults(t *testing.T) {
	ps := compile(t, map[string]any{
		"limit": map[string]any{"type": "integer", "default": 10},
		"order": map[string]any{"type": "string"},
	})

	in := map[string]entities.Value{"table": entities.String("users")}
	out, err := ps.Apply(in)
	require.NoError(t, err)

	assert.Equal(t, "10", out["limit"].Str())
	assert.Equal(t, "users", out["table"].Str())
	_, hasOrder := out["order"]
	assert.False(t, hasOrder)
	_, touched := in["limit"]
	assert.False(t, touched, "input map must not be modified")
}

func Test_ParamSchema_Apply_Required(t *testing.T) {
	ps := compile(t, map[string]any{"table": map[string]any{"type": "string", "required": true}})

	_, err := ps.Apply(map[string]entities.Value{})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrUndefinedParameter)

	var renderErr *entities.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "query", renderErr.Template)
}

func Test_ParamSchema_Apply_TypeChecks(t *testing.T) {
	ps := compile(t, map[string]any{
		"limit":   map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
		"ratio":   "number",
		"enabled": "boolean",
		"fields":  map[string]any{"type": "array", "minItems": 1},
		"opts":    "object",
		"table":   map[string]any{"type": "string", "pattern": "^[a-z_]+$"},
		"mode":    map[string]any{"enum": []any{"fast", "safe"}},
	})

	tests := []struct {
		name    string
		param   string
		value   entities.Value
		wantErr bool
	}{
		{"integer ok", "limit", entities.String("10"), false},
		{"integer not numeric", "limit", entities.String("ten"), true},
		{"integer above maximum", "limit", entities.String("101"), true},
		{"number ok", "ratio", entities.String("0.5"), false},
		{"number bad", "ratio", entities.String("half"), true},
		{"boolean ok", "enabled", entities.String("true"), false},
		{"boolean bad", "enabled", entities.String("maybe"), true},
		{"array ok", "fields", entities.Strings("id", "name"), false},
		{"array empty", "fields", entities.List(), true},
		{"array given scalar", "fields", entities.String("id"), true},
		{"object ok", "opts", entities.Map(map[string]entities.Value{"a": entities.String("b")}), false},
		{"object given list", "opts", entities.Strings("a"), true},
		{"string pattern ok", "table", entities.String("users"), false},
		{"string pattern bad", "table", entities.String("Users;"), true},
		{"string given list", "table", entities.Strings("users"), true},
		{"enum ok", "mode", entities.String("fast"), false},
		{"enum bad", "mode", entities.String("slow"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ps.Apply(map[string]entities.Value{tt.param: tt.value})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, entities.ErrTypeMismatch)
			assert.Contains(t, err.Error(), tt.param)
		})
	}
}
