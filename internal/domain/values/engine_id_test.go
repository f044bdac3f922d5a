package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseEngineID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EngineID
		wantErr bool
	}{
		{"plain", "plain", EnginePlain, false},
		{"simple alias", "simple", EnginePlain, false},
		{"directive", "directive", EngineDirective, false},
		{"handlebars alias", "handlebars", EngineDirective, false},
		{"expression", "expression", EngineExpression, false},
		{"tera alias", "tera", EngineExpression, false},
		{"minijinja alias", "MiniJinja", EngineExpression, false},
		{"whitespace", "  plain ", EnginePlain, false},
		{"empty", "", EngineUnset, false},
		{"unknown", "liquid", EngineID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEngineID(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownEngine)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equals(tt.want))
		})
	}
}

func Test_EngineID_String(t *testing.T) {
	tests := []struct {
		engine   EngineID
		expected string
	}{
		{EnginePlain, "plain"},
		{EngineDirective, "directive"},
		{EngineExpression, "expression"},
		{EngineUnset, ""},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.engine.String())
		})
	}
}

func Test_EngineID_Or(t *testing.T) {
	assert.Equal(t, EngineDirective, EngineUnset.Or(EngineDirective))
	assert.Equal(t, EnginePlain, EnginePlain.Or(EngineDirective))
}

func Test_EngineID_TextRoundTrip(t *testing.T) {
	for _, e := range AllEngines() {
		text, err := e.MarshalText()
		require.NoError(t, err)

		var got EngineID
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, e, got)
	}
}
