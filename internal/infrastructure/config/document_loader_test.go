package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newLoader(t *testing.T, defaultEngine string) *DocumentLoader {
	t.Helper()
	l, err := NewDocumentLoader(defaultEngine)
	require.NoError(t, err)
	return l
}

func Test_DocumentLoader_LoadFromReader_Formats(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		content string
	}{
		{
			name:   "yaml",
			format: FormatYAML,
			content: `
greeting:
  template: "Hello {name}!"
  schema:
    name: string
shout:
  template: "{{ upper(name) }}"
  engine: jinja
  extends: greeting
`,
		},
		{
			name:   "toml",
			format: FormatTOML,
			content: `
[greeting]
template = "Hello {name}!"
schema = { name = "string" }

[shout]
template = "{{ upper(name) }}"
engine = "jinja"
extends = "greeting"
`,
		},
		{
			name:   "jsonc",
			format: FormatJSON,
			content: `{
  // plain greeting
  "greeting": {"template": "Hello {name}!", "schema": {"name": "string"}},
  "shout": {"template": "{{ upper(name) }}", "engine": "jinja", "extends": "greeting",},
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs, err := newLoader(t, "").LoadFromReader(strings.NewReader(tt.content), tt.format, "doc")
			require.NoError(t, err)
			require.Len(t, defs, 2)

			assert.Equal(t, "greeting", defs[0].Name)
			assert.Equal(t, "Hello {name}!", defs[0].Body)
			assert.Equal(t, "", defs[0].Engine)
			assert.Equal(t, "string", defs[0].Schema["name"])
			assert.Equal(t, "doc", defs[0].Source)

			assert.Equal(t, "shout", defs[1].Name)
			assert.Equal(t, "jinja", defs[1].Engine)
			assert.Equal(t, "greeting", defs[1].Extends)
		})
	}
}

func Test_DocumentLoader_DefaultEngine(t *testing.T) {
	content := `
a:
  template: "x"
b:
  template: "y"
  engine: directive
`
	defs, err := newLoader(t, "expression").LoadFromReader(strings.NewReader(content), FormatYAML, "doc")
	require.NoError(t, err)
	assert.Equal(t, "expression", defs[0].Engine)
	assert.Equal(t, "directive", defs[1].Engine)
}

func Test_NewDocumentLoader_InvalidDefault(t *testing.T) {
	_, err := NewDocumentLoader("mustache")
	assert.Error(t, err)
}

func Test_DocumentLoader_LoadDocuments_Duplicate(t *testing.T) {
	dir := t.TempDir()
	first := writeDoc(t, dir, "a.yaml", "greeting:\n  template: one\n")
	second := writeDoc(t, dir, "b.toml", "[greeting]\ntemplate = \"two\"\n")

	_, err := newLoader(t, "").LoadDocuments(context.Background(), []string{first, second})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrDuplicateName)

	var regErr *entities.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, []string{first, second}, regErr.Chain)
}

func Test_DocumentLoader_LoadDocuments_Order(t *testing.T) {
	dir := t.TempDir()
	first := writeDoc(t, dir, "a.yaml", "zeta:\n  template: z\n")
	second := writeDoc(t, dir, "b.jsonc", `{"alpha": {"template": "a"}}`)

	defs, err := newLoader(t, "").LoadDocuments(context.Background(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, first, defs[0].Source)
	assert.Equal(t, "alpha", defs[1].Name)
}

func Test_DocumentLoader_LoadDocument_Errors(t *testing.T) {
	dir := t.TempDir()
	l := newLoader(t, "")

	_, err := l.LoadDocument(writeDoc(t, dir, "x.ini", "a=b"))
	assert.Error(t, err)

	_, err = l.LoadDocument(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = l.LoadDocument(writeDoc(t, dir, "bad.toml", "[greeting\ntemplate ="))
	assert.Error(t, err)
}

func Test_DocumentLoader_LoadDocuments_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(t, "").LoadDocuments(ctx, []string{"a.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_DocumentLoader_Amalgamate(t *testing.T) {
	dir := t.TempDir()
	first := writeDoc(t, dir, "a.yaml", "greeting:\n  template: \"Hello {name}!\"\n")
	second := writeDoc(t, dir, "b.yaml", "query:\n  template: \"SELECT {fields} FROM {table}\"\n  engine: plain\n")

	var buf bytes.Buffer
	require.NoError(t, newLoader(t, "").Amalgamate(context.Background(), []string{first, second}, &buf))

	defs, err := newLoader(t, "").LoadFromReader(&buf, FormatTOML, "amalgamated")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "greeting", defs[0].Name)
	assert.Equal(t, "Hello {name}!", defs[0].Body)
	assert.Equal(t, "query", defs[1].Name)
	assert.Equal(t, "plain", defs[1].Engine)
}

func Test_FormatForPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":  FormatYAML,
		"a.YML":   FormatYAML,
		"a.toml":  FormatTOML,
		"a.json":  FormatJSON,
		"a.jsonc": FormatJSON,
	}
	for path, want := range tests {
		got, err := FormatForPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
}
