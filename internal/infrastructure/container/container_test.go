package container

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/reglet-dev/fragment/internal/infrastructure/config"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/file"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, docs ...string) *config.BuildConfig {
	t.Helper()
	cfg := &config.BuildConfig{Documents: docs}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_New_DocumentsAndDefinitions(t *testing.T) {
	doc := writeDoc(t, `
greeting:
  template: "Hello {name}!"
`)
	c, err := New(context.Background(), testConfig(t, doc), Options{
		Definitions: []entities.TemplateDefinition{{Name: "shout", Body: "{{ upper(name) }}", Engine: "expression"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"greeting", "shout"}, c.Registry().Names())
	assert.IsType(t, &memory.Cache{}, c.Cache())
	assert.Equal(t, values.EnginePlain, c.Options().DefaultEngine)

	tmpl, err := c.Registry().Lookup("greeting")
	require.NoError(t, err)
	assert.Equal(t, doc, tmpl.Source)

	resp, err := c.Build(context.Background(), []entities.CompositionUnit{
		entities.NewUnit("main",
			entities.Export("hello", entities.Invoke(entities.Call("greeting", entities.P("name", entities.Text("Ada"))))),
			entities.Export("loud", entities.Invoke(entities.Call("shout", entities.P("name", entities.Text("Ada"))))),
		),
	})
	require.NoError(t, err)
	assert.False(t, resp.HasErrors())

	hello, _ := resp.Export("hello")
	loud, _ := resp.Export("loud")
	assert.Equal(t, "Hello Ada!", hello.Text)
	assert.Equal(t, "ADA", loud.Text)
}

func Test_New_DuplicateAcrossSources(t *testing.T) {
	doc := writeDoc(t, `
greeting:
  template: "Hello {name}!"
`)
	_, err := New(context.Background(), testConfig(t, doc), Options{
		Definitions: []entities.TemplateDefinition{{Name: "greeting", Body: "Hi {name}"}},
	})
	assert.ErrorIs(t, err, entities.ErrDuplicateName)
}

func Test_New_FileCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Path = filepath.Join(t.TempDir(), "fragment.cache")
	cfg.Cache.Compression = "lz4"

	c, err := New(context.Background(), cfg, Options{
		Definitions: []entities.TemplateDefinition{{Name: "greeting", Body: "Hello {name}!"}},
	})
	require.NoError(t, err)

	fc, ok := c.Cache().(*file.Cache)
	require.True(t, ok)
	assert.Equal(t, cfg.Cache.Path, fc.Path())
	assert.Implements(t, (*ports.CacheLifecycle)(nil), c.Cache())

	unit := entities.NewUnit("main",
		entities.Export("hello", entities.Invoke(entities.Call("greeting", entities.P("name", entities.Text("Ada"))))),
	)
	_, err = c.Build(context.Background(), []entities.CompositionUnit{unit})
	require.NoError(t, err)
	assert.FileExists(t, cfg.Cache.Path)

	// A second container reads the persisted entry back.
	again, err := New(context.Background(), cfg, Options{
		Definitions: []entities.TemplateDefinition{{Name: "greeting", Body: "Hello {name}!"}},
	})
	require.NoError(t, err)
	resp, err := again.Build(context.Background(), []entities.CompositionUnit{unit})
	require.NoError(t, err)

	hello, _ := resp.Export("hello")
	assert.True(t, hello.Cached)
	assert.Equal(t, 1, resp.Units[0].Stats.CacheHits)
}

func Test_New_InvalidEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefaultEngine = "mustache"

	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, values.ErrUnknownEngine)
}

func Test_Container_Formatters(t *testing.T) {
	c, err := New(context.Background(), testConfig(t), Options{
		Definitions: []entities.TemplateDefinition{{Name: "greeting", Body: "Hello {name}!"}},
	})
	require.NoError(t, err)

	resp, err := c.Build(context.Background(), []entities.CompositionUnit{
		entities.NewUnit("main", entities.Export("hello", entities.Invoke(entities.Call("greeting", entities.P("name", entities.Text("Ada")))))),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	f, err := c.Formatters().Create("json", &buf, ports.FormatterOptions{})
	require.NoError(t, err)
	require.NoError(t, f.Format(resp))
	assert.Contains(t, buf.String(), "Hello Ada!")
}
