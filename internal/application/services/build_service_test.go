package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/reglet-dev/fragment/internal/application/dto"
	apperrors "github.com/reglet-dev/fragment/internal/application/errors"
	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/file"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubScanner struct{}

func (stubScanner) Scan(text string) []ports.SecretFinding {
	if strings.Contains(text, "hunter2") {
		return []ports.SecretFinding{{RuleID: "test-password", Description: "Test password"}}
	}
	return nil
}

func (stubScanner) Scrub(text string) string {
	return strings.ReplaceAll(text, "hunter2", "[REDACTED]")
}

// lifecycleCache is a memory cache with a controllable load/flush lifecycle.
type lifecycleCache struct {
	*memory.Cache
	loadErr  error
	flushErr error
	loads    atomic.Int32
	flushes  atomic.Int32
}

func (c *lifecycleCache) Load(context.Context) error {
	c.loads.Add(1)
	return c.loadErr
}

func (c *lifecycleCache) Flush(context.Context) error {
	c.flushes.Add(1)
	return c.flushErr
}

// gateRenderer holds inline bodies starting with "slow" until released.
type gateRenderer struct {
	*countingRenderer
	entered chan struct{}
	release chan struct{}
}

func (r *gateRenderer) Render(engine values.EngineID, name, body string, params map[string]entities.Value) (string, error) {
	if strings.HasPrefix(body, "slow") {
		close(r.entered)
		<-r.release
	}
	return r.countingRenderer.Render(engine, name, body, params)
}

func greetUnit(name, export, who string) entities.CompositionUnit {
	return entities.NewUnit(name,
		entities.Export(export, entities.Invoke(entities.Call("greeting", entities.P("name", entities.Text(who))))),
	)
}

func Test_BuildService_Build_ParallelUnits(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newCountingRenderer(t)
	svc := NewBuildService(defaultRegistry(t), r, WithCache(memory.NewCache()))

	var units []entities.CompositionUnit
	for i := range 20 {
		units = append(units, greetUnit(fmt.Sprintf("u%02d", i), fmt.Sprintf("g%02d", i), fmt.Sprintf("user%d", i%5)))
	}

	resp, err := svc.Build(context.Background(), dto.BuildRequest{
		Units:   units,
		Options: dto.BuildOptions{MaxConcurrentUnits: 4},
	})
	require.NoError(t, err)
	assert.False(t, resp.HasErrors())
	assert.False(t, resp.BuildID.IsZero())
	require.Len(t, resp.Units, 20)
	require.Len(t, resp.Exports, 20)

	for i, exp := range resp.Exports {
		assert.Equal(t, fmt.Sprintf("g%02d", i), exp.Name)
		assert.Equal(t, fmt.Sprintf("Hello user%d!", i%5), exp.Value.Text)
		assert.Equal(t, fmt.Sprintf("u%02d", i), resp.Units[i].Unit)
	}

	// Five distinct inputs; concurrent misses on the same key may each render.
	assert.GreaterOrEqual(t, r.calls.Load(), int64(5))
	assert.LessOrEqual(t, r.calls.Load(), int64(20))
}

func Test_BuildService_Build_MergeExports(t *testing.T) {
	svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t))

	resp, err := svc.Build(context.Background(), dto.BuildRequest{
		Units: []entities.CompositionUnit{
			greetUnit("first", "hello", "Ada"),
			greetUnit("same", "hello", "Ada"),
			greetUnit("other", "hello", "Grace"),
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Exports, 1)
	assert.Equal(t, "first", resp.Exports[0].Unit)
	assert.Equal(t, "Hello Ada!", resp.Exports[0].Value.Text)

	require.Len(t, resp.Diagnostics.Errors, 1)
	diag := resp.Diagnostics.Errors[0]
	assert.Equal(t, KindExportConflict, diag.Kind)
	assert.Equal(t, "other", diag.Unit)
	assert.Equal(t, "hello", diag.Node)
}

func Test_BuildService_Build_FailingUnitKeepsOthers(t *testing.T) {
	svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t))

	cyclic := entities.NewUnit("cyclic",
		entities.Export("a", entities.Invoke(entities.Call("wrap", entities.P("inner", entities.Ref("b"))))),
		entities.Export("b", entities.Invoke(entities.Call("wrap", entities.P("inner", entities.Ref("a"))))),
	)
	broken := entities.NewUnit("broken",
		entities.Export("ok", entities.Text("kept")),
		entities.Export("bad", entities.Invoke(entities.Call("greeting"))),
	)

	resp, err := svc.Build(context.Background(), dto.BuildRequest{
		Units: []entities.CompositionUnit{cyclic, greetUnit("fine", "hello", "Ada"), broken},
	})
	require.NoError(t, err)
	assert.True(t, resp.HasErrors())

	names := make([]string, 0, len(resp.Exports))
	for _, exp := range resp.Exports {
		names = append(names, exp.Name)
	}
	assert.Equal(t, []string{"hello", "ok"}, names)

	require.Len(t, resp.Diagnostics.Errors, 2)

	cycle := resp.Diagnostics.Errors[0]
	assert.Equal(t, "CycleError", cycle.Kind)
	assert.Equal(t, "cyclic", cycle.Unit)
	assert.Contains(t, cycle.Message, "a -> b")

	render := resp.Diagnostics.Errors[1]
	assert.Equal(t, "UndefinedParameter", render.Kind)
	assert.Equal(t, "broken", render.Unit)
	assert.Equal(t, "bad", render.Node)
	assert.Equal(t, "greeting", render.Template)
	assert.Equal(t, 1, render.Location.Line)
}

func Test_BuildService_Build_InvalidRequest(t *testing.T) {
	tests := []struct {
		name  string
		units []entities.CompositionUnit
	}{
		{"empty unit name", []entities.CompositionUnit{entities.NewUnit("")}},
		{"duplicate unit name", []entities.CompositionUnit{greetUnit("u", "a", "x"), greetUnit("u", "b", "y")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t))
			resp, err := svc.Build(context.Background(), dto.BuildRequest{Units: tt.units})
			require.Error(t, err)
			assert.Nil(t, resp)

			var validationErr *apperrors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "units", validationErr.Field)
			assert.Len(t, validationErr.Details, 1)
		})
	}
}

func Test_BuildService_Build_ValidateRegistry(t *testing.T) {
	reg := loadRegistry(t,
		entities.TemplateDefinition{Name: "greeting", Body: "Hello {name}!"},
		entities.TemplateDefinition{Name: "unused", Body: "{{if .x}}", Engine: "directive"},
	)
	svc := NewBuildService(reg, newCountingRenderer(t))
	req := dto.BuildRequest{Units: []entities.CompositionUnit{greetUnit("u", "g", "Ada")}}

	resp, err := svc.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.HasErrors())

	req.Options.ValidateRegistry = true
	_, err = svc.Build(context.Background(), req)

	var configErr *apperrors.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "registry", configErr.Aspect)
	assert.ErrorIs(t, err, entities.ErrSyntax)
}

func Test_BuildService_Build_ScanSecrets(t *testing.T) {
	svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t), WithSecretScanner(stubScanner{}))
	unit := entities.NewUnit("creds",
		entities.Export("dsn", entities.Invoke(entities.InlineCall("postgres://app:{password}@db",
			entities.P("password", entities.Text("hunter2")),
		))),
		entities.Export("plain", entities.Text("nothing here")),
	)

	resp, err := svc.Build(context.Background(), dto.BuildRequest{Units: []entities.CompositionUnit{unit}})
	require.NoError(t, err)
	assert.Empty(t, resp.Diagnostics.Warnings, "scanning is opt-in")

	resp, err = svc.Build(context.Background(), dto.BuildRequest{
		Units:   []entities.CompositionUnit{unit},
		Options: dto.BuildOptions{ScanSecrets: true},
	})
	require.NoError(t, err)
	assert.False(t, resp.HasErrors())

	require.Len(t, resp.Diagnostics.Warnings, 1)
	warn := resp.Diagnostics.Warnings[0]
	assert.Equal(t, KindSecret, warn.Kind)
	assert.Equal(t, "dsn", warn.Node)
	assert.Equal(t, "test-password: Test password", warn.Message)

	v, ok := resp.Export("dsn")
	require.True(t, ok)
	assert.Equal(t, "postgres://app:hunter2@db", v.Text, "exports are not rewritten")
}

func Test_BuildService_Build_ScrubsDiagnostics(t *testing.T) {
	reg := loadRegistry(t, entities.TemplateDefinition{
		Name: "port",
		Body: "{port}",
		Schema: map[string]any{
			"port": map[string]any{"type": "integer"},
		},
	})
	svc := NewBuildService(reg, newCountingRenderer(t), WithSecretScanner(stubScanner{}))
	unit := entities.NewUnit("u",
		entities.Export("p", entities.Invoke(entities.Call("port", entities.P("port", entities.Text("hunter2"))))),
	)

	resp, err := svc.Build(context.Background(), dto.BuildRequest{Units: []entities.CompositionUnit{unit}})
	require.NoError(t, err)
	require.Len(t, resp.Diagnostics.Errors, 1)
	assert.NotContains(t, resp.Diagnostics.Errors[0].Message, "hunter2")
}

func Test_BuildService_Build_CacheLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		loadErr   error
		flushErr  error
		wantErr   bool
		wantWarns int
	}{
		{name: "load and flush"},
		{name: "load failure aborts", loadErr: errors.New("disk gone"), wantErr: true},
		{name: "flush failure warns", flushErr: errors.New("read-only"), wantWarns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &lifecycleCache{Cache: memory.NewCache(), loadErr: tt.loadErr, flushErr: tt.flushErr}
			svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t), WithCache(cache))

			resp, err := svc.Build(context.Background(), dto.BuildRequest{
				Units: []entities.CompositionUnit{greetUnit("u", "g", "Ada")},
			})
			assert.Equal(t, int32(1), cache.loads.Load())

			if tt.wantErr {
				var configErr *apperrors.ConfigurationError
				require.ErrorAs(t, err, &configErr)
				assert.Equal(t, "cache", configErr.Aspect)
				assert.Zero(t, cache.flushes.Load())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, int32(1), cache.flushes.Load())
			assert.Equal(t, 1, cache.Len())
			assert.False(t, resp.HasErrors())
			require.Len(t, resp.Diagnostics.Warnings, tt.wantWarns)
			if tt.wantWarns > 0 {
				assert.Equal(t, KindCacheFlush, resp.Diagnostics.Warnings[0].Kind)
			}
		})
	}
}

func Test_BuildService_Build_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := svc.Build(ctx, dto.BuildRequest{
		Units: []entities.CompositionUnit{greetUnit("a", "x", "Ada"), greetUnit("b", "y", "Grace")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Exports)
	require.Len(t, resp.Diagnostics.Errors, 2)
	for _, diag := range resp.Diagnostics.Errors {
		assert.Equal(t, KindCancelled, diag.Kind)
	}
}

func Test_BuildService_Build_DefaultEngine(t *testing.T) {
	svc := NewBuildService(defaultRegistry(t), newCountingRenderer(t))
	unit := entities.NewUnit("u",
		entities.Export("inline", entities.Invoke(entities.InlineCall("{{ name | upper() }}", entities.P("name", entities.Text("ada"))))),
	)

	resp, err := svc.Build(context.Background(), dto.BuildRequest{
		Units:   []entities.CompositionUnit{unit},
		Options: dto.BuildOptions{DefaultEngine: values.EngineExpression},
	})
	require.NoError(t, err)

	v, ok := resp.Export("inline")
	require.True(t, ok)
	assert.Equal(t, "ADA", v.Text)
	assert.Equal(t, values.EngineExpression, v.Provenance.Engine)
}

func Test_BuildService_Build_OverlappingBuildsKeepCacheEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "cache.frgc")
	cache := file.NewCache(path, file.Options{Compression: file.CompressionNone})

	r := &gateRenderer{
		countingRenderer: newCountingRenderer(t),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := NewBuildService(defaultRegistry(t), r, WithCache(cache))

	first := entities.NewUnit("a",
		entities.Export("ada", entities.Invoke(entities.Call("greeting", entities.P("name", entities.Text("Ada"))))),
		entities.Export("slow", entities.Invoke(entities.InlineCall("slow {name}", entities.P("name", entities.Text("x"))))),
	)

	done := make(chan *dto.BuildResponse)
	go func() {
		resp, err := svc.Build(context.Background(), dto.BuildRequest{Units: []entities.CompositionUnit{first}})
		assert.NoError(t, err)
		done <- resp
	}()

	// The first build has stored "ada" and is blocked on "slow".
	<-r.entered

	resp, err := svc.Build(context.Background(), dto.BuildRequest{
		Units: []entities.CompositionUnit{greetUnit("b", "grace", "Grace")},
	})
	require.NoError(t, err)
	assert.False(t, resp.HasErrors())

	close(r.release)
	firstResp := <-done
	require.NotNil(t, firstResp)
	assert.False(t, firstResp.HasErrors())

	reopened := file.NewCache(path, file.Options{Compression: file.CompressionNone})
	require.NoError(t, reopened.Load(context.Background()))
	assert.Equal(t, 3, reopened.Len())
}
