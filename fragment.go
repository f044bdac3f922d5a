// Package fragment composes named template fragments into resolved strings
// at build time.
//
// Templates are loaded from YAML, TOML or JSON documents (or supplied
// directly) into a registry. Composition units bind names to literals,
// references, template invocations and nested units; a build resolves
// every unit and returns the exported strings with diagnostics.
//
//	cfg, _ := fragment.LoadConfig("fragment.toml")
//	eng, _ := fragment.New(ctx, cfg)
//	resp, _ := eng.Build(ctx, fragment.NewUnit("main",
//		fragment.Export("hello", fragment.Invoke(fragment.Call("greeting",
//			fragment.P("name", fragment.Text("Ada")))))))
package fragment

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/reglet-dev/fragment/internal/application/dto"
	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/reglet-dev/fragment/internal/infrastructure/config"
	"github.com/reglet-dev/fragment/internal/infrastructure/container"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/file"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/memory"
	"github.com/reglet-dev/fragment/internal/version"
)

type (
	TemplateDefinition = entities.TemplateDefinition
	CompositionUnit    = entities.CompositionUnit
	Binding            = entities.Binding
	Producer           = entities.Producer
	Invocation         = entities.Invocation
	Param              = entities.Param
	Value              = entities.Value
	ResolvedValue      = entities.ResolvedValue
	EngineID           = values.EngineID

	Config          = config.BuildConfig
	BuildResponse   = dto.BuildResponse
	Diagnostic      = dto.Diagnostic
	ResolutionCache = repositories.ResolutionCache

	RegistryError = entities.RegistryError
	ScopeError    = entities.ScopeError
	CycleError    = entities.CycleError
	GraphError    = entities.GraphError
	RenderError   = entities.RenderError
)

// Producers, invocations and bindings.
var (
	Literal    = entities.Literal
	Text       = entities.Text
	Ref        = entities.Ref
	Invoke     = entities.Invoke
	Nested     = entities.Nested
	Call       = entities.Call
	InlineCall = entities.InlineCall
	P          = entities.P
	Local      = entities.Local
	Export     = entities.Export
	NewUnit    = entities.NewUnit
)

// Parameter values.
var (
	String  = entities.String
	Strings = entities.Strings
	List    = entities.List
	Map     = entities.Map
	ValueOf = entities.ValueOf
)

// Engines.
var (
	EnginePlain      = values.EnginePlain
	EngineDirective  = values.EngineDirective
	EngineExpression = values.EngineExpression
	ParseEngine      = values.ParseEngineID
)

// Error sentinels for errors.Is.
var (
	ErrDuplicateName       = entities.ErrDuplicateName
	ErrUnknownEngine       = entities.ErrUnknownEngine
	ErrUnknownParent       = entities.ErrUnknownParent
	ErrSchema              = entities.ErrSchema
	ErrInheritanceCycle    = entities.ErrInheritanceCycle
	ErrTemplateNotFound    = entities.ErrTemplateNotFound
	ErrUndeclaredReference = entities.ErrUndeclaredReference
	ErrDuplicateBinding    = entities.ErrDuplicateBinding
	ErrCycle               = entities.ErrCycle
	ErrUnknownTemplate     = entities.ErrUnknownTemplate
	ErrInvalidProducer     = entities.ErrInvalidProducer
	ErrUndefinedParameter  = entities.ErrUndefinedParameter
	ErrSyntax              = entities.ErrSyntax
	ErrTypeMismatch        = entities.ErrTypeMismatch
)

// LoadConfig reads a build configuration file with FRAGMENT_* environment
// overrides. An empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	return config.LoadBuildConfig(path)
}

// NewLogger returns a text logger on stderr at cfg's log level.
func NewLogger(cfg *Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// Option configures an Engine.
type Option func(*container.Options)

// WithDefinitions registers templates in addition to the configured
// documents.
func WithDefinitions(defs ...TemplateDefinition) Option {
	return func(o *container.Options) {
		o.Definitions = append(o.Definitions, defs...)
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *container.Options) {
		o.Logger = logger
	}
}

// WithCache replaces the cache selected by the configuration. A cache
// that also has Load(ctx) and Flush(ctx) methods is loaded before a build
// and flushed after it; overlapping builds of one Engine share a single
// load and flush. Engines sharing such a cache must not build at the
// same time.
func WithCache(cache ResolutionCache) Option {
	return func(o *container.Options) {
		o.Cache = cache
	}
}

// Engine loads a template registry once and runs builds against it.
// Builds may run concurrently.
type Engine struct {
	c *container.Container
}

// New loads the registry described by cfg. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o container.Options
	for _, opt := range opts {
		opt(&o)
	}

	c, err := container.New(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	return &Engine{c: c}, nil
}

// Build resolves units. Unit failures are reported in the response
// diagnostics; the error is non-nil only when the build could not start.
func (e *Engine) Build(ctx context.Context, units ...CompositionUnit) (*BuildResponse, error) {
	return e.c.Build(ctx, units)
}

// Templates returns the registered template names, sorted.
func (e *Engine) Templates() []string {
	return e.c.Registry().Names()
}

// Template returns a loaded template's flattened body and engine.
func (e *Engine) Template(name string) (body string, engine EngineID, err error) {
	tmpl, err := e.c.Registry().Lookup(name)
	if err != nil {
		return "", values.EngineUnset, err
	}
	return tmpl.Body, tmpl.Engine, nil
}

// ReportOptions configures WriteReport.
type ReportOptions struct {
	// Indent pretty-prints JSON.
	Indent bool
	// DocumentPath is the SARIF artifact for diagnostics without a source.
	DocumentPath string
	// Version is the SARIF tool version; empty means this module's version.
	Version string
}

// ReportFormats lists the formats accepted by WriteReport.
func (e *Engine) ReportFormats() []string {
	return e.c.Formatters().SupportedFormats()
}

// WriteReport writes resp to w as table, json, yaml or sarif.
func (e *Engine) WriteReport(w io.Writer, format string, resp *BuildResponse, opts ReportOptions) error {
	if opts.Version == "" {
		opts.Version = version.Get().String()
	}
	f, err := e.c.Formatters().Create(format, w, ports.FormatterOptions{
		Indent:       opts.Indent,
		DocumentPath: opts.DocumentPath,
		Version:      opts.Version,
	})
	if err != nil {
		return err
	}
	return f.Format(resp)
}

// Amalgamate merges template documents into one TOML document on w.
// Names defined twice are an error; defaultEngine is written into
// templates that declare none.
func Amalgamate(ctx context.Context, paths []string, defaultEngine string, w io.Writer) error {
	loader, err := config.NewDocumentLoader(defaultEngine)
	if err != nil {
		return err
	}
	return loader.Amalgamate(ctx, paths, w)
}

// NewMemoryCache returns an in-process cache, to share across engines.
func NewMemoryCache() ResolutionCache {
	return memory.NewCache()
}

// NewFileCache returns a cache persisted at path. compression is none,
// lz4 or zstd; empty means zstd. With prune, entries not used by a build
// are dropped when it flushes.
func NewFileCache(path, compression string, prune bool, logger *slog.Logger) (ResolutionCache, error) {
	c, err := file.ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	return file.NewCache(path, file.Options{Compression: c, Prune: prune, Logger: logger}), nil
}
