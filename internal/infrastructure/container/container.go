// Package container provides dependency injection for the application.
package container

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/fragment/internal/application/dto"
	"github.com/reglet-dev/fragment/internal/application/services"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	domainservices "github.com/reglet-dev/fragment/internal/domain/services"
	"github.com/reglet-dev/fragment/internal/infrastructure/config"
	"github.com/reglet-dev/fragment/internal/infrastructure/output"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/file"
	"github.com/reglet-dev/fragment/internal/infrastructure/persistence/memory"
	"github.com/reglet-dev/fragment/internal/infrastructure/redaction"
	"github.com/reglet-dev/fragment/internal/infrastructure/render"
	"github.com/reglet-dev/fragment/internal/infrastructure/validation"
)

// DefaultRenderCacheSize bounds the parsed-template cache of each backend.
const DefaultRenderCacheSize = 256

// Container holds all build dependencies.
type Container struct {
	registry     *domainservices.Registry
	renderer     *render.Renderer
	cache        repositories.ResolutionCache
	buildService *services.BuildService
	formatters   *output.FormatterFactory
	options      dto.BuildOptions
	logger       *slog.Logger
}

// Options configure the container.
type Options struct {
	Logger *slog.Logger

	// Definitions are registered in addition to the configured documents.
	Definitions []entities.TemplateDefinition

	// Cache replaces the cache selected by the configuration.
	Cache repositories.ResolutionCache

	// RenderCacheSize overrides DefaultRenderCacheSize.
	RenderCacheSize int
}

// New wires a build pipeline from cfg. cfg must already have defaults
// applied; LoadBuildConfig does that.
func New(ctx context.Context, cfg *config.BuildConfig, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RenderCacheSize <= 0 {
		opts.RenderCacheSize = DefaultRenderCacheSize
	}

	buildOpts, err := cfg.BuildOptions()
	if err != nil {
		return nil, err
	}

	// Documents first, then programmatic definitions. Templates without an
	// engine stay unset so the build default applies at evaluation.
	loader, err := config.NewDocumentLoader("")
	if err != nil {
		return nil, err
	}
	defs, err := loader.LoadDocuments(ctx, cfg.Documents)
	if err != nil {
		return nil, err
	}
	defs = append(defs, opts.Definitions...)

	registry, err := domainservices.NewRegistryLoader(validation.NewSchemaCompiler()).Load(defs)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("registry loaded", "templates", registry.Len(), "documents", len(cfg.Documents))

	renderer, err := render.NewRenderer(opts.RenderCacheSize)
	if err != nil {
		return nil, err
	}

	cache := opts.Cache
	if cache == nil {
		cache, err = newCache(cfg.Cache, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	// Always built: diagnostics are scrubbed even when scanning is off
	scanner, err := redaction.New(redaction.Config{Patterns: cfg.SecretPatterns})
	if err != nil {
		return nil, err
	}

	buildService := services.NewBuildService(registry, renderer,
		services.WithCache(cache),
		services.WithSecretScanner(scanner),
		services.WithLogger(opts.Logger),
	)

	return &Container{
		registry:     registry,
		renderer:     renderer,
		cache:        cache,
		buildService: buildService,
		formatters:   output.NewFormatterFactory(),
		options:      buildOpts,
		logger:       opts.Logger,
	}, nil
}

func newCache(cfg config.CacheConfig, logger *slog.Logger) (repositories.ResolutionCache, error) {
	if cfg.Path == "" {
		return memory.NewCache(), nil
	}
	compression, err := file.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return file.NewCache(cfg.Path, file.Options{
		Compression: compression,
		Prune:       cfg.Prune,
		Logger:      logger,
	}), nil
}

// Build runs a build with the configured options.
func (c *Container) Build(ctx context.Context, units []entities.CompositionUnit) (*dto.BuildResponse, error) {
	return c.buildService.Build(ctx, dto.BuildRequest{Units: units, Options: c.options})
}

// BuildService returns the build use case.
func (c *Container) BuildService() *services.BuildService {
	return c.buildService
}

// Registry returns the loaded template registry.
func (c *Container) Registry() *domainservices.Registry {
	return c.registry
}

// Renderer returns the rendering backends.
func (c *Container) Renderer() *render.Renderer {
	return c.renderer
}

// Cache returns the resolution cache.
func (c *Container) Cache() repositories.ResolutionCache {
	return c.cache
}

// Formatters returns the report formatter factory.
func (c *Container) Formatters() *output.FormatterFactory {
	return c.formatters
}

// Options returns the build options derived from the configuration.
func (c *Container) Options() dto.BuildOptions {
	return c.options
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
