// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"
	"io"

	"github.com/reglet-dev/fragment/internal/application/dto"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// Renderer renders template bodies through a selected backend.
// Implementations must be deterministic and safe for concurrent use.
type Renderer interface {
	// Render renders body with params. name labels errors.
	Render(engine values.EngineID, name, body string, params map[string]entities.Value) (string, error)

	// Validate checks body syntax without parameters.
	Validate(engine values.EngineID, name, body string) error
}

// CacheLifecycle is implemented by caches that persist across builds.
type CacheLifecycle interface {
	// Load reads persisted entries. A missing store is an empty cache.
	Load(ctx context.Context) error

	// Flush writes entries back to the store.
	Flush(ctx context.Context) error
}

// PersistentCache is a resolution cache with a load/flush lifecycle.
type PersistentCache interface {
	repositories.ResolutionCache
	CacheLifecycle
}

// DocumentLoader reads template definitions from configuration documents.
type DocumentLoader interface {
	LoadDocuments(ctx context.Context, paths []string) ([]entities.TemplateDefinition, error)
}

// SecretFinding is one suspected secret in a resolved string.
type SecretFinding struct {
	RuleID      string
	Description string
}

// SecretScanner looks for credentials in resolved strings before they are
// handed to code generation.
type SecretScanner interface {
	Scan(text string) []SecretFinding
	// Scrub replaces detected secrets, for text that ends up in reports.
	Scrub(text string) string
}

// FormatterOptions configures output formatters.
type FormatterOptions struct {
	// Indent enables pretty-printed JSON.
	Indent bool
	// DocumentPath is reported as the artifact location in SARIF output.
	DocumentPath string
	// Version is reported as the tool version in SARIF output.
	Version string
}

// OutputFormatter writes a build response.
type OutputFormatter interface {
	Format(resp *dto.BuildResponse) error
}

// OutputFormatterFactory creates formatters by name.
type OutputFormatterFactory interface {
	Create(format string, writer io.Writer, options FormatterOptions) (OutputFormatter, error)
	SupportedFormats() []string
}
