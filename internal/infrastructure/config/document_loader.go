// Package config loads template documents and build configuration.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/tidwall/jsonc"
)

// Ensure interface compliance
var _ ports.DocumentLoader = (*DocumentLoader)(nil)

// Format is a template document syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatForPath picks the document format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported template document %s", path)
	}
}

// DocumentLoader reads template documents. Each document maps template
// names to definitions.
type DocumentLoader struct {
	defaultEngine string
}

// NewDocumentLoader creates a loader. defaultEngine is applied to
// definitions that do not name an engine; empty leaves them unset.
func NewDocumentLoader(defaultEngine string) (*DocumentLoader, error) {
	if _, err := values.ParseEngineID(defaultEngine); err != nil {
		return nil, fmt.Errorf("invalid default engine: %w", err)
	}
	return &DocumentLoader{defaultEngine: defaultEngine}, nil
}

// LoadDocuments reads every document in order and amalgamates them. A
// name defined by two documents is a DuplicateName error naming both.
func (l *DocumentLoader) LoadDocuments(ctx context.Context, paths []string) ([]entities.TemplateDefinition, error) {
	var defs []entities.TemplateDefinition
	sources := make(map[string]string)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		docDefs, err := l.LoadDocument(path)
		if err != nil {
			return nil, err
		}

		for _, def := range docDefs {
			if prev, ok := sources[def.Name]; ok {
				return nil, &entities.RegistryError{
					Kind:     entities.RegistryDuplicateName,
					Template: def.Name,
					Chain:    []string{prev, path},
				}
			}
			sources[def.Name] = path
			defs = append(defs, def)
		}
	}

	return defs, nil
}

// LoadDocument reads one document.
func (l *DocumentLoader) LoadDocument(path string) ([]entities.TemplateDefinition, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	// Security: Use os.OpenRoot to prevent path traversal attacks
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open document directory: %w", err)
	}
	defer func() {
		_ = root.Close() // Best-effort cleanup
	}()

	file, err := root.Open(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_ = file.Close() // Best-effort cleanup
	}()

	return l.LoadFromReader(file, format, path)
}

// LoadFromReader decodes one document. source labels the definitions.
func (l *DocumentLoader) LoadFromReader(r io.Reader, format Format, source string) ([]entities.TemplateDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	doc := make(map[string]entities.TemplateDefinition)
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(jsonc.ToJSON(data), &doc)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", source, err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	slices.Sort(names)

	defs := make([]entities.TemplateDefinition, 0, len(doc))
	for _, name := range names {
		def := doc[name]
		def.Name = name
		def.Source = source
		if def.Engine == "" {
			def.Engine = l.defaultEngine
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Amalgamate loads every document and writes the combined definitions to
// w as a single TOML document, for build steps that ship one file.
func (l *DocumentLoader) Amalgamate(ctx context.Context, paths []string, w io.Writer) error {
	defs, err := l.LoadDocuments(ctx, paths)
	if err != nil {
		return err
	}

	doc := make(map[string]entities.TemplateDefinition, len(defs))
	for _, def := range defs {
		doc[def.Name] = def
	}

	enc := toml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode amalgamated document: %w", err)
	}
	return nil
}
