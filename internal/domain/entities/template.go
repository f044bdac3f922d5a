// Package entities contains domain entities for the fragment domain model.
// These are pure domain types with NO infrastructure dependencies.
package entities

import (
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// ParentPlaceholder marks where a child template splices its parent's body.
const ParentPlaceholder = "{{parent}}"

// TemplateDefinition is a template as written in a configuration document,
// before engine identifiers are parsed and inheritance is flattened.
type TemplateDefinition struct {
	// Name is the registry key. Documents supply it as the map key.
	Name string `yaml:"-" toml:"-" json:"-"`
	// Body is the raw template text.
	Body string `yaml:"template" toml:"template" json:"template"`
	// Engine is the raw engine identifier; empty means the process default.
	Engine string `yaml:"engine,omitempty" toml:"engine,omitempty" json:"engine,omitempty"`
	// Extends names a parent template.
	Extends string `yaml:"extends,omitempty" toml:"extends,omitempty" json:"extends,omitempty"`
	// Schema maps parameter names to constraints. A constraint is a JSON
	// Schema fragment, or a bare type name as shorthand.
	Schema map[string]any `yaml:"schema,omitempty" toml:"schema,omitempty" json:"schema,omitempty"`
	// Source names the document the definition came from.
	Source string `yaml:"-" toml:"-" json:"-"`
}

// ParamSchema checks and completes the parameters of one invocation.
// Implementations are immutable and safe for concurrent use.
type ParamSchema interface {
	// Apply fills declared defaults and checks every declared constraint.
	// It returns a new map; the input is not modified.
	Apply(params map[string]Value) (map[string]Value, error)
	// Names returns the constrained parameter names, sorted.
	Names() []string
}

// Template is a loaded template: inheritance flattened, engine parsed,
// schema compiled. Immutable once the registry is built.
type Template struct {
	Name        string
	Body        string
	Engine      values.EngineID
	Parent      string
	Schema      ParamSchema
	ContentHash values.Hash
	Source      string
}

// NewTemplate creates a template and computes its content hash.
func NewTemplate(name, body string, engine values.EngineID) *Template {
	return &Template{
		Name:        name,
		Body:        body,
		Engine:      engine,
		ContentHash: values.HashContent(body),
	}
}

// ApplySchema runs the template's schema, if any, over params.
func (t *Template) ApplySchema(params map[string]Value) (map[string]Value, error) {
	if t.Schema == nil {
		return params, nil
	}
	return t.Schema.Apply(params)
}
