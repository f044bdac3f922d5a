// Package services contains domain services for template composition.
// These are stateless services that encapsulate business logic.
package services

import (
	"sort"
	"strings"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// SchemaCompiler compiles the raw parameter constraints of one template.
// A nil schema with a nil error means the template declares no constraints.
type SchemaCompiler interface {
	Compile(template string, raw map[string]any) (entities.ParamSchema, error)
}

// Registry is the immutable set of loaded templates.
// Safe for concurrent readers.
type Registry struct {
	templates map[string]*entities.Template
	names     []string
}

// RegistryLoader builds a Registry from raw definitions.
type RegistryLoader struct {
	compiler SchemaCompiler
}

// NewRegistryLoader creates a loader. A nil compiler ignores parameter schemas.
func NewRegistryLoader(compiler SchemaCompiler) *RegistryLoader {
	return &RegistryLoader{compiler: compiler}
}

// flattenState carries per-load bookkeeping for inheritance flattening.
type flattenState struct {
	defs      map[string]*entities.TemplateDefinition
	engines   map[string]values.EngineID
	flattened map[string]*flatTemplate
	visiting  []string
}

type flatTemplate struct {
	body   string
	engine values.EngineID
	schema map[string]any
}

// Load validates every definition and flattens inheritance.
//
// Errors are reported for the first offending definition in input order:
// DuplicateName, UnknownEngine, UnknownParent, InheritanceCycle, SchemaError.
func (l *RegistryLoader) Load(defs []entities.TemplateDefinition) (*Registry, error) {
	state := &flattenState{
		defs:      make(map[string]*entities.TemplateDefinition, len(defs)),
		engines:   make(map[string]values.EngineID, len(defs)),
		flattened: make(map[string]*flatTemplate, len(defs)),
	}

	for i := range defs {
		def := &defs[i]
		if prev, exists := state.defs[def.Name]; exists {
			return nil, &entities.RegistryError{
				Kind:     entities.RegistryDuplicateName,
				Template: def.Name,
				Chain:    []string{sourceOf(prev), sourceOf(def)},
			}
		}
		state.defs[def.Name] = def

		engine, err := values.ParseEngineID(def.Engine)
		if err != nil {
			return nil, &entities.RegistryError{
				Kind:     entities.RegistryUnknownEngine,
				Template: def.Name,
				Detail:   def.Engine,
			}
		}
		state.engines[def.Name] = engine
	}

	for i := range defs {
		def := &defs[i]
		if def.Extends == "" {
			continue
		}
		if _, exists := state.defs[def.Extends]; !exists {
			return nil, &entities.RegistryError{
				Kind:     entities.RegistryUnknownParent,
				Template: def.Name,
				Detail:   def.Extends,
			}
		}
	}

	for i := range defs {
		if _, err := state.flatten(defs[i].Name); err != nil {
			return nil, err
		}
	}

	reg := &Registry{
		templates: make(map[string]*entities.Template, len(defs)),
		names:     make([]string, 0, len(defs)),
	}

	for i := range defs {
		def := &defs[i]
		flat := state.flattened[def.Name]

		tmpl := entities.NewTemplate(def.Name, flat.body, flat.engine)
		tmpl.Parent = def.Extends
		tmpl.Source = def.Source

		if l.compiler != nil && len(flat.schema) > 0 {
			schema, err := l.compiler.Compile(def.Name, flat.schema)
			if err != nil {
				return nil, &entities.RegistryError{
					Kind:     entities.RegistrySchemaError,
					Template: def.Name,
					Cause:    err,
				}
			}
			tmpl.Schema = schema
		}

		reg.templates[def.Name] = tmpl
		reg.names = append(reg.names, def.Name)
	}
	sort.Strings(reg.names)

	return reg, nil
}

// flatten resolves one template's ancestry depth-first. visiting holds the
// current ancestry chain; meeting a name already on it is a cycle.
func (s *flattenState) flatten(name string) (*flatTemplate, error) {
	if flat, done := s.flattened[name]; done {
		return flat, nil
	}

	for i, v := range s.visiting {
		if v == name {
			chain := append(append([]string{}, s.visiting[i:]...), name)
			return nil, &entities.RegistryError{
				Kind:     entities.RegistryInheritanceCycle,
				Template: name,
				Chain:    chain,
			}
		}
	}

	def := s.defs[name]
	flat := &flatTemplate{
		body:   def.Body,
		engine: s.engines[name],
		schema: copySchema(def.Schema),
	}

	if def.Extends != "" {
		s.visiting = append(s.visiting, name)
		parent, err := s.flatten(def.Extends)
		s.visiting = s.visiting[:len(s.visiting)-1]
		if err != nil {
			return nil, err
		}

		switch {
		case def.Body == "":
			flat.body = parent.body
		case strings.Contains(def.Body, entities.ParentPlaceholder):
			flat.body = strings.ReplaceAll(def.Body, entities.ParentPlaceholder, parent.body)
		}

		flat.engine = flat.engine.Or(parent.engine)

		merged := copySchema(parent.schema)
		for k, v := range flat.schema {
			merged[k] = v
		}
		flat.schema = merged
	}

	s.flattened[name] = flat
	return flat, nil
}

func copySchema(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sourceOf(def *entities.TemplateDefinition) string {
	if def.Source == "" {
		return "<inline>"
	}
	return def.Source
}

// Lookup returns the named template.
func (r *Registry) Lookup(name string) (*entities.Template, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return nil, &entities.RegistryError{
			Kind:     entities.RegistryNotFound,
			Template: name,
		}
	}
	return tmpl, nil
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	return r.names
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	return len(r.templates)
}
