// Package validation compiles template parameter constraints into JSON Schemas.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// knownTypes are the JSON Schema types a parameter may declare.
var knownTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// SchemaCompiler turns raw constraint maps into entities.ParamSchema.
type SchemaCompiler struct{}

// NewSchemaCompiler creates a schema compiler.
func NewSchemaCompiler() *SchemaCompiler {
	return &SchemaCompiler{}
}

// ParamSchema is a compiled set of parameter constraints.
type ParamSchema struct {
	template string
	params   map[string]*paramConstraint
	names    []string
}

var _ entities.ParamSchema = (*ParamSchema)(nil)

type paramConstraint struct {
	name       string
	typ        string
	required   bool
	hasDefault bool
	def        entities.Value
	schema     *jsonschema.Schema
}

// Compile validates and compiles raw constraints. Each constraint is
// either a type name ("integer") or a JSON Schema fragment. The extra
// keyword `required: true` marks a parameter without a default as mandatory.
func (c *SchemaCompiler) Compile(template string, raw map[string]any) (entities.ParamSchema, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ps := &ParamSchema{
		template: template,
		params:   make(map[string]*paramConstraint, len(raw)),
	}

	for name, constraint := range raw {
		pc, err := compileConstraint(template, name, constraint)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		ps.params[name] = pc
		ps.names = append(ps.names, name)
	}
	sort.Strings(ps.names)

	return ps, nil
}

func compileConstraint(template, name string, constraint any) (*paramConstraint, error) {
	var doc map[string]any
	switch c := constraint.(type) {
	case string:
		doc = map[string]any{"type": c}
	case map[string]any:
		doc = make(map[string]any, len(c))
		for k, v := range c {
			doc[k] = v
		}
	case nil:
		doc = map[string]any{}
	default:
		return nil, fmt.Errorf("constraint must be a type name or a map, got %T", constraint)
	}

	pc := &paramConstraint{name: name}

	// "required" as a boolean is ours, not JSON Schema's.
	if req, ok := doc["required"]; ok {
		b, isBool := req.(bool)
		if !isBool {
			return nil, fmt.Errorf("required must be a boolean")
		}
		pc.required = b
		delete(doc, "required")
	}

	if t, ok := doc["type"]; ok {
		typ, isString := t.(string)
		if !isString || !knownTypes[typ] {
			return nil, fmt.Errorf("unknown type %v", t)
		}
		pc.typ = typ
	}

	if d, ok := doc["default"]; ok {
		v, err := entities.ValueOf(d)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		pc.def = v
		pc.hasDefault = true
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding constraint: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := fmt.Sprintf("%s.%s.json", template, name)
	if err := compiler.AddResource(url, bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	pc.schema = schema

	// A default the constraint itself rejects is a schema bug, not a render failure.
	if pc.hasDefault {
		if err := pc.check(pc.def); err != nil {
			return nil, fmt.Errorf("default does not satisfy constraint: %s", err.Message)
		}
	}

	return pc, nil
}

// Names returns the constrained parameter names, sorted.
func (s *ParamSchema) Names() []string {
	return s.names
}

// Apply fills defaults and checks constraints.
func (s *ParamSchema) Apply(params map[string]entities.Value) (map[string]entities.Value, error) {
	out := make(map[string]entities.Value, len(params)+len(s.params))
	for k, v := range params {
		out[k] = v
	}

	for _, name := range s.names {
		pc := s.params[name]
		v, ok := out[name]
		if !ok {
			if pc.hasDefault {
				out[name] = pc.def
				continue
			}
			if pc.required {
				return nil, &entities.RenderError{
					Kind:     entities.RenderUndefinedParameter,
					Template: s.template,
					Message:  fmt.Sprintf("required parameter %q not supplied", name),
				}
			}
			continue
		}

		if err := pc.check(v); err != nil {
			err.Template = s.template
			return nil, err
		}
	}

	return out, nil
}

// check coerces the textual value into the declared JSON type and validates it.
func (pc *paramConstraint) check(v entities.Value) *entities.RenderError {
	instance, err := pc.coerce(v)
	if err != nil {
		return &entities.RenderError{
			Kind:    entities.RenderTypeMismatch,
			Message: fmt.Sprintf("parameter %q: %v", pc.name, err),
			Cause:   err,
		}
	}

	if err := pc.schema.Validate(instance); err != nil {
		msg := err.Error()
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			msg = formatValidationError(validationErr)
		}
		return &entities.RenderError{
			Kind:    entities.RenderTypeMismatch,
			Message: fmt.Sprintf("parameter %q: %s", pc.name, msg),
			Cause:   err,
		}
	}
	return nil
}

func (pc *paramConstraint) coerce(v entities.Value) (any, error) {
	switch pc.typ {
	case "integer":
		s, err := scalarText(v)
		if err != nil {
			return nil, err
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return json.Number(strings.TrimSpace(s)), nil
	case "number":
		s, err := scalarText(v)
		if err != nil {
			return nil, err
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return json.Number(strings.TrimSpace(s)), nil
	case "boolean":
		s, err := scalarText(v)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case "array":
		if v.Kind() != entities.ValueList {
			return nil, fmt.Errorf("expected a list, got %s", v.Kind())
		}
		return v.Native(), nil
	case "object":
		if v.Kind() != entities.ValueMap {
			return nil, fmt.Errorf("expected a map, got %s", v.Kind())
		}
		return v.Native(), nil
	case "string":
		s, err := scalarText(v)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return v.Native(), nil
	}
}

func scalarText(v entities.Value) (string, error) {
	if v.Kind() != entities.ValueString {
		return "", fmt.Errorf("expected a scalar, got %s", v.Kind())
	}
	return v.Str(), nil
}

// formatValidationError flattens the cause tree into one line.
func formatValidationError(err *jsonschema.ValidationError) string {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			messages = append(messages, e.Message)
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return err.Message
	}
	return strings.Join(messages, "; ")
}
