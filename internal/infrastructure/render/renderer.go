// Package render implements the rendering backends and dispatches between them.
package render

import (
	"errors"
	"fmt"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// DefaultParseCacheSize bounds the parsed-body caches of the directive
// and expression engines.
const DefaultParseCacheSize = 512

// Renderer dispatches to one backend per engine. The set of engines is
// closed, so dispatch is a switch rather than a lookup table.
// Safe for concurrent use.
type Renderer struct {
	plain      *PlainEngine
	directive  *DirectiveEngine
	expression *ExpressionEngine
}

// NewRenderer creates all backends.
func NewRenderer(cacheSize int) (*Renderer, error) {
	directive, err := NewDirectiveEngine(cacheSize)
	if err != nil {
		return nil, err
	}
	expression, err := NewExpressionEngine(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		plain:      NewPlainEngine(),
		directive:  directive,
		expression: expression,
	}, nil
}

// Render renders body with engine. name labels errors.
func (r *Renderer) Render(engine values.EngineID, name, body string, params map[string]entities.Value) (string, error) {
	var (
		out string
		err error
	)

	switch engine.Kind() {
	case values.EngineKindPlain:
		out, err = r.plain.Render(body, params)
	case values.EngineKindDirective:
		out, err = r.directive.Render(body, params)
	case values.EngineKindExpression:
		out, err = r.expression.Render(body, params)
	default:
		return "", fmt.Errorf("render %s: %w: %q", name, values.ErrUnknownEngine, engine.String())
	}

	if err != nil {
		return "", label(err, name, engine)
	}
	return out, nil
}

// Validate checks body for engine without parameters.
func (r *Renderer) Validate(engine values.EngineID, name, body string) error {
	var err error

	switch engine.Kind() {
	case values.EngineKindPlain:
		err = r.plain.Validate(body)
	case values.EngineKindDirective:
		err = r.directive.Validate(body)
	case values.EngineKindExpression:
		err = r.expression.Validate(body)
	default:
		return fmt.Errorf("validate %s: %w: %q", name, values.ErrUnknownEngine, engine.String())
	}

	if err != nil {
		return label(err, name, engine)
	}
	return nil
}

// label stamps the template name and engine onto a backend error.
func label(err error, name string, engine values.EngineID) error {
	var renderErr *entities.RenderError
	if errors.As(err, &renderErr) {
		renderErr.Template = name
		renderErr.Engine = engine
		return renderErr
	}
	return err
}
