package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// directiveTemplateName is fixed so error positions parse reliably.
const directiveTemplateName = "body"

// directiveErrPattern matches "template: body:LINE[:COL]: message".
var directiveErrPattern = regexp.MustCompile(`^template: ` + directiveTemplateName + `:(\d+)(?::(\d+))?: (.*)$`)

// directiveFuncs is the only function set directive bodies may call.
// Expression filters are deliberately absent.
var directiveFuncs = template.FuncMap{
	"list": splitList,
}

// DirectiveEngine renders Go text/template bodies: conditionals, iteration
// and nested lookups into structured values. Missing keys are errors.
type DirectiveEngine struct {
	parsed *lru.Cache[values.Hash, *template.Template]
}

// NewDirectiveEngine creates the directive backend with a parse cache of the given size.
func NewDirectiveEngine(cacheSize int) (*DirectiveEngine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultParseCacheSize
	}
	cache, err := lru.New[values.Hash, *template.Template](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating directive parse cache: %w", err)
	}
	return &DirectiveEngine{parsed: cache}, nil
}

// Render executes body against params.
func (e *DirectiveEngine) Render(body string, params map[string]entities.Value) (string, error) {
	tmpl, err := e.parse(body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, entities.NativeParams(params)); err != nil {
		return "", classifyDirectiveError(err, true)
	}
	return b.String(), nil
}

// Validate parses body.
func (e *DirectiveEngine) Validate(body string) error {
	_, err := e.parse(body)
	return err
}

func (e *DirectiveEngine) parse(body string) (*template.Template, error) {
	key := values.HashContent(body)
	if tmpl, ok := e.parsed.Get(key); ok {
		return tmpl, nil
	}

	tmpl, err := template.New(directiveTemplateName).
		Option("missingkey=error").
		Funcs(directiveFuncs).
		Parse(body)
	if err != nil {
		return nil, classifyDirectiveError(err, false)
	}

	e.parsed.Add(key, tmpl)
	return tmpl, nil
}

// classifyDirectiveError maps text/template errors onto render error kinds.
func classifyDirectiveError(err error, executing bool) *entities.RenderError {
	msg := err.Error()
	var loc entities.Location

	if m := directiveErrPattern.FindStringSubmatch(msg); m != nil {
		loc.Line, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			loc.Column, _ = strconv.Atoi(m[2])
		}
		msg = m[3]
	}

	kind := entities.RenderSyntaxError
	if executing {
		kind = entities.RenderTypeMismatch
		if strings.Contains(msg, "map has no entry for key") || strings.Contains(msg, "nil data; no entry for key") {
			kind = entities.RenderUndefinedParameter
		}
	}

	return &entities.RenderError{
		Kind:     kind,
		Location: loc,
		Message:  msg,
		Cause:    err,
	}
}

// splitList turns a comma-delimited string into trimmed items.
func splitList(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := toText(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("list: expected a delimited string, got %T", v)
	}
}
