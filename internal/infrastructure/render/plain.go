package render

import (
	"strings"

	"github.com/reglet-dev/fragment/internal/domain/entities"
)

// PlainEngine replaces {name}, {name|default} and {a.b} placeholders.
// A brace that does not open a placeholder is literal text.
type PlainEngine struct{}

// NewPlainEngine creates the plain substitution backend.
func NewPlainEngine() *PlainEngine {
	return &PlainEngine{}
}

// placeholder is one parsed {...} occurrence.
type placeholder struct {
	start, end int // byte offsets of '{' and one past '}'
	path       []string
	def        string
	hasDefault bool
}

// Render substitutes every placeholder.
func (e *PlainEngine) Render(body string, params map[string]entities.Value) (string, error) {
	holders, err := scanPlaceholders(body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0

	for _, h := range holders {
		b.WriteString(body[last:h.start])
		last = h.end

		text, err := e.resolve(body, h, params)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	b.WriteString(body[last:])

	return b.String(), nil
}

func (e *PlainEngine) resolve(body string, h placeholder, params map[string]entities.Value) (string, error) {
	loc := entities.LocationAt(body, h.start)
	name := strings.Join(h.path, ".")

	v, ok := params[h.path[0]]
	for i := 1; ok && i < len(h.path); i++ {
		if v.Kind() != entities.ValueMap {
			return "", entities.NewRenderError(entities.RenderTypeMismatch, loc, "parameter %q is a %s and has no field %q", strings.Join(h.path[:i], "."), v.Kind(), h.path[i])
		}
		v, ok = v.Lookup(h.path[i : i+1])
	}
	if !ok {
		if h.hasDefault {
			return h.def, nil
		}
		return "", entities.NewRenderError(entities.RenderUndefinedParameter, loc, "parameter %q not supplied", name)
	}

	text, ok := v.Text()
	if !ok {
		return "", entities.NewRenderError(entities.RenderTypeMismatch, loc, "parameter %q is a %s and cannot be substituted as text", name, v.Kind())
	}
	return text, nil
}

// Validate checks placeholder syntax without parameters.
func (e *PlainEngine) Validate(body string) error {
	_, err := scanPlaceholders(body)
	return err
}

// scanPlaceholders finds placeholders left to right. An identifier that
// runs to end of input without a closing brace is a syntax error.
func scanPlaceholders(body string) ([]placeholder, error) {
	var out []placeholder

	for i := 0; i < len(body); i++ {
		if body[i] != '{' {
			continue
		}
		if i+1 >= len(body) || !isIdentStart(body[i+1]) {
			continue
		}

		j := i + 1
		for j < len(body) && (isIdentChar(body[j]) || body[j] == '.') {
			j++
		}
		if j >= len(body) {
			return nil, entities.NewRenderError(entities.RenderSyntaxError, entities.LocationAt(body, i), "unterminated placeholder")
		}

		ident := body[i+1 : j]
		if strings.HasSuffix(ident, ".") || strings.Contains(ident, "..") {
			return nil, entities.NewRenderError(entities.RenderSyntaxError, entities.LocationAt(body, i), "malformed placeholder path %q", ident)
		}

		switch body[j] {
		case '}':
			out = append(out, placeholder{start: i, end: j + 1, path: strings.Split(ident, ".")})
			i = j

		case '|':
			closing := strings.IndexByte(body[j+1:], '}')
			if closing < 0 {
				return nil, entities.NewRenderError(entities.RenderSyntaxError, entities.LocationAt(body, i), "unterminated placeholder default")
			}
			end := j + 1 + closing
			out = append(out, placeholder{
				start:      i,
				end:        end + 1,
				path:       strings.Split(ident, "."),
				def:        body[j+1 : end],
				hasDefault: true,
			})
			i = end

		default:
			// Not a placeholder, e.g. "{a b}" in prose.
		}
	}

	return out, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
