package render

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/reglet-dev/fragment/internal/domain/entities"
)

const (
	exprOpen  = "{{"
	exprClose = "}}"
)

// ExpressionEngine renders literal text with {{ expr }} segments. Each
// segment is an expr-lang expression over the parameters; builtins are
// disabled and only the fixed filter set may be called.
type ExpressionEngine struct {
	programs *lru.Cache[string, *vm.Program]
	options  []expr.Option
}

// NewExpressionEngine creates the expression backend with a program cache of the given size.
func NewExpressionEngine(cacheSize int) (*ExpressionEngine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultParseCacheSize
	}
	cache, err := lru.New[string, *vm.Program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating expression program cache: %w", err)
	}

	options := []expr.Option{expr.DisableAllBuiltins()}
	for _, name := range FilterNames() {
		options = append(options, expr.Function(name, filters[name]))
	}

	return &ExpressionEngine{programs: cache, options: options}, nil
}

// segment is one {{ ... }} occurrence.
type segment struct {
	start, end int // offsets of "{{" and one past "}}"
	source     string
}

// Render evaluates every segment and splices the results into the text.
func (e *ExpressionEngine) Render(body string, params map[string]entities.Value) (string, error) {
	segments, err := scanSegments(body)
	if err != nil {
		return "", err
	}

	env := entities.NativeParams(params)

	var b strings.Builder
	b.Grow(len(body))
	last := 0

	for _, seg := range segments {
		b.WriteString(body[last:seg.start])
		last = seg.end

		loc := entities.LocationAt(body, seg.start)
		if err := checkNames(seg.source, loc, env); err != nil {
			return "", err
		}

		program, err := e.compile(seg.source, loc)
		if err != nil {
			return "", err
		}

		out, err := expr.Run(program, env)
		if err != nil {
			return "", &entities.RenderError{
				Kind:     entities.RenderTypeMismatch,
				Location: loc,
				Message:  firstLine(err.Error()),
				Cause:    err,
			}
		}

		// Parameters never hold nil, so a nil result is a lookup of a
		// key the parameter does not have.
		if out == nil {
			return "", entities.NewRenderError(entities.RenderUndefinedParameter, loc, "expression %q refers to a missing key", seg.source)
		}

		text, err := toText(out)
		if err != nil {
			return "", entities.NewRenderError(entities.RenderTypeMismatch, loc, "expression %q: %v", seg.source, err)
		}
		b.WriteString(text)
	}
	b.WriteString(body[last:])

	return b.String(), nil
}

// Validate checks segment balance, expression syntax and filter names.
func (e *ExpressionEngine) Validate(body string) error {
	segments, err := scanSegments(body)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		loc := entities.LocationAt(body, seg.start)
		if err := checkNames(seg.source, loc, nil); err != nil {
			return err
		}
		if _, err := e.compile(seg.source, loc); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExpressionEngine) compile(source string, loc entities.Location) (*vm.Program, error) {
	if program, ok := e.programs.Get(source); ok {
		return program, nil
	}

	program, err := expr.Compile(source, e.options...)
	if err != nil {
		return nil, &entities.RenderError{
			Kind:     entities.RenderSyntaxError,
			Location: loc,
			Message:  firstLine(err.Error()),
			Cause:    err,
		}
	}

	e.programs.Add(source, program)
	return program, nil
}

func scanSegments(body string) ([]segment, error) {
	var out []segment
	offset := 0

	for {
		open := strings.Index(body[offset:], exprOpen)
		if open < 0 {
			return out, nil
		}
		start := offset + open

		closing := strings.Index(body[start+len(exprOpen):], exprClose)
		if closing < 0 {
			return nil, entities.NewRenderError(entities.RenderSyntaxError, entities.LocationAt(body, start), "unterminated expression")
		}
		end := start + len(exprOpen) + closing + len(exprClose)

		source := strings.TrimSpace(body[start+len(exprOpen) : end-len(exprClose)])
		if source == "" {
			return nil, entities.NewRenderError(entities.RenderSyntaxError, entities.LocationAt(body, start), "empty expression")
		}

		out = append(out, segment{start: start, end: end, source: source})
		offset = end
	}
}

// nameCollector gathers called names, referenced identifiers and
// let-declared names from an expression tree.
type nameCollector struct {
	callees  map[*ast.IdentifierNode]bool
	calls    []string
	idents   []*ast.IdentifierNode
	declared map[string]bool
}

func (c *nameCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id] = true
			c.calls = append(c.calls, id.Value)
		}
	case *ast.BuiltinNode:
		c.calls = append(c.calls, n.Name)
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

// checkNames rejects calls outside the filter set and, when env is
// non-nil, identifiers that name no parameter.
func checkNames(source string, loc entities.Location, env map[string]any) error {
	tree, err := parser.Parse(source)
	if err != nil {
		return &entities.RenderError{
			Kind:     entities.RenderSyntaxError,
			Location: loc,
			Message:  firstLine(err.Error()),
			Cause:    err,
		}
	}

	c := &nameCollector{
		callees:  make(map[*ast.IdentifierNode]bool),
		declared: make(map[string]bool),
	}
	ast.Walk(&tree.Node, c)

	for _, name := range c.calls {
		if _, ok := filters[name]; !ok {
			return entities.NewRenderError(entities.RenderSyntaxError, loc, "unknown filter %q", name)
		}
	}

	if env == nil {
		return nil
	}
	for _, id := range c.idents {
		if c.callees[id] || c.declared[id.Value] {
			continue
		}
		if _, ok := env[id.Value]; !ok {
			return entities.NewRenderError(entities.RenderUndefinedParameter, loc, "parameter %q not supplied", id.Value)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
