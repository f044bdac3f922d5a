// Package services contains application use cases.
package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/reglet-dev/fragment/internal/application/dto"
	apperrors "github.com/reglet-dev/fragment/internal/application/errors"
	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/services"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

var errCancelled = errors.New("build cancelled")

// EvaluatorConfig holds per-build evaluation settings.
type EvaluatorConfig struct {
	DefaultEngine values.EngineID
	StrictLookup  bool
}

// Evaluator resolves composition units: checks cycles and scoping, builds
// the dependency graph, then renders nodes in topological order.
// One Evaluator may evaluate many units concurrently; the registry and
// renderer are read-only and the cache is safe for concurrent use.
type Evaluator struct {
	registry      *services.Registry
	renderer      ports.Renderer
	cache         repositories.ResolutionCache
	scopes        *services.ScopeResolver
	graphs        *services.GraphBuilder
	defaultEngine values.EngineID
	logger        *slog.Logger
}

// NewEvaluator creates an evaluator. cache may be nil to disable caching.
func NewEvaluator(
	registry *services.Registry,
	renderer ports.Renderer,
	cache repositories.ResolutionCache,
	cfg EvaluatorConfig,
	logger *slog.Logger,
) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{
		registry:      registry,
		renderer:      renderer,
		cache:         cache,
		scopes:        services.NewScopeResolver(),
		graphs:        services.NewGraphBuilder(registry, services.GraphOptions{StrictLookup: cfg.StrictLookup}),
		defaultEngine: cfg.DefaultEngine.Or(values.EnginePlain),
		logger:        logger,
	}
}

// frame holds the values resolved so far for one unit, linked to the
// frame of the enclosing unit.
type frame struct {
	scope  *services.Scope
	parent *frame
	nodes  map[string]entities.ResolvedValue
}

func newFrame(scope *services.Scope, parent *frame) *frame {
	return &frame{scope: scope, parent: parent, nodes: make(map[string]entities.ResolvedValue)}
}

// lookup finds a binding value in the frame res.Depth levels out, which
// must own res.Frame.
func (f *frame) lookup(name string, res services.Resolution) (entities.ResolvedValue, bool) {
	cur := f
	for range res.Depth {
		if cur == nil {
			break
		}
		cur = cur.parent
	}
	if cur == nil || cur.scope != res.Frame {
		return entities.ResolvedValue{}, false
	}
	v, ok := cur.nodes[name]
	return v, ok
}

// Evaluate resolves one top-level unit. Load-time failures (cycles,
// scoping, graph construction) yield no exports. A render failure halts
// the unit and the exports resolved before it are returned with Err set.
func (e *Evaluator) Evaluate(ctx context.Context, unit entities.CompositionUnit) *dto.UnitResult {
	result := &dto.UnitResult{Unit: unit.Name}

	if err := e.graphs.DetectCycles(unit); err != nil {
		result.Err = err
		return result
	}

	resolved, err := e.scopes.Declare(unit, nil)
	if err != nil {
		result.Err = err
		return result
	}

	exports, err := e.evaluateUnit(ctx, resolved, newFrame(resolved.Scope, nil), &result.Stats)
	result.Exports = exports
	result.Err = err

	e.logger.Debug("unit evaluated",
		"unit", unit.Name,
		"nodes", result.Stats.Nodes,
		"rendered", result.Stats.Rendered,
		"cache_hits", result.Stats.CacheHits,
		"error", err,
	)

	return result
}

func (e *Evaluator) evaluateUnit(
	ctx context.Context,
	resolved *services.ResolvedUnit,
	f *frame,
	stats *dto.EvaluationStats,
) ([]dto.Export, error) {
	graph, err := e.graphs.Build(resolved)
	if err != nil {
		return nil, err
	}

	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	if e.logger.Enabled(ctx, slog.LevelDebug) {
		if levels, err := graph.Levels(); err == nil {
			e.logger.Debug("graph built",
				"unit", resolved.Unit.Name,
				"nodes", graph.Len(),
				"levels", len(levels),
				"widest", widest(levels),
			)
		}
	}

	var exports []dto.Export
	for _, id := range order {
		if ctx.Err() != nil {
			return inDeclarationOrder(graph, exports), fmt.Errorf("%w: %w", errCancelled, ctx.Err())
		}

		node, _ := graph.Node(id)
		value, err := e.evaluateNode(ctx, node, f, stats)
		if err != nil {
			templateName := ""
			if node.Template != nil {
				templateName = node.Template.Name
			}
			return inDeclarationOrder(graph, exports), apperrors.NewEvaluationError(resolved.Unit.Name, node.ID, node.Binding, templateName, err)
		}

		f.nodes[id] = value
		stats.Nodes++

		if node.IsBinding() && node.Exported {
			exports = append(exports, dto.Export{Name: node.Binding, Unit: resolved.Unit.Name, Value: value})
		}
	}

	return inDeclarationOrder(graph, exports), nil
}

// widest returns the size of the largest level.
func widest(levels [][]string) int {
	n := 0
	for _, level := range levels {
		n = max(n, len(level))
	}
	return n
}

// inDeclarationOrder sorts exports by the position of their binding.
func inDeclarationOrder(graph *services.DependencyGraph, exports []dto.Export) []dto.Export {
	index := func(name string) int {
		if n, ok := graph.Node(name); ok {
			return n.BindingIndex
		}
		return -1
	}
	slices.SortStableFunc(exports, func(a, b dto.Export) int {
		return cmp.Compare(index(a.Name), index(b.Name))
	})
	return exports
}

func (e *Evaluator) evaluateNode(
	ctx context.Context,
	node *services.DependencyNode,
	f *frame,
	stats *dto.EvaluationStats,
) (entities.ResolvedValue, error) {
	switch node.Kind {
	case entities.ProducerLiteral:
		text, _ := node.Literal.Text()
		return entities.ResolvedValue{
			Text:       text,
			Value:      node.Literal,
			Provenance: entities.Provenance{Source: entities.SourceLiteral, Node: node.ID},
		}, nil

	case entities.ProducerReference:
		return e.input(node.Inputs[0], f)

	case entities.ProducerInvocation:
		return e.render(node, f, stats)

	case entities.ProducerUnit:
		child := newFrame(node.Nested.Scope, f)
		exports, err := e.evaluateUnit(ctx, node.Nested, child, stats)
		if err != nil {
			return entities.ResolvedValue{}, err
		}
		for _, exp := range exports {
			if exp.Name == node.Export {
				v := exp.Value
				v.Provenance.Source = entities.SourceUnit
				return v, nil
			}
		}
		return entities.ResolvedValue{}, &entities.GraphError{
			Kind:   entities.GraphInvalidProducer,
			Node:   node.ID,
			Detail: "nested unit did not produce export " + node.Export,
		}

	default:
		return entities.ResolvedValue{}, &entities.GraphError{Kind: entities.GraphInvalidProducer, Node: node.ID}
	}
}

func (e *Evaluator) input(in services.NodeInput, f *frame) (entities.ResolvedValue, error) {
	switch in.Kind {
	case services.InputLiteral:
		text, _ := in.Literal.Text()
		return entities.ResolvedValue{Text: text, Value: in.Literal}, nil
	case services.InputNode:
		if v, ok := f.nodes[in.Node]; ok {
			return v, nil
		}
	case services.InputExternal:
		if v, ok := f.lookup(in.Ref, in.Resolution); ok {
			return v, nil
		}
	}
	return entities.ResolvedValue{}, fmt.Errorf("input %q not resolved", in.Ref+in.Node)
}

// render collects parameters, applies the schema, consults the cache and
// renders on a miss.
func (e *Evaluator) render(node *services.DependencyNode, f *frame, stats *dto.EvaluationStats) (entities.ResolvedValue, error) {
	tmpl := node.Template

	params := make(map[string]entities.Value, len(node.Inputs))
	for _, in := range node.Inputs {
		v, err := e.input(in, f)
		if err != nil {
			return entities.ResolvedValue{}, err
		}
		params[in.Name] = v.Value
	}

	params, err := tmpl.ApplySchema(params)
	if err != nil {
		return entities.ResolvedValue{}, err
	}

	engine := node.Engine.Or(tmpl.Engine).Or(e.defaultEngine)

	paramsHash, err := values.HashParams(entities.NativeParams(params))
	if err != nil {
		return entities.ResolvedValue{}, err
	}
	key := values.NewCacheKey(tmpl.ContentHash, paramsHash, engine)

	prov := entities.Provenance{
		Node:      node.ID,
		Template:  tmpl.Name,
		Engine:    engine,
		InputHash: key.String(),
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			stats.CacheHits++
			e.logger.Debug("cache hit", "node", node.ID, "template", tmpl.Name, "key", paramsHash.Short())
			v := entities.Rendered(cached.Text, prov)
			v.Cached = true
			return v, nil
		}
	}

	text, err := e.renderer.Render(engine, tmpl.Name, tmpl.Body, params)
	if err != nil {
		return entities.ResolvedValue{}, err
	}
	stats.Rendered++

	value := entities.Rendered(text, prov)
	if e.cache != nil {
		e.cache.Put(key, value)
	}
	return value, nil
}

// ValidateRegistry checks every registry body with its declared engine,
// or the default engine when none is declared. Returns every failure.
func ValidateRegistry(registry *services.Registry, renderer ports.Renderer, defaultEngine values.EngineID) error {
	var errs []error
	for _, name := range registry.Names() {
		tmpl, err := registry.Lookup(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		engine := tmpl.Engine.Or(defaultEngine.Or(values.EnginePlain))
		if err := renderer.Validate(engine, tmpl.Name, tmpl.Body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
