package services

import (
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// InputKind says where a node input comes from.
type InputKind int

const (
	// InputLiteral is a constant value.
	InputLiteral InputKind = iota
	// InputNode is the output of another node in the same graph.
	InputNode
	// InputExternal is a binding of an enclosing unit.
	InputExternal
)

// NodeInput is one value a node consumes. Invocation nodes have one input
// per parameter; reference nodes have a single unnamed input.
type NodeInput struct {
	Name    string
	Kind    InputKind
	Literal entities.Value
	Node    string
	Ref     string
	// Resolution locates an external binding.
	Resolution Resolution
}

// DependencyNode is one unit of work: a binding, or an invocation embedded
// as a parameter of another invocation.
type DependencyNode struct {
	ID           string
	Binding      string
	BindingIndex int
	Kind         entities.ProducerKind
	Exported     bool

	// Invocation nodes.
	Template *entities.Template
	Inline   bool
	Engine   values.EngineID
	Inputs   []NodeInput

	// Literal nodes.
	Literal entities.Value

	// Unit nodes.
	Nested *ResolvedUnit
	Export string

	DependsOn []string
	seq       int
}

// IsBinding reports whether the node is a top-level binding of its unit.
func (n *DependencyNode) IsBinding() bool {
	return n.ID == n.Binding
}

// DependencyGraph is the evaluation graph of one resolved unit.
type DependencyGraph struct {
	Unit  *ResolvedUnit
	nodes map[string]*DependencyNode
	order []*DependencyNode // creation order; children precede parents
}

// Node returns a node by ID.
func (g *DependencyGraph) Node(id string) (*DependencyNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in declaration order.
func (g *DependencyGraph) Nodes() []*DependencyNode {
	return g.order
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	return len(g.order)
}

// GraphOptions controls graph construction.
type GraphOptions struct {
	// StrictLookup makes an invocation of an unregistered name an error
	// instead of treating the name as an inline body.
	StrictLookup bool
}

// GraphBuilder builds dependency graphs and detects reference cycles.
type GraphBuilder struct {
	registry *Registry
	opts     GraphOptions
}

// NewGraphBuilder creates a graph builder.
func NewGraphBuilder(registry *Registry, opts GraphOptions) *GraphBuilder {
	return &GraphBuilder{registry: registry, opts: opts}
}

// DetectCycles looks for reference cycles among a unit's bindings before
// declaration order is enforced, so a cycle is reported as a cycle rather
// than as a forward reference. Nested units are checked too.
// The returned CycleError lists the nodes in encounter order.
func (b *GraphBuilder) DetectCycles(unit entities.CompositionUnit) error {
	refs := make(map[string][]string, len(unit.Bindings))
	for _, binding := range unit.Bindings {
		refs[binding.Name] = nil
	}
	for _, binding := range unit.Bindings {
		for _, name := range producerRefs(binding.Producer) {
			if _, local := refs[name]; local {
				refs[binding.Name] = append(refs[binding.Name], name)
			}
		}
	}

	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(unit.Bindings))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = onPath
		path = append(path, name)

		for _, next := range refs[name] {
			switch state[next] {
			case onPath:
				for i, p := range path {
					if p == next {
						return append([]string{}, path[i:]...)
					}
				}
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, binding := range unit.Bindings {
		if state[binding.Name] != unvisited {
			continue
		}
		if cycle := visit(binding.Name); cycle != nil {
			return &entities.CycleError{Unit: unit.Name, Nodes: cycle}
		}
	}

	for _, binding := range unit.Bindings {
		for _, nested := range nestedUnits(binding.Producer) {
			if err := b.DetectCycles(*nested); err != nil {
				return err
			}
		}
	}

	return nil
}

// producerRefs returns the names a producer reads, in encounter order.
// For nested units only names the nested unit does not bind itself count.
func producerRefs(p entities.Producer) []string {
	switch p.Kind {
	case entities.ProducerReference:
		return []string{p.Ref}
	case entities.ProducerInvocation:
		if p.Invocation == nil {
			return nil
		}
		var out []string
		for _, param := range p.Invocation.Params {
			out = append(out, producerRefs(param.Value)...)
		}
		return out
	case entities.ProducerUnit:
		if p.Unit == nil {
			return nil
		}
		bound := make(map[string]bool, len(p.Unit.Bindings))
		for _, b := range p.Unit.Bindings {
			bound[b.Name] = true
		}
		var out []string
		for _, b := range p.Unit.Bindings {
			for _, name := range producerRefs(b.Producer) {
				if !bound[name] {
					out = append(out, name)
				}
			}
		}
		return out
	default:
		return nil
	}
}

func nestedUnits(p entities.Producer) []*entities.CompositionUnit {
	switch p.Kind {
	case entities.ProducerUnit:
		if p.Unit != nil {
			return []*entities.CompositionUnit{p.Unit}
		}
	case entities.ProducerInvocation:
		if p.Invocation == nil {
			return nil
		}
		var out []*entities.CompositionUnit
		for _, param := range p.Invocation.Params {
			out = append(out, nestedUnits(param.Value)...)
		}
		return out
	}
	return nil
}

// Build creates one node per binding and per embedded invocation or nested
// unit, with an edge for every non-literal input.
func (b *GraphBuilder) Build(resolved *ResolvedUnit) (*DependencyGraph, error) {
	g := &DependencyGraph{
		Unit:  resolved,
		nodes: make(map[string]*DependencyNode),
	}

	for i, binding := range resolved.Unit.Bindings {
		node, err := b.addNode(g, binding.Name, binding.Name, i, binding.Producer)
		if err != nil {
			return nil, err
		}
		node.Exported = binding.Kind.IsExported()
	}

	return g, nil
}

func (b *GraphBuilder) addNode(g *DependencyGraph, id, binding string, index int, p entities.Producer) (*DependencyNode, error) {
	// Embedded node IDs are derived from binding names, so a binding named
	// like "q/inner" can clash with the parameter node of binding q.
	if _, exists := g.nodes[id]; exists {
		return nil, &entities.GraphError{
			Kind:   entities.GraphInvalidProducer,
			Node:   id,
			Detail: "node ID clashes with another binding or embedded invocation",
		}
	}

	node := &DependencyNode{
		ID:           id,
		Binding:      binding,
		BindingIndex: index,
		Kind:         p.Kind,
	}

	switch p.Kind {
	case entities.ProducerLiteral:
		node.Literal = p.Literal

	case entities.ProducerReference:
		input, err := b.referenceInput(g, "", p.Ref, index)
		if err != nil {
			return nil, err
		}
		node.Inputs = []NodeInput{input}
		if input.Kind == InputNode {
			node.DependsOn = []string{input.Node}
		}

	case entities.ProducerInvocation:
		if p.Invocation == nil {
			return nil, &entities.GraphError{Kind: entities.GraphInvalidProducer, Node: id, Detail: "missing invocation"}
		}
		if err := b.addInvocation(g, node, *p.Invocation); err != nil {
			return nil, err
		}

	case entities.ProducerUnit:
		if p.Unit == nil {
			return nil, &entities.GraphError{Kind: entities.GraphInvalidProducer, Node: id, Detail: "missing unit"}
		}
		nested, ok := g.Unit.Nested(p.Unit)
		if !ok {
			return nil, &entities.GraphError{Kind: entities.GraphInvalidProducer, Node: id, Detail: "nested unit not resolved"}
		}
		node.Nested = nested
		node.Export = nested.SelectedExport(p)
		node.DependsOn = frameRefs(nested, g.Unit.Scope)

	default:
		return nil, &entities.GraphError{Kind: entities.GraphInvalidProducer, Node: id, Detail: "unknown producer kind"}
	}

	node.seq = len(g.order)
	g.nodes[id] = node
	g.order = append(g.order, node)
	return node, nil
}

func (b *GraphBuilder) addInvocation(g *DependencyGraph, node *DependencyNode, inv entities.Invocation) error {
	tmpl, inline, err := b.resolveTemplate(node.ID, inv)
	if err != nil {
		return err
	}
	node.Template = tmpl
	node.Inline = inline
	node.Engine = inv.Engine

	seen := make(map[string]bool, len(inv.Params))
	for _, param := range inv.Params {
		if seen[param.Name] {
			return &entities.GraphError{
				Kind:     entities.GraphInvalidProducer,
				Node:     node.ID,
				Template: tmpl.Name,
				Detail:   "parameter " + param.Name + " supplied twice",
			}
		}
		seen[param.Name] = true

		switch param.Value.Kind {
		case entities.ProducerLiteral:
			node.Inputs = append(node.Inputs, NodeInput{Name: param.Name, Kind: InputLiteral, Literal: param.Value.Literal})

		case entities.ProducerReference:
			input, err := b.referenceInput(g, param.Name, param.Value.Ref, node.BindingIndex)
			if err != nil {
				return err
			}
			node.Inputs = append(node.Inputs, input)
			if input.Kind == InputNode {
				node.DependsOn = append(node.DependsOn, input.Node)
			}

		default:
			child, err := b.addNode(g, node.ID+"/"+param.Name, node.Binding, node.BindingIndex, param.Value)
			if err != nil {
				return err
			}
			node.Inputs = append(node.Inputs, NodeInput{Name: param.Name, Kind: InputNode, Node: child.ID})
			node.DependsOn = append(node.DependsOn, child.ID)
		}
	}

	return nil
}

// referenceInput classifies a reference made from binding index `from`.
func (b *GraphBuilder) referenceInput(g *DependencyGraph, param, name string, from int) (NodeInput, error) {
	res, ok := g.Unit.Resolve(name, from)
	if !ok {
		return NodeInput{}, &entities.ScopeError{
			Kind: entities.ScopeUndeclaredReference,
			Unit: g.Unit.Unit.Name,
			Name: name,
		}
	}
	if res.Frame == g.Unit.Scope {
		return NodeInput{Name: param, Kind: InputNode, Node: name, Ref: name}, nil
	}
	return NodeInput{Name: param, Kind: InputExternal, Ref: name, Resolution: res}, nil
}

func (b *GraphBuilder) resolveTemplate(nodeID string, inv entities.Invocation) (*entities.Template, bool, error) {
	if !inv.Inline && b.registry != nil {
		if tmpl, err := b.registry.Lookup(inv.Template); err == nil {
			return tmpl, false, nil
		}
	}
	if !inv.Inline && b.opts.StrictLookup {
		return nil, false, &entities.GraphError{
			Kind:     entities.GraphUnknownTemplate,
			Node:     nodeID,
			Template: inv.Template,
		}
	}
	return entities.NewTemplate("inline@"+nodeID, inv.Template, values.EngineUnset), true, nil
}

// frameRefs returns the bindings of frame `target` that a nested unit reads,
// at any depth, in encounter order without duplicates.
func frameRefs(nested *ResolvedUnit, target *Scope) []string {
	var out []string
	seen := make(map[string]bool)

	var walkProducer func(ru *ResolvedUnit, index int, p entities.Producer)
	walkProducer = func(ru *ResolvedUnit, index int, p entities.Producer) {
		switch p.Kind {
		case entities.ProducerReference:
			res, ok := ru.Resolve(p.Ref, index)
			if ok && res.Frame == target && !seen[p.Ref] {
				seen[p.Ref] = true
				out = append(out, p.Ref)
			}
		case entities.ProducerInvocation:
			if p.Invocation == nil {
				return
			}
			for _, param := range p.Invocation.Params {
				walkProducer(ru, index, param.Value)
			}
		case entities.ProducerUnit:
			if p.Unit == nil {
				return
			}
			if inner, ok := ru.Nested(p.Unit); ok {
				for i, b := range inner.Unit.Bindings {
					walkProducer(inner, i, b.Producer)
				}
			}
		}
	}

	for i, b := range nested.Unit.Bindings {
		walkProducer(nested, i, b.Producer)
	}
	return out
}

// TopologicalOrder returns node IDs so every node follows its dependencies.
// Uses Kahn's algorithm; among ready nodes the earliest declared goes first.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))

	for _, n := range g.order {
		inDegree[n.ID] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var ready []*DependencyNode
	for _, n := range g.order {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		// Pick the lowest sequence number.
		best := 0
		for i := range ready {
			if ready[i].seq < ready[best].seq {
				best = i
			}
		}
		n := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, n.ID)

		for _, dependent := range dependents[n.ID] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, g.nodes[dependent])
			}
		}
	}

	if len(order) < len(g.order) {
		var remaining []string
		for _, n := range g.order {
			if inDegree[n.ID] > 0 {
				remaining = append(remaining, n.ID)
			}
		}
		return nil, &entities.CycleError{Unit: g.Unit.Unit.Name, Nodes: remaining}
	}

	return order, nil
}

// Levels groups node IDs by dependency depth. Nodes within a level are
// independent of each other.
func (g *DependencyGraph) Levels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, n := range g.order {
		inDegree[n.ID] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var levels [][]string
	processed := 0
	for processed < len(g.order) {
		var current []string
		for _, n := range g.order {
			if inDegree[n.ID] == 0 {
				current = append(current, n.ID)
			}
		}
		if len(current) == 0 {
			_, err := g.TopologicalOrder()
			return nil, err
		}
		for _, id := range current {
			inDegree[id] = -1
			processed++
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
			}
		}
		levels = append(levels, current)
	}

	return levels, nil
}
