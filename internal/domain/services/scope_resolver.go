package services

import (
	"github.com/reglet-dev/fragment/internal/domain/entities"
)

// Scope is one frame of the binding stack: the bindings of one unit plus
// a link to the enclosing frame. Lookups walk outward.
type Scope struct {
	unit     string
	parent   *Scope
	declared map[string]int // binding name -> declaration index

	// parentLimit is how many of the parent's bindings were declared when
	// this frame was opened. Later parent bindings are invisible here.
	parentLimit int
}

// NewScope creates an empty top-level frame.
func NewScope(unit string) *Scope {
	return &Scope{unit: unit, declared: make(map[string]int)}
}

func (s *Scope) child(unit string, limit int) *Scope {
	return &Scope{
		unit:        unit,
		parent:      s,
		declared:    make(map[string]int),
		parentLimit: limit,
	}
}

// Unit returns the name of the unit that owns this frame.
func (s *Scope) Unit() string {
	return s.unit
}

// Resolution says where a name is bound.
type Resolution struct {
	Frame *Scope
	Index int
	// Depth is 0 for the lookup frame, 1 for its parent, and so on.
	Depth int
}

// Lookup finds name among bindings declared before index `before` in this
// frame, then among the visible bindings of enclosing frames.
func (s *Scope) Lookup(name string, before int) (Resolution, bool) {
	depth := 0
	for frame := s; frame != nil; frame = frame.parent {
		if idx, ok := frame.declared[name]; ok && idx < before {
			return Resolution{Frame: frame, Index: idx, Depth: depth}, true
		}
		before = frame.parentLimit
		depth++
	}
	return Resolution{}, false
}

// ResolvedUnit is a unit whose references have all been checked.
type ResolvedUnit struct {
	Unit   entities.CompositionUnit
	Scope  *Scope
	nested map[*entities.CompositionUnit]*ResolvedUnit
}

// Locals returns local binding names in declaration order.
func (r *ResolvedUnit) Locals() []string {
	var names []string
	for _, b := range r.Unit.Bindings {
		if !b.Kind.IsExported() {
			names = append(names, b.Name)
		}
	}
	return names
}

// Exports returns exported binding names in declaration order.
func (r *ResolvedUnit) Exports() []string {
	return r.Unit.ExportNames()
}

// Nested returns the resolved form of a nested unit producer.
func (r *ResolvedUnit) Nested(unit *entities.CompositionUnit) (*ResolvedUnit, bool) {
	n, ok := r.nested[unit]
	return n, ok
}

// Resolve looks up a reference made from binding index `from`.
func (r *ResolvedUnit) Resolve(name string, from int) (Resolution, bool) {
	return r.Scope.Lookup(name, from)
}

// SelectedExport returns the export a Unit producer re-exports.
func (r *ResolvedUnit) SelectedExport(p entities.Producer) string {
	if p.Export != "" {
		return p.Export
	}
	exports := r.Exports()
	if len(exports) == 1 {
		return exports[0]
	}
	return ""
}

// ScopeResolver checks declaration order and visibility.
type ScopeResolver struct{}

// NewScopeResolver creates a scope resolver.
func NewScopeResolver() *ScopeResolver {
	return &ScopeResolver{}
}

// Declare processes a unit's bindings in order. Every reference must name
// a binding declared earlier in the unit or visible in an enclosing frame.
// parent may be nil for a top-level unit.
func (sr *ScopeResolver) Declare(unit entities.CompositionUnit, parent *Scope) (*ResolvedUnit, error) {
	var frame *Scope
	if parent == nil {
		frame = NewScope(unit.Name)
	} else {
		frame = parent.child(unit.Name, len(parent.declared))
	}
	return sr.declare(unit, frame)
}

func (sr *ScopeResolver) declare(unit entities.CompositionUnit, frame *Scope) (*ResolvedUnit, error) {
	resolved := &ResolvedUnit{
		Unit:   unit,
		Scope:  frame,
		nested: make(map[*entities.CompositionUnit]*ResolvedUnit),
	}

	for i, b := range unit.Bindings {
		if _, dup := frame.declared[b.Name]; dup {
			return nil, &entities.ScopeError{
				Kind: entities.ScopeDuplicateBinding,
				Unit: unit.Name,
				Name: b.Name,
			}
		}

		if err := sr.checkProducer(resolved, b.Name, i, b.Producer); err != nil {
			return nil, err
		}

		frame.declared[b.Name] = i
	}

	return resolved, nil
}

func (sr *ScopeResolver) checkProducer(r *ResolvedUnit, binding string, index int, p entities.Producer) error {
	switch p.Kind {
	case entities.ProducerReference:
		if _, ok := r.Scope.Lookup(p.Ref, index); !ok {
			return &entities.ScopeError{
				Kind:    entities.ScopeUndeclaredReference,
				Unit:    r.Unit.Name,
				Binding: binding,
				Name:    p.Ref,
			}
		}

	case entities.ProducerInvocation:
		if p.Invocation == nil {
			return nil
		}
		for _, param := range p.Invocation.Params {
			if err := sr.checkProducer(r, binding, index, param.Value); err != nil {
				return err
			}
		}

	case entities.ProducerUnit:
		if p.Unit == nil {
			return nil
		}
		nested, err := sr.declare(*p.Unit, r.Scope.child(p.Unit.Name, index))
		if err != nil {
			return err
		}
		if nested.SelectedExport(p) == "" || !containsName(nested.Exports(), nested.SelectedExport(p)) {
			return &entities.ScopeError{
				Kind:    entities.ScopeUndeclaredReference,
				Unit:    r.Unit.Name,
				Binding: binding,
				Name:    p.Unit.Name + "." + p.Export,
			}
		}
		r.nested[p.Unit] = nested
	}

	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
