package entities

import (
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// ProducerKind discriminates how a binding obtains its value.
type ProducerKind int

const (
	// ProducerLiteral yields a fixed value.
	ProducerLiteral ProducerKind = iota
	// ProducerInvocation renders a template.
	ProducerInvocation
	// ProducerReference reads another binding in scope.
	ProducerReference
	// ProducerUnit evaluates a nested unit and takes one of its exports.
	ProducerUnit
)

func (k ProducerKind) String() string {
	switch k {
	case ProducerInvocation:
		return "invocation"
	case ProducerReference:
		return "reference"
	case ProducerUnit:
		return "unit"
	default:
		return "literal"
	}
}

// Producer is the right-hand side of a binding or an invocation parameter.
// Exactly the field matching Kind is meaningful.
type Producer struct {
	Kind       ProducerKind
	Literal    Value
	Invocation *Invocation
	Ref        string
	Unit       *CompositionUnit
	// Export selects the nested unit's export. Empty selects the only export.
	Export string
}

// Literal creates a literal producer.
func Literal(v Value) Producer {
	return Producer{Kind: ProducerLiteral, Literal: v}
}

// Text creates a literal string producer.
func Text(s string) Producer {
	return Literal(String(s))
}

// Ref creates a reference producer.
func Ref(name string) Producer {
	return Producer{Kind: ProducerReference, Ref: name}
}

// Invoke creates an invocation producer.
func Invoke(inv Invocation) Producer {
	return Producer{Kind: ProducerInvocation, Invocation: &inv}
}

// Nested creates a nested-unit producer.
func Nested(unit CompositionUnit, export string) Producer {
	return Producer{Kind: ProducerUnit, Unit: &unit, Export: export}
}

// Invocation renders one template with parameters.
type Invocation struct {
	// Template is a registry name, or the template body itself when Inline is set.
	Template string
	Inline   bool
	// Engine overrides the template's declared engine when set.
	Engine values.EngineID
	Params []Param
}

// Call creates an invocation of a registry template.
func Call(template string, params ...Param) Invocation {
	return Invocation{Template: template, Params: params}
}

// InlineCall creates an invocation of an inline body.
func InlineCall(body string, params ...Param) Invocation {
	return Invocation{Template: body, Inline: true, Params: params}
}

// WithEngine returns a copy with the engine override set.
func (i Invocation) WithEngine(engine values.EngineID) Invocation {
	i.Engine = engine
	return i
}

// Param is one named invocation parameter.
type Param struct {
	Name  string
	Value Producer
}

// P creates a parameter.
func P(name string, value Producer) Param {
	return Param{Name: name, Value: value}
}

// Binding names a producer inside a composition unit.
type Binding struct {
	Name     string
	Kind     values.BindingKind
	Producer Producer
}

// Local creates a local binding.
func Local(name string, p Producer) Binding {
	return Binding{Name: name, Kind: values.BindingLocal, Producer: p}
}

// Export creates an exported binding.
func Export(name string, p Producer) Binding {
	return Binding{Name: name, Kind: values.BindingExported, Producer: p}
}

// CompositionUnit is an ordered list of bindings evaluated together.
// Units nest through ProducerUnit producers.
type CompositionUnit struct {
	Name     string
	Bindings []Binding
}

// NewUnit creates a composition unit.
func NewUnit(name string, bindings ...Binding) CompositionUnit {
	return CompositionUnit{Name: name, Bindings: bindings}
}

// ExportNames returns exported binding names in declaration order.
func (u CompositionUnit) ExportNames() []string {
	var names []string
	for _, b := range u.Bindings {
		if b.Kind.IsExported() {
			names = append(names, b.Name)
		}
	}
	return names
}
