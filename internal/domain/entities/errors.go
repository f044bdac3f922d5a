package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reglet-dev/fragment/internal/domain/values"
)

// Sentinels for errors.Is. Each structured error below matches the
// sentinel of its kind.
var (
	ErrDuplicateName       = errors.New("duplicate template name")
	ErrUnknownEngine       = errors.New("unknown engine")
	ErrUnknownParent       = errors.New("unknown parent template")
	ErrSchema              = errors.New("invalid parameter schema")
	ErrInheritanceCycle    = errors.New("inheritance cycle")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrUndeclaredReference = errors.New("undeclared reference")
	ErrDuplicateBinding    = errors.New("duplicate binding")
	ErrCycle               = errors.New("dependency cycle")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrInvalidProducer     = errors.New("invalid producer")
	ErrUndefinedParameter  = errors.New("undefined parameter")
	ErrSyntax              = errors.New("template syntax error")
	ErrTypeMismatch        = errors.New("type mismatch")
)

// RegistryErrorKind classifies template registry load failures.
type RegistryErrorKind int

const (
	RegistryDuplicateName RegistryErrorKind = iota
	RegistryUnknownEngine
	RegistryUnknownParent
	RegistrySchemaError
	RegistryInheritanceCycle
	RegistryNotFound
)

func (k RegistryErrorKind) sentinel() error {
	switch k {
	case RegistryDuplicateName:
		return ErrDuplicateName
	case RegistryUnknownEngine:
		return ErrUnknownEngine
	case RegistryUnknownParent:
		return ErrUnknownParent
	case RegistrySchemaError:
		return ErrSchema
	case RegistryInheritanceCycle:
		return ErrInheritanceCycle
	default:
		return ErrTemplateNotFound
	}
}

func (k RegistryErrorKind) String() string {
	switch k {
	case RegistryDuplicateName:
		return "DuplicateName"
	case RegistryUnknownEngine:
		return "UnknownEngine"
	case RegistryUnknownParent:
		return "UnknownParent"
	case RegistrySchemaError:
		return "SchemaError"
	case RegistryInheritanceCycle:
		return "InheritanceCycle"
	default:
		return "NotFound"
	}
}

// RegistryError indicates a template definition could not be loaded or found.
type RegistryError struct {
	Kind     RegistryErrorKind
	Template string
	Detail   string
	// Chain lists the ancestry for InheritanceCycle, or both sources for DuplicateName.
	Chain []string
	Cause error
}

func (e *RegistryError) Error() string {
	msg := fmt.Sprintf("%s: template %q", e.Kind.sentinel(), e.Template)
	if len(e.Chain) > 0 {
		msg += " (" + strings.Join(e.Chain, " -> ") + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RegistryError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// ScopeErrorKind classifies binding resolution failures.
type ScopeErrorKind int

const (
	ScopeUndeclaredReference ScopeErrorKind = iota
	ScopeDuplicateBinding
)

func (k ScopeErrorKind) sentinel() error {
	if k == ScopeDuplicateBinding {
		return ErrDuplicateBinding
	}
	return ErrUndeclaredReference
}

func (k ScopeErrorKind) String() string {
	if k == ScopeDuplicateBinding {
		return "DuplicateBinding"
	}
	return "UndeclaredReference"
}

// ScopeError indicates a reference or declaration that violates scoping rules.
type ScopeError struct {
	Kind ScopeErrorKind
	Unit string
	// Binding is the binding whose producer contains the offending reference.
	Binding string
	// Name is the referenced or re-declared name.
	Name string
}

func (e *ScopeError) Error() string {
	if e.Kind == ScopeDuplicateBinding {
		return fmt.Sprintf("%s: %q already declared in unit %q", e.Kind.sentinel(), e.Name, e.Unit)
	}
	return fmt.Sprintf("%s: %q referenced by binding %q in unit %q", e.Kind.sentinel(), e.Name, e.Binding, e.Unit)
}

func (e *ScopeError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// CycleError lists the nodes of a dependency cycle in encounter order.
type CycleError struct {
	Unit  string
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s in unit %q: %s", ErrCycle, e.Unit, strings.Join(e.Nodes, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// GraphErrorKind classifies dependency graph construction failures.
type GraphErrorKind int

const (
	GraphUnknownTemplate GraphErrorKind = iota
	GraphInvalidProducer
)

func (k GraphErrorKind) sentinel() error {
	if k == GraphInvalidProducer {
		return ErrInvalidProducer
	}
	return ErrUnknownTemplate
}

func (k GraphErrorKind) String() string {
	if k == GraphInvalidProducer {
		return "InvalidProducer"
	}
	return "UnknownTemplate"
}

// GraphError indicates a node could not be added to the dependency graph.
type GraphError struct {
	Kind     GraphErrorKind
	Node     string
	Template string
	Detail   string
}

func (e *GraphError) Error() string {
	msg := fmt.Sprintf("%s: node %q", e.Kind.sentinel(), e.Node)
	if e.Template != "" {
		msg += fmt.Sprintf(" (template %q)", e.Template)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *GraphError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// RenderErrorKind classifies backend failures.
type RenderErrorKind int

const (
	RenderUndefinedParameter RenderErrorKind = iota
	RenderSyntaxError
	RenderTypeMismatch
)

func (k RenderErrorKind) sentinel() error {
	switch k {
	case RenderSyntaxError:
		return ErrSyntax
	case RenderTypeMismatch:
		return ErrTypeMismatch
	default:
		return ErrUndefinedParameter
	}
}

func (k RenderErrorKind) String() string {
	switch k {
	case RenderSyntaxError:
		return "SyntaxError"
	case RenderTypeMismatch:
		return "TypeMismatch"
	default:
		return "UndefinedParameter"
	}
}

// Location is a 1-based position inside a template body. Zero means unknown.
type Location struct {
	Line   int `json:"line,omitempty" yaml:"line,omitempty"`
	Column int `json:"column,omitempty" yaml:"column,omitempty"`
}

// IsZero returns true when the position is unknown.
func (l Location) IsZero() bool {
	return l.Line == 0
}

func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	if l.Column == 0 {
		return fmt.Sprintf("%d", l.Line)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// LocationAt converts a byte offset in body into a Location.
func LocationAt(body string, offset int) Location {
	if offset > len(body) {
		offset = len(body)
	}
	line, col := 1, 1
	for _, r := range body[:offset] {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return Location{Line: line, Column: col}
}

// RenderError indicates a backend could not render a template.
type RenderError struct {
	Kind     RenderErrorKind
	Template string
	Engine   values.EngineID
	Location Location
	Message  string
	Cause    error
}

func (e *RenderError) Error() string {
	where := e.Template
	if !e.Location.IsZero() {
		where += ":" + e.Location.String()
	}
	msg := fmt.Sprintf("%s in %s", e.Kind.sentinel(), where)
	if e.Engine.IsSet() {
		msg += " (" + e.Engine.String() + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RenderError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NewRenderError creates a render error without a cause.
func NewRenderError(kind RenderErrorKind, loc Location, format string, args ...any) *RenderError {
	return &RenderError{
		Kind:     kind,
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	}
}
