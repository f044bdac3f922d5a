package values

import (
	"errors"
	"fmt"
	"strings"
)

// EngineID identifies a rendering backend.
// The set of backends is closed; the zero value means "not declared".
type EngineID struct {
	value EngineKind
}

// EngineKind is the internal representation
type EngineKind int

const (
	EngineKindUnset      EngineKind = 0
	EngineKindPlain      EngineKind = 1
	EngineKindDirective  EngineKind = 2
	EngineKindExpression EngineKind = 3
)

// Predefined engine values
var (
	EngineUnset      = EngineID{EngineKindUnset}
	EnginePlain      = EngineID{EngineKindPlain}
	EngineDirective  = EngineID{EngineKindDirective}
	EngineExpression = EngineID{EngineKindExpression}
)

// engineAliases maps every accepted identifier to its backend.
// Aliases keep documents written for older engine names loadable.
var engineAliases = map[string]EngineID{
	"plain":        EnginePlain,
	"simple":       EnginePlain,
	"substitution": EnginePlain,
	"directive":    EngineDirective,
	"handlebars":   EngineDirective,
	"block":        EngineDirective,
	"expression":   EngineExpression,
	"jinja":        EngineExpression,
	"tera":         EngineExpression,
	"minijinja":    EngineExpression,
}

// ErrUnknownEngine is returned by ParseEngineID for identifiers outside the closed set.
var ErrUnknownEngine = errors.New("unknown engine")

// ParseEngineID creates an EngineID from a document identifier.
// An empty identifier yields EngineUnset.
func ParseEngineID(s string) (EngineID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EngineUnset, nil
	}

	id, ok := engineAliases[s]
	if !ok {
		return EngineID{}, fmt.Errorf("%w: %q", ErrUnknownEngine, s)
	}
	return id, nil
}

// MustParseEngineID creates an EngineID or panics
func MustParseEngineID(s string) EngineID {
	id, err := ParseEngineID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// AllEngines returns every concrete backend in canonical order.
func AllEngines() []EngineID {
	return []EngineID{EnginePlain, EngineDirective, EngineExpression}
}

// String returns the canonical name
func (e EngineID) String() string {
	switch e.value {
	case EngineKindPlain:
		return "plain"
	case EngineKindDirective:
		return "directive"
	case EngineKindExpression:
		return "expression"
	default:
		return ""
	}
}

// Kind returns the internal kind (for switches outside this package)
func (e EngineID) Kind() EngineKind {
	return e.value
}

// IsSet returns true if an engine was declared
func (e EngineID) IsSet() bool {
	return e.value != EngineKindUnset
}

// Or returns e when set, otherwise fallback.
func (e EngineID) Or(fallback EngineID) EngineID {
	if e.IsSet() {
		return e
	}
	return fallback
}

// Equals checks if two engine IDs are equal
func (e EngineID) Equals(other EngineID) bool {
	return e.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (e EngineID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *EngineID) UnmarshalText(text []byte) error {
	id, err := ParseEngineID(string(text))
	if err != nil {
		return err
	}
	*e = id
	return nil
}
