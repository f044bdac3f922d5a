package entities

import (
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// SourceKind records where a resolved value came from.
type SourceKind string

const (
	SourceLiteral  SourceKind = "literal"
	SourceRendered SourceKind = "rendered"
	SourceUnit     SourceKind = "unit"
)

// Provenance records how a value was produced.
type Provenance struct {
	Source   SourceKind      `json:"source" yaml:"source"`
	Node     string          `json:"node,omitempty" yaml:"node,omitempty"`
	Template string          `json:"template,omitempty" yaml:"template,omitempty"`
	Engine   values.EngineID `json:"engine,omitempty" yaml:"engine,omitempty"`
	// InputHash is the cache key of the rendering, when rendered.
	InputHash string `json:"input_hash,omitempty" yaml:"input_hash,omitempty"`
}

// ResolvedValue is the output of evaluating one node.
type ResolvedValue struct {
	Text       string     `json:"text" yaml:"text"`
	Value      Value      `json:"-" yaml:"-"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	// Cached is true when the text came from the incremental cache.
	Cached bool `json:"cached" yaml:"cached"`
}

// Rendered creates a resolved value for template output.
func Rendered(text string, prov Provenance) ResolvedValue {
	prov.Source = SourceRendered
	return ResolvedValue{Text: text, Value: String(text), Provenance: prov}
}
