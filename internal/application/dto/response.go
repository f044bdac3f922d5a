package dto

import (
	"time"

	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// BuildResponse contains the resolved strings of a build.
type BuildResponse struct {
	BuildID values.BuildID `json:"build_id" yaml:"build_id"`

	// Exports is the deduplicated union of every unit's exports, in unit
	// order then declaration order.
	Exports []Export `json:"exports" yaml:"exports"`

	// Units holds per-unit results in request order.
	Units []*UnitResult `json:"units" yaml:"units"`

	// Diagnostics contains errors and warnings across the build
	Diagnostics Diagnostics `json:"diagnostics" yaml:"diagnostics"`

	// Metadata contains response metadata
	Metadata ResponseMetadata `json:"metadata" yaml:"metadata"`
}

// Export is one named resolved string.
type Export struct {
	Name  string                 `json:"name" yaml:"name"`
	Unit  string                 `json:"unit" yaml:"unit"`
	Value entities.ResolvedValue `json:"value" yaml:"value"`
}

// Export returns the named export.
func (r *BuildResponse) Export(name string) (entities.ResolvedValue, bool) {
	for _, e := range r.Exports {
		if e.Name == name {
			return e.Value, true
		}
	}
	return entities.ResolvedValue{}, false
}

// HasErrors reports whether any unit failed.
func (r *BuildResponse) HasErrors() bool {
	return len(r.Diagnostics.Errors) > 0
}

// UnitResult is the outcome of evaluating one composition unit. On failure
// Exports holds what was resolved before the failing node.
type UnitResult struct {
	Unit    string   `json:"unit" yaml:"unit"`
	Exports []Export `json:"exports" yaml:"exports"`
	// Err is the failure that halted the unit, if any.
	Err   error           `json:"-" yaml:"-"`
	Stats EvaluationStats `json:"stats" yaml:"stats"`
}

// Export returns the named export of this unit.
func (u *UnitResult) Export(name string) (entities.ResolvedValue, bool) {
	for _, e := range u.Exports {
		if e.Name == name {
			return e.Value, true
		}
	}
	return entities.ResolvedValue{}, false
}

// EvaluationStats counts the work done for one unit.
type EvaluationStats struct {
	Nodes     int `json:"nodes" yaml:"nodes"`
	Rendered  int `json:"rendered" yaml:"rendered"`
	CacheHits int `json:"cache_hits" yaml:"cache_hits"`
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	// RequestID from the original request
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`

	// ProcessedAt is when the request was processed
	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`

	// Duration is how long the request took
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one error or warning with enough provenance to locate it.
type Diagnostic struct {
	Severity Severity          `json:"severity" yaml:"severity"`
	Kind     string            `json:"kind" yaml:"kind"`
	Unit     string            `json:"unit,omitempty" yaml:"unit,omitempty"`
	Node     string            `json:"node,omitempty" yaml:"node,omitempty"`
	Template string            `json:"template,omitempty" yaml:"template,omitempty"`
	Source   string            `json:"source,omitempty" yaml:"source,omitempty"`
	Location entities.Location `json:"location,omitempty" yaml:"location,omitempty"`
	Message  string            `json:"message" yaml:"message"`
}

// Diagnostics contains diagnostic information about the build.
type Diagnostics struct {
	// Errors are failures that halted a unit or rejected an export
	Errors []Diagnostic `json:"errors,omitempty" yaml:"errors,omitempty"`

	// Warnings are non-fatal issues encountered
	Warnings []Diagnostic `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Add appends d to the list matching its severity.
func (d *Diagnostics) Add(diag Diagnostic) {
	if diag.Severity == SeverityWarning {
		d.Warnings = append(d.Warnings, diag)
		return
	}
	d.Errors = append(d.Errors, diag)
}

// All returns errors followed by warnings.
func (d *Diagnostics) All() []Diagnostic {
	out := make([]Diagnostic, 0, len(d.Errors)+len(d.Warnings))
	out = append(out, d.Errors...)
	return append(out, d.Warnings...)
}
