// Package dto contains data transfer objects for application layer use cases.
package dto

import (
	"github.com/reglet-dev/fragment/internal/domain/entities"
	"github.com/reglet-dev/fragment/internal/domain/values"
)

// BuildRequest encapsulates all inputs needed to resolve a set of units.
type BuildRequest struct {
	Units    []entities.CompositionUnit
	Options  BuildOptions
	Metadata RequestMetadata
}

// BuildOptions controls how units are evaluated.
type BuildOptions struct {
	// DefaultEngine applies when neither the invocation nor the template
	// names an engine. Unset means plain substitution.
	DefaultEngine values.EngineID

	// MaxConcurrentUnits limits parallel unit evaluation (0 = number of CPUs)
	MaxConcurrentUnits int

	// StrictLookup rejects invocations of unregistered names instead of
	// treating them as inline bodies.
	StrictLookup bool

	// ValidateRegistry checks every registry body before evaluating anything.
	ValidateRegistry bool

	// ScanSecrets reports exported strings that look like credentials.
	ScanSecrets bool
}

// RequestMetadata contains metadata for request tracking.
type RequestMetadata struct {
	// RequestID uniquely identifies this request
	RequestID string
}
