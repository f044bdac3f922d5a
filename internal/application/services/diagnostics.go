package services

import (
	"errors"

	"github.com/reglet-dev/fragment/internal/application/dto"
	apperrors "github.com/reglet-dev/fragment/internal/application/errors"
	"github.com/reglet-dev/fragment/internal/domain/entities"
)

// Diagnostic kinds not covered by a domain error kind.
const (
	KindExportConflict = "ExportConflict"
	KindSecret         = "SuspectedSecret"
	KindCacheFlush     = "CacheFlush"
	KindCancelled      = "Cancelled"
	KindInternal       = "Internal"
)

// diagnosticFor describes err with the most specific provenance available.
func diagnosticFor(unit string, err error) dto.Diagnostic {
	diag := dto.Diagnostic{
		Severity: dto.SeverityError,
		Kind:     KindInternal,
		Unit:     unit,
		Message:  err.Error(),
	}

	var evalErr *apperrors.EvaluationError
	if errors.As(err, &evalErr) {
		diag.Node = evalErr.Node
		diag.Template = evalErr.Template
	}

	var (
		renderErr   *entities.RenderError
		scopeErr    *entities.ScopeError
		cycleErr    *entities.CycleError
		graphErr    *entities.GraphError
		registryErr *entities.RegistryError
	)

	switch {
	case errors.As(err, &renderErr):
		diag.Kind = renderErr.Kind.String()
		diag.Location = renderErr.Location
		if renderErr.Template != "" {
			diag.Template = renderErr.Template
		}
	case errors.As(err, &scopeErr):
		diag.Kind = scopeErr.Kind.String()
		if diag.Node == "" {
			diag.Node = scopeErr.Binding
		}
	case errors.As(err, &cycleErr):
		diag.Kind = "CycleError"
	case errors.As(err, &graphErr):
		diag.Kind = graphErr.Kind.String()
		if diag.Node == "" {
			diag.Node = graphErr.Node
		}
	case errors.As(err, &registryErr):
		diag.Kind = registryErr.Kind.String()
		diag.Template = registryErr.Template
	case errors.Is(err, errCancelled):
		diag.Kind = KindCancelled
	}

	return diag
}
