package services

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/reglet-dev/fragment/internal/application/dto"
	apperrors "github.com/reglet-dev/fragment/internal/application/errors"
	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/reglet-dev/fragment/internal/domain/repositories"
	"github.com/reglet-dev/fragment/internal/domain/services"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"golang.org/x/sync/errgroup"
)

// BuildService orchestrates a build: it evaluates units in parallel against
// one registry and one cache, then merges exports and diagnostics.
type BuildService struct {
	registry  *services.Registry
	renderer  ports.Renderer
	cache     repositories.ResolutionCache
	lifecycle ports.CacheLifecycle
	scanner   ports.SecretScanner
	logger    *slog.Logger

	// Overlapping builds share one cache session: the first loads, the
	// last flushes.
	sessionMu sync.Mutex
	sessions  int
}

// BuildServiceOption configures a BuildService.
type BuildServiceOption func(*BuildService)

// WithCache sets the resolution cache. If it also implements
// ports.CacheLifecycle it is loaded before and flushed after each build.
func WithCache(cache repositories.ResolutionCache) BuildServiceOption {
	return func(s *BuildService) {
		s.cache = cache
		if lc, ok := cache.(ports.CacheLifecycle); ok {
			s.lifecycle = lc
		}
	}
}

// WithSecretScanner sets the scanner used when BuildOptions.ScanSecrets is
// on. Diagnostic messages are always scrubbed with it.
func WithSecretScanner(scanner ports.SecretScanner) BuildServiceOption {
	return func(s *BuildService) {
		s.scanner = scanner
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuildServiceOption {
	return func(s *BuildService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBuildService creates a build service.
func NewBuildService(registry *services.Registry, renderer ports.Renderer, opts ...BuildServiceOption) *BuildService {
	s := &BuildService{
		registry: registry,
		renderer: renderer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build evaluates every unit of the request. A failing unit does not stop
// the others; its error becomes a diagnostic and its partial exports are
// kept. The returned error is non-nil only when the build could not start.
func (s *BuildService) Build(ctx context.Context, req dto.BuildRequest) (*dto.BuildResponse, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.Options.ValidateRegistry {
		if err := ValidateRegistry(s.registry, s.renderer, req.Options.DefaultEngine); err != nil {
			return nil, apperrors.NewConfigurationError("registry", "template validation failed", err)
		}
	}

	if err := s.openCache(ctx); err != nil {
		return nil, apperrors.NewConfigurationError("cache", "failed to load cache", err)
	}

	evaluator := NewEvaluator(s.registry, s.renderer, s.cache, EvaluatorConfig{
		DefaultEngine: req.Options.DefaultEngine,
		StrictLookup:  req.Options.StrictLookup,
	}, s.logger)

	results := make([]*dto.UnitResult, len(req.Units))

	g, gctx := errgroup.WithContext(ctx)
	limit := req.Options.MaxConcurrentUnits
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)

	for i, unit := range req.Units {
		g.Go(func() error {
			results[i] = evaluator.Evaluate(gctx, unit)
			return nil
		})
	}
	_ = g.Wait()

	resp := &dto.BuildResponse{
		BuildID: values.NewBuildID(),
		Units:   results,
		Metadata: dto.ResponseMetadata{
			RequestID:   req.Metadata.RequestID,
			ProcessedAt: start,
		},
	}

	s.merge(resp)

	if req.Options.ScanSecrets && s.scanner != nil {
		s.scan(resp)
	}

	if err := s.closeCache(ctx); err != nil {
		s.logger.Warn("failed to flush cache", "error", err)
		resp.Diagnostics.Add(dto.Diagnostic{
			Severity: dto.SeverityWarning,
			Kind:     KindCacheFlush,
			Message:  err.Error(),
		})
	}

	resp.Metadata.Duration = time.Since(start)

	s.logger.Info("build complete",
		"build_id", resp.BuildID.String(),
		"units", len(req.Units),
		"exports", len(resp.Exports),
		"errors", len(resp.Diagnostics.Errors),
		"warnings", len(resp.Diagnostics.Warnings),
		"duration", resp.Metadata.Duration,
	)

	return resp, nil
}

// openCache joins the cache session, loading the cache when no other
// build holds it open. A Load while another build is writing entries would
// drop them.
func (s *BuildService) openCache(ctx context.Context) error {
	if s.lifecycle == nil {
		return nil
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.sessions == 0 {
		if err := s.lifecycle.Load(ctx); err != nil {
			return err
		}
	}
	s.sessions++
	return nil
}

// closeCache leaves the cache session and flushes when it was the last
// build. The flush ignores cancellation of ctx because it also carries
// the entries of builds that already finished.
func (s *BuildService) closeCache(ctx context.Context) error {
	if s.lifecycle == nil {
		return nil
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	s.sessions--
	if s.sessions > 0 {
		return nil
	}
	return s.lifecycle.Flush(context.WithoutCancel(ctx))
}

func validateRequest(req dto.BuildRequest) error {
	seen := make(map[string]bool, len(req.Units))
	var details []string
	for i, unit := range req.Units {
		switch {
		case unit.Name == "":
			details = append(details, "unit at index "+strconv.Itoa(i)+" has no name")
		case seen[unit.Name]:
			details = append(details, "unit "+unit.Name+" declared more than once")
		}
		seen[unit.Name] = true
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("units", "invalid unit list", details...)
	}
	return nil
}

// merge unions unit exports in unit order and collects unit failures.
// Two units exporting the same name with different text is an error; the
// first unit's value is kept.
func (s *BuildService) merge(resp *dto.BuildResponse) {
	index := make(map[string]int)

	for _, result := range resp.Units {
		if result.Err != nil {
			resp.Diagnostics.Add(s.describe(result.Unit, result.Err))
		}

		for _, exp := range result.Exports {
			prev, ok := index[exp.Name]
			if !ok {
				index[exp.Name] = len(resp.Exports)
				resp.Exports = append(resp.Exports, exp)
				continue
			}
			first := resp.Exports[prev]
			if first.Value.Text == exp.Value.Text {
				continue
			}
			resp.Diagnostics.Add(dto.Diagnostic{
				Severity: dto.SeverityError,
				Kind:     KindExportConflict,
				Unit:     exp.Unit,
				Node:     exp.Name,
				Message:  "export " + exp.Name + " conflicts with unit " + first.Unit,
			})
		}
	}
}

// describe builds a diagnostic and fills in the source document of the
// template involved, when known.
func (s *BuildService) describe(unit string, err error) dto.Diagnostic {
	diag := diagnosticFor(unit, err)
	if diag.Template != "" && s.registry != nil {
		if tmpl, lookupErr := s.registry.Lookup(diag.Template); lookupErr == nil {
			diag.Source = tmpl.Source
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		diag.Kind = KindCancelled
	}
	if s.scanner != nil {
		diag.Message = s.scanner.Scrub(diag.Message)
	}
	return diag
}

func (s *BuildService) scan(resp *dto.BuildResponse) {
	for _, exp := range resp.Exports {
		for _, finding := range s.scanner.Scan(exp.Value.Text) {
			resp.Diagnostics.Add(dto.Diagnostic{
				Severity: dto.SeverityWarning,
				Kind:     KindSecret,
				Unit:     exp.Unit,
				Node:     exp.Name,
				Template: exp.Value.Provenance.Template,
				Message:  finding.RuleID + ": " + finding.Description,
			})
		}
	}
}
