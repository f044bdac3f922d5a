// Package output provides formatters for build results.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/owenrumney/go-sarif/v3/pkg/report/v210/sarif"
	"github.com/reglet-dev/fragment/internal/application/dto"
)

// SARIFFormatter formats build diagnostics as SARIF 2.1.0 JSON. Each
// diagnostic kind becomes a rule; each diagnostic a result located in the
// document that defined the template involved.
type SARIFFormatter struct {
	writer       io.Writer
	documentPath string
	version      string
}

// NewSARIFFormatter creates a new SARIF formatter. documentPath is the
// fallback location for diagnostics without a source document.
func NewSARIFFormatter(writer io.Writer, documentPath, version string) *SARIFFormatter {
	return &SARIFFormatter{
		writer:       writer,
		documentPath: documentPath,
		version:      version,
	}
}

// Format writes the build diagnostics as SARIF 2.1.0 JSON.
func (f *SARIFFormatter) Format(resp *dto.BuildResponse) error {
	report := sarif.NewReport()

	run := sarif.NewRunWithInformationURI("fragment", "https://github.com/reglet-dev/fragment")
	if f.version != "" {
		run.Tool.Driver.Version = ptrString(f.version)
	}

	mapper := newSARIFMapper(resp, f.documentPath)
	mapper.mapToRun(run)

	report.AddRun(run)

	if err := report.Write(f.writer); err != nil {
		return fmt.Errorf("failed to write SARIF output: %w", err)
	}

	_, err := f.writer.Write([]byte("\n"))
	return err
}

func ptrString(s string) *string {
	return &s
}

func ptrBool(b bool) *bool {
	return &b
}

type sarifMapper struct {
	resp         *dto.BuildResponse
	documentPath string
	cwd          string
	artifacts    map[string]*sarif.Artifact
}

func newSARIFMapper(resp *dto.BuildResponse, documentPath string) *sarifMapper {
	cwd, _ := os.Getwd() // Best effort, ignore error
	return &sarifMapper{
		resp:         resp,
		documentPath: documentPath,
		cwd:          cwd,
		artifacts:    make(map[string]*sarif.Artifact),
	}
}

func (m *sarifMapper) mapToRun(run *sarif.Run) {
	diags := m.resp.Diagnostics.All()

	m.addRules(run, diags)
	for _, d := range diags {
		run.AddResult(m.mapDiagnostic(d))
	}

	uris := make([]string, 0, len(m.artifacts))
	for uri := range m.artifacts {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	for _, uri := range uris {
		run.AddArtifact(m.artifacts[uri])
	}

	m.addInvocation(run)

	props := sarif.NewPropertyBag()
	props.Add("exports", len(m.resp.Exports))
	props.Add("units", len(m.resp.Units))
	run.WithProperties(props)
}

func (m *sarifMapper) addInvocation(run *sarif.Run) {
	invocation := sarif.NewInvocation()
	invocation.ExecutionSuccessful = ptrBool(!m.resp.HasErrors())

	meta := m.resp.Metadata
	if !meta.ProcessedAt.IsZero() {
		startTime := meta.ProcessedAt.UTC().Format("2006-01-02T15:04:05.000Z")
		endTime := meta.ProcessedAt.Add(meta.Duration).UTC().Format("2006-01-02T15:04:05.000Z")
		invocation.StartTimeUtc = &startTime
		invocation.EndTimeUtc = &endTime
	}

	props := sarif.NewPropertyBag()
	props.Add("buildId", m.resp.BuildID.String())
	invocation.WithProperties(props)

	run.AddInvocation(invocation)
}

// addRules registers one rule per diagnostic kind, in sorted order. A kind
// reported as an error anywhere defaults to level error.
func (m *sarifMapper) addRules(run *sarif.Run, diags []dto.Diagnostic) {
	levels := make(map[string]string)
	for _, d := range diags {
		level := mapSeverityToLevel(d.Severity)
		if prev, ok := levels[d.Kind]; !ok || prev != "error" {
			levels[d.Kind] = level
		}
	}

	kinds := make([]string, 0, len(levels))
	for k := range levels {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	for _, kind := range kinds {
		desc := ruleDescription(kind)
		rule := sarif.NewReportingDescriptor().WithID(kind)
		rule.WithName(kind)
		rule.WithShortDescription(&sarif.MultiformatMessageString{
			Text: &desc,
		})
		rule.WithDefaultConfiguration(&sarif.ReportingConfiguration{
			Level: levels[kind],
		})
		run.Tool.Driver.AddRule(rule)
	}
}

func (m *sarifMapper) mapDiagnostic(d dto.Diagnostic) *sarif.Result {
	result := sarif.NewRuleResult(d.Kind)
	result.Level = mapSeverityToLevel(d.Severity)
	result.Kind = "fail"
	result.Message = sarif.NewTextMessage(d.Message)

	if loc := m.location(d); loc != nil {
		result.Locations = []*sarif.Location{loc}
	}

	props := sarif.NewPropertyBag()
	if d.Unit != "" {
		props.Add("unit", d.Unit)
	}
	if d.Node != "" {
		props.Add("node", d.Node)
	}
	if d.Template != "" {
		props.Add("template", d.Template)
	}
	// Line and column are relative to the template body, not the document.
	if !d.Location.IsZero() {
		props.Add("template_line", d.Location.Line)
		props.Add("template_column", d.Location.Column)
	}
	result.WithProperties(props)

	return result
}

func (m *sarifMapper) location(d dto.Diagnostic) *sarif.Location {
	path := d.Source
	if path == "" {
		path = m.documentPath
	}
	if path == "" {
		return nil
	}

	uri := m.normalizeURI(path)
	if _, ok := m.artifacts[uri]; !ok {
		m.artifacts[uri] = sarif.NewArtifact().
			WithLocation(sarif.NewArtifactLocation().WithURI(uri))
	}

	pLoc := sarif.NewPhysicalLocation().
		WithArtifactLocation(sarif.NewArtifactLocation().WithURI(uri))
	return sarif.NewLocation().WithPhysicalLocation(pLoc)
}

// normalizeURI converts a file path to a SARIF-compliant URI.
func (m *sarifMapper) normalizeURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	if m.cwd != "" {
		if rel, err := filepath.Rel(m.cwd, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}

	return "file://" + filepath.ToSlash(abs)
}

func mapSeverityToLevel(s dto.Severity) string {
	if s == dto.SeverityWarning {
		return "warning"
	}
	return "error"
}

var ruleDescriptions = map[string]string{
	"DuplicateName":       "Template name defined more than once",
	"UnknownEngine":       "Engine identifier not recognised",
	"UnknownParent":       "Template extends an undefined parent",
	"SchemaError":         "Invalid parameter schema",
	"InheritanceCycle":    "Templates extend each other in a cycle",
	"UndeclaredReference": "Reference to a binding not in scope",
	"DuplicateBinding":    "Binding declared twice in one unit",
	"CycleError":          "Bindings depend on each other in a cycle",
	"UnknownTemplate":     "Invocation names no registered template",
	"InvalidProducer":     "Malformed binding producer",
	"UndefinedParameter":  "Template uses a parameter that was not supplied",
	"SyntaxError":         "Template body does not parse",
	"TypeMismatch":        "Parameter value has the wrong shape",
	"ExportConflict":      "Units export one name with different text",
	"SuspectedSecret":     "Exported string looks like a credential",
	"CacheFlush":          "Resolution cache could not be written",
	"Cancelled":           "Build was cancelled",
	"NotFound":            "Template not found in the registry",
	"Internal":            "Unexpected evaluation failure",
}

func ruleDescription(kind string) string {
	if d, ok := ruleDescriptions[kind]; ok {
		return d
	}
	return kind
}
