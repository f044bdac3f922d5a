package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reglet-dev/fragment/internal/application/dto"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// TableFormatter formats build results as human-readable text.
type TableFormatter struct {
	writer      io.Writer
	EnableColor bool
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{
		writer:      w,
		EnableColor: true, // Default to true, caller can disable
	}
}

// colorize returns the string wrapped in ANSI color codes if enabled.
func (f *TableFormatter) colorize(text, code string) string {
	if !f.EnableColor {
		return text
	}
	return code + text + colorReset
}

// Format writes the build result as a table.
//
//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) Format(resp *dto.BuildResponse) error {
	rule := f.colorize(strings.Repeat("─", 80), colorGray)

	fmt.Fprintln(f.writer, rule)
	fmt.Fprintf(f.writer, "Build: %s\n", f.colorize(resp.BuildID.String(), colorBold))
	fmt.Fprintf(f.writer, "Duration: %s\n", resp.Metadata.Duration.Round(time.Millisecond))
	fmt.Fprintln(f.writer)

	fmt.Fprintln(f.writer, f.colorize("Units:", colorBold))
	for _, u := range resp.Units {
		if u == nil {
			continue
		}
		symbol, color := "✓", colorGreen
		if u.Err != nil {
			symbol, color = "✗", colorRed
		}
		fmt.Fprintf(f.writer, "  %s %s  nodes=%d rendered=%d cached=%d\n",
			f.colorize(symbol, color), f.colorize(u.Unit, color),
			u.Stats.Nodes, u.Stats.Rendered, u.Stats.CacheHits)
	}
	fmt.Fprintln(f.writer)

	fmt.Fprintln(f.writer, f.colorize("Exports:", colorBold))
	if len(resp.Exports) == 0 {
		fmt.Fprintln(f.writer, "  (none)")
	}
	for _, e := range resp.Exports {
		f.formatExport(e)
	}

	if diags := resp.Diagnostics.All(); len(diags) > 0 {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, f.colorize("Diagnostics:", colorBold))
		for _, d := range diags {
			f.formatDiagnostic(d)
		}
	}

	fmt.Fprintln(f.writer, rule)
	return nil
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatExport(e dto.Export) {
	name := f.colorize(e.Name, colorCyan)
	origin := string(e.Value.Provenance.Source)
	if t := e.Value.Provenance.Template; t != "" {
		origin = t
	}
	if e.Value.Cached {
		origin += ", cached"
	}

	if strings.Contains(e.Value.Text, "\n") {
		fmt.Fprintf(f.writer, "  %s (%s):\n", name, origin)
		for _, line := range strings.Split(e.Value.Text, "\n") {
			fmt.Fprintf(f.writer, "    %s\n", line)
		}
		return
	}
	fmt.Fprintf(f.writer, "  %s = %q (%s)\n", name, e.Value.Text, origin)
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatDiagnostic(d dto.Diagnostic) {
	symbol, color := "✗", colorRed
	if d.Severity == dto.SeverityWarning {
		symbol, color = "⚠", colorYellow
	}

	var where []string
	for _, part := range []string{d.Unit, d.Node} {
		if part != "" {
			where = append(where, part)
		}
	}
	if d.Template != "" {
		t := d.Template
		if !d.Location.IsZero() {
			t += ":" + d.Location.String()
		}
		where = append(where, t)
	}

	fmt.Fprintf(f.writer, "  %s [%s] %s\n", f.colorize(symbol, color), d.Kind, strings.Join(where, " / "))
	fmt.Fprintf(f.writer, "    %s\n", d.Message)
}
