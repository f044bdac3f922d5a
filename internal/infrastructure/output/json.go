package output

import (
	"encoding/json"
	"io"

	"github.com/reglet-dev/fragment/internal/application/dto"
)

// JSONFormatter formats build results as JSON.
type JSONFormatter struct {
	writer io.Writer
	indent bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{writer: w, indent: indent}
}

// Format writes the build manifest as JSON.
func (f *JSONFormatter) Format(resp *dto.BuildResponse) error {
	encoder := json.NewEncoder(f.writer)
	if f.indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(newManifest(resp))
}
