package output

import (
	"io"

	"github.com/goccy/go-yaml"
	"github.com/reglet-dev/fragment/internal/application/dto"
)

// YAMLFormatter formats build results as YAML.
type YAMLFormatter struct {
	writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

// Format writes the build manifest as YAML.
func (f *YAMLFormatter) Format(resp *dto.BuildResponse) error {
	encoder := yaml.NewEncoder(f.writer, yaml.Indent(2))

	if err := encoder.Encode(newManifest(resp)); err != nil {
		return err
	}

	return encoder.Close()
}
