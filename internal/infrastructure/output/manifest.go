package output

import (
	"time"

	"github.com/reglet-dev/fragment/internal/application/dto"
)

// manifest is the serialized shape of a build for the json and yaml
// formats: exports in merge order, per-unit stats and diagnostics.
type manifest struct {
	BuildID     string           `json:"build_id" yaml:"build_id"`
	ProcessedAt time.Time        `json:"processed_at" yaml:"processed_at"`
	DurationMS  int64            `json:"duration_ms" yaml:"duration_ms"`
	Exports     []manifestExport `json:"exports" yaml:"exports"`
	Units       []manifestUnit   `json:"units" yaml:"units"`
	Errors      []dto.Diagnostic `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings    []dto.Diagnostic `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type manifestExport struct {
	Name     string `json:"name" yaml:"name"`
	Unit     string `json:"unit" yaml:"unit"`
	Text     string `json:"text" yaml:"text"`
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Engine   string `json:"engine,omitempty" yaml:"engine,omitempty"`
	Source   string `json:"source" yaml:"source"`
	Cached   bool   `json:"cached" yaml:"cached"`
}

type manifestUnit struct {
	Name      string `json:"name" yaml:"name"`
	OK        bool   `json:"ok" yaml:"ok"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
	Rendered  int    `json:"rendered" yaml:"rendered"`
	CacheHits int    `json:"cache_hits" yaml:"cache_hits"`
}

func newManifest(resp *dto.BuildResponse) manifest {
	m := manifest{
		BuildID:     resp.BuildID.String(),
		ProcessedAt: resp.Metadata.ProcessedAt,
		DurationMS:  resp.Metadata.Duration.Milliseconds(),
		Exports:     make([]manifestExport, 0, len(resp.Exports)),
		Units:       make([]manifestUnit, 0, len(resp.Units)),
		Errors:      resp.Diagnostics.Errors,
		Warnings:    resp.Diagnostics.Warnings,
	}

	for _, e := range resp.Exports {
		prov := e.Value.Provenance
		engine := ""
		if prov.Engine.IsSet() {
			engine = prov.Engine.String()
		}
		m.Exports = append(m.Exports, manifestExport{
			Name:     e.Name,
			Unit:     e.Unit,
			Text:     e.Value.Text,
			Template: prov.Template,
			Engine:   engine,
			Source:   string(prov.Source),
			Cached:   e.Value.Cached,
		})
	}

	for _, u := range resp.Units {
		if u == nil {
			continue
		}
		m.Units = append(m.Units, manifestUnit{
			Name:      u.Unit,
			OK:        u.Err == nil,
			Nodes:     u.Stats.Nodes,
			Rendered:  u.Stats.Rendered,
			CacheHits: u.Stats.CacheHits,
		})
	}

	return m
}
