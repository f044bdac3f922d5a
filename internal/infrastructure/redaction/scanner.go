// Package redaction detects and scrubs credentials in resolved strings.
package redaction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reglet-dev/fragment/internal/application/ports"
	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Ensure interface compliance
var _ ports.SecretScanner = (*Scanner)(nil)

const redacted = "[REDACTED]"

// Scanner finds secrets in text. All fields are read-only after
// construction, making it safe for concurrent use.
type Scanner struct {
	patterns []pattern

	// Gitleaks detector; nil when disabled or when its config failed to load.
	gitleaksDetector *detect.Detector
}

type pattern struct {
	id string
	re *regexp.Regexp
}

// Config holds the configuration for the Scanner.
type Config struct {
	// Custom patterns to detect (e.g. "INT-[A-Z0-9]{16}")
	Patterns []string
	// If true, use only the built-in and custom patterns
	DisableGitleaks bool
}

// New creates a new Scanner with the given configuration.
func New(cfg Config) (*Scanner, error) {
	s := &Scanner{
		patterns: make([]pattern, 0, len(cfg.Patterns)+len(defaultPatterns)),
	}

	if !cfg.DisableGitleaks {
		detector, err := newGitleaksDetector()
		if err == nil {
			s.gitleaksDetector = detector
		}
	}

	for _, p := range defaultPatterns {
		re, err := regexp.Compile(p.expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile default pattern %s: %w", p.id, err)
		}
		s.patterns = append(s.patterns, pattern{id: p.id, re: re})
	}

	for i, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile custom pattern %s: %w", p, err)
		}
		s.patterns = append(s.patterns, pattern{id: fmt.Sprintf("custom-%d", i+1), re: re})
	}

	return s, nil
}

// newGitleaksDetector creates a new gitleaks detector with default configuration.
func newGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read gitleaks config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gitleaks config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate gitleaks config: %w", err)
	}

	return detect.NewDetector(cfg), nil
}

// Scan reports each rule that matched text, once per rule.
func (s *Scanner) Scan(text string) []ports.SecretFinding {
	if text == "" {
		return nil
	}

	var findings []ports.SecretFinding
	seen := make(map[string]bool)
	add := func(id, desc string) {
		if seen[id] {
			return
		}
		seen[id] = true
		findings = append(findings, ports.SecretFinding{RuleID: id, Description: desc})
	}

	if s.gitleaksDetector != nil {
		for _, f := range s.gitleaksDetector.Detect(detect.Fragment{Raw: text}) {
			add(f.RuleID, f.Description)
		}
	}

	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			add(p.id, "matched pattern "+p.re.String())
		}
	}

	return findings
}

// Scrub replaces every detected secret in text.
func (s *Scanner) Scrub(text string) string {
	if text == "" {
		return ""
	}

	result := text
	if s.gitleaksDetector != nil {
		for _, f := range s.gitleaksDetector.Detect(detect.Fragment{Raw: result}) {
			if f.Secret != "" {
				result = strings.ReplaceAll(result, f.Secret, redacted)
			}
		}
	}

	for _, p := range s.patterns {
		result = p.re.ReplaceAllString(result, redacted)
	}
	return result
}

// defaultPatterns contains regexes for common secrets.
var defaultPatterns = []struct {
	id   string
	expr string
}{
	{"aws-access-key-id", `\b((?:AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16})\b`},
	{"private-key", `-----BEGIN [A-Z ]+ PRIVATE KEY-----`},
	{"github-token", `gh[pousr]_[A-Za-z0-9_]{36,255}`},
	{"slack-token", `xox[baprs]-([0-9a-zA-Z]{10,48})`},
}
