package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/reglet-dev/fragment/internal/application/dto"
	apperrors "github.com/reglet-dev/fragment/internal/application/errors"
	"github.com/reglet-dev/fragment/internal/domain/values"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FRAGMENT_CACHE_PATH.
const EnvPrefix = "FRAGMENT"

// BuildConfig aggregates build-time settings from the config file and
// environment.
type BuildConfig struct {
	// Documents lists template documents, loaded in order.
	Documents []string `mapstructure:"documents"`

	DefaultEngine      string `mapstructure:"default_engine"`
	MaxConcurrentUnits int    `mapstructure:"max_concurrent_units"`
	StrictLookup       bool   `mapstructure:"strict_lookup"`
	ValidateRegistry   bool   `mapstructure:"validate_registry"`
	ScanSecrets        bool   `mapstructure:"scan_secrets"`

	// SecretPatterns adds regular expressions to the secret scanner.
	SecretPatterns []string `mapstructure:"secret_patterns"`

	Cache CacheConfig `mapstructure:"cache"`

	LogLevel string `mapstructure:"log_level"`
}

// CacheConfig configures the persisted resolution cache. An empty Path
// keeps the cache in memory only.
type CacheConfig struct {
	Path        string `mapstructure:"path"`
	Compression string `mapstructure:"compression"`
	Prune       bool   `mapstructure:"prune"`
}

// LoadBuildConfig reads path (any format viper understands) and applies
// FRAGMENT_* environment overrides. An empty path reads the environment
// only.
func LoadBuildConfig(path string) (*BuildConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key so environment-only values unmarshal.
	v.SetDefault("documents", []string{})
	v.SetDefault("default_engine", "")
	v.SetDefault("max_concurrent_units", 0)
	v.SetDefault("strict_lookup", false)
	v.SetDefault("validate_registry", false)
	v.SetDefault("scan_secrets", false)
	v.SetDefault("secret_patterns", []string{})
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.compression", "")
	v.SetDefault("cache.prune", false)
	v.SetDefault("log_level", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.NewConfigurationError("config", "failed to read "+path, err)
		}
		slog.Debug("using config file", "file", v.ConfigFileUsed())
	}

	var cfg BuildConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigurationError("config", "failed to decode configuration", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults applies defaults for zero values.
func (c *BuildConfig) ApplyDefaults() {
	if c.DefaultEngine == "" {
		c.DefaultEngine = values.EnginePlain.String()
	}
	if c.MaxConcurrentUnits <= 0 {
		c.MaxConcurrentUnits = runtime.NumCPU()
	}
	if c.Cache.Compression == "" {
		c.Cache.Compression = "zstd"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks enumerated settings.
func (c *BuildConfig) Validate() error {
	var errs []error
	if _, err := values.ParseEngineID(c.DefaultEngine); err != nil {
		errs = append(errs, fmt.Errorf("default_engine: %w", err))
	}
	switch c.Cache.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("cache.compression: unknown compression %q", c.Cache.Compression))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return apperrors.NewConfigurationError("config", "invalid configuration", err)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *BuildConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// BuildOptions converts the configuration into evaluation options.
func (c *BuildConfig) BuildOptions() (dto.BuildOptions, error) {
	engine, err := values.ParseEngineID(c.DefaultEngine)
	if err != nil {
		return dto.BuildOptions{}, apperrors.NewConfigurationError("default_engine", "invalid engine", err)
	}
	return dto.BuildOptions{
		DefaultEngine:      engine,
		MaxConcurrentUnits: c.MaxConcurrentUnits,
		StrictLookup:       c.StrictLookup,
		ValidateRegistry:   c.ValidateRegistry,
		ScanSecrets:        c.ScanSecrets,
	}, nil
}
