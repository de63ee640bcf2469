// Package config loads the process-level run configuration: where artifacts
// go, how many chains to run, telemetry endpoints, and safety limits. It is
// deliberately separate from pkg/scenariocfg, which holds the declarative
// epidemic model (compartments, transitions, modifiers, outcomes) — this
// package only holds how the pipeline itself is operated.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline operating configuration.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Run       RunConfig       `yaml:"run"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Safety    SafetyConfig    `yaml:"safety"`
}

// FrameworkConfig carries general process settings.
type FrameworkConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// RunConfig carries inference/simulation run sizing.
type RunConfig struct {
	// Seed is the controller-level seed; per-chain RNGs are seeded from
	// Seed composed with the chain index so (Seed, NSlots, iterations)
	// reproduces byte-identical results.
	Seed int64 `yaml:"seed"`

	// MaxConcurrentChains bounds how many chains run simultaneously.
	MaxConcurrentChains int `yaml:"max_concurrent_chains"`

	// ConsecutiveFailureLimit is the number of consecutive IntegrationError
	// downgrades that escalate to a fatal error for a chain (§7).
	ConsecutiveFailureLimit int `yaml:"consecutive_failure_limit"`

	// ResetChimericOnAccept decides whether a global acceptance also marks
	// every subpop's chimeric accept as true for that iteration. A chain
	// keeps a single parameter block, so a global accept replaces the
	// per-subpop modifier values whether or not this is set. Defaults to true.
	ResetChimericOnAccept bool `yaml:"reset_chimeric_on_accept"`
}

// ArtifactsConfig controls where and how run artifacts are persisted.
type ArtifactsConfig struct {
	OutputDir string `yaml:"output_dir"`
	KeepLastN int    `yaml:"keep_last_n"`
}

// TelemetryConfig controls the Prometheus metrics endpoint.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SafetyConfig carries run-time guard rails.
type SafetyConfig struct {
	MaxRunDuration      time.Duration `yaml:"max_run_duration"`
	RequireConfirmation bool          `yaml:"require_confirmation"`
}

// Default returns a config with sane defaults, the starting point for Load.
func Default() *Config {
	return &Config{
		Framework: FrameworkConfig{LogLevel: "info", LogFormat: "text"},
		Run: RunConfig{
			Seed:                    1,
			MaxConcurrentChains:     4,
			ConsecutiveFailureLimit: 3,
			ResetChimericOnAccept:   true,
		},
		Artifacts: ArtifactsConfig{
			OutputDir: "model_output",
			KeepLastN: 0,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Safety: SafetyConfig{
			MaxRunDuration:      0,
			RequireConfirmation: false,
		},
	}
}

// Load reads and parses a YAML config file, falling back to Default() when
// path does not exist. Environment variables of the form ${VAR} are expanded
// before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "flepimop.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks structural requirements on c.
func (c *Config) Validate() error {
	if c.Run.MaxConcurrentChains < 1 {
		return fmt.Errorf("run.max_concurrent_chains must be at least 1")
	}
	if c.Run.ConsecutiveFailureLimit < 1 {
		return fmt.Errorf("run.consecutive_failure_limit must be at least 1")
	}
	if c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts.output_dir is required")
	}
	return nil
}
