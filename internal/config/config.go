// Package config loads quizsolver settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quizsolver/internal/browser"
	"quizsolver/internal/logging"
	"quizsolver/internal/page"
	"quizsolver/internal/scorer"
	"quizsolver/internal/solver"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = ".quizsolver.yaml"

// Transport names.
const (
	TransportPage = "page" // fetch from inside the quiz tab
	TransportHTTP = "http" // net/http with copied or configured cookies
)

// ValidTransports lists the supported submission transports.
var ValidTransports = []string{TransportPage, TransportHTTP}

// Config holds all quizsolver configuration.
type Config struct {
	Browser   browser.Config `yaml:"browser"`
	Selectors page.Selectors `yaml:"selectors"`
	Scorer    ScorerConfig   `yaml:"scorer"`
	Engine    EngineConfig   `yaml:"engine"`
	History   HistoryConfig  `yaml:"history"`
	Logging   logging.Config `yaml:"logging"`
}

// ScorerConfig configures submission.
type ScorerConfig struct {
	Transport string `yaml:"transport"` // page, http
	Endpoint  string `yaml:"endpoint"`  // resolved against the page URL
	Cookie    string `yaml:"cookie"`    // raw Cookie header for the http transport
	UserAgent string `yaml:"user_agent"`
}

// EngineConfig configures the trial loop.
type EngineConfig struct {
	Mode       string `yaml:"mode"`        // batch, sequential
	TrialDelay string `yaml:"trial_delay"` // pause between rounds, e.g. "500ms"
}

// HistoryConfig configures the run ledger.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser:   browser.DefaultConfig(),
		Selectors: page.DefaultSelectors(),
		Scorer: ScorerConfig{
			Transport: TransportPage,
			Endpoint:  scorer.DefaultEndpoint,
		},
		Engine: EngineConfig{
			Mode:       solver.Batch.String(),
			TrialDelay: "0s",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: ".quizsolver/history.db",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Selectors = cfg.Selectors.WithDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("QUIZSOLVER_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if cookie := os.Getenv("QUIZSOLVER_COOKIE"); cookie != "" {
		c.Scorer.Cookie = cookie
	}
	if path := os.Getenv("QUIZSOLVER_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
	}
	if level := os.Getenv("QUIZSOLVER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetTrialDelay returns the pause between rounds. Unparseable or negative
// values mean no pause.
func (c *Config) GetTrialDelay() time.Duration {
	d, err := time.ParseDuration(c.Engine.TrialDelay)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetMode returns the engine mode, falling back to batch.
func (c *Config) GetMode() solver.Mode {
	m, err := solver.ParseMode(c.Engine.Mode)
	if err != nil {
		return solver.Batch
	}
	return m
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validTransport := false
	for _, t := range ValidTransports {
		if strings.EqualFold(c.Scorer.Transport, t) {
			validTransport = true
			break
		}
	}
	if !validTransport {
		return fmt.Errorf("invalid scorer transport: %s (valid: %v)", c.Scorer.Transport, ValidTransports)
	}

	if c.Engine.Mode != "" {
		if _, err := solver.ParseMode(c.Engine.Mode); err != nil {
			return fmt.Errorf("invalid engine mode: %w", err)
		}
	}

	if c.Engine.TrialDelay != "" {
		if _, err := time.ParseDuration(c.Engine.TrialDelay); err != nil {
			return fmt.Errorf("invalid engine trial_delay %q: %w", c.Engine.TrialDelay, err)
		}
	}

	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("history enabled but database_path is empty")
	}

	return nil
}
