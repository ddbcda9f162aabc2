// Package config defines minerva's configuration: rulesets, engine,
// decision cache, audit, and telemetry. Configuration loads from a YAML
// file with MINERVA_* environment overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Rulesets  RulesetsConfig  `yaml:"rulesets"`
	Engine    EngineConfig    `yaml:"engine"`
	Decisions DecisionsConfig `yaml:"decisions"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// RulesetsConfig configures ruleset storage and the file source.
type RulesetsConfig struct {
	// StorePath is the SQLite database path; empty selects the
	// in-memory store.
	StorePath string `yaml:"storePath"`

	// SourceDir is the directory of YAML ruleset definition files;
	// empty disables the file source.
	SourceDir string `yaml:"sourceDir"`

	// Watch re-syncs SourceDir when files change.
	Watch bool `yaml:"watch"`

	// DebounceInterval bounds watcher reload frequency.
	DebounceInterval time.Duration `yaml:"debounceInterval"`

	// AutoActivate activates versions loaded from SourceDir immediately.
	AutoActivate bool `yaml:"autoActivate"`
}

// EngineConfig configures evaluation.
type EngineConfig struct {
	// Executor is recorded on execution logs triggered by this process.
	Executor string `yaml:"executor"`
}

// DecisionsConfig configures the decision cache.
type DecisionsConfig struct {
	// TTL bounds how long a cached decision is reusable; 0 means no
	// expiry (version checks still apply).
	TTL time.Duration `yaml:"ttl"`

	// SweepEnabled turns on the eager eviction sweep.
	SweepEnabled bool `yaml:"sweepEnabled"`

	// SweepSchedule is a cron expression for the sweep.
	SweepSchedule string `yaml:"sweepSchedule"`
}

// AuditConfig configures audit persistence and retention.
type AuditConfig struct {
	// DBPath is the SQLite database path; empty selects the in-memory
	// store.
	DBPath string `yaml:"dbPath"`

	// DecisionRetention is how long persisted decisions are kept.
	DecisionRetention time.Duration `yaml:"decisionRetention"`

	// RetentionSchedule is a cron expression for the pruner.
	RetentionSchedule string `yaml:"retentionSchedule"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `yaml:"output"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// ListenAddr serves /metrics when set (e.g. ":9464").
	ListenAddr string `yaml:"listenAddr"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
	Insecure    bool    `yaml:"insecure"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Rulesets: RulesetsConfig{
			DebounceInterval: 250 * time.Millisecond,
			AutoActivate:     true,
		},
		Engine: EngineConfig{
			Executor: "system",
		},
		Decisions: DecisionsConfig{
			TTL:           time.Hour,
			SweepSchedule: "*/10 * * * *",
		},
		Audit: AuditConfig{
			DecisionRetention: 90 * 24 * time.Hour,
			RetentionSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Namespace: "mercator",
			Subsystem: "minerva",
		},
		Tracing: TracingConfig{
			ServiceName: "minerva",
			SampleRatio: 1.0,
			Insecure:    true,
		},
	}
}

// Load reads a YAML config file, merges it over defaults, and applies
// environment overrides. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from MINERVA_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MINERVA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MINERVA_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("MINERVA_RULESET_DB"); v != "" {
		c.Rulesets.StorePath = v
	}
	if v := os.Getenv("MINERVA_RULESET_DIR"); v != "" {
		c.Rulesets.SourceDir = v
	}
	if v := os.Getenv("MINERVA_AUDIT_DB"); v != "" {
		c.Audit.DBPath = v
	}
	if v := os.Getenv("MINERVA_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv("MINERVA_TRACING_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}
	if v := os.Getenv("MINERVA_DECISION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Decisions.TTL = d
		}
	}
	if v := os.Getenv("MINERVA_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Rulesets.Watch = b
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	if c.Decisions.TTL < 0 {
		return fmt.Errorf("decision ttl cannot be negative")
	}
	if c.Audit.DecisionRetention < 0 {
		return fmt.Errorf("decision retention cannot be negative")
	}
	if c.Rulesets.Watch && c.Rulesets.SourceDir == "" {
		return fmt.Errorf("rulesets.watch requires rulesets.sourceDir")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.enabled requires tracing.endpoint")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sampleRatio must be in [0,1]")
	}
	return nil
}
