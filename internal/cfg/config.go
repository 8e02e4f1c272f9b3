// Package cfg loads the mcpsentry configuration file: concurrency and
// timeout knobs for scans, storage paths, default rules, and proxy
// defaults.
package cfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// Config is the top-level mcpsentry configuration.
type Config struct {
	Scan    ScanConfig    `yaml:"scan"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Storage StorageConfig `yaml:"storage"`
	Rules   []RuleConfig  `yaml:"rules,omitempty"`
}

// ScanConfig controls the scan orchestrator.
type ScanConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"-"`
}

// scanConfigYAML mirrors ScanConfig for decoding. time.Duration has no
// UnmarshalText, so yaml.v3 would otherwise demand a raw nanosecond
// integer in the config file instead of a duration string like "30s".
type scanConfigYAML struct {
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
}

func (s *ScanConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw scanConfigYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Concurrency = raw.Concurrency
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing scan.timeout %q: %w", raw.Timeout, err)
		}
		s.Timeout = d
	}
	return nil
}

func (s ScanConfig) MarshalYAML() (interface{}, error) {
	return scanConfigYAML{Concurrency: s.Concurrency, Timeout: s.Timeout.String()}, nil
}

// ProxyConfig controls the interception proxy.
type ProxyConfig struct {
	MetricsBind string `yaml:"metrics_bind,omitempty"` // empty disables the /metrics listener
}

// StorageConfig locates the audit database and description-drift snapshots.
type StorageConfig struct {
	AuditDBPath string `yaml:"audit_db_path"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// RuleConfig is the on-disk (YAML) shape of a model.Rule; rules.go and
// audit.Store both deal in model.Rule, this is just the config-file mirror
// loaded at startup and handed to the rule engine.
type RuleConfig struct {
	ID            string `yaml:"id"`
	Kind          string `yaml:"kind"` // "block" or "rate_limit"
	Pattern       string `yaml:"pattern"`
	Scope         string `yaml:"scope,omitempty"` // server name, or "" for all servers
	Priority      int    `yaml:"priority"`
	Reason        string `yaml:"reason,omitempty"`
	MaxCalls      int    `yaml:"max_calls,omitempty"`
	WindowSeconds int    `yaml:"window_seconds,omitempty"`
}

// RuleConfigFromModel converts a rule engine model.Rule into its YAML
// config-file mirror, for `rules export`.
func RuleConfigFromModel(r model.Rule) RuleConfig {
	return RuleConfig{
		ID:            r.ID,
		Kind:          string(r.Kind),
		Pattern:       r.Pattern,
		Scope:         r.Scope,
		Priority:      r.Priority,
		Reason:        r.Reason,
		MaxCalls:      r.MaxCalls,
		WindowSeconds: r.WindowSeconds,
	}
}

// ToModel converts a config-file rule into the rule engine's model.Rule.
func (r RuleConfig) ToModel() model.Rule {
	return model.Rule{
		ID:            r.ID,
		Kind:          model.RuleKind(r.Kind),
		Pattern:       r.Pattern,
		Scope:         r.Scope,
		Priority:      r.Priority,
		Enabled:       true,
		Reason:        r.Reason,
		MaxCalls:      r.MaxCalls,
		WindowSeconds: r.WindowSeconds,
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
		Storage: StorageConfig{
			AuditDBPath: "mcpsentry-audit.db",
			SnapshotDir: ".mcpsentry/snapshots",
		},
	}
}

// Load reads a YAML config file at path, filling unset fields from Default.
// A missing file is not an error; Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Scan.Concurrency <= 0 {
		cfg.Scan.Concurrency = 4
	}
	if cfg.Scan.Timeout <= 0 {
		cfg.Scan.Timeout = 30 * time.Second
	}
	if cfg.Storage.AuditDBPath == "" {
		cfg.Storage.AuditDBPath = "mcpsentry-audit.db"
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = ".mcpsentry/snapshots"
	}
	return cfg, nil
}
