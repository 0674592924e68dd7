// ABOUTME: Configuration loading and parsing for the orchestra gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sessions SessionsConfig `yaml:"sessions"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Policy   PolicyConfig   `yaml:"policy"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WorkerConfig locates the external orchestrator worker executable
type WorkerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// SessionsConfig holds session lifecycle timing configuration
type SessionsConfig struct {
	ReadinessTimeout time.Duration `yaml:"-"`
	IdleTTL          time.Duration `yaml:"-"`
	ReapInterval     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReadinessTimeoutRaw string `yaml:"readiness_timeout"`
	IdleTTLRaw          string `yaml:"idle_ttl"`
	ReapIntervalRaw     string `yaml:"reap_interval"`
}

// ArchiveConfig holds event archive configuration
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PolicyConfig holds the optional policy rules override
type PolicyConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves a value unset.
const (
	DefaultReadinessTimeout = 5 * time.Second
	DefaultIdleTTL          = 30 * time.Minute
	DefaultReapInterval     = time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. An unset variable expands to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Worker.Command == "" {
		return fmt.Errorf("worker.command is required")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.ReadinessTimeoutRaw != "" {
		cfg.Sessions.ReadinessTimeout, err = time.ParseDuration(cfg.Sessions.ReadinessTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing readiness_timeout %q: %w", cfg.Sessions.ReadinessTimeoutRaw, err)
		}
	}

	if cfg.Sessions.IdleTTLRaw != "" {
		cfg.Sessions.IdleTTL, err = time.ParseDuration(cfg.Sessions.IdleTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_ttl %q: %w", cfg.Sessions.IdleTTLRaw, err)
		}
	}

	if cfg.Sessions.ReapIntervalRaw != "" {
		cfg.Sessions.ReapInterval, err = time.ParseDuration(cfg.Sessions.ReapIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reap_interval %q: %w", cfg.Sessions.ReapIntervalRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sessions.ReadinessTimeout == 0 {
		cfg.Sessions.ReadinessTimeout = DefaultReadinessTimeout
	}
	if cfg.Sessions.IdleTTL == 0 {
		cfg.Sessions.IdleTTL = DefaultIdleTTL
	}
	if cfg.Sessions.ReapInterval == 0 {
		cfg.Sessions.ReapInterval = DefaultReapInterval
	}
}
