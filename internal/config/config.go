package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for the cardinality estimator.
type Config struct {
	Counters  []CounterConfig `yaml:"counters"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Frequency FrequencyConfig `yaml:"frequency"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	NATS      NATSConfig      `yaml:"nats"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Report    ReportConfig    `yaml:"report"`
}

// CounterConfig binds a named sketch to a dotted JSON field path.
type CounterConfig struct {
	Name      string `yaml:"name"`
	Precision int    `yaml:"precision"`
	Field     string `yaml:"field"`
}

type IngestConfig struct {
	// ReadBufferSize sizes the buffered reader in front of the decompressor.
	ReadBufferSize int `yaml:"read_buffer_size"`
	// MaxLineBytes caps a single event line; longer lines are skipped.
	MaxLineBytes int `yaml:"max_line_bytes"`
}

// FrequencyConfig enables the Count-Min table for one event field.
type FrequencyConfig struct {
	Field string `yaml:"field"`
	Width int    `yaml:"width"`
	Depth int    `yaml:"depth"`
}

type GuardrailConfig struct {
	MaxFieldCount int `yaml:"max_field_count"`
	MaxDepth      int `yaml:"max_depth"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Enabled reports whether a database host was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ReportConfig struct {
	Interval string `yaml:"interval"`
}

// Default returns the built-in setup: users and repositories at p=14,
// event types in a small Count-Min table.
func Default() *Config {
	return &Config{
		Counters: []CounterConfig{
			{Name: "daily-users", Precision: 14, Field: "actor.login"},
			{Name: "weekly-repos", Precision: 14, Field: "repo.name"},
		},
		Ingest: IngestConfig{ReadBufferSize: 64 * 1024, MaxLineBytes: 1 << 20},
		Frequency: FrequencyConfig{
			Field: "type",
			Width: 2048,
			Depth: 4,
		},
		NATS:     NATSConfig{Subject: "events.github"},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Report:   ReportConfig{Interval: "30s"},
	}
}

// Load reads the configuration from the specified file path. Sections left
// out of the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	defaultCounters := cfg.Counters
	cfg.Counters = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if len(cfg.Counters) == 0 {
		cfg.Counters = defaultCounters
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts of the configuration the sketches do not check
// themselves. Precision is validated when the registry is built.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Counters))
	for _, counter := range c.Counters {
		if counter.Name == "" {
			return errors.New("counter with empty name")
		}
		if seen[counter.Name] {
			return fmt.Errorf("duplicate counter %q", counter.Name)
		}
		seen[counter.Name] = true
	}

	if _, err := c.ReportInterval(); err != nil {
		return err
	}
	if c.Ingest.ReadBufferSize < 0 {
		return fmt.Errorf("negative read buffer size: %d", c.Ingest.ReadBufferSize)
	}
	if c.Ingest.MaxLineBytes < 0 {
		return fmt.Errorf("negative max line bytes: %d", c.Ingest.MaxLineBytes)
	}
	return nil
}

func (c *Config) ReportInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Report.Interval)
	if err != nil {
		return 0, fmt.Errorf("parsing report interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("report interval must be positive, got %s", d)
	}
	return d, nil
}
