package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names for database and probe configuration
const (
	EnvPostgresHost     = "PSIHOTIPS_POSTGRES_HOST"
	EnvPostgresPort     = "PSIHOTIPS_POSTGRES_PORT"
	EnvPostgresDatabase = "PSIHOTIPS_POSTGRES_DATABASE"
	EnvPostgresUser     = "PSIHOTIPS_POSTGRES_USER"
	EnvPostgresPassword = "PSIHOTIPS_POSTGRES_PASSWORD"
	EnvProbeMaxAttempts = "PSIHOTIPS_PROBE_MAX_ATTEMPTS"
	EnvProbeInterval    = "PSIHOTIPS_PROBE_INTERVAL"
	EnvSchemaFile       = "PSIHOTIPS_SCHEMA_FILE"
)

// Default database connection settings. The host default is the postgres
// service name from the bot's docker-compose file. There is no default
// password: credentials must be supplied explicitly.
const (
	DefaultPostgresHost     = "postgres"
	DefaultPostgresPort     = 5432
	DefaultPostgresDatabase = "botdb"
	DefaultPostgresUser     = "botuser"

	DefaultProbeMaxAttempts = 30
	DefaultProbeInterval    = 2 * time.Second
)

type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Probe     ProbeConfig     `yaml:"probe"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// PostgresConfig identifies the database the gate waits for and repairs.
// Immutable for the process lifetime once loaded.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ProbeConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// UnmarshalYAML accepts the interval as a duration string ("2s", "500ms").
func (p *ProbeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Interval    string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	if raw.Interval != "" {
		interval, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("invalid probe interval %q: %w", raw.Interval, err)
		}
		p.Interval = interval
	}
	return nil
}

type BootstrapConfig struct {
	// SchemaFile overrides the embedded declared schema on the
	// empty-database path. Optional.
	SchemaFile string `yaml:"schema_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:     DefaultPostgresHost,
			Port:     DefaultPostgresPort,
			Database: DefaultPostgresDatabase,
			User:     DefaultPostgresUser,
		},
		Probe: ProbeConfig{
			MaxAttempts: DefaultProbeMaxAttempts,
			Interval:    DefaultProbeInterval,
		},
	}
}

// Load reads the optional YAML configuration file and overlays environment
// variables on top of it. A missing file is not an error: defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// Re-apply defaults for anything the file zeroed out
	if config.Postgres.Host == "" {
		config.Postgres.Host = DefaultPostgresHost
	}
	if config.Postgres.Port == 0 {
		config.Postgres.Port = DefaultPostgresPort
	}
	if config.Probe.MaxAttempts == 0 {
		config.Probe.MaxAttempts = DefaultProbeMaxAttempts
	}
	if config.Probe.Interval == 0 {
		config.Probe.Interval = DefaultProbeInterval
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPostgresHost); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv(EnvPostgresPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvPostgresPort, v, err)
		}
		c.Postgres.Port = port
	}
	if v := os.Getenv(EnvPostgresDatabase); v != "" {
		c.Postgres.Database = v
	}
	if v := os.Getenv(EnvPostgresUser); v != "" {
		c.Postgres.User = v
	}
	if v := os.Getenv(EnvPostgresPassword); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv(EnvProbeMaxAttempts); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvProbeMaxAttempts, v, err)
		}
		c.Probe.MaxAttempts = attempts
	}
	if v := os.Getenv(EnvProbeInterval); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvProbeInterval, v, err)
		}
		c.Probe.Interval = interval
	}
	if v := os.Getenv(EnvSchemaFile); v != "" {
		c.Bootstrap.SchemaFile = v
	}
	return nil
}

// Validate reports every missing required connection field. It runs before
// any I/O so that misconfiguration never consumes retry budget.
func (p PostgresConfig) Validate() error {
	var missing []string
	if p.Host == "" {
		missing = append(missing, "host")
	}
	if p.Database == "" {
		missing = append(missing, "database")
	}
	if p.User == "" {
		missing = append(missing, "user")
	}
	if p.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required database configuration: %s", strings.Join(missing, ", "))
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("invalid database port %d", p.Port)
	}
	return nil
}

// Validate checks the retry policy invariants.
func (p ProbeConfig) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("probe max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", p.Interval)
	}
	return nil
}
