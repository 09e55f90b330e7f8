// Package config loads bridge configuration from an optional YAML file with
// environment-variable fallback. Resolution order for every field is
// explicit value > environment > default; required fields with no value at
// use time fail at the call site, never silently.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the corresponding field is unset.
const (
	EnvExecutable    = "KNIME_EXEC"
	EnvServerURL     = "KNIME_SERVER_URLROOT"
	EnvServerUser    = "KNIME_SERVER_USER"
	EnvServerPass    = "KNIME_SERVER_PASS"
	EnvServerTestDir = "KNIME_SERVER_TESTDIR"
)

// Config is the complete configuration for the bridge.
type Config struct {
	Local   LocalConfig   `yaml:"local"`
	Server  ServerConfig  `yaml:"server"`
	Execute ExecuteConfig `yaml:"execute"`
	Logging LoggingConfig `yaml:"logging"`
}

// LocalConfig configures the local batch-executor transport.
type LocalConfig struct {
	// Executable is the path to the engine binary. Empty means resolve from
	// $KNIME_EXEC.
	Executable string `yaml:"executable"`
}

// ServerConfig configures the remote job transport.
type ServerConfig struct {
	// URL is the server root, e.g. "https://knime.example.org/rest".
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// TestDir is the default workflow directory for relative server paths.
	// Empty means "/Users/{user}".
	TestDir string `yaml:"test_dir"`
}

// ExecuteConfig holds execution tuning shared by both transports.
type ExecuteConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UnmarshalYAML accepts Go duration strings ("90s", "250ms") for the tuning
// fields. Absent fields keep their current values.
func (e *ExecuteConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("execute.timeout: %w", err)
		}
		e.Timeout = d
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("execute.poll_interval: %w", err)
		}
		e.PollInterval = d
	}
	return nil
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Execute: ExecuteConfig{
			Timeout:      60 * time.Second,
			PollInterval: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the optional YAML file at path (empty path skips the file) and
// then fills still-empty fields from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv fills empty fields from the environment. Explicit values always
// win over environment ones.
func (c *Config) ApplyEnv() {
	fillEnv(&c.Local.Executable, EnvExecutable)
	fillEnv(&c.Server.URL, EnvServerURL)
	fillEnv(&c.Server.User, EnvServerUser)
	fillEnv(&c.Server.Password, EnvServerPass)
	fillEnv(&c.Server.TestDir, EnvServerTestDir)
}

func fillEnv(field *string, key string) {
	if *field == "" {
		*field = os.Getenv(key)
	}
}

// ResolveTestDir returns the server workflow directory default, deriving
// "/Users/{user}" when none is configured.
func (c *Config) ResolveTestDir() string {
	if c.Server.TestDir != "" {
		return c.Server.TestDir
	}
	return "/Users/" + c.Server.User
}

// HasLocal reports whether a local executable is configured.
func (c *Config) HasLocal() bool { return c.Local.Executable != "" }

// HasServer reports whether the full server credential triple is configured.
func (c *Config) HasServer() bool {
	return c.Server.URL != "" && c.Server.User != "" && c.Server.Password != ""
}
