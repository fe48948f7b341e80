// ABOUTME: Configuration loading and parsing for flowkeeper
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete flowkeeper configuration
type Config struct {
	Flows   FlowsConfig   `yaml:"flows" toml:"flows"`
	Dedupe  DedupeConfig  `yaml:"dedupe" toml:"dedupe"`
	Matrix  MatrixConfig  `yaml:"matrix" toml:"matrix"`
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// FlowsConfig holds orchestrator timing configuration
type FlowsConfig struct {
	DefaultTimeout time.Duration `yaml:"-" toml:"-"`
	SweepInterval  time.Duration `yaml:"-" toml:"-"`
	GatewayTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DefaultTimeoutRaw string `yaml:"default_timeout" toml:"default_timeout"`
	SweepIntervalRaw  string `yaml:"sweep_interval" toml:"sweep_interval"`
	GatewayTimeoutRaw string `yaml:"gateway_timeout" toml:"gateway_timeout"`

	// SendTimeoutNotice posts a message into the conversation when a flow times out
	SendTimeoutNotice bool `yaml:"send_timeout_notice" toml:"send_timeout_notice"`
}

// DedupeConfig holds redelivery suppression configuration
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	TTL     time.Duration `yaml:"-" toml:"-"`
	TTLRaw  string        `yaml:"ttl" toml:"ttl"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`
}

// MatrixConfig holds Matrix homeserver credentials.
// Either access_token (with user_id) or username and password are required.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	DeviceID    string `yaml:"device_id" toml:"device_id"`
	Username    string `yaml:"username" toml:"username"`
	Password    string `yaml:"password" toml:"password"`
	RecoveryKey string `yaml:"recovery_key" toml:"recovery_key"`
	DataDir     string `yaml:"data_dir" toml:"data_dir"`
}

// BridgeConfig holds Matrix room handling configuration
type BridgeConfig struct {
	AllowedRooms    []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix   string   `yaml:"command_prefix" toml:"command_prefix"`
	TypingIndicator bool     `yaml:"typing_indicator" toml:"typing_indicator"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used for any value a file leaves out.
func Default() *Config {
	return &Config{
		Flows: FlowsConfig{
			DefaultTimeoutRaw: "1h",
			SweepIntervalRaw:  "60s",
			GatewayTimeoutRaw: "10s",
			SendTimeoutNotice: true,
		},
		Dedupe: DedupeConfig{
			Enabled: true,
			TTLRaw:  "10m",
			MaxSize: 10000,
		},
		Bridge: BridgeConfig{
			TypingIndicator: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location.
// Priority: FLOWKEEPER_CONFIG env var > XDG_CONFIG_HOME/flowkeeper/config.yaml > ~/.config/flowkeeper/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv("FLOWKEEPER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "flowkeeper", "config.yaml")
}

// DataPath returns the directory for persistent state such as the crypto store.
// Priority: XDG_DATA_HOME/flowkeeper > ~/.local/share/flowkeeper
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "flowkeeper")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	return Parse(data, format)
}

// Parse decodes raw configuration in the given format ("yaml" or "toml") on
// top of Default, then parses durations and validates.
func Parse(data []byte, format string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// envPattern matches ${VAR_NAME}
var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the settings every command needs. Matrix credentials are
// checked separately by MatrixConfig.Validate since replay runs without them.
func (c *Config) Validate() error {
	if c.Flows.DefaultTimeout <= 0 {
		return fmt.Errorf("flows.default_timeout must be positive")
	}
	if c.Flows.SweepInterval <= 0 {
		return fmt.Errorf("flows.sweep_interval must be positive")
	}
	if c.Flows.GatewayTimeout <= 0 {
		return fmt.Errorf("flows.gateway_timeout must be positive")
	}

	if c.Dedupe.Enabled {
		if c.Dedupe.TTL <= 0 {
			return fmt.Errorf("dedupe.ttl must be positive when dedupe is enabled")
		}
		if c.Dedupe.MaxSize <= 0 {
			return fmt.Errorf("dedupe.max_size must be positive when dedupe is enabled")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return fmt.Errorf("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %s", strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %s", strings.Join(logFormats, ", "))
	}

	return nil
}

// Validate checks that the Matrix section can be used to connect.
func (m *MatrixConfig) Validate() error {
	if m.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(m.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}

	switch {
	case m.AccessToken != "":
		if m.UserID == "" {
			return fmt.Errorf("matrix.user_id is required with matrix.access_token")
		}
	case m.Username != "" && m.Password != "":
	default:
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"flows.default_timeout", cfg.Flows.DefaultTimeoutRaw, &cfg.Flows.DefaultTimeout},
		{"flows.sweep_interval", cfg.Flows.SweepIntervalRaw, &cfg.Flows.SweepInterval},
		{"flows.gateway_timeout", cfg.Flows.GatewayTimeoutRaw, &cfg.Flows.GatewayTimeout},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
