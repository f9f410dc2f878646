package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sysutils-mcp/internal/jsonrpc"
)

// Environment variables read by LoadConfig.
const (
	EnvConfigFile  = "SYSUTILS_MCP_CONFIG"
	EnvLogLevel    = "SYSUTILS_MCP_LOG_LEVEL"
	EnvLogFormat   = "SYSUTILS_MCP_LOG_FORMAT"
	EnvAdminAddr   = "SYSUTILS_MCP_ADMIN_ADDR"
	EnvMaxInFlight = "SYSUTILS_MCP_MAX_IN_FLIGHT"
)

const (
	DefaultName         = "sysutils-mcp"
	DefaultInstructions = "A system utilities MCP that provides detailed system information."
)

// Version is overridden at link time.
var Version = "0.1.0"

// Config contains the server configuration.
type Config struct {
	// Name and Version are announced to clients in serverInfo.
	Name         string `yaml:"name" validate:"required"`
	Version      string `yaml:"version" validate:"required"`
	Instructions string `yaml:"instructions"`

	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn error disabled"`
	LogFormat string `yaml:"log_format" validate:"oneof=json console"`

	// MaxInFlight bounds concurrent tool calls on the connection.
	MaxInFlight     int           `yaml:"max_in_flight" validate:"min=1,max=1024"`
	MaxMessageBytes int           `yaml:"max_message_bytes" validate:"min=1024"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace" validate:"gte=0"`

	// AllowUnknownArguments relaxes the generated schemas to accept extra fields.
	AllowUnknownArguments bool `yaml:"allow_unknown_arguments"`

	// AdminAddr enables the admin HTTP surface when set.
	AdminAddr       string        `yaml:"admin_addr" validate:"omitempty,hostname_port"`
	MetricsInterval time.Duration `yaml:"metrics_interval" validate:"gt=0"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Name:            DefaultName,
		Version:         Version,
		Instructions:    DefaultInstructions,
		LogLevel:        "info",
		LogFormat:       "json",
		MaxInFlight:     8,
		MaxMessageBytes: jsonrpc.DefaultMaxMessageBytes,
		ShutdownGrace:   5 * time.Second,
		MetricsInterval: 15 * time.Second,
	}
}

// LoadConfig starts from DefaultConfig, overlays the YAML file (if any) and
// then the environment, and validates the result. An empty file falls back
// to SYSUTILS_MCP_CONFIG.
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig()

	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", file)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", file)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvAdminAddr); ok {
		c.AdminAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMaxInFlight); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s", EnvMaxInFlight)
		}
		c.MaxInFlight = n
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
