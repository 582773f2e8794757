package blkio

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/go-blkio/internal/logging"
)

// LogConfig selects the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the registry-level configuration: which backends are enabled,
// the options every open starts from, and logging.
type Config struct {
	Backends map[string]bool `yaml:"backends"`
	Defaults Opts            `yaml:"defaults"`
	Logging  LogConfig       `yaml:"logging"`
}

// DefaultConfig enables every registered backend
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultOpts(),
		Logging:  LogConfig{Level: "warn", Format: "text"},
	}
}

// ParseConfig decodes YAML configuration on top of DefaultConfig
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewErrorf("config.parse", ErrCodeInvalidArgument, "%v", err)
	}
	defaults, err := mergeOpts(&cfg.Defaults, DefaultOpts())
	if err != nil {
		return nil, err
	}
	cfg.Defaults = defaults
	return cfg, nil
}

// LoadConfig reads a YAML configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError("config.load", err)
	}
	return ParseConfig(data)
}

// Enabled reports whether the named backend is enabled. Backends missing
// from the map keep their registered default.
func (c *Config) Enabled(name string, def bool) bool {
	if c == nil || c.Backends == nil {
		return def
	}
	if v, ok := c.Backends[name]; ok {
		return v
	}
	return def
}

// Logger builds the logger described by the logging section
func (c *Config) Logger() *logging.Logger {
	lc := logging.DefaultConfig()
	if c.Logging.Level != "" {
		lc.Level = logging.ParseLevel(c.Logging.Level)
	}
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	return logging.NewLogger(lc)
}
