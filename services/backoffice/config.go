package backoffice

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fundcore/config"
)

// Duration wraps time.Duration so YAML files can say "15s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML accepts Go duration strings or integer seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		d.Duration = parsed
		return nil
	}
	var seconds int64
	if err := node.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	d.Duration = time.Duration(seconds) * time.Second
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config captures the runtime settings of the backoffice API.
type Config struct {
	ListenAddress      string   `yaml:"listen"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateBurst          int      `yaml:"rate_burst"`
	ReadHeaderTimeout  Duration `yaml:"read_header_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	ShutdownTimeout    Duration `yaml:"shutdown_timeout"`
	// StreamBacklog caps how many stored audit records a new stream
	// subscriber replays before switching to live records.
	StreamBacklog int `yaml:"stream_backlog"`
	// StreamBuffer is the per-subscriber live queue.
	StreamBuffer int `yaml:"stream_buffer"`
}

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
	defaultStreamBacklog     = 500
	defaultStreamBuffer      = 64
)

// FromLedgerConfig seeds the service settings from the node's Backoffice
// section and, when it names one, overlays the YAML file on top.
func FromLedgerConfig(section config.Backoffice) (Config, error) {
	cfg := Config{
		ListenAddress:      section.ListenAddress,
		RateLimitPerSecond: section.RateLimitPerSecond,
		RateBurst:          section.RateBurst,
	}
	cfg.applyDefaults()
	if strings.TrimSpace(section.ConfigFile) == "" {
		return cfg, nil
	}
	return LoadConfig(section.ConfigFile, cfg)
}

// LoadConfig decodes the YAML file at path over base.
func LoadConfig(path string, base Config) (Config, error) {
	cfg := base
	file, err := os.Open(path)
	if err != nil {
		return base, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return base, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8088"
	}
	if c.ReadHeaderTimeout.Duration <= 0 {
		c.ReadHeaderTimeout.Duration = defaultReadHeaderTimeout
	}
	if c.WriteTimeout.Duration <= 0 {
		c.WriteTimeout.Duration = defaultWriteTimeout
	}
	if c.ShutdownTimeout.Duration <= 0 {
		c.ShutdownTimeout.Duration = defaultShutdownTimeout
	}
	if c.StreamBacklog <= 0 {
		c.StreamBacklog = defaultStreamBacklog
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = defaultStreamBuffer
	}
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate_limit_per_second must not be negative")
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate_burst must not be negative")
	}
	return nil
}
