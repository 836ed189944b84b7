// YAML config loader with CUE validation and environment overrides
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Timestamp sources for emitted telemetry.
const (
	TimestampWall    = "wall"
	TimestampVirtual = "virtual"
)

// TransportConfig selects and tunes the message bus telemetry is published to.
type TransportConfig struct {
	Kind           string        `yaml:"kind"`
	Addr           string        `yaml:"addr"`
	Topic          string        `yaml:"topic"`
	Capacity       int           `yaml:"capacity"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	ConsumerGroup  string        `yaml:"consumer_group"`
	QoS            byte          `yaml:"qos"`
}

// ServerConfig configures the ingestion endpoint.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SimulationConfig is the root configuration.
type SimulationConfig struct {
	AgentCount      int             `yaml:"agent_count"`
	HorizonSeconds  int64           `yaml:"horizon_seconds"`
	Seed            int64           `yaml:"seed"`
	TickInterval    time.Duration   `yaml:"tick_interval"`
	TimestampSource string          `yaml:"timestamp_source"`
	Transport       TransportConfig `yaml:"transport"`
	Server          ServerConfig    `yaml:"server"`
	Log             LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *SimulationConfig {
	return &SimulationConfig{
		AgentCount:      100,
		HorizonSeconds:  1000,
		TimestampSource: TimestampWall,
		Transport: TransportConfig{
			Kind:           "loopback",
			Addr:           "localhost:6379",
			Topic:          "soldier_telemetry",
			Capacity:       1024,
			PublishTimeout: 50 * time.Millisecond,
			ConsumerGroup:  "watchtower",
			QoS:            1,
		},
		Server: ServerConfig{
			Listen:       ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at configPath on top of Default, validates it with
// the CUE schema (embedded unless cueSchemaPath is set) and applies environment
// overrides. An empty configPath yields defaults plus environment.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	cfg := Default()
	if configPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Each variable is
// independent of the others; unset or empty variables leave the field alone.
func (c *SimulationConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TRANSPORT_KIND"); v != "" {
		c.Transport.Kind = v
	}
	if v := getenv("TRANSPORT_ADDR"); v != "" {
		c.Transport.Addr = v
	}
	if v := getenv("TOPIC"); v != "" {
		c.Transport.Topic = v
	}
	if v := getenv("AGENT_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_COUNT: %w", err)
		}
		c.AgentCount = n
	}
	if v := getenv("HORIZON_SECONDS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HORIZON_SECONDS: %w", err)
		}
		c.HorizonSeconds = n
	}
	if v := getenv("SIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SIM_SEED: %w", err)
		}
		c.Seed = n
	}
	if v := getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		c.TickInterval = d
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.Server.Listen = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks semantic constraints that survive environment overrides.
func (c *SimulationConfig) Validate() error {
	if c.AgentCount < 1 {
		return fmt.Errorf("agent_count must be >= 1, got %d", c.AgentCount)
	}
	if c.HorizonSeconds < 1 {
		return fmt.Errorf("horizon_seconds must be >= 1, got %d", c.HorizonSeconds)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative")
	}
	switch c.TimestampSource {
	case TimestampWall, TimestampVirtual:
	default:
		return fmt.Errorf("unknown timestamp_source %q", c.TimestampSource)
	}
	switch c.Transport.Kind {
	case "loopback", "channel", "redis", "mqtt", "file":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Transport.Topic == "" {
		return fmt.Errorf("transport topic must not be empty")
	}
	if c.Transport.Capacity < 0 {
		return fmt.Errorf("transport capacity must not be negative")
	}
	return nil
}
