package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configurable value of the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Sinks   SinksConfig   `mapstructure:"sinks"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig sizes the in-memory history. Window is how many recent entries
// a query returns by default.
type StoreConfig struct {
	Capacity int `mapstructure:"capacity"`
	Window   int `mapstructure:"window"`
}

type SinksConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig selects an optional write-only archive: "" (off), "postgres"
// or "sqlite". For sqlite the DSN is a file path.
type ArchiveConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.capacity", 10000)
	v.SetDefault("store.window", 300)

	v.SetDefault("sinks.queue_size", 256)
	v.SetDefault("sinks.timeout", 2*time.Second)

	v.SetDefault("archive.driver", "")
	v.SetDefault("archive.dsn", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "telemetry:entries")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "health-telemetry")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "sensors/+/telemetry")
	v.SetDefault("mqtt.qos", 1)
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables, with "." replaced by "_" (e.g. STORE_CAPACITY)
//  2. ./configs/config.yaml, if it exists
//  3. built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if c.Store.Capacity < 1 {
		return fmt.Errorf("store.capacity must be at least 1, got %d", c.Store.Capacity)
	}
	if c.Store.Window < 0 {
		return fmt.Errorf("store.window must not be negative, got %d", c.Store.Window)
	}
	if c.Sinks.QueueSize < 1 {
		return fmt.Errorf("sinks.queue_size must be at least 1, got %d", c.Sinks.QueueSize)
	}
	switch c.Archive.Driver {
	case "":
	case "postgres", "sqlite":
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required for driver %q", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("archive.driver must be postgres, sqlite or empty, got %q", c.Archive.Driver)
	}
	if c.Redis.Enabled && c.Redis.Stream == "" {
		return errors.New("redis.stream must not be empty when redis is enabled")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	return nil
}
