// Package config loads server and client settings from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Client   ClientConfig `yaml:"client"`
	NATS     NATSConfig   `yaml:"nats"`
	LogLevel string       `yaml:"log_level"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	StaticDir      string        `yaml:"static_dir"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

type ClientConfig struct {
	PublishInterval   time.Duration `yaml:"publish_interval"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`
	Interpolation     float64       `yaml:"interpolation"`
}

// NATSConfig configures the optional event tap. An empty URL disables it.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "3000",
			StaticDir:      "public",
			AllowedOrigins: []string{"*"},
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			PingInterval:   25 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
		},
		Client: ClientConfig{
			PublishInterval:   10 * time.Millisecond,
			ProbeInterval:     2 * time.Second,
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
			ReconnectDelayMax: 5 * time.Second,
			Interpolation:     0.7,
		},
		NATS: NATSConfig{
			SubjectPrefix: "arena.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used. Callers load .env beforehand.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.StaticDir = getEnv("STATIC_DIR", cfg.Server.StaticDir)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	sendBuffer, envErr := getEnvAsInt("SEND_BUFFER", cfg.Server.SendBuffer)
	cfg.Server.SendBuffer = sendBuffer
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := errors.Join(envErr, cfg.Validate()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	positive("server.write_timeout", c.Server.WriteTimeout)
	positive("server.read_timeout", c.Server.ReadTimeout)
	positive("server.ping_interval", c.Server.PingInterval)
	positive("client.publish_interval", c.Client.PublishInterval)
	positive("client.probe_interval", c.Client.ProbeInterval)
	positive("client.reconnect_delay", c.Client.ReconnectDelay)

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port must be set"))
	}
	if c.Server.PingInterval >= c.Server.ReadTimeout {
		errs = append(errs, fmt.Errorf("server.ping_interval (%s) must be shorter than server.read_timeout (%s)", c.Server.PingInterval, c.Server.ReadTimeout))
	}
	if c.Server.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_size must be positive, got %d", c.Server.MaxMessageSize))
	}
	// A joining session is sent three messages before its write pump starts.
	if c.Server.SendBuffer < 4 {
		errs = append(errs, fmt.Errorf("server.send_buffer must be at least 4, got %d", c.Server.SendBuffer))
	}
	if c.Client.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("client.reconnect_attempts must not be negative, got %d", c.Client.ReconnectAttempts))
	}
	if c.Client.ReconnectDelayMax < c.Client.ReconnectDelay {
		errs = append(errs, errors.New("client.reconnect_delay_max must not be below client.reconnect_delay"))
	}
	if c.Client.Interpolation <= 0 || c.Client.Interpolation >= 1 {
		errs = append(errs, fmt.Errorf("client.interpolation must be in (0,1), got %v", c.Client.Interpolation))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return intValue, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
