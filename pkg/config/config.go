// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the hookscope tracer.
type Config struct {
	ServiceName string       `yaml:"service_name" env:"HOOKSCOPE_SERVICE_NAME"`
	LogLevel    string       `yaml:"log_level" env:"HOOKSCOPE_LOG_LEVEL"`
	Engine      EngineConfig `yaml:"engine"`
	Sinks       SinksConfig  `yaml:"sinks"`
	Health      HealthConfig `yaml:"health"`
}

// EngineConfig configures the hook engine.
type EngineConfig struct {
	// Nesting is "chain" (inner scope shadows outer, LIFO restore) or
	// "reject" (second install on a hooked thread fails).
	Nesting string `yaml:"nesting"`
}

// SinksConfig toggles the shipped sinks.
type SinksConfig struct {
	Stdout StdoutSinkConfig `yaml:"stdout"`
	Logger SinkToggle       `yaml:"logger"`
	OTLP   OTLPSinkConfig   `yaml:"otlp"`
}

type SinkToggle struct {
	Enabled bool `yaml:"enabled"`
}

type StdoutSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "text" or "json"
}

type OTLPSinkConfig struct {
	Enabled       bool              `yaml:"enabled"`
	Endpoint      string            `yaml:"endpoint"`
	Insecure      bool              `yaml:"insecure"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
}

// HealthConfig configures the health HTTP server.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port" env:"HOOKSCOPE_HEALTH_PORT"` // e.g. ":8696"
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "hookscope",
		LogLevel:    "info",
		Engine: EngineConfig{
			Nesting: "chain",
		},
		Sinks: SinksConfig{
			Stdout: StdoutSinkConfig{
				Enabled: true,
				Format:  "text",
			},
			OTLP: OTLPSinkConfig{
				Enabled:       false,
				Endpoint:      "localhost:4317",
				Insecure:      true,
				BatchSize:     256,
				FlushInterval: 2 * time.Second,
			},
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    ":8696",
		},
	}
}

// ApplyEnvOverrides reads HOOKSCOPE_* environment variables and applies
// them over the YAML values.
func (c *Config) ApplyEnvOverrides() {
	strOverrides := map[string]func(string){
		"HOOKSCOPE_SERVICE_NAME":  func(v string) { c.ServiceName = v },
		"HOOKSCOPE_LOG_LEVEL":     func(v string) { c.LogLevel = v },
		"HOOKSCOPE_HEALTH_PORT":   func(v string) { c.Health.Port = v },
		"HOOKSCOPE_OTLP_ENDPOINT": func(v string) { c.Sinks.OTLP.Endpoint = v },
		"HOOKSCOPE_NESTING":       func(v string) { c.Engine.Nesting = v },
	}

	boolOverrides := map[string]*bool{
		"HOOKSCOPE_STDOUT_ENABLED": &c.Sinks.Stdout.Enabled,
		"HOOKSCOPE_LOGGER_ENABLED": &c.Sinks.Logger.Enabled,
		"HOOKSCOPE_OTLP_ENABLED":   &c.Sinks.OTLP.Enabled,
		"HOOKSCOPE_HEALTH_ENABLED": &c.Health.Enabled,
	}

	for key, setter := range strOverrides {
		if val := os.Getenv(key); val != "" {
			setter(val)
		}
	}
	for key, target := range boolOverrides {
		if val := os.Getenv(key); val != "" {
			*target = parseBool(val)
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Engine.Nesting {
	case "chain", "reject":
	default:
		return fmt.Errorf("engine.nesting must be 'chain' or 'reject'")
	}

	if c.Sinks.Stdout.Enabled {
		if f := c.Sinks.Stdout.Format; f != "" && f != "text" && f != "json" {
			return fmt.Errorf("sinks.stdout.format must be 'text' or 'json'")
		}
	}

	if c.Sinks.OTLP.Enabled && c.Sinks.OTLP.Endpoint == "" {
		return fmt.Errorf("sinks.otlp.endpoint is required when OTLP is enabled")
	}

	if c.Health.Enabled && c.Health.Port == "" {
		return fmt.Errorf("health.port is required when health is enabled")
	}

	return nil
}
