// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads agent settings from a YAML file with environment
// variable overrides.
//
// Resolution order, lowest to highest precedence:
//  1. Built-in defaults
//  2. YAML file (~/.traitbank/agent.yaml, or AGENT_CONFIG)
//  3. Environment variables
//
// A missing config file is not an error: defaults plus environment
// variables apply, and the service never writes configuration to disk.
// A plain container deployment therefore needs no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for human-readable
// values like "1h" or "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler, accepting duration strings
// ("24h") and integer nanoseconds. The tag check comes first because
// yaml.v3 happily decodes an integer scalar into a string, which would
// then fail in ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid duration value %q", value.Value)
		}
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings holds the full agent configuration.
type Settings struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// BaseURL is the upstream TraitBank endpoint.
	BaseURL string `yaml:"base_url"`

	// APIToken guards the run endpoint when set. Empty disables auth.
	APIToken string `yaml:"api_token"`

	// RateLimit is the sustained upstream request rate (requests/second).
	RateLimit float64 `yaml:"rate_limit"`

	// Workers bounds concurrent upstream chunk fetches per request.
	Workers int `yaml:"workers"`

	// CacheDir is the response cache directory. Empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL is the response cache entry lifetime.
	CacheTTL Duration `yaml:"cache_ttl"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory for JSON log files. Empty disables file logs.
	LogDir string `yaml:"log_dir"`

	// OTLPEndpoint enables OpenTelemetry tracing when set
	// (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the built-in defaults.
func Default() Settings {
	return Settings{
		Port:      9999,
		BaseURL:   "https://traitbank-reconnect.hcmr.gr",
		RateLimit: 5,
		Workers:   8,
		CacheDir:  "~/.traitbank/cache",
		CacheTTL:  Duration(24 * time.Hour),
		LogLevel:  "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".traitbank", "agent.yaml"), nil
}

// Load resolves settings from the default or AGENT_CONFIG path, then
// applies environment overrides.
func Load() (Settings, error) {
	path := os.Getenv("AGENT_CONFIG")
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Settings{}, err
		}
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from the given path, then applies environment
// overrides. A missing file is not an error; the defaults apply silently
// and nothing is written to disk.
func LoadFrom(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Missing file: defaults plus environment are the config.
	case err != nil:
		return Settings{}, fmt.Errorf("failed to read the config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&settings)

	if err := settings.validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *Settings) validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if s.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// applyEnvOverrides layers environment variables over file settings.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("AGENT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv("TRAITBANK_BASE_URL"); v != "" {
		s.BaseURL = v
	}
	if v := os.Getenv("AGENT_API_TOKEN"); v != "" {
		s.APIToken = v
	}
	if v := os.Getenv("TRAITBANK_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			s.RateLimit = rps
		}
	}
	if v := os.Getenv("NUM_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			s.Workers = workers
		}
	}
	if v := os.Getenv("AGENT_CACHE_DIR"); v != "" {
		s.CacheDir = v
	}
	if v := os.Getenv("AGENT_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			s.CacheTTL = Duration(ttl)
		}
	}
	if v := os.Getenv("AGENT_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("AGENT_LOG_DIR"); v != "" {
		s.LogDir = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		s.OTLPEndpoint = v
	}
}
