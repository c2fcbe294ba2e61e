// Package config loads civicledger settings.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file, if one is given or found at ./civicledger.yaml
//  3. CIVICLEDGER_* environment variables
//
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. CIVICLEDGER_DATABASE_PATH.
const EnvPrefix = "civicledger"

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "civicledger.yaml"

// Config holds every tunable setting.
type Config struct {
	DatabasePath        string `yaml:"databasePath"        split_words:"true"`
	EscalationThreshold string `yaml:"escalationThreshold" split_words:"true"`
	LogLevel            string `yaml:"logLevel"            split_words:"true"`
	LogFormat           string `yaml:"logFormat"           split_words:"true"`
	MetricsTextfile     string `yaml:"metricsTextfile"     split_words:"true"`
	TracingStdout       bool   `yaml:"tracingStdout"       split_words:"true"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DatabasePath:        "civicledger.db",
		EscalationThreshold: "50",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. An empty path falls back to DefaultFile if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		if err := decodeYAML(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays buf onto cfg, rejecting unknown keys.
func decodeYAML(buf []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(buf))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that every setting parses.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("invalid config: databasePath is empty")
	}
	if _, err := c.Threshold(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: logFormat %q (must be 'text' or 'json')", c.LogFormat)
	}
	return nil
}

// Threshold parses EscalationThreshold as a non-negative percentage.
func (c Config) Threshold() (decimal.Decimal, error) {
	t, err := decimal.NewFromString(strings.TrimSpace(c.EscalationThreshold))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid config: escalationThreshold %q: %w", c.EscalationThreshold, err)
	}
	if t.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid config: escalationThreshold %s is negative", t)
	}
	return t, nil
}

// Level parses LogLevel (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid config: logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger returns a slog logger writing to w in the configured format and
// level. Call only on a validated Config.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
