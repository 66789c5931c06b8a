// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

// Package config loads the imgtool YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woozymasta/img"
)

// LogConfig configures the rotating log file.
type LogConfig struct {
	// Directory holds imgtool.log; empty disables file logging.
	Directory  string `yaml:"directory"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Config is the imgtool configuration file.
type Config struct {
	DefaultVersion  string    `yaml:"defaultVersion"`
	ExtractFileMode string    `yaml:"extractFileMode"`
	Logs            LogConfig `yaml:"logs"`
	Workers         int       `yaml:"workers"`
	BackupKeep      int       `yaml:"backupKeep"`
	Strict          bool      `yaml:"strict"`
	Analyze         bool      `yaml:"analyze"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads path and fills unset values with defaults.
// Relative log directories resolve against the directory of path.
// An empty path returns Default.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	if dir := cfg.Logs.Directory; dir != "" && !filepath.IsAbs(dir) {
		cfg.Logs.Directory = filepath.Clean(filepath.Join(filepath.Dir(path), dir))
	}

	return cfg, nil
}

// Decode parses YAML from r, applies defaults and validates the result.
// An empty document yields Default.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	if _, err := c.Version(); err != nil {
		return fmt.Errorf("defaultVersion: %w", err)
	}

	switch img.ExtractFileMode(c.ExtractFileMode) {
	case img.ExtractFileModeAuto, img.ExtractFileModeTruncate, img.ExtractFileModeCreateOnly:
	default:
		return fmt.Errorf("extractFileMode: unknown mode %q", c.ExtractFileMode)
	}

	if _, err := parseLevel(c.Logs.Level); err != nil {
		return fmt.Errorf("logs.level: %w", err)
	}

	return nil
}

// Version returns the archive version used by create and convert.
func (c Config) Version() (img.Version, error) {
	return img.ParseVersion(c.DefaultVersion)
}

// FileMode returns the export file mode.
func (c Config) FileMode() img.ExtractFileMode {
	return img.ExtractFileMode(c.ExtractFileMode)
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	if c.DefaultVersion == "" {
		c.DefaultVersion = img.V2.String()
	}
	if c.ExtractFileMode == "" {
		c.ExtractFileMode = string(img.ExtractFileModeAuto)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BackupKeep < 0 {
		c.BackupKeep = 0
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 7
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
}
