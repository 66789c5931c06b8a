// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/img"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "V2", cfg.DefaultVersion)
	assert.Equal(t, img.ExtractFileModeAuto, cfg.FileMode())
	assert.Positive(t, cfg.Workers)
	assert.Zero(t, cfg.BackupKeep)
	assert.Empty(t, cfg.Logs.Directory)
	assert.Equal(t, "info", cfg.Logs.Level)
	assert.Equal(t, 25, cfg.Logs.MaxSizeMB)

	v, err := cfg.Version()
	require.NoError(t, err)
	assert.Equal(t, img.V2, v)
}

func TestDecodeEmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeOverrides(t *testing.T) {
	t.Parallel()

	src := `
defaultVersion: v1
extractFileMode: create_only
workers: 3
backupKeep: 2
strict: true
logs:
  level: debug
  maxBackups: 9
`
	cfg, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	v, err := cfg.Version()
	require.NoError(t, err)
	assert.Equal(t, img.V1, v)
	assert.Equal(t, img.ExtractFileModeCreateOnly, cfg.FileMode())
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2, cfg.BackupKeep)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "debug", cfg.Logs.Level)
	assert.Equal(t, 9, cfg.Logs.MaxBackups)
	assert.Equal(t, 7, cfg.Logs.MaxAgeDays)
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"version":  "defaultVersion: v3\n",
		"mode":     "extractFileMode: smart\n",
		"level":    "logs:\n  level: loud\n",
		"unknown":  "colour: red\n",
		"not yaml": "workers: [\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(strings.NewReader(src))
			require.Error(t, err)
		})
	}
}

func TestLoadResolvesLogDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "imgtool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logs:\n  directory: logs\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.Logs.Directory)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer func() { require.NoError(t, closer.Close()) }()

	logger.Info("hidden")
	logger.Warn("shown", "entry", "a.dff")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "entry=a.dff")
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{Directory: dir, Level: "info", MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.Info("opened archive", "path", "gta3.img")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "opened archive")
	assert.Contains(t, buf.String(), "opened archive")
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	_, _, err := NewLogger(LogConfig{Level: "chatty"}, &bytes.Buffer{})
	require.Error(t, err)
}
