// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/img"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()

	data := bytes.Repeat([]byte{0xAB}, size)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestCreateImportListExtract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "gta3.img")
	model := filepath.Join(dir, "src", "model.dff")
	writeFile(t, model, 5000)

	code, stdout, stderr := runCLI(t, "create", "--version", "V2", archive)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Version 2 (GTA SA)")

	st, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, int64(img.SectorSize), st.Size())

	code, stdout, stderr = runCLI(t, "import", archive, model)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "imported 1 files")

	st, err = os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, int64(4*img.SectorSize), st.Size())

	code, stdout, stderr = runCLI(t, "list", archive)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "model.dff")
	assert.Regexp(t, `model\.dff\s+DFF\s+1\s+3`, stdout)

	out := filepath.Join(dir, "out")
	code, stdout, stderr = runCLI(t, "extract", archive, out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "extracted 1 entries")

	data, err := os.ReadFile(filepath.Join(out, "model.dff"))
	require.NoError(t, err)
	require.Len(t, data, 3*img.SectorSize)
	assert.Equal(t, byte(0xAB), data[4999])
	assert.Equal(t, byte(0), data[5000])
}

func TestImportFolderAndDeleteWithRebuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "models.img")
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "a.dff"), 100)
	writeFile(t, filepath.Join(src, "b.txd"), 3000)
	writeFile(t, filepath.Join(src, "notes.txt"), 10)

	code, _, stderr := runCLI(t, "create", archive)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runCLI(t, "import", "--ext", "dff,txd", archive, src)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "imported 2 files")

	code, stdout, stderr = runCLI(t, "delete", "--rebuild", archive, "A.DFF")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "deleted 1 entries")

	entries, err := img.ListEntries(archive)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txd", entries[0].Name)
	assert.Equal(t, uint32(1), entries[0].OffsetSectors)
	assert.Equal(t, uint32(2), entries[0].SizeSectors)
}

func TestInfoJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "sa.img")
	code, _, stderr := runCLI(t, "create", "--version", "2", archive)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runCLI(t, "info", "--json", archive)
	require.Equal(t, 0, code, stderr)

	var info img.ArchiveInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, img.V2, info.Version)
	assert.Zero(t, info.Entries)
}

func TestConvertToV1WritesDirFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "conv.img")
	model := filepath.Join(dir, "car.dff")
	writeFile(t, model, 2048)

	code, _, stderr := runCLI(t, "create", "--version", "V2", archive)
	require.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "import", archive, model)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runCLI(t, "convert", "--version", "V1", archive)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "V1")

	assert.FileExists(t, filepath.Join(dir, "conv.dir"))
	v, err := img.DetectVersion(archive)
	require.NoError(t, err)
	assert.Equal(t, img.V1, v)

	entries, err := img.ListEntries(archive)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(0), entries[0].OffsetSectors)
}

func TestMergeAndSplit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.img")
	second := filepath.Join(dir, "second.img")
	writeFile(t, filepath.Join(dir, "one", "shared.dff"), 10)
	writeFile(t, filepath.Join(dir, "two", "shared.dff"), 4000)
	writeFile(t, filepath.Join(dir, "two", "tex.txd"), 10)

	for _, path := range []string{first, second} {
		code, _, stderr := runCLI(t, "create", path)
		require.Equal(t, 0, code, stderr)
	}
	code, _, stderr := runCLI(t, "import", first, filepath.Join(dir, "one", "shared.dff"))
	require.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "import", second, filepath.Join(dir, "two"))
	require.Equal(t, 0, code, stderr)

	merged := filepath.Join(dir, "merged.img")
	code, _, stderr = runCLI(t, "merge", "--out", merged, first, second)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "skipped duplicate shared.dff")

	entries, err := img.ListEntries(merged)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(1), entries[0].SizeSectors)

	parts := filepath.Join(dir, "parts")
	code, _, stderr = runCLI(t, "split", "--by-type", "--out", parts, merged)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(parts, "merged_DFF.img"))
	assert.FileExists(t, filepath.Join(parts, "merged_TXD.img"))
}

func TestSummary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "s.img")
	col := filepath.Join(dir, "bounds.col")
	require.NoError(t, os.WriteFile(col, []byte("COL3\x00\x00\x00\x00"), 0o600))

	code, _, stderr := runCLI(t, "create", archive)
	require.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "import", archive, col)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runCLI(t, "summary", "--json", archive)
	require.Equal(t, 0, code, stderr)

	var summary img.VersionSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Analyzed)
	assert.Equal(t, 1, summary.Formats["COL"])
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Commands:")

	code, _, stderr = runCLI(t, "unpack")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "unpack"`)

	code, _, stderr = runCLI(t, "info")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: imgtool info")

	code, _, _ = runCLI(t, "split", filepath.Join(t.TempDir(), "x.img"))
	assert.Equal(t, 2, code)
}

func TestMissingArchiveFails(t *testing.T) {
	t.Parallel()

	code, _, stderr := runCLI(t, "list", filepath.Join(t.TempDir(), "missing.img"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "list:")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "imgtool.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("defaultVersion: V9\n"), 0o600))

	code, _, stderr := runCLI(t, "--config", cfgPath, "create", filepath.Join(dir, "a.img"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load config")
}

func TestConfigDefaultVersionV1(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "imgtool.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("defaultVersion: V1\nlogs:\n  directory: logs\n"), 0o600))

	archive := filepath.Join(dir, "vc.img")
	code, _, stderr := runCLI(t, "--config", cfgPath, "create", archive)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "vc.dir"))
	assert.FileExists(t, filepath.Join(dir, "logs", "imgtool.log"))
}
