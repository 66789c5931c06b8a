// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func TestMergeFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	first, err := Open(writeManualV2(t, "first.img", []manualEntry{
		{name: "shared.dff", offset: 1, size: 1, data: sectorPayload(1, '1')},
		{name: "one.txd", offset: 2, size: 1, data: sectorPayload(1, 'o')},
	}))
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := Open(writeManualV1(t, "second.img", []manualEntry{
		{name: "SHARED.DFF", offset: 0, size: 1, data: sectorPayload(1, '2')},
		{name: "two.col", offset: 1, size: 2, data: sectorPayload(2, 't')},
	}))
	if err != nil {
		t.Fatalf("open second: %v", err)
	}

	out := filepath.Join(t.TempDir(), "merged.img")
	res, err := Merge(context.Background(), []*Archive{first, second}, out, MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !slices.Equal(res.Skipped, []string{"SHARED.DFF"}) {
		t.Fatalf("Skipped=%v", res.Skipped)
	}
	if res.Written.Version != V2 || res.Written.Entries != 3 {
		t.Fatalf("written=%+v", res.Written)
	}

	merged, err := Open(out)
	if err != nil {
		t.Fatalf("open merged: %v", err)
	}
	if got := entryNames(merged.Entries()); !slices.Equal(got, []string{"shared.dff", "one.txd", "two.col"}) {
		t.Fatalf("names=%v", got)
	}
	assertNoOverlap(t, V2, merged.Entries())

	shared, err := merged.ReadPayload(merged.FindByName("shared.dff"))
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if !bytes.Equal(shared, sectorPayload(1, '1')) {
		t.Fatal("merged payload does not come from the first archive")
	}

	two, err := merged.ReadPayload(merged.FindByName("two.col"))
	if err != nil {
		t.Fatalf("ReadPayload two.col: %v", err)
	}
	if !bytes.Equal(two, sectorPayload(2, 't')) {
		t.Fatal("two.col payload changed")
	}

	if first.Dirty() || second.Dirty() || first.Len() != 2 || second.Len() != 2 {
		t.Fatal("merge modified a source archive")
	}
}

func TestMergeErrors(t *testing.T) {
	t.Parallel()

	if _, err := Merge(context.Background(), nil, "out.img", MergeOptions{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("no sources err=%v, want ErrInvalidArgument", err)
	}

	src, err := Open(writeManualV2(t, "src.img", nil))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Merge(context.Background(), []*Archive{src}, " ", MergeOptions{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty output err=%v, want ErrInvalidArgument", err)
	}

	_ = src.Close()
	out := filepath.Join(t.TempDir(), "out.img")
	if _, err := Merge(context.Background(), []*Archive{src}, out, MergeOptions{}); !errors.Is(err, ErrArchiveClosed) {
		t.Fatalf("closed source err=%v, want ErrArchiveClosed", err)
	}
}

func TestSplitByType(t *testing.T) {
	t.Parallel()

	a, err := Open(writeManualV2(t, "mix.img", []manualEntry{
		{name: "a.dff", offset: 1, size: 1, data: sectorPayload(1, 'a')},
		{name: "b.txd", offset: 2, size: 1, data: sectorPayload(1, 'b')},
		{name: "c.dff", offset: 3, size: 1, data: sectorPayload(1, 'c')},
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dir := t.TempDir()
	results, err := a.Split(context.Background(), dir, SplitOptions{ByType: true, Version: V1})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("parts=%d, want 2", len(results))
	}
	if results[0].Path != filepath.Join(dir, "mix_DFF.img") || results[1].Path != filepath.Join(dir, "mix_TXD.img") {
		t.Fatalf("paths=%q %q", results[0].Path, results[1].Path)
	}

	dff, err := Open(results[0].Path)
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	if dff.Version() != V1 {
		t.Fatalf("part version=%s, want V1", dff.Version())
	}
	if got := entryNames(dff.Entries()); !slices.Equal(got, []string{"a.dff", "c.dff"}) {
		t.Fatalf("DFF part names=%v", got)
	}

	c, err := dff.ReadPayload(dff.FindByName("c.dff"))
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if !bytes.Equal(c, sectorPayload(1, 'c')) {
		t.Fatal("c.dff payload changed")
	}
}

func TestSplitBySize(t *testing.T) {
	t.Parallel()

	a, err := Open(writeManualV2(t, "big.img", []manualEntry{
		{name: "a.dff", offset: 1, size: 2},
		{name: "b.dff", offset: 3, size: 1},
		{name: "c.dff", offset: 4, size: 5},
		{name: "d.dff", offset: 9, size: 1},
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dir := t.TempDir()
	results, err := a.Split(context.Background(), dir, SplitOptions{MaxSize: 3 * SectorSize})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	want := [][]string{{"a.dff", "b.dff"}, {"c.dff"}, {"d.dff"}}
	if len(results) != len(want) {
		t.Fatalf("parts=%d, want %d", len(results), len(want))
	}
	for i, res := range results {
		if filepath.Base(res.Path) != "big_part"+string(rune('1'+i))+".img" {
			t.Fatalf("part %d path=%q", i, res.Path)
		}

		part, err := Open(res.Path)
		if err != nil {
			t.Fatalf("open part %d: %v", i, err)
		}
		if got := entryNames(part.Entries()); !slices.Equal(got, want[i]) {
			t.Fatalf("part %d names=%v, want %v", i, got, want[i])
		}
	}

	if _, err := a.Split(context.Background(), dir, SplitOptions{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Split without mode err=%v, want ErrInvalidArgument", err)
	}
}

func TestCompressNotSupported(t *testing.T) {
	t.Parallel()

	a, err := Create(filepath.Join(t.TempDir(), "c.img"), V2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.Compress(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Compress err=%v, want ErrNotSupported", err)
	}
}
