// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"path/filepath"
	"slices"
	"testing"
)

func openFilterFixture(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(writeManualV2(t, "filter.img", []manualEntry{
		{name: "infernus.dff", offset: 1, size: 1, data: rwHeader(rwChunkClump, 0x1803FFFF)},
		{name: "infernus.txd", offset: 2, size: 3, data: rwHeader(rwChunkTexDict, 0x1803FFFF)},
		{name: "lae.col", offset: 5, size: 1, data: []byte("COL3\x00\x00\x00\x00")},
		{name: "readme", offset: 6, size: 1, data: []byte("plain")},
		{name: "cars/banshee.dff", offset: 7, size: 2, data: rwHeader(rwChunkClump, 0x0800FFFF)},
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return a
}

func TestFilterByNameAndPrefix(t *testing.T) {
	t.Parallel()

	a := openFilterFixture(t)

	testCases := []struct {
		name   string
		filter EntryFilter
		want   []string
	}{
		{name: "zero filter", filter: EntryFilter{}, want: []string{"infernus.dff", "infernus.txd", "lae.col", "readme", "cars/banshee.dff"}},
		{name: "substring", filter: EntryFilter{Name: "INFER"}, want: []string{"infernus.dff", "infernus.txd"}},
		{name: "prefix", filter: EntryFilter{Prefix: `Cars\`}, want: []string{"cars/banshee.dff"}},
		{name: "exact prefix", filter: EntryFilter{Prefix: "lae.col"}, want: []string{"lae.col"}},
		{name: "min sectors", filter: EntryFilter{MinSectors: 2}, want: []string{"infernus.txd", "cars/banshee.dff"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := a.Filter(tc.filter)
			if err != nil {
				t.Fatalf("Filter: %v", err)
			}
			if names := entryNames(got); !slices.Equal(names, tc.want) {
				t.Fatalf("Filter=%v, want %v", names, tc.want)
			}
		})
	}
}

func TestFilterByType(t *testing.T) {
	t.Parallel()

	a := openFilterFixture(t)

	testCases := []struct {
		types []string
		want  []string
	}{
		{types: []string{"DFF"}, want: []string{"infernus.dff", "cars/banshee.dff"}},
		{types: []string{".txd", "col"}, want: []string{"infernus.txd", "lae.col"}},
		{types: []string{"unknown"}, want: []string{"readme"}},
		{types: []string{"txd", "UNKNOWN"}, want: []string{"infernus.txd", "readme"}},
		{types: []string{" ", ""}, want: []string{"infernus.dff", "infernus.txd", "lae.col", "readme", "cars/banshee.dff"}},
	}

	for _, tc := range testCases {
		got, err := a.Filter(EntryFilter{Types: tc.types})
		if err != nil {
			t.Fatalf("Filter(%v): %v", tc.types, err)
		}
		if names := entryNames(got); !slices.Equal(names, tc.want) {
			t.Fatalf("Filter(%v)=%v, want %v", tc.types, names, tc.want)
		}
	}
}

func TestFilterByAnalysis(t *testing.T) {
	t.Parallel()

	a := openFilterFixture(t)

	got, err := a.Filter(EntryFilter{Formats: []string{"dff"}})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Formats matched unanalyzed entries: %v", entryNames(got))
	}

	if _, err := a.AnalyzeAll(); err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}

	got, err = a.Filter(EntryFilter{Formats: []string{"dff"}})
	if err != nil {
		t.Fatalf("Filter formats: %v", err)
	}
	if names := entryNames(got); !slices.Equal(names, []string{"infernus.dff", "cars/banshee.dff"}) {
		t.Fatalf("Formats=%v", names)
	}

	got, err = a.Filter(EntryFilter{RenderWareOnly: true})
	if err != nil {
		t.Fatalf("Filter renderware: %v", err)
	}
	if names := entryNames(got); slices.Contains(names, "readme") || len(names) != 4 {
		t.Fatalf("RenderWareOnly=%v", names)
	}

	if formats := a.Formats(); !slices.Equal(formats, []string{"COL", "DFF", "TXD", "UNKNOWN"}) {
		t.Fatalf("Formats()=%v", formats)
	}
}

func TestFilterNewOnlyAndTypes(t *testing.T) {
	t.Parallel()

	a := openFilterFixture(t)
	if _, err := a.ImportData("fresh.ifp", []byte("anim"), ImportOptions{}); err != nil {
		t.Fatalf("ImportData: %v", err)
	}

	got, err := a.Filter(EntryFilter{NewOnly: true})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if names := entryNames(got); !slices.Equal(names, []string{"fresh.ifp"}) {
		t.Fatalf("NewOnly=%v", names)
	}

	if types := a.Types(); !slices.Equal(types, []string{"COL", "DFF", "IFP", "TXD", "UNKNOWN"}) {
		t.Fatalf("Types()=%v", types)
	}
}

func TestFilterTypeMatchesEntryType(t *testing.T) {
	t.Parallel()

	a, err := Create(filepath.Join(t.TempDir(), "nested.img"), V2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, name := range []string{"dir.v2/file", "dir.v2/car.dff", "plain"} {
		if _, err := a.ImportData(name, []byte("x"), ImportOptions{}); err != nil {
			t.Fatalf("ImportData %s: %v", name, err)
		}
	}

	nested := a.FindByName("dir.v2/file")
	if nested.Type() != "V2/FILE" {
		t.Fatalf("Type()=%q, want V2/FILE", nested.Type())
	}

	testCases := []struct {
		types []string
		want  []string
	}{
		{types: []string{nested.Type()}, want: []string{"dir.v2/file"}},
		{types: []string{"v2/file"}, want: []string{"dir.v2/file"}},
		{types: []string{"UNKNOWN"}, want: []string{"plain"}},
		{types: []string{"V2"}, want: []string{}},
		{types: []string{"DFF"}, want: []string{"dir.v2/car.dff"}},
	}

	for _, tc := range testCases {
		got, err := a.Filter(EntryFilter{Types: tc.types})
		if err != nil {
			t.Fatalf("Filter(%v): %v", tc.types, err)
		}
		if names := entryNames(got); !slices.Equal(names, tc.want) {
			t.Fatalf("Filter(%v)=%v, want %v", tc.types, names, tc.want)
		}
	}

	for _, typ := range a.Types() {
		got, err := a.Filter(EntryFilter{Types: []string{typ}})
		if err != nil || len(got) == 0 {
			t.Fatalf("Filter by listed type %q=%d err=%v", typ, len(got), err)
		}
	}
}
