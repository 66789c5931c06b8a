// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"testing"
)

func TestListEntriesAndDetectVersion(t *testing.T) {
	t.Parallel()

	v1 := writeManualV1(t, "gta3.img", []manualEntry{
		{name: "a.dff", offset: 0, size: 1, data: sectorPayload(1, 'a')},
		{name: "b.txd", offset: 1, size: 2, data: sectorPayload(2, 'b')},
	})
	v2 := writeManualV2(t, "gta_sa.img", []manualEntry{
		{name: "c.col", offset: 1, size: 1, data: sectorPayload(1, 'c')},
	})

	entries, err := ListEntries(DirPath(v1))
	if err != nil {
		t.Fatalf("ListEntries(v1): %v", err)
	}
	if names := entryNames(entries); !slices.Equal(names, []string{"a.dff", "b.txd"}) {
		t.Fatalf("ListEntries(v1)=%v", names)
	}

	entries, err = ListEntries(v2)
	if err != nil || len(entries) != 1 || entries[0].Name != "c.col" {
		t.Fatalf("ListEntries(v2)=%v err=%v", entryNames(entries), err)
	}

	if v, err := DetectVersion(v1); err != nil || v != V1 {
		t.Fatalf("DetectVersion(v1)=%s err=%v", v, err)
	}
	if v, err := DetectVersion(v2); err != nil || v != V2 {
		t.Fatalf("DetectVersion(v2)=%s err=%v", v, err)
	}
	if _, err := DetectVersion(filepath.Join(t.TempDir(), "missing.img")); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("DetectVersion(missing) err=%v, want ErrFileNotFound", err)
	}
}

func TestOpenPayloadStreams(t *testing.T) {
	t.Parallel()

	a, err := Open(writeManualV2(t, "stream.img", []manualEntry{
		{name: "a.dff", offset: 1, size: 1, data: sectorPayload(1, 'a')},
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rc, err := a.OpenPayload(a.FindByName("a.dff"))
	if err != nil {
		t.Fatalf("OpenPayload: %v", err)
	}
	got, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || !bytes.Equal(got, sectorPayload(1, 'a')) {
		t.Fatalf("backing stream len=%d err=%v", len(got), err)
	}

	fresh, err := a.ImportData("fresh.txd", []byte("pending"), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	rc, err = a.OpenPayload(fresh)
	if err != nil {
		t.Fatalf("OpenPayload(pending): %v", err)
	}
	got, err = io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(got) != "pending" {
		t.Fatalf("pending stream=%q err=%v", got, err)
	}

	if _, err := a.OpenPayload(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("OpenPayload(nil) err=%v", err)
	}
}

func TestValidateImportFile(t *testing.T) {
	t.Parallel()

	a, err := Create(filepath.Join(t.TempDir(), "v.img"), V2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	src := t.TempDir()
	path := writeSourceFile(t, src, "ok.dff", 100, 1)
	if size, err := a.ValidateImportFile(path); err != nil || size != 100 {
		t.Fatalf("ValidateImportFile=%d err=%v", size, err)
	}
	if _, err := a.ValidateImportFile(src); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("directory err=%v, want ErrInvalidArgument", err)
	}
	if _, err := a.ValidateImportFile(filepath.Join(src, "missing")); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("missing err=%v, want ErrFileNotFound", err)
	}
}
