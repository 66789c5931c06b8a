// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// manualEntry is one directory record plus optional payload for hand-built archives.
type manualEntry struct {
	name      string
	data      []byte
	offset    uint32
	size      uint32
	streaming uint16
}

// buildV2 encodes a V2 archive image. Payloads are written at their offsets;
// the file is extended to cover the last declared sector.
func buildV2(entries []manualEntry) []byte {
	dirSectors := DirectorySectors(V2, len(entries))
	end := dirSectors
	for _, e := range entries {
		end = max(end, e.offset+e.size)
	}

	buf := make([]byte, ToBytes(end))
	copy(buf[0:4], "VER2")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(entries))) //nolint:gosec // test sizes
	for i, e := range entries {
		rec := buf[v2HeaderSize+i*recordSize:]
		binary.LittleEndian.PutUint32(rec[0:4], e.offset)
		binary.LittleEndian.PutUint16(rec[4:6], e.streaming)
		binary.LittleEndian.PutUint16(rec[6:8], uint16(e.size)) //nolint:gosec // test sizes
		name := EncodeName(e.name)
		copy(rec[8:recordSize], name[:])
		copy(buf[ToBytes(e.offset):], e.data)
	}

	return buf
}

// buildV1 encodes V1 .dir records and the matching .img payload file.
func buildV1(entries []manualEntry) ([]byte, []byte) {
	var dir bytes.Buffer
	var end uint32
	for _, e := range entries {
		var rec [recordSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], e.offset)
		binary.LittleEndian.PutUint32(rec[4:8], e.size)
		name := EncodeName(e.name)
		copy(rec[8:], name[:])
		dir.Write(rec[:])
		if e.data != nil {
			end = max(end, e.offset+e.size)
		}
	}

	data := make([]byte, ToBytes(end))
	for _, e := range entries {
		copy(data[ToBytes(e.offset):], e.data)
	}

	return dir.Bytes(), data
}

// writeManualV2 writes a V2 archive into a temp dir and returns its path.
func writeManualV2(t *testing.T, name string, entries []manualEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buildV2(entries), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

// writeManualV1 writes a V1 .img/.dir pair into a temp dir and returns the .img path.
func writeManualV1(t *testing.T, name string, entries []manualEntry) string {
	t.Helper()

	dir, data := buildV1(entries)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.WriteFile(DirPath(path), dir, 0o600); err != nil {
		t.Fatalf("write %s: %v", DirPath(path), err)
	}

	return path
}

// writeSourceFile writes size bytes of fill into dir/name and returns the path.
func writeSourceFile(t *testing.T, dir string, name string, size int, fill byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{fill}, size), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

// sectorPayload returns n sectors filled with fill.
func sectorPayload(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n*SectorSize)
}

// rwHeader returns a 12-byte RenderWare chunk header.
func rwHeader(sectionType uint32, libraryID uint32) []byte {
	header := make([]byte, rwHeaderLen)
	binary.LittleEndian.PutUint32(header[0:4], sectionType)
	binary.LittleEndian.PutUint32(header[4:8], 100)
	binary.LittleEndian.PutUint32(header[8:12], libraryID)
	return header
}

// entryNames returns names of entries in order.
func entryNames(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}

	return out
}

// assertNoOverlap fails when any two payload ranges intersect or start inside the directory block.
func assertNoOverlap(t *testing.T, version Version, entries []*Entry) {
	t.Helper()

	dirEnd := DirectorySectors(version, len(entries))
	for i, a := range entries {
		if a.SizeSectors > 0 && a.OffsetSectors < dirEnd {
			t.Fatalf("%s starts at sector %d inside directory block ending at %d", a.Name, a.OffsetSectors, dirEnd)
		}
		for _, b := range entries[i+1:] {
			if a.OffsetSectors < b.OffsetSectors+b.SizeSectors && b.OffsetSectors < a.OffsetSectors+a.SizeSectors {
				t.Fatalf("%v overlaps %v", a, b)
			}
		}
	}
}
