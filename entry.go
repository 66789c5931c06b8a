// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"io"
	"strings"
)

// unknownType is the type tag of entries without extension.
const unknownType = "UNKNOWN"

// Entry is one packed resource of an IMG archive.
// Entry identity is its pointer; archives are not guaranteed name-unique.
type Entry struct {
	// Name is the stored entry name (at most 23 ASCII bytes).
	Name string `json:"name" yaml:"name"`
	// format is cached detection result; nil until Analyze.
	format *FormatInfo
	// source streams payload of entries not yet written to the backing file.
	source *payloadSource
	// data holds payload bytes loaded or assigned in memory.
	data []byte
	// OffsetSectors is payload start in sectors from file start.
	OffsetSectors uint32 `json:"offset_sectors" yaml:"offset_sectors"`
	// SizeSectors is payload length in sectors.
	SizeSectors uint32 `json:"size_sectors" yaml:"size_sectors"`
	// StreamingSizeSectors is V2 streaming size; zero falls back to SizeSectors.
	StreamingSizeSectors uint16 `json:"streaming_size_sectors,omitempty" yaml:"streaming_size_sectors,omitempty"`
	// Compressed is an advisory flag; payload bytes are never interpreted.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	// isNew marks entries added or replaced since the last save.
	isNew bool
}

// payloadSource is an external payload stream with known length.
type payloadSource struct {
	open func() (io.ReadCloser, error)
	// origin names the source for error messages.
	origin string
	size   int64
}

// ActualOffset returns payload start in bytes.
func (e *Entry) ActualOffset() int64 {
	return ToBytes(e.OffsetSectors)
}

// ActualSize returns sector-padded payload length in bytes.
func (e *Entry) ActualSize() int64 {
	return ToBytes(e.SizeSectors)
}

// ActualStreamingSize returns the streaming size in bytes, falling back to ActualSize when unset.
func (e *Entry) ActualStreamingSize() int64 {
	if e.StreamingSizeSectors == 0 {
		return e.ActualSize()
	}

	return ToBytes(uint32(e.StreamingSizeSectors))
}

// Type returns the upper-cased extension of the entry name or "UNKNOWN".
func (e *Entry) Type() string {
	return entryType(e.Name)
}

// IsNew reports whether the entry was added or replaced since the last save.
func (e *Entry) IsNew() bool {
	return e.isNew
}

// HasPayload reports whether payload bytes are resident in memory.
func (e *Entry) HasPayload() bool {
	return e.data != nil
}

// Payload returns resident payload bytes or nil.
func (e *Entry) Payload() []byte {
	return e.data
}

// SetPayload replaces in-memory payload bytes, resizes the entry and invalidates cached format info.
// The entry becomes new until the next save.
func (e *Entry) SetPayload(data []byte) {
	e.data = data
	e.source = nil
	e.SizeSectors = ToSectors(int64(len(data)))
	if e.StreamingSizeSectors != 0 {
		e.StreamingSizeSectors = clampStreaming(e.SizeSectors)
	}
	e.format = nil
	e.isNew = true
}

// FormatInfo returns cached detection result and whether Analyze ran.
func (e *Entry) FormatInfo() (FormatInfo, bool) {
	if e.format == nil {
		return FormatInfo{}, false
	}

	return *e.format, true
}

// Analyzed reports whether format info is cached.
func (e *Entry) Analyzed() bool {
	return e.format != nil
}

// Analyze runs detector over payload header bytes and caches the result.
func (e *Entry) Analyze(detector FormatDetector, header []byte) FormatInfo {
	if detector == nil {
		detector = RenderWareDetector{}
	}

	info := detectEntryFormat(detector, header, e.Name)
	e.format = &info
	return info
}

// InvalidateFormat drops cached format info.
func (e *Entry) InvalidateFormat() {
	e.format = nil
}

// IsRenderWare reports whether cached format info identifies a RenderWare resource.
func (e *Entry) IsRenderWare() bool {
	if e.format == nil {
		return false
	}

	return e.format.IsRenderWare()
}

// DetailedInfo returns a one-line description with type and cached version info.
func (e *Entry) DetailedInfo() string {
	info := fmt.Sprintf("%s (%s)", e.Name, e.Type())
	if e.format == nil {
		return info
	}

	if e.format.Version != "" {
		info += " - " + e.format.Version
	}
	if e.format.Version != unknownFormat {
		info += " [" + e.format.Format + "]"
	}

	return info
}

// String implements fmt.Stringer.
func (e *Entry) String() string {
	return fmt.Sprintf("%s (Offset: %d, Size: %d sectors)", e.Name, e.OffsetSectors, e.SizeSectors)
}

// payloadLen returns the exact payload byte length that will be written for the entry.
func (e *Entry) payloadLen() int64 {
	switch {
	case e.data != nil:
		return int64(len(e.data))
	case e.source != nil:
		return e.source.size
	default:
		return e.ActualSize()
	}
}

// entryType derives type tag from name extension.
func entryType(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return unknownType
	}

	return strings.ToUpper(name[idx+1:])
}

// normalizeType upper-cases and strips dots from a user-provided type or extension.
func normalizeType(raw string) string {
	return strings.ToUpper(strings.TrimLeft(strings.TrimSpace(raw), "."))
}

// clampStreaming converts sector count to the V2 streaming field width.
func clampStreaming(sectors uint32) uint16 {
	if sectors > maxV2Sectors {
		return maxV2Sectors
	}

	return uint16(sectors) //nolint:gosec // bounded above
}
