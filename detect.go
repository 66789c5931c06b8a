// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Format detection tags and descriptions.
const (
	unknownFormat  = "Unknown"
	notRenderWare  = "Not RenderWare"
	formatCOL      = "COL"
	formatDFF      = "DFF"
	formatTXD      = "TXD"
	formatRW       = "RW"
	rwChunkClump   = 0x0010
	rwChunkTexDict = 0x0016
	rwHeaderLen    = 12
)

// extendedRWVersions are library id values accepted as RenderWare versions outside 3.x range.
var extendedRWVersions = map[uint32]struct{}{
	0x0800FFFF: {},
	0x1003FFFF: {},
	0x1005FFFF: {},
	0x1401FFFF: {},
	0x1400FFFF: {},
	0x1803FFFF: {},
	0x1C020037: {},
}

// colVersions maps collision file FourCC to description.
var colVersions = map[string]string{
	"COLL": "COL1 (GTA III/VC)",
	"COL2": "COL2 (GTA SA)",
	"COL3": "COL3 (GTA SA Advanced)",
	"COL4": "COL4 (Extended)",
}

// FormatInfo is cached payload format classification of one entry.
type FormatInfo struct {
	// Format is a tag like "DFF", "TXD", "COL" or the entry type.
	Format string `json:"format" yaml:"format"`
	// Version is human readable version description.
	Version string `json:"version" yaml:"version"`
	// VersionNumber is numeric RenderWare version (0x36003 style); zero when absent.
	VersionNumber uint32 `json:"version_number,omitempty" yaml:"version_number,omitempty"`
}

// IsRenderWare reports whether info identifies a RenderWare resource or collision file.
func (f FormatInfo) IsRenderWare() bool {
	if f.Format == formatCOL {
		return strings.Contains(f.Version, formatCOL)
	}

	return IsRenderWareVersion(f.VersionNumber)
}

// FormatDetector classifies payload header bytes.
// Implementations must tolerate short headers and report an unknown tag instead of failing.
type FormatDetector interface {
	DetectFormatVersion(header []byte, name string) (format string, description string, version uint32)
}

// FormatDetectorFunc adapts a function to FormatDetector.
type FormatDetectorFunc func(header []byte, name string) (string, string, uint32)

// DetectFormatVersion calls f.
func (f FormatDetectorFunc) DetectFormatVersion(header []byte, name string) (string, string, uint32) {
	return f(header, name)
}

// RenderWareDetector detects RenderWare chunk headers and collision FourCC signatures.
// It does not resolve game or platform names.
type RenderWareDetector struct{}

// DetectFormatVersion implements FormatDetector.
func (RenderWareDetector) DetectFormatVersion(header []byte, name string) (string, string, uint32) {
	if len(header) < rwHeaderLen {
		return unknownFormat, unknownFormat, 0
	}

	ext := strings.ToUpper(extOf(name))
	if desc, ok := colVersions[string(header[0:4])]; ok {
		return formatCOL, desc, 0
	}

	sectionType := binary.LittleEndian.Uint32(header[0:4])
	version := LibraryIDToVersion(binary.LittleEndian.Uint32(header[8:12]))

	switch {
	case sectionType == rwChunkClump:
		return formatDFF, VersionString(version), version
	case sectionType == rwChunkTexDict:
		return formatTXD, VersionString(version), version
	case IsRenderWareVersion(version):
		if ext == "" {
			ext = formatRW
		}

		return ext, VersionString(version), version
	}

	if ext == "" {
		ext = unknownFormat
	}

	return ext, "Unknown format", 0
}

// LibraryIDToVersion unpacks a RenderWare chunk library id into numeric version (0x36003 style).
func LibraryIDToVersion(libraryID uint32) uint32 {
	if libraryID&0xFFFF0000 != 0 {
		return ((libraryID>>14)&0x3FF00 + 0x30000) | ((libraryID >> 16) & 0x3F)
	}

	return libraryID << 8
}

// IsRenderWareVersion reports whether version is in the RenderWare 3.x range or a known extended id.
func IsRenderWareVersion(version uint32) bool {
	if version >= 0x30000 && version <= 0x3FFFF {
		return true
	}

	_, ok := extendedRWVersions[version]
	return ok
}

// VersionString formats numeric version as "major.minor.patch.build".
func VersionString(version uint32) string {
	major := (version >> 16) & 0xFF
	minor := (version >> 12) & 0xF
	patch := (version >> 8) & 0xF
	build := version & 0xFF

	return fmt.Sprintf("%d.%d.%d.%d", major, minor, patch, build)
}

// detectEntryFormat applies detector and normalizes result into FormatInfo.
func detectEntryFormat(detector FormatDetector, header []byte, name string) FormatInfo {
	entryTypeTag := entryType(name)
	if len(header) < 4 {
		return FormatInfo{Format: entryTypeTag, Version: unknownFormat}
	}

	format, desc, version := detector.DetectFormatVersion(header, name)
	switch {
	case format == formatCOL:
		return FormatInfo{Format: formatCOL, Version: desc}
	case version > 0 && IsRenderWareVersion(version):
		return FormatInfo{Format: format, Version: desc, VersionNumber: version}
	case format == unknownFormat && desc == unknownFormat:
		return FormatInfo{Format: entryTypeTag, Version: unknownFormat}
	default:
		return FormatInfo{Format: entryTypeTag, Version: notRenderWare}
	}
}

// extOf returns text after last dot or empty string.
func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}

	return name[idx+1:]
}
