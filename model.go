// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Internal binary layout and format limits.
const (
	// SectorSize is the allocation unit of every offset and size in an IMG archive.
	SectorSize = 2048

	recordSize     = 32 // directory record size for both versions
	nameFieldSize  = 24 // fixed name field, NUL-padded
	maxNameLen     = nameFieldSize - 1
	v2HeaderSize   = 8 // "VER2" + u32 count
	maxV2Sectors   = 0xFFFF
	headerPeekLen = 64 // payload prefix passed to format detection
)

// v2Magic is the V2 archive signature.
var v2Magic = [4]byte{'V', 'E', 'R', '2'}

// Default tuning values.
const (
	DefaultWriteBuffer = 4 * 1024 * 1024
	DefaultBackupKeep  = 0
)

// Version is the IMG container version.
type Version uint8

// Known IMG versions.
const (
	// VersionUnknown is the zero value of a closed or uninitialized archive.
	VersionUnknown Version = iota
	// V1 is the GTA III / Vice City layout with a separate .dir file.
	V1
	// V2 is the San Andreas layout with an embedded "VER2" directory.
	V2
)

// String returns "V1", "V2" or "unknown".
func (v Version) String() string {
	switch v {
	case V1:
		return "V1"
	case V2:
		return "V2"
	default:
		return "unknown"
	}
}

// Description returns a human readable version name.
func (v Version) Description() string {
	switch v {
	case V1:
		return "Version 1 (GTA III & VC)"
	case V2:
		return "Version 2 (GTA SA)"
	default:
		return "Unknown Version"
	}
}

// valid reports whether v is V1 or V2.
func (v Version) valid() bool {
	return v == V1 || v == V2
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}

	*v = parsed
	return nil
}

// ParseVersion parses "V1", "v2", "1" or "2".
func ParseVersion(raw string) (Version, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "V1", "1":
		return V1, nil
	case "V2", "2":
		return V2, nil
	default:
		return VersionUnknown, fmt.Errorf("%w: %q", ErrUnknownVersion, raw)
	}
}

// OpenOptions configures archive open behavior.
type OpenOptions struct {
	// Logger receives diagnostics; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Detector classifies entry payload headers; nil uses RenderWareDetector.
	Detector FormatDetector `json:"-" yaml:"-"`
	// Strict rejects entries that overlap the directory block or run past the backing file.
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
	// Analyze runs format detection for all entries right after open.
	Analyze bool `json:"analyze,omitempty" yaml:"analyze,omitempty"`
}

// ImportOptions configures single-file imports.
type ImportOptions struct {
	// Name overrides the entry name; empty means source base name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Replace swaps payload of an existing same-named entry instead of appending.
	Replace bool `json:"replace,omitempty" yaml:"replace,omitempty"`
	// Compressed sets the advisory compression flag on the new entry.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
}

// FolderOptions configures ImportFolder.
type FolderOptions struct {
	// OnEntryDone is called after one file is imported.
	OnEntryDone func(entry *Entry, sourcePath string) `json:"-" yaml:"-"`
	// Extensions limits import to these extensions (case- and dot-insensitive); empty means all.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	// ImportOptions apply to every imported file; Name is ignored.
	ImportOptions ImportOptions `json:"import_options,omitzero" yaml:"import_options,omitzero"`
	// Recursive walks subdirectories and names entries "rel/path/name".
	Recursive bool `json:"recursive,omitempty" yaml:"recursive,omitempty"`
}

// ImportResult is the tally of a batch import.
type ImportResult struct {
	// Imported lists entries created or replaced, in walk order.
	Imported []*Entry `json:"-" yaml:"-"`
	// Failed lists per-file failures keyed by source path.
	Failed []ItemError `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ExportTarget selects the output of ExportEntry. Exactly one field must be set.
type ExportTarget struct {
	// Path is the exact output file path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Dir is the output directory; file name derives from the entry name.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ExportOptions configures ExportAll and ExportByType.
type ExportOptions struct {
	// Logger receives per-entry failures; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one entry is written to disk.
	OnEntryDone func(entry *Entry, written int64, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Types limits export to entry types like "DFF" or "txd"; empty means all.
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`
	// Entries limits export to this selection; nil means all archive entries.
	Entries []*Entry `json:"-" yaml:"-"`
	// MaxWorkers is number of export workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// ExportResult is the tally of a batch export.
type ExportResult struct {
	// Exported lists written output paths in entry order.
	Exported []string `json:"exported,omitempty" yaml:"exported,omitempty"`
	// Failed lists per-entry failures keyed by entry name.
	Failed []ItemError `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ExtractFileMode controls output file open behavior during export.
type ExtractFileMode string

// Output file creation policies for export.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// SaveOptions configures Save.
type SaveOptions struct {
	// Logger receives diagnostics; nil uses the archive logger.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one payload is written.
	OnEntryDone func(entry *Entry) `json:"-" yaml:"-"`
	// OutputPath writes to another .img path; empty overwrites the archive in place.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	// BackupKeep controls how many backup generations of replaced files are kept.
	// 0 means no backup, 1 keeps `<file>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// RebuildOptions configures Rebuild.
type RebuildOptions struct {
	// Logger receives diagnostics; nil uses the archive logger.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one payload is written.
	OnEntryDone func(entry *Entry) `json:"-" yaml:"-"`
	// OutputPath writes to another .img path; empty rebuilds in place.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	// Version converts the archive; VersionUnknown keeps the current version.
	Version Version `json:"version,omitempty" yaml:"version,omitempty"`
	// BackupKeep has the same meaning as in SaveOptions.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// RebuildResult contains write statistics of Save or Rebuild.
type RebuildResult struct {
	// Path is the written .img path.
	Path string `json:"path" yaml:"path"`
	// DirPath is the written .dir path for V1 output.
	DirPath string `json:"dir_path,omitempty" yaml:"dir_path,omitempty"`
	// Version is the written archive version.
	Version Version `json:"version" yaml:"version"`
	// Entries is number of entries written.
	Entries int `json:"entries" yaml:"entries"`
	// DirectorySectors is the sector count reserved for the V2 directory block.
	DirectorySectors uint32 `json:"directory_sectors" yaml:"directory_sectors"`
	// DataSectors is the sector count occupied by payload data.
	DataSectors uint32 `json:"data_sectors" yaml:"data_sectors"`
	// Repacked reports whether entry offsets were reassigned sequentially.
	Repacked bool `json:"repacked" yaml:"repacked"`
	// Duration is end-to-end write duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// SplitOptions configures Split.
type SplitOptions struct {
	// Version of the produced archives; VersionUnknown keeps the source version.
	Version Version `json:"version,omitempty" yaml:"version,omitempty"`
	// MaxSize caps payload bytes per produced archive when ByType is false.
	MaxSize int64 `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// ByType writes one archive per entry type instead of size-based parts.
	ByType bool `json:"by_type,omitempty" yaml:"by_type,omitempty"`
}

// ModificationSummary describes unsaved in-memory edits of an archive.
type ModificationSummary struct {
	// DeletedNames lists names of deleted original entries.
	DeletedNames []string `json:"deleted_names,omitempty" yaml:"deleted_names,omitempty"`
	// NewEntries counts entries added or replaced since last save.
	NewEntries int `json:"new_entries" yaml:"new_entries"`
	// DeletedEntries counts deleted original entries.
	DeletedEntries int `json:"deleted_entries" yaml:"deleted_entries"`
	// TotalEntries is the current entry count.
	TotalEntries int `json:"total_entries" yaml:"total_entries"`
	// OriginalEntries is the current count plus deleted entries.
	OriginalEntries int `json:"original_entries" yaml:"original_entries"`
	// Modified mirrors the archive dirty flag.
	Modified bool `json:"modified" yaml:"modified"`
	// NeedsSave reports whether new or deleted entries are pending.
	NeedsSave bool `json:"needs_save" yaml:"needs_save"`
}

// VersionSummary aggregates cached format info over all entries.
type VersionSummary struct {
	// Versions counts analyzed entries per version description.
	Versions map[string]int `json:"versions" yaml:"versions"`
	// Formats counts analyzed entries per format tag.
	Formats map[string]int `json:"formats" yaml:"formats"`
	// Total is the entry count, analyzed or not.
	Total int `json:"total" yaml:"total"`
	// Analyzed counts entries with cached format info.
	Analyzed int `json:"analyzed" yaml:"analyzed"`
	// RenderWare counts analyzed entries recognized as RenderWare.
	RenderWare int `json:"renderware" yaml:"renderware"`
	// NonRenderWare counts analyzed entries not recognized as RenderWare.
	NonRenderWare int `json:"non_renderware" yaml:"non_renderware"`
}

// applyDefaults fills zero-valued export options with defaults.
func (opts *ExportOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
}

// applyDefaults fills zero-valued save options with defaults.
func (opts *SaveOptions) applyDefaults(a *Archive) {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}
	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
	if opts.Logger == nil {
		opts.Logger = a.logger
	}
}

// applyDefaults fills zero-valued rebuild options with defaults.
func (opts *RebuildOptions) applyDefaults(a *Archive) {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}
	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
	if opts.Version == VersionUnknown {
		opts.Version = a.version
	}
	if opts.Logger == nil {
		opts.Logger = a.logger
	}
}

// applyDefaults fills zero-valued open options with defaults.
func (opts *OpenOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Detector == nil {
		opts.Detector = RenderWareDetector{}
	}
}

// discardLogger returns a logger that drops every record.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
