// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"log/slog"
	"slices"
)

// Archive is an in-memory IMG archive bound to its backing file(s).
// Edits mutate memory only; Save or Rebuild persists them.
// An Archive is not safe for concurrent mutation.
type Archive struct {
	// detector classifies entry payload headers.
	detector FormatDetector
	// logger receives diagnostics.
	logger *slog.Logger
	// path is the .img path (payload file for V1, combined file for V2).
	path string
	// dirPath is the .dir sibling for V1 archives.
	dirPath string
	// entries are kept in directory order.
	entries []*Entry
	// deleted tracks removed on-disk entries for restore and modification summary.
	deleted []*Entry
	// version is the container version.
	version Version
	// dirty reports unsaved in-memory edits.
	dirty bool
}

// newArchive builds an archive bound to path with normalized options.
func newArchive(path string, version Version, opts OpenOptions) *Archive {
	opts.applyDefaults()

	a := &Archive{
		path:     path,
		version:  version,
		detector: opts.Detector,
		logger:   opts.Logger,
	}
	if version == V1 {
		a.dirPath = DirPath(path)
	}

	return a
}

// Path returns the .img path of the archive.
func (a *Archive) Path() string {
	return a.path
}

// DirPath returns the .dir path of V1 archives and an empty string for V2.
func (a *Archive) DirPath() string {
	return a.dirPath
}

// Version returns the container version.
func (a *Archive) Version() Version {
	return a.version
}

// Dirty reports whether the archive has unsaved edits.
func (a *Archive) Dirty() bool {
	return a.dirty
}

// Closed reports whether Close was called.
func (a *Archive) Closed() bool {
	return a.path == "" && a.version == VersionUnknown
}

// Len returns the entry count.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns entries in directory order. The slice is a copy, entries are shared.
func (a *Archive) Entries() []*Entry {
	return slices.Clone(a.entries)
}

// Detector returns the format detector used by AnalyzeEntry.
func (a *Archive) Detector() FormatDetector {
	return a.detector
}

// SetLogger replaces the archive logger; nil discards diagnostics.
func (a *Archive) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discardLogger()
	}

	a.logger = logger
}

// FindByName returns the first entry whose name matches case-insensitively, or nil.
func (a *Archive) FindByName(name string) *Entry {
	key := nameKey(name)
	for _, e := range a.entries {
		if nameKey(e.Name) == key {
			return e
		}
	}

	return nil
}

// FindByIndex returns the entry at index i, or nil when i is out of range.
func (a *Archive) FindByIndex(i int) *Entry {
	if i < 0 || i >= len(a.entries) {
		return nil
	}

	return a.entries[i]
}

// HasEntry reports whether an entry with this name exists.
func (a *Archive) HasEntry(name string) bool {
	return a.FindByName(name) != nil
}

// IndexOf returns the directory position of e, or -1.
func (a *Archive) IndexOf(e *Entry) int {
	return slices.Index(a.entries, e)
}

// TotalSize returns the sum of sector-padded entry sizes in bytes.
func (a *Archive) TotalSize() int64 {
	var total int64
	for _, e := range a.entries {
		total += e.ActualSize()
	}

	return total
}

// DeleteEntries removes entries by identity from memory and marks the archive dirty.
// It returns the number removed and the entries that were not part of the archive.
func (a *Archive) DeleteEntries(entries ...*Entry) (int, []*Entry) {
	var failed []*Entry
	deleted := 0
	for _, e := range entries {
		idx := a.IndexOf(e)
		if e == nil || idx < 0 {
			failed = append(failed, e)
			continue
		}

		a.entries = slices.Delete(a.entries, idx, idx+1)
		if !e.isNew {
			a.deleted = append(a.deleted, e)
		}
		deleted++
	}

	if deleted > 0 {
		a.dirty = true
		a.logger.Debug("deleted entries", slog.Int("count", deleted), slog.Int("remaining", len(a.entries)))
	}

	return deleted, failed
}

// DeleteByName removes the first entry matching each name and returns names not found.
func (a *Archive) DeleteByName(names ...string) (int, []string) {
	var missing []string
	deleted := 0
	for _, name := range names {
		e := a.FindByName(name)
		if e == nil {
			missing = append(missing, name)
			continue
		}

		n, _ := a.DeleteEntries(e)
		deleted += n
	}

	return deleted, missing
}

// RenameEntry stores a new name for e, truncated like the on-disk field.
func (a *Archive) RenameEntry(e *Entry, newName string) error {
	if a.IndexOf(e) < 0 {
		return fmt.Errorf("%w: %v", ErrEntryNotFound, e)
	}

	stored := TruncateName(newName)
	if stored == "" {
		return fmt.Errorf("%w: empty entry name", ErrInvalidArgument)
	}
	if stored == e.Name {
		return nil
	}

	a.logger.Debug("renamed entry", slog.String("from", e.Name), slog.String("to", stored))
	e.Name = stored
	a.dirty = true
	return nil
}

// DeletedEntries returns entries removed since the last save.
func (a *Archive) DeletedEntries() []*Entry {
	return slices.Clone(a.deleted)
}

// RestoreDeleted brings back the most recently deleted entry with this name.
// Its payload is still read from the unchanged backing file.
func (a *Archive) RestoreDeleted(name string) (*Entry, error) {
	key := nameKey(name)
	for i := len(a.deleted) - 1; i >= 0; i-- {
		e := a.deleted[i]
		if nameKey(e.Name) != key {
			continue
		}

		a.deleted = slices.Delete(a.deleted, i, i+1)
		a.entries = append(a.entries, e)
		a.dirty = true
		return e, nil
	}

	return nil, fmt.Errorf("%w: no deleted entry %q", ErrEntryNotFound, name)
}

// RestoreAllDeleted brings back every deleted entry and returns how many were restored.
func (a *Archive) RestoreAllDeleted() int {
	n := len(a.deleted)
	if n == 0 {
		return 0
	}

	a.entries = append(a.entries, a.deleted...)
	a.deleted = nil
	a.dirty = true
	return n
}

// ModificationSummary describes unsaved edits.
func (a *Archive) ModificationSummary() ModificationSummary {
	summary := ModificationSummary{
		DeletedEntries:  len(a.deleted),
		TotalEntries:    len(a.entries),
		OriginalEntries: len(a.entries) + len(a.deleted),
		Modified:        a.dirty,
	}

	for _, e := range a.entries {
		if e.isNew {
			summary.NewEntries++
		}
	}
	for _, e := range a.deleted {
		summary.DeletedNames = append(summary.DeletedNames, e.Name)
	}

	summary.NeedsSave = summary.NewEntries > 0 || summary.DeletedEntries > 0
	return summary
}

// VersionSummary aggregates cached format info. Entries never analyzed only count toward Total.
func (a *Archive) VersionSummary() VersionSummary {
	summary := VersionSummary{
		Versions: make(map[string]int),
		Formats:  make(map[string]int),
		Total:    len(a.entries),
	}

	for _, e := range a.entries {
		if e.format == nil {
			continue
		}

		summary.Analyzed++
		summary.Versions[e.format.Version]++
		summary.Formats[e.format.Format]++
		if e.format.IsRenderWare() {
			summary.RenderWare++
		} else {
			summary.NonRenderWare++
		}
	}

	return summary
}

// Close releases in-memory state. It never touches disk and unsaved edits are lost.
func (a *Archive) Close() error {
	a.path = ""
	a.dirPath = ""
	a.version = VersionUnknown
	a.entries = nil
	a.deleted = nil
	a.dirty = false
	return nil
}

// appendEntry adds e at the end of the directory and marks the archive dirty.
func (a *Archive) appendEntry(e *Entry) {
	a.entries = append(a.entries, e)
	a.dirty = true
}

// ensureOpen fails with ErrArchiveClosed after Close.
func (a *Archive) ensureOpen() error {
	if a == nil || a.Closed() {
		return ErrArchiveClosed
	}

	return nil
}
