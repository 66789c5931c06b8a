// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Engine is the archive service consumed by front ends.
// Operations act on the active archive; those that need one fail with ErrNoArchiveOpen,
// selection-scoped ones with ErrNothingSelected, and everything else with *OpError.
type Engine interface {
	Open(path string) (*Archive, error)
	Create(path string, version Version) (*Archive, error)
	Close(path string) error
	Save(ctx context.Context) (*RebuildResult, error)
	Entries(filter EntryFilter) ([]*Entry, error)
	Select(entries ...*Entry) error
	Selected() []*Entry
	ExtractSelected(ctx context.Context, dir string) (*ExportResult, error)
	DeleteSelected() (int, error)
	ImportFiles(paths []string) (*ImportResult, error)
	ImportFolder(ctx context.Context, dir string, opts FolderOptions) (*ImportResult, error)
	Rebuild(ctx context.Context) (*RebuildResult, error)
	Status() Status
}

var _ Engine = (*Manager)(nil)

// Status is a snapshot of the engine state.
type Status struct {
	// ActivePath is the canonical path of the active archive.
	ActivePath string `json:"active_path,omitempty" yaml:"active_path,omitempty"`
	// Version of the active archive.
	Version Version `json:"version" yaml:"version"`
	// Modification summarizes unsaved edits of the active archive.
	Modification ModificationSummary `json:"modification" yaml:"modification"`
	// OpenArchives is the registry size.
	OpenArchives int `json:"open_archives" yaml:"open_archives"`
	// Entries is the entry count of the active archive.
	Entries int `json:"entries" yaml:"entries"`
	// Selected is the selection size.
	Selected int `json:"selected" yaml:"selected"`
	// TotalSize is the payload size of the active archive in bytes.
	TotalSize int64 `json:"total_size" yaml:"total_size"`
	// Dirty reports unsaved edits of the active archive.
	Dirty bool `json:"dirty" yaml:"dirty"`
}

// Save writes the active archive in place.
func (m *Manager) Save(ctx context.Context) (*RebuildResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}

	res, err := a.Save(ctx, SaveOptions{BackupKeep: m.opts.BackupKeep})
	return res, wrapOp("save", a.Path(), err)
}

// Rebuild repacks the active archive in place.
func (m *Manager) Rebuild(ctx context.Context) (*RebuildResult, error) {
	return m.RebuildWith(ctx, RebuildOptions{BackupKeep: m.opts.BackupKeep})
}

// RebuildWith repacks the active archive with explicit options (conversion, output path).
// Writing to another path re-registers the archive under that path.
func (m *Manager) RebuildWith(ctx context.Context, opts RebuildOptions) (*RebuildResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}

	oldKey := m.active
	res, err := a.Rebuild(ctx, opts)
	if err != nil {
		return nil, wrapOp("rebuild", a.Path(), err)
	}

	m.rekeyLocked(oldKey, a)
	return res, nil
}

// Entries returns entries of the active archive matching filter.
func (m *Manager) Entries(filter EntryFilter) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}

	entries, err := a.Filter(filter)
	return entries, wrapOp("list", a.Path(), err)
}

// Select replaces the selection. Every entry must belong to the active archive.
func (m *Manager) Select(entries ...*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if a.IndexOf(e) < 0 {
			return wrapOp("select", a.Path(), fmt.Errorf("%w: %v", ErrEntryNotFound, e))
		}
	}

	m.selection = slices.Compact(slices.Clone(entries))
	return nil
}

// SelectByName selects the first entry matching each name.
func (m *Manager) SelectByName(names ...string) error {
	m.mu.Lock()
	a, err := m.activeLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	entries := make([]*Entry, 0, len(names))
	for _, name := range names {
		e := a.FindByName(name)
		if e == nil {
			return wrapOp("select", a.Path(), fmt.Errorf("%w: %s", ErrEntryNotFound, name))
		}

		entries = append(entries, e)
	}

	return m.Select(entries...)
}

// ClearSelection empties the selection.
func (m *Manager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selection = nil
}

// Selected returns the current selection.
func (m *Manager) Selected() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.selection)
}

// ExtractSelected exports the selection into dir.
func (m *Manager) ExtractSelected(ctx context.Context, dir string) (*ExportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}
	if len(m.selection) == 0 {
		return nil, ErrNothingSelected
	}

	opts := m.opts.Export
	opts.Entries = slices.Clone(m.selection)
	res, err := a.ExportAll(ctx, dir, opts)
	return res, wrapOp("extract", a.Path(), err)
}

// DeleteSelected removes the selection from the active archive in memory.
func (m *Manager) DeleteSelected() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return 0, err
	}
	if len(m.selection) == 0 {
		return 0, ErrNothingSelected
	}

	deleted, failed := a.DeleteEntries(m.selection...)
	m.selection = nil
	if len(failed) > 0 {
		m.logger.Warn("some selected entries were already gone", slog.Int("count", len(failed)))
	}

	return deleted, nil
}

// ImportFiles imports files into the active archive.
func (m *Manager) ImportFiles(paths []string) (*ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}

	res, err := a.ImportFiles(paths, nil, ImportOptions{})
	return res, wrapOp("import", a.Path(), err)
}

// ImportFolder imports a directory into the active archive.
func (m *Manager) ImportFolder(ctx context.Context, dir string, opts FolderOptions) (*ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.activeLocked()
	if err != nil {
		return nil, err
	}

	res, err := a.ImportFolder(ctx, dir, opts)
	return res, wrapOp("import", a.Path(), err)
}

// Status returns a snapshot of the engine state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{OpenArchives: len(m.archives), Selected: len(m.selection)}
	a, err := m.activeLocked()
	if err != nil {
		return st
	}

	st.ActivePath = m.active
	st.Version = a.Version()
	st.Entries = a.Len()
	st.TotalSize = a.TotalSize()
	st.Dirty = a.Dirty()
	st.Modification = a.ModificationSummary()
	return st
}
