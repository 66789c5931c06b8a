// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Logger receives registry diagnostics and is passed to opened archives; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Opener opens an archive by canonical path; nil uses OpenWithOptions.
	Opener func(path string, opts OpenOptions) (*Archive, error) `json:"-" yaml:"-"`
	// OpenOptions apply to every archive opened through the manager.
	OpenOptions OpenOptions `json:"open_options,omitzero" yaml:"open_options,omitzero"`
	// Export configures ExtractSelected.
	Export ExportOptions `json:"export,omitzero" yaml:"export,omitzero"`
	// BackupKeep is passed to Save and Rebuild.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// applyDefaults fills zero-valued manager options with defaults.
func (opts *ManagerOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.OpenOptions.Logger == nil {
		opts.OpenOptions.Logger = opts.Logger
	}
	if opts.Export.Logger == nil {
		opts.Export.Logger = opts.Logger
	}
	if opts.Opener == nil {
		opts.Opener = OpenWithOptions
	}
}

// Manager is a registry of open archives keyed by canonical path, with one active archive
// and an entry selection on it. All methods are safe for concurrent use; operations are serialized.
type Manager struct {
	logger    *slog.Logger
	archives  map[string]*Archive
	opts      ManagerOptions
	active    string
	order     []string
	selection []*Entry
	mu        sync.Mutex
}

// NewManager returns an empty registry.
func NewManager(opts ManagerOptions) *Manager {
	opts.applyDefaults()

	return &Manager{
		logger:   opts.Logger,
		archives: make(map[string]*Archive),
		opts:     opts,
	}
}

// Open opens path or, when an archive with the same canonical path is already open,
// makes it active without reading the disk again.
func (m *Manager) Open(path string) (*Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := canonicalPath(path)
	if err != nil {
		return nil, wrapOp("open", path, err)
	}

	if a, ok := m.archives[key]; ok {
		m.setActiveLocked(key)
		m.logger.Debug("archive already open", slog.String("path", key))
		return a, nil
	}

	a, err := m.opts.Opener(key, m.opts.OpenOptions)
	if err != nil {
		return nil, wrapOp("open", path, err)
	}

	m.registerLocked(key, a)
	m.logger.Info("opened archive", slog.String("path", key), slog.Int("entries", a.Len()))
	return a, nil
}

// Create writes a new empty archive, registers it and makes it active.
// An archive already registered under the same path is replaced.
func (m *Manager) Create(path string, version Version) (*Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := canonicalPath(path)
	if err != nil {
		return nil, wrapOp("create", path, err)
	}

	a, err := CreateWithOptions(key, version, m.opts.OpenOptions)
	if err != nil {
		return nil, wrapOp("create", path, err)
	}

	if old, ok := m.archives[key]; ok {
		_ = old.Close()
		m.unregisterLocked(key)
	}

	m.registerLocked(key, a)
	return a, nil
}

// Close closes the archive at path; an empty path closes the active archive.
// Closing the active archive leaves none active; other archives stay open.
func (m *Manager) Close(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.active
	if path != "" {
		var err error
		key, err = canonicalPath(path)
		if err != nil {
			return wrapOp("close", path, err)
		}
	}

	a, ok := m.archives[key]
	if !ok {
		if path == "" {
			return ErrNoArchiveOpen
		}

		return wrapOp("close", path, fmt.Errorf("%w: %s is not open", ErrInvalidArgument, path))
	}

	if a.Dirty() {
		m.logger.Warn("closing archive with unsaved changes", slog.String("path", key))
	}

	_ = a.Close()
	m.unregisterLocked(key)
	return nil
}

// CloseAll closes every registered archive.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.order {
		_ = m.archives[key].Close()
	}

	m.archives = make(map[string]*Archive)
	m.order = nil
	m.active = ""
	m.selection = nil
}

// SetActive makes an open archive active and reports whether it was found.
func (m *Manager) SetActive(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := canonicalPath(path)
	if err != nil {
		return false
	}
	if _, ok := m.archives[key]; !ok {
		return false
	}

	m.setActiveLocked(key)
	return true
}

// Active returns the active archive or nil.
func (m *Manager) Active() *Archive {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.archives[m.active]
}

// ActivePath returns the canonical path of the active archive.
func (m *Manager) ActivePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Get returns the open archive registered for path or nil.
func (m *Manager) Get(path string) *Archive {
	key, err := canonicalPath(path)
	if err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.archives[key]
}

// Paths returns canonical paths of open archives in open order.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.order)
}

// Len returns the number of open archives.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.archives)
}

// activeLocked returns the active archive or ErrNoArchiveOpen.
func (m *Manager) activeLocked() (*Archive, error) {
	a, ok := m.archives[m.active]
	if !ok {
		return nil, ErrNoArchiveOpen
	}

	return a, nil
}

// registerLocked adds a under key and makes it active.
func (m *Manager) registerLocked(key string, a *Archive) {
	m.archives[key] = a
	m.order = append(m.order, key)
	m.setActiveLocked(key)
}

// unregisterLocked removes key. Removing the active archive leaves no archive active
// until the caller opens one or calls SetActive.
func (m *Manager) unregisterLocked(key string) {
	delete(m.archives, key)
	m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == key })
	if m.active != key {
		return
	}

	m.active = ""
	m.selection = nil
}

// setActiveLocked switches the active archive and clears the selection on change.
func (m *Manager) setActiveLocked(key string) {
	if m.active != key {
		m.selection = nil
	}

	m.active = key
}

// rekeyLocked moves the active archive to its new canonical path after a write to another file.
func (m *Manager) rekeyLocked(oldKey string, a *Archive) {
	newKey, err := canonicalPath(a.Path())
	if err != nil || newKey == oldKey {
		return
	}

	if other, ok := m.archives[newKey]; ok && other != a {
		_ = other.Close()
		m.unregisterLocked(newKey)
	}

	delete(m.archives, oldKey)
	m.archives[newKey] = a
	for i, k := range m.order {
		if k == oldKey {
			m.order[i] = newKey
		}
	}
	if m.active == oldKey {
		m.active = newKey
	}
}
