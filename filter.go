// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"slices"
	"strings"
)

// EntryFilter selects entries of an archive. Zero-valued fields do not filter.
type EntryFilter struct {
	// Name keeps entries whose name contains this substring (case-insensitive).
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Prefix keeps entries under this slash-separated name prefix.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Types keeps entries of these types ("DFF", ".txd", "UNKNOWN").
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`
	// Formats keeps analyzed entries whose detected format matches (case-insensitive).
	Formats []string `json:"formats,omitempty" yaml:"formats,omitempty"`
	// MinSectors keeps entries at least this many sectors long.
	MinSectors uint32 `json:"min_sectors,omitempty" yaml:"min_sectors,omitempty"`
	// RenderWareOnly keeps analyzed entries recognized as RenderWare.
	RenderWareOnly bool `json:"renderware_only,omitempty" yaml:"renderware_only,omitempty"`
	// NewOnly keeps entries added since the last save.
	NewOnly bool `json:"new_only,omitempty" yaml:"new_only,omitempty"`
}

// Filter returns entries matching f in directory order.
func (a *Archive) Filter(f EntryFilter) ([]*Entry, error) {
	matcher, err := newTypeMatcher(f.Types)
	if err != nil {
		return nil, err
	}

	entries := filterEntriesByPrefix(a.entries, f.Prefix)
	name := strings.ToLower(strings.TrimSpace(f.Name))
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if name != "" && !strings.Contains(strings.ToLower(e.Name), name) {
			continue
		}
		if !matcher.Match(e.Name) {
			continue
		}
		if len(f.Formats) > 0 && !filterFormatMatches(e, f.Formats) {
			continue
		}
		if e.SizeSectors < f.MinSectors {
			continue
		}
		if f.RenderWareOnly && !e.IsRenderWare() {
			continue
		}
		if f.NewOnly && !e.isNew {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

// Types returns sorted distinct entry types.
func (a *Archive) Types() []string {
	seen := make(map[string]struct{})
	for _, e := range a.entries {
		seen[e.Type()] = struct{}{}
	}

	return sortedKeys(seen)
}

// Formats returns sorted distinct detected formats of analyzed entries.
func (a *Archive) Formats() []string {
	seen := make(map[string]struct{})
	for _, e := range a.entries {
		if e.format != nil {
			seen[e.format.Format] = struct{}{}
		}
	}

	return sortedKeys(seen)
}

// filterFormatMatches reports whether the cached format of e is one of formats.
func filterFormatMatches(e *Entry, formats []string) bool {
	if e.format == nil {
		return false
	}

	for _, f := range formats {
		if strings.EqualFold(strings.TrimSpace(f), e.format.Format) {
			return true
		}
	}

	return false
}

// filterEntriesByPrefix keeps entries under prefix (or exact match if it names one entry).
func filterEntriesByPrefix(entries []*Entry, prefix string) []*Entry {
	prefix = strings.ToLower(NormalizePath(prefix))
	if prefix == "" {
		return entries
	}

	normalizedPrefix := prefix + "/"
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		entryPath := strings.ToLower(NormalizePath(e.Name))
		if entryPath == prefix || strings.HasPrefix(entryPath, normalizedPrefix) {
			out = append(out, e)
		}
	}

	return out
}

// sortedKeys returns map keys in ascending order.
func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	slices.Sort(out)
	return out
}
