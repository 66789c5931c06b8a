// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// unsafeNameChars cannot appear in a Windows file name.
const unsafeNameChars = `<>:"/\|?*`

// reservedDeviceNames contains Windows device names, matched case-insensitively without extension.
var reservedDeviceNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {}, "clock$": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizePath rewrites an entry name into a relative slash path safe on common filesystems.
// An empty name yields an empty path.
func SanitizePath(name string) (string, error) {
	normalized := NormalizePath(name)
	if normalized == "" {
		return "", nil
	}

	out := sanitizeSegments(normalized)
	if _, err := normalizeExtractEntryPath(out); err != nil {
		return "", err
	}

	return out, nil
}

// sanitizeEntryPaths maps entry names to unique relative output paths in entry order.
// Names that differ only in case get "~N" suffixes so they never overwrite each other.
func sanitizeEntryPaths(entries []*Entry) ([]string, error) {
	out := make([]string, len(entries))
	taken := make(map[string]int, len(entries))

	for i, e := range entries {
		// "../x" and "C:" style names still export, segment by segment, under the destination.
		rel := uniquePath(sanitizeSegments(strings.ReplaceAll(e.Name, `\`, "/")), taken)
		if _, err := normalizeExtractEntryPath(rel); err != nil {
			return nil, fmt.Errorf("sanitize name %q: %w", e.Name, err)
		}

		out[i] = rel
	}

	return out, nil
}

// sanitizeSegments sanitizes each segment of a slash path, dropping empty and "." parts.
// ".." becomes "_"; a path with no segments left becomes "_".
func sanitizeSegments(rel string) string {
	parts := strings.Split(rel, "/")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "", ".":
			continue
		case "..":
			part = "_"
		}

		out = append(out, sanitizePathSegment(part))
	}
	if len(out) == 0 {
		return "_"
	}

	return strings.Join(out, "/")
}

// sanitizePathSegment replaces unsafe characters, trims trailing dots and spaces,
// and prefixes reserved device names with "_".
func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	reserved := isReservedDeviceName(segment)

	mapped := strings.Map(func(r rune) rune {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(unsafeNameChars, r) {
			return '_'
		}

		return r
	}, segment)

	mapped = strings.TrimRight(mapped, ". ")
	if mapped == "" {
		return "_"
	}
	if reserved || isReservedDeviceName(mapped) {
		mapped = "_" + mapped
	}

	return mapped
}

// isUnsafeControlCharRune reports whether r must not reach a file name.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	// U+FFFD is what high bytes of stored names decode to.
	return r == '\uFFFD'
}

// isReservedDeviceName reports whether name, without extension, is a Windows device name.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ". :"))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = strings.TrimRight(candidate[:dot], " :")
	}

	_, ok := reservedDeviceNames[candidate]
	return ok
}

// uniquePath returns p, or p with the lowest free "~N" suffix before its extension.
// taken maps lower-cased paths to the next suffix worth trying.
func uniquePath(p string, taken map[string]int) string {
	key := strings.ToLower(p)
	next, seen := taken[key]
	if !seen {
		taken[key] = 2
		return p
	}

	dir, file := path.Split(p)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	for ; ; next++ {
		candidate := dir + base + "~" + strconv.Itoa(next) + ext
		candidateKey := strings.ToLower(candidate)
		if _, used := taken[candidateKey]; used {
			continue
		}

		taken[candidateKey] = 2
		taken[key] = next + 1
		return candidate
	}
}
