// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sibling file extensions.
const (
	extIMG = ".img"
	extDIR = ".dir"
)

// NormalizePath converts a relative entry or file path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// DirPath returns the V1 directory sibling of an archive path.
// The extension case follows the source: "GTA3.IMG" maps to "GTA3.DIR".
func DirPath(imgPath string) string {
	return swapExt(imgPath, extDIR)
}

// ImgPath returns the data file of an archive path; ".dir" paths map to their ".img" sibling.
func ImgPath(archivePath string) string {
	if strings.EqualFold(filepath.Ext(archivePath), extDIR) {
		return swapExt(archivePath, extIMG)
	}

	return archivePath
}

// swapExt replaces the extension of p with ext and keeps the upper case style of the original.
func swapExt(p string, ext string) string {
	old := filepath.Ext(p)
	if old != "" && old == strings.ToUpper(old) && old != strings.ToLower(old) {
		ext = strings.ToUpper(ext)
	}

	return strings.TrimSuffix(p, old) + ext
}

// canonicalPath returns the identity key of an archive path:
// absolute, cleaned, ".dir" mapped to ".img", symlinks resolved when the file exists.
func canonicalPath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty archive path", ErrInvalidArgument)
	}

	abs, err := filepath.Abs(ImgPath(trimmed))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}

	abs = filepath.Clean(abs)
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}

	return "", fmt.Errorf("resolve %s: %w", p, err)
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.TrimPrefix(p, "./")
	return p
}

// fileExists reports whether p names an existing regular file.
func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
