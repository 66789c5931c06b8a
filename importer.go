// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ImportPreviewItem describes what importing one file would produce.
type ImportPreviewItem struct {
	// Err is the validation failure; nil when the file can be imported.
	Err error `json:"-" yaml:"-"`
	// Path is the source file path.
	Path string `json:"path" yaml:"path"`
	// Name is the entry name as it will be stored.
	Name string `json:"name" yaml:"name"`
	// Size is the source length in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Sectors is the entry length in sectors.
	Sectors uint32 `json:"sectors" yaml:"sectors"`
	// Replaces reports that an entry with the same name already exists.
	Replaces bool `json:"replaces,omitempty" yaml:"replaces,omitempty"`
}

// ImportFile adds a file from disk as a new entry, or replaces a same-named entry
// when opts.Replace is set. The payload is read from src on the next save.
// New entries are placed at last.offset+last.size; an empty archive starts right
// after the directory block (V2) or at sector zero (V1).
func (a *Archive) ImportFile(src string, opts ImportOptions) (*Entry, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	size, err := a.ValidateImportFile(src)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(src)
	}

	e, err := a.addEntry(name, size, opts)
	if err != nil {
		return nil, err
	}

	e.source = fileSource(src, size)
	a.logger.Debug("imported file", slog.String("source", src), slog.String("entry", e.Name), slog.Uint64("sectors", uint64(e.SizeSectors)))
	return e, nil
}

// ImportData adds in-memory bytes as an entry.
func (a *Archive) ImportData(name string, data []byte, opts ImportOptions) (*Entry, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}

	e, err := a.addEntry(name, int64(len(data)), opts)
	if err != nil {
		return nil, err
	}

	e.data = data
	return e, nil
}

// ImportFiles imports files in order. names optionally overrides entry names and must
// then match paths in length. Per-file failures are collected, not returned.
func (a *Archive) ImportFiles(paths []string, names []string, opts ImportOptions) (*ImportResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if len(names) > 0 && len(names) != len(paths) {
		return nil, fmt.Errorf("%w: %d names for %d files", ErrInvalidArgument, len(names), len(paths))
	}

	res := &ImportResult{}
	for i, p := range paths {
		itemOpts := opts
		itemOpts.Name = ""
		if len(names) > 0 {
			itemOpts.Name = names[i]
		}

		e, err := a.ImportFile(p, itemOpts)
		if err != nil {
			a.logger.Warn("import failed", slog.String("source", p), slog.Any("error", err))
			res.Failed = append(res.Failed, ItemError{Name: p, Err: err})
			continue
		}

		res.Imported = append(res.Imported, e)
	}

	return res, nil
}

// ImportFolder imports regular files of dir. Without Recursive only top-level files are
// imported; with it entries are named by their slash-separated path relative to dir.
// Extensions filter files case- and dot-insensitively.
func (a *Archive) ImportFolder(ctx context.Context, dir string, opts FolderOptions) (*ImportResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
		}

		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidArgument, dir)
	}

	matcher, err := newTypeMatcher(opts.Extensions)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Failed = append(res.Failed, ItemError{Name: p, Err: fmt.Errorf("%w: %w", ErrIO, err)})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if p != dir && !opts.Recursive {
				return fs.SkipDir
			}

			return nil
		}
		if !d.Type().IsRegular() || !matcher.Match(d.Name()) {
			return nil
		}

		name := d.Name()
		if opts.Recursive {
			rel, relErr := filepath.Rel(dir, p)
			if relErr == nil {
				name = NormalizePath(filepath.ToSlash(rel))
			}
		}

		itemOpts := opts.ImportOptions
		itemOpts.Name = name
		e, importErr := a.ImportFile(p, itemOpts)
		if importErr != nil {
			a.logger.Warn("import failed", slog.String("source", p), slog.Any("error", importErr))
			res.Failed = append(res.Failed, ItemError{Name: p, Err: importErr})
			return nil
		}

		res.Imported = append(res.Imported, e)
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(e, p)
		}

		return nil
	})
	if walkErr != nil {
		return res, walkErr
	}

	a.logger.Info("imported folder",
		slog.String("dir", dir),
		slog.Int("imported", len(res.Imported)),
		slog.Int("failed", len(res.Failed)),
	)

	return res, nil
}

// ValidateImportFile checks that path is a readable regular file whose size fits the archive version.
// It returns the file size.
func (a *Archive) ValidateImportFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}

		return 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", ErrInvalidArgument, path)
	}
	if _, err := checkedSectors(a.version, filepath.Base(path), info.Size()); err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// ImportPreview reports how files would be imported without changing the archive.
func (a *Archive) ImportPreview(paths []string) []ImportPreviewItem {
	out := make([]ImportPreviewItem, 0, len(paths))
	for _, p := range paths {
		item := ImportPreviewItem{Path: p, Name: TruncateName(filepath.Base(p))}
		size, err := a.ValidateImportFile(p)
		if err != nil {
			item.Err = err
			out = append(out, item)
			continue
		}

		item.Size = size
		item.Sectors = ToSectors(size)
		item.Replaces = a.HasEntry(item.Name)
		out = append(out, item)
	}

	return out
}

// addEntry appends a new entry of byteLen bytes or, with opts.Replace, resizes a same-named one.
// The caller attaches the payload.
func (a *Archive) addEntry(name string, byteLen int64, opts ImportOptions) (*Entry, error) {
	stored := TruncateName(name)
	if stored == "" {
		return nil, fmt.Errorf("%w: empty entry name", ErrInvalidArgument)
	}

	sectors, err := checkedSectors(a.version, stored, byteLen)
	if err != nil {
		return nil, err
	}

	if opts.Replace {
		if existing := a.FindByName(stored); existing != nil {
			return a.replaceEntry(existing, sectors, opts)
		}
	}

	offset, err := a.nextOffset()
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Name:          stored,
		OffsetSectors: offset,
		SizeSectors:   sectors,
		Compressed:    opts.Compressed,
		isNew:         true,
	}
	if a.version == V2 {
		e.StreamingSizeSectors = clampStreaming(sectors)
	}

	a.appendEntry(e)
	return e, nil
}

// replaceEntry reuses existing for a new payload of sectors length.
// The slot is kept when the payload still fits, otherwise the entry moves to the append position.
func (a *Archive) replaceEntry(existing *Entry, sectors uint32, opts ImportOptions) (*Entry, error) {
	if sectors > existing.SizeSectors {
		offset, err := a.nextOffset()
		if err != nil {
			return nil, err
		}

		existing.OffsetSectors = offset
	}

	existing.SizeSectors = sectors
	if a.version == V2 {
		existing.StreamingSizeSectors = clampStreaming(sectors)
	}
	existing.Compressed = opts.Compressed
	existing.data = nil
	existing.source = nil
	existing.format = nil
	existing.isNew = true
	a.dirty = true

	a.logger.Debug("replaced entry", slog.String("entry", existing.Name), slog.Uint64("sectors", uint64(sectors)))
	return existing, nil
}

// nextOffset returns the append position: the highest entry end, or the first data sector of an empty archive.
// Restored entries keep their old offsets, so the directory-last entry does not always end last.
func (a *Archive) nextOffset() (uint32, error) {
	if len(a.entries) == 0 {
		return DirectorySectors(a.version, 1), nil
	}

	var next uint32
	for _, e := range a.entries {
		end, err := endSector(e.OffsetSectors, e.SizeSectors)
		if err != nil {
			return 0, err
		}

		next = max(next, end)
	}

	return next, nil
}
