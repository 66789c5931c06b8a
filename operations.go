// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// MergeOptions configures Merge.
type MergeOptions struct {
	// Logger receives diagnostics; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Version of the merged archive; VersionUnknown uses the first source version.
	Version Version `json:"version,omitempty" yaml:"version,omitempty"`
	// BackupKeep has the same meaning as in SaveOptions.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// MergeResult describes a merged archive.
type MergeResult struct {
	// Archive is the merged archive, opened on the output path.
	Archive *Archive `json:"-" yaml:"-"`
	// Written contains write statistics.
	Written *RebuildResult `json:"written" yaml:"written"`
	// Skipped lists names dropped because an earlier source already had them.
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Merge writes the entries of all sources, in source order, into a new archive at outPath.
// When names collide (case-insensitive) the first occurrence wins.
// Sources are read, never modified, and must stay open until Merge returns.
func Merge(ctx context.Context, sources []*Archive, outPath string, opts MergeOptions) (*MergeResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no archives to merge", ErrInvalidArgument)
	}
	if strings.TrimSpace(outPath) == "" {
		return nil, fmt.Errorf("%w: empty output path", ErrInvalidArgument)
	}
	for _, src := range sources {
		if err := src.ensureOpen(); err != nil {
			return nil, err
		}
	}

	version := opts.Version
	if version == VersionUnknown {
		version = sources[0].version
	}

	out := newArchive(ImgPath(outPath), version, OpenOptions{Logger: opts.Logger, Detector: sources[0].detector})
	res := &MergeResult{Archive: out}
	seen := make(map[string]struct{})
	for _, src := range sources {
		for _, e := range src.entries {
			key := nameKey(e.Name)
			if _, dup := seen[key]; dup {
				res.Skipped = append(res.Skipped, e.Name)
				out.logger.Debug("skip duplicate entry", slog.String("entry", e.Name), slog.String("source", src.path))
				continue
			}

			seen[key] = struct{}{}
			out.entries = append(out.entries, cloneForWrite(src, e))
		}
	}

	written, err := out.writeFresh(ctx, opts.BackupKeep)
	if err != nil {
		return nil, err
	}

	res.Written = written
	return res, nil
}

// Split writes the entries of a into several new archives under dir.
// ByType produces "<base>_<TYPE>.img" per entry type; otherwise entries are grouped in
// directory order into "<base>_partN.img" files holding at most MaxSize payload bytes
// (a single larger entry gets its own part).
func (a *Archive) Split(ctx context.Context, dir string, opts SplitOptions) ([]*RebuildResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if !opts.ByType && opts.MaxSize <= 0 {
		return nil, fmt.Errorf("%w: split needs ByType or a positive MaxSize", ErrInvalidArgument)
	}

	version := opts.Version
	if version == VersionUnknown {
		version = a.version
	}

	base := strings.TrimSuffix(filepath.Base(a.path), filepath.Ext(a.path))
	var groups [][]*Entry
	var names []string
	if opts.ByType {
		byType := groupByType(a.entries)
		for _, t := range slices.Sorted(maps.Keys(byType)) {
			groups = append(groups, byType[t])
			names = append(names, base+"_"+sanitizeTypeDir(t)+extIMG)
		}
	} else {
		groups = splitBySize(a.entries, opts.MaxSize)
		for i := range groups {
			names = append(names, base+"_part"+strconv.Itoa(i+1)+extIMG)
		}
	}

	results := make([]*RebuildResult, 0, len(groups))
	for i, group := range groups {
		part := newArchive(filepath.Join(dir, names[i]), version, OpenOptions{Logger: a.logger, Detector: a.detector})
		for _, e := range group {
			part.entries = append(part.entries, cloneForWrite(a, e))
		}

		res, err := part.writeFresh(ctx, 0)
		if err != nil {
			return results, fmt.Errorf("write %s: %w", names[i], err)
		}

		results = append(results, res)
	}

	a.logger.Info("split archive", slog.String("path", a.path), slog.Int("parts", len(results)))
	return results, nil
}

// Compress is not supported: IMG archives have no compression encoding.
func (a *Archive) Compress(context.Context) error {
	return fmt.Errorf("%w: compress", ErrNotSupported)
}

// writeFresh packs a newly assembled archive to its path.
func (a *Archive) writeFresh(ctx context.Context, backupKeep int) (*RebuildResult, error) {
	plan, err := planLayout(a.entries, a.version, false)
	if err != nil {
		return nil, err
	}

	return a.commit(ctx, plan, commitSettings{logger: a.logger, backupKeep: backupKeep})
}

// cloneForWrite copies e for writing into another archive; its payload streams from src.
func cloneForWrite(src *Archive, e *Entry) *Entry {
	source := sectionSource(src, e)
	out := &Entry{
		Name:        e.Name,
		Compressed:  e.Compressed,
		SizeSectors: ToSectors(source.size),
		source:      source,
		isNew:       true,
	}
	if e.format != nil {
		info := *e.format
		out.format = &info
	}

	return out
}

// splitBySize groups entries in order so each group stays within maxSize bytes.
func splitBySize(entries []*Entry, maxSize int64) [][]*Entry {
	var groups [][]*Entry
	var current []*Entry
	var currentSize int64
	for _, e := range entries {
		size := e.ActualSize()
		if len(current) > 0 && currentSize+size > maxSize {
			groups = append(groups, current)
			current = nil
			currentSize = 0
		}

		current = append(current, e)
		currentSize += size
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}
