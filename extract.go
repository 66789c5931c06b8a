// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// exportWorkItem stores one selected entry with prepared output relative paths.
type exportWorkItem struct {
	entry   *Entry
	relPath string
	relDir  string
}

// ExportEntry writes the payload of e verbatim (sector-padded) to target.
// Exactly one of target.Path and target.Dir must be set. It returns the written path.
func (a *Archive) ExportEntry(e *Entry, target ExportTarget) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: nil entry", ErrInvalidArgument)
	}

	hasPath := strings.TrimSpace(target.Path) != ""
	hasDir := strings.TrimSpace(target.Dir) != ""
	if hasPath == hasDir {
		return "", fmt.Errorf("%w: export needs exactly one of output path or directory", ErrInvalidArgument)
	}

	outPath := target.Path
	if hasDir {
		rel, err := sanitizeEntryPaths([]*Entry{e})
		if err != nil {
			return "", err
		}

		outPath = filepath.Join(target.Dir, filepath.FromSlash(rel[0]))
	}

	data, err := a.ReadPayload(e)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", fmt.Errorf("%w: create output dir: %w", ErrIO, err)
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", ErrIO, outPath, err)
	}

	return outPath, nil
}

// ExportAll writes selected entries into dstDir using a bounded worker pool.
// Output names are sanitized and made unique. Per-entry failures are logged and collected;
// only context cancellation and setup failures are returned as error.
// OnEntryDone may be called concurrently.
func (a *Archive) ExportAll(ctx context.Context, dstDir string, opts ExportOptions) (*ExportResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	entries, err := a.selectForExport(opts)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{}
	if len(entries) == 0 {
		return res, nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrIO, err)
	}

	workItems, err := prepareExportWorkItems(entries)
	if err != nil {
		return nil, err
	}
	if err := prepareExportDirs(dstRootAbs, workItems); err != nil {
		return nil, err
	}

	var src io.ReaderAt
	if slices.ContainsFunc(entries, func(e *Entry) bool { return e.data == nil && e.source == nil }) {
		f, err := a.openBacking()
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		src = f
	}

	outPaths := make([]string, len(workItems))
	errs := make([]error, len(workItems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, task := range workItems {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outPaths[i], errs[i] = a.exportPreparedEntry(src, dstRootAbs, task, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, task := range workItems {
		if errs[i] != nil {
			opts.Logger.Warn("export failed", slog.String("entry", task.entry.Name), slog.Any("error", errs[i]))
			res.Failed = append(res.Failed, ItemError{Name: task.entry.Name, Err: errs[i]})
			continue
		}

		res.Exported = append(res.Exported, outPaths[i])
	}

	opts.Logger.Info("exported entries",
		slog.String("dir", dstRootAbs),
		slog.Int("exported", len(res.Exported)),
		slog.Int("failed", len(res.Failed)),
	)

	return res, nil
}

// ExportByType writes selected entries into one subdirectory per upper-cased type under dstDir.
// types limits the exported types; empty means all.
func (a *Archive) ExportByType(ctx context.Context, dstDir string, types []string, opts ExportOptions) (*ExportResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	opts.Types = types
	entries, err := a.selectForExport(opts)
	if err != nil {
		return nil, err
	}

	groups := groupByType(entries)
	res := &ExportResult{}
	for _, t := range slices.Sorted(maps.Keys(groups)) {
		groupOpts := opts
		groupOpts.Types = nil
		groupOpts.Entries = groups[t]

		part, err := a.ExportAll(ctx, filepath.Join(dstDir, sanitizeTypeDir(t)), groupOpts)
		if err != nil {
			return nil, err
		}

		res.Exported = append(res.Exported, part.Exported...)
		res.Failed = append(res.Failed, part.Failed...)
	}

	return res, nil
}

// selectForExport applies the entry selection and type filter of opts.
func (a *Archive) selectForExport(opts ExportOptions) ([]*Entry, error) {
	entries := a.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	matcher, err := newTypeMatcher(opts.Types)
	if err != nil {
		return nil, err
	}
	if matcher == nil {
		return slices.Clone(entries), nil
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if matcher.Match(e.Name) {
			out = append(out, e)
		}
	}

	return out, nil
}

// groupByType groups entries by Type preserving order inside each group.
func groupByType(entries []*Entry) map[string][]*Entry {
	groups := make(map[string][]*Entry)
	for _, e := range entries {
		t := e.Type()
		groups[t] = append(groups[t], e)
	}

	return groups
}

// sanitizeTypeDir maps a type tag to a safe directory name.
func sanitizeTypeDir(t string) string {
	return sanitizePathSegment(t)
}

// prepareExportWorkItems sanitizes entry names and prepares relative fs paths.
func prepareExportWorkItems(entries []*Entry) ([]exportWorkItem, error) {
	rels, err := sanitizeEntryPaths(entries)
	if err != nil {
		return nil, err
	}

	workItems := make([]exportWorkItem, 0, len(entries))
	for i, e := range entries {
		relPath := filepath.FromSlash(rels[i])
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, exportWorkItem{
			entry:   e,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, nil
}

// prepareExportDirs creates all unique parent directories needed by work items.
func prepareExportDirs(dstRootAbs string, workItems []exportWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("%w: create output directory %s: %w", ErrIO, dirPath, err)
		}
	}

	return nil
}

// exportPreparedEntry writes one prepared work item to destination root.
func (a *Archive) exportPreparedEntry(src io.ReaderAt, dstRootAbs string, task exportWorkItem, opts ExportOptions) (string, error) {
	outPath := filepath.Join(dstRootAbs, task.relPath)

	var r io.Reader
	e := task.entry
	switch {
	case e.data != nil || e.source != nil:
		rc, err := a.OpenPayload(e)
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()

		r = rc
	default:
		r = a.sectionReader(src, e)
	}

	file, err := openExtractFile(outPath, opts.FileMode)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrIO, outPath, err)
	}

	copyBuf, release := acquireCopyBuffer()
	defer release()

	written, copyErr := io.CopyBuffer(onlyWriter{file}, r, copyBuf)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("write %s: %w", e.Name, copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrIO, outPath, closeErr)
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(e, written, outPath)
	}

	return outPath, nil
}

// onlyWriter hides ReadFrom so io.CopyBuffer uses the provided buffer.
type onlyWriter struct {
	io.Writer
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, nil
		}

		if !os.IsExist(err) {
			return nil, err
		}

		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("%w: unknown extract file mode %q", ErrInvalidArgument, mode)
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
