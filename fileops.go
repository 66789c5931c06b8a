// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Open opens an IMG archive by its .img (or V1 .dir) path and decodes the directory.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions opens an IMG archive using explicit open options.
// A missing data file fails with ErrFileNotFound, a missing V1 .dir sibling with ErrArchiveNotFound.
func OpenWithOptions(path string, opts OpenOptions) (*Archive, error) {
	opts.applyDefaults()

	imgPath := ImgPath(strings.TrimSpace(path))
	if imgPath == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrInvalidArgument)
	}

	f, size, err := openFileWithSize(imgPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	version := detectVersion(f)
	a := newArchive(imgPath, version, opts)

	switch version {
	case V2:
		a.entries, err = readDirectoryV2(f, size)
	default:
		a.entries, err = readDirectoryFile(a.dirPath, a.logger)
	}
	if err != nil {
		return nil, err
	}

	if opts.Strict {
		if err := validateEntryOffsets(a.entries, DirectorySectors(version, len(a.entries)), size); err != nil {
			return nil, err
		}
	}

	a.logger.Debug("opened archive",
		slog.String("path", imgPath),
		slog.String("version", version.String()),
		slog.Int("entries", len(a.entries)),
	)

	if opts.Analyze {
		if _, err := a.AnalyzeAll(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// readDirectoryFile reads a V1 .dir file.
func readDirectoryFile(dirPath string, logger *slog.Logger) ([]*Entry, error) {
	f, size, err := openFileWithSize(dirPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, dirPath)
		}

		return nil, err
	}
	defer func() { _ = f.Close() }()

	return readDirectoryV1(f, size, logger)
}

// Create writes a new empty archive and returns it opened.
// V1 produces an empty .img and an empty .dir, V2 a single .img holding the "VER2" header.
// Existing files at the target paths are replaced.
func Create(path string, version Version) (*Archive, error) {
	return CreateWithOptions(path, version, OpenOptions{})
}

// CreateWithOptions is Create with explicit archive options.
func CreateWithOptions(path string, version Version, opts OpenOptions) (*Archive, error) {
	if !version.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	imgPath := ImgPath(strings.TrimSpace(path))
	if imgPath == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrInvalidArgument)
	}

	a := newArchive(imgPath, version, opts)
	plan, err := planLayout(nil, version, false)
	if err != nil {
		return nil, err
	}

	if _, err := a.commit(context.Background(), plan, commitSettings{logger: a.logger}); err != nil {
		return nil, err
	}

	a.dirty = true
	a.logger.Debug("created archive", slog.String("path", imgPath), slog.String("version", version.String()))
	return a, nil
}

// Save writes the full directory and every payload of the archive.
// Current offsets are kept when they form a valid layout; otherwise entries are packed
// sequentially. The write goes to temp files that replace the targets only on success.
func (a *Archive) Save(ctx context.Context, opts SaveOptions) (*RebuildResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	opts.applyDefaults(a)
	plan, err := planLayout(a.entries, a.version, true)
	if err != nil {
		return nil, err
	}
	if plan.repacked {
		opts.Logger.Info("entry layout is not valid, packing sequentially", slog.String("path", a.path))
	}

	return a.commit(ctx, plan, commitSettings{
		logger:      opts.Logger,
		onEntryDone: opts.OnEntryDone,
		outPath:     opts.OutputPath,
		backupKeep:  opts.BackupKeep,
		bufferSize:  opts.WriterBufferSize,
	})
}

// commitSettings carries shared options of Save, Rebuild and Create.
type commitSettings struct {
	logger      *slog.Logger
	onEntryDone func(*Entry)
	outPath     string
	backupKeep  int
	bufferSize  int
}

// commit writes plan to temp files, swaps them in place and rebinds the archive to the output.
// On any failure the previous files stay untouched and the archive is not modified.
func (a *Archive) commit(ctx context.Context, plan *writePlan, s commitSettings) (*RebuildResult, error) {
	startedAt := time.Now()
	if s.logger == nil {
		s.logger = a.logger
	}

	outPath := a.path
	if strings.TrimSpace(s.outPath) != "" {
		outPath = ImgPath(strings.TrimSpace(s.outPath))
	}

	dirOutPath := ""
	if plan.version == V1 {
		dirOutPath = DirPath(outPath)
	}

	var src io.ReaderAt
	if plan.needsBacking() {
		f, err := a.openBacking()
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		src = f
	}

	imgTmp, err := createTempSibling(outPath)
	if err != nil {
		return nil, err
	}

	pending := []pendingFile{{tmp: imgTmp.Name(), target: outPath}}
	var dirOut io.Writer
	var dirTmp *os.File
	if dirOutPath != "" {
		dirTmp, err = createTempSibling(dirOutPath)
		if err != nil {
			_ = imgTmp.Close()
			discardPending(pending)
			return nil, err
		}

		pending = append(pending, pendingFile{tmp: dirTmp.Name(), target: dirOutPath})
		dirOut = dirTmp
	}

	writeErr := writeArchiveData(ctx, plan, src, imgTmp, dirOut, archiveWriteOptions{
		onEntryDone: s.onEntryDone,
		bufferSize:  s.bufferSize,
	})
	if writeErr == nil {
		writeErr = finishTemp(imgTmp)
	} else {
		_ = imgTmp.Close()
	}
	if dirTmp != nil {
		if writeErr == nil {
			writeErr = finishTemp(dirTmp)
		} else {
			_ = dirTmp.Close()
		}
	}
	if writeErr != nil {
		discardPending(pending)
		return nil, writeErr
	}

	if err := commitPending(pending, s.backupKeep); err != nil {
		return nil, err
	}

	// A V1 archive rewritten as V2 in place leaves its .dir sibling behind.
	if a.version == V1 && plan.version == V2 && a.dirPath != "" && samePath(a.path, outPath) {
		if err := removeIfExists(a.dirPath); err != nil {
			s.logger.Warn("stale directory file left", slog.String("path", a.dirPath), slog.Any("error", err))
		}
	}

	plan.apply()
	a.path = outPath
	a.dirPath = dirOutPath
	a.version = plan.version
	a.deleted = nil
	a.dirty = false

	res := &RebuildResult{
		Path:             outPath,
		DirPath:          dirOutPath,
		Version:          plan.version,
		Entries:          len(plan.items),
		DirectorySectors: plan.dirSectors,
		DataSectors:      plan.dataSectors(),
		Repacked:         plan.repacked,
		Duration:         time.Since(startedAt),
	}

	s.logger.Info("archive written",
		slog.String("path", res.Path),
		slog.String("version", res.Version.String()),
		slog.Int("entries", res.Entries),
		slog.Bool("repacked", res.Repacked),
		slog.Duration("duration", res.Duration),
	)

	return res, nil
}

// needsBacking reports whether any planned payload is read from the current backing file.
func (p *writePlan) needsBacking() bool {
	for _, item := range p.items {
		if item.size > 0 && item.entry.data == nil && item.entry.source == nil {
			return true
		}
	}

	return false
}

// samePath reports whether two archive paths resolve to the same canonical file.
func samePath(a string, b string) bool {
	ca, errA := canonicalPath(a)
	cb, errB := canonicalPath(b)
	if errA != nil || errB != nil {
		return a == b
	}

	return ca == cb
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}

		return nil, 0, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	return f, fi.Size(), nil
}
