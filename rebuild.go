// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"fmt"
	"log/slog"
)

// Rebuild repacks the archive: entries get sequential offsets right after the directory
// block in directory order, then the directory and every payload are written.
// Holes left by deletes are reclaimed and pending imports become durable.
// The write is all-or-nothing: if any payload cannot be read, the original files stay untouched
// and the in-memory archive is unchanged.
func (a *Archive) Rebuild(ctx context.Context, opts RebuildOptions) (*RebuildResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	opts.applyDefaults(a)
	if !opts.Version.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, opts.Version)
	}

	plan, err := planLayout(a.entries, opts.Version, false)
	if err != nil {
		return nil, err
	}

	if opts.Version != a.version {
		opts.Logger.Info("converting archive",
			slog.String("path", a.path),
			slog.String("from", a.version.String()),
			slog.String("to", opts.Version.String()),
		)
	}

	return a.commit(ctx, plan, commitSettings{
		logger:      opts.Logger,
		onEntryDone: opts.OnEntryDone,
		outPath:     opts.OutputPath,
		backupKeep:  opts.BackupKeep,
		bufferSize:  opts.WriterBufferSize,
	})
}

// Convert rebuilds the archive as version. An empty outputPath converts in place;
// converting V1 to V2 in place removes the now unused .dir file.
// V2 output fails with ErrSizeOverflow when an entry exceeds 65535 sectors.
func (a *Archive) Convert(ctx context.Context, version Version, outputPath string) (*RebuildResult, error) {
	if !version.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	return a.Rebuild(ctx, RebuildOptions{Version: version, OutputPath: outputPath})
}
