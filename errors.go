// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"errors"
	"fmt"
)

// Sentinel errors for IMG operations. Use errors.Is in callers.
var (
	// ErrFileNotFound means the requested archive, sibling or import source does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrArchiveNotFound means the V1 directory sibling (.dir) of an archive is missing.
	ErrArchiveNotFound = fmt.Errorf("%w: archive directory", ErrFileNotFound)
	// ErrInvalidFormat means a directory record is malformed or the entry count is inconsistent.
	ErrInvalidFormat = errors.New("invalid IMG format")
	// ErrIO means a read or write failed, including payload reads that run past EOF.
	ErrIO = errors.New("IMG I/O error")
	// ErrInvalidArgument means parameters are missing or conflict with each other.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEntryNotFound means the entry is not present in the archive.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrSizeOverflow means a size or offset does not fit the on-disk field width.
	ErrSizeOverflow = errors.New("size exceeds IMG field limit")
	// ErrInvalidEntryOffset means an entry overlaps the directory block or runs past the backing file.
	ErrInvalidEntryOffset = errors.New("invalid entry offset")
	// ErrInvalidExtractPath means the entry name cannot be mapped to a path inside the destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrUnknownVersion means the archive version is neither V1 nor V2.
	ErrUnknownVersion = errors.New("unknown IMG version")
	// ErrArchiveClosed means the archive was closed and holds no backing paths anymore.
	ErrArchiveClosed = errors.New("archive is closed")
	// ErrNoArchiveOpen means an engine operation needs an active archive and none is open.
	ErrNoArchiveOpen = errors.New("no IMG archive is currently open")
	// ErrNothingSelected means a selection-scoped operation ran with an empty selection.
	ErrNothingSelected = errors.New("no entries selected")
	// ErrNotSupported means the operation is not implemented for IMG archives.
	ErrNotSupported = errors.New("operation not supported")
)

// OpError reports which engine operation failed and why.
type OpError struct {
	// Op is a short operation name like "open" or "rebuild".
	Op string
	// Path is the archive path the operation ran against, when known.
	Path string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("operation %s failed on %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// ItemError is one failed item of a batch operation.
type ItemError struct {
	// Name is the entry name or source path of the failed item.
	Name string `json:"name" yaml:"name"`
	// Err is the failure reason.
	Err error `json:"-" yaml:"-"`
}

// Error implements error.
func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Unwrap returns the failure reason.
func (e ItemError) Unwrap() error {
	return e.Err
}

// wrapOp wraps err into *OpError unless it is nil or one of the engine state errors.
func wrapOp(op string, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoArchiveOpen) || errors.Is(err, ErrNothingSelected) {
		return err
	}

	return &OpError{Op: op, Path: path, Err: err}
}
