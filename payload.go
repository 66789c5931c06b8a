// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// fileReadCloser closes the owned file together with the section reader.
type fileReadCloser struct {
	io.Reader
	file *os.File
}

// Close closes the underlying file.
func (f fileReadCloser) Close() error {
	return f.file.Close()
}

// ReadPayload returns the payload bytes of e.
// Resident bytes are returned as is, imported sources are read fully,
// other entries read ActualSize bytes from the backing file at ActualOffset.
// A backing-file read that runs past EOF fails with ErrIO.
func (a *Archive) ReadPayload(e *Entry) ([]byte, error) {
	if e != nil && (e.data != nil || e.source != nil) {
		return a.ReadPayloadAt(nil, e)
	}
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	f, err := a.openBacking()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return a.ReadPayloadAt(f, e)
}

// ReadPayloadAt is ReadPayload over an already opened backing file handle.
func (a *Archive) ReadPayloadAt(ra io.ReaderAt, e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrInvalidArgument)
	}

	switch {
	case e.data != nil:
		return e.data, nil
	case e.source != nil:
		return readSource(e)
	case ra == nil:
		return nil, fmt.Errorf("%w: nil backing reader", ErrInvalidArgument)
	}

	buf := make([]byte, e.ActualSize())
	n, err := ra.ReadAt(buf, e.ActualOffset())
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return nil, fmt.Errorf("%w: entry %s: read %d of %d bytes at offset %d: %w",
		ErrIO, e.Name, n, len(buf), e.ActualOffset(), err)
}

// OpenPayload opens a payload stream of e. Backing-file streams are bounded by ActualSize
// and fail with ErrIO when the file ends early.
func (a *Archive) OpenPayload(e *Entry) (io.ReadCloser, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrInvalidArgument)
	}

	switch {
	case e.data != nil:
		return nopCloser{Reader: bytes.NewReader(e.data)}, nil
	case e.source != nil:
		return openSource(e)
	}

	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	f, err := a.openBacking()
	if err != nil {
		return nil, err
	}

	return fileReadCloser{Reader: a.sectionReader(f, e), file: f}, nil
}

// AnalyzeEntry reads the payload header of e and caches detected format info.
func (a *Archive) AnalyzeEntry(e *Entry) (FormatInfo, error) {
	if e.data != nil || e.source != nil {
		header, err := a.readHeader(nil, e)
		if err != nil {
			return FormatInfo{}, err
		}

		return e.Analyze(a.detector, header), nil
	}
	if err := a.ensureOpen(); err != nil {
		return FormatInfo{}, err
	}

	f, err := a.openBacking()
	if err != nil {
		return FormatInfo{}, err
	}
	defer func() { _ = f.Close() }()

	header, err := a.readHeader(f, e)
	if err != nil {
		return FormatInfo{}, err
	}

	return e.Analyze(a.detector, header), nil
}

// AnalyzeAll runs format detection over every entry that has no cached result.
// Entries that cannot be read are logged and left un-analyzed.
func (a *Archive) AnalyzeAll() (int, error) {
	if err := a.ensureOpen(); err != nil {
		return 0, err
	}

	var ra io.ReaderAt
	if f, err := a.openBacking(); err == nil {
		defer func() { _ = f.Close() }()
		ra = f
	} else {
		a.logger.Warn("backing file unavailable for analysis", slog.String("path", a.path), slog.Any("error", err))
	}

	analyzed := 0
	for _, e := range a.entries {
		if e.format != nil {
			continue
		}

		header, err := a.readHeader(ra, e)
		if err != nil {
			a.logger.Debug("skip entry analysis", slog.String("entry", e.Name), slog.Any("error", err))
			continue
		}

		e.Analyze(a.detector, header)
		analyzed++
	}

	return analyzed, nil
}

// readHeader reads up to headerPeekLen payload bytes of e.
func (a *Archive) readHeader(ra io.ReaderAt, e *Entry) ([]byte, error) {
	switch {
	case e.data != nil:
		return e.data[:min(len(e.data), headerPeekLen)], nil
	case e.source != nil:
		rc, err := openSource(e)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()

		header := make([]byte, headerPeekLen)
		n, err := io.ReadFull(rc, header)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %s: %w", ErrIO, e.source.origin, err)
		}

		return header[:n], nil
	case ra == nil:
		return nil, fmt.Errorf("%w: nil backing reader", ErrInvalidArgument)
	}

	header := make([]byte, min(e.ActualSize(), headerPeekLen))
	n, err := ra.ReadAt(header, e.ActualOffset())
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: entry %s header: %w", ErrIO, e.Name, err)
	}

	return header[:n], nil
}

// openBacking opens the payload file of the archive.
func (a *Archive) openBacking() (*os.File, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, a.path)
		}

		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, a.path, err)
	}

	return f, nil
}

// sectionReader returns a strict reader over the on-disk payload range of e.
func (a *Archive) sectionReader(ra io.ReaderAt, e *Entry) io.Reader {
	return &strictReader{
		r:    io.NewSectionReader(ra, e.ActualOffset(), e.ActualSize()),
		want: e.ActualSize(),
		name: e.Name,
	}
}

// strictReader turns an early EOF of a bounded section into ErrIO.
type strictReader struct {
	r    io.Reader
	name string
	want int64
	got  int64
}

// Read implements io.Reader.
func (s *strictReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.got += int64(n)
	if errors.Is(err, io.EOF) && s.got < s.want {
		return n, fmt.Errorf("%w: entry %s: read %d of %d bytes: %w", ErrIO, s.name, s.got, s.want, io.ErrUnexpectedEOF)
	}

	return n, err
}

// openSource opens the external payload source of e.
func openSource(e *Entry) (io.ReadCloser, error) {
	rc, err := e.source.open()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, e.source.origin)
		}

		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, e.source.origin, err)
	}

	return rc, nil
}

// readSource reads the whole external payload of e and checks its length.
func readSource(e *Entry) ([]byte, error) {
	rc, err := openSource(e)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	buf.Grow(int(e.source.size))
	n, err := copyPayloadBounded(&buf, rc, e.source.size, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, e.source.origin, err)
	}
	if n != e.source.size {
		return nil, fmt.Errorf("%w: read %s: %d of %d bytes: %w", ErrIO, e.source.origin, n, e.source.size, io.ErrUnexpectedEOF)
	}

	return buf.Bytes(), nil
}

// fileSource builds a payload source over a file on disk.
func fileSource(path string, size int64) *payloadSource {
	return &payloadSource{
		origin: path,
		size:   size,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// sectionSource builds a payload source over an entry of another archive.
func sectionSource(src *Archive, e *Entry) *payloadSource {
	if e.data != nil {
		data := e.data
		return &payloadSource{
			origin: e.Name,
			size:   int64(len(data)),
			open: func() (io.ReadCloser, error) {
				return nopCloser{Reader: bytes.NewReader(data)}, nil
			},
		}
	}
	if e.source != nil {
		return e.source
	}

	return &payloadSource{
		origin: src.path + ":" + e.Name,
		size:   e.ActualSize(),
		open: func() (io.ReadCloser, error) {
			return src.OpenPayload(e)
		},
	}
}
