// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// directoryReaderBufferSize is a sequential read buffer for directory parsing.
const directoryReaderBufferSize = 64 * 1024

var (
	// directoryReaderPool reuses buffered readers for sequential directory parsing.
	directoryReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(bytes.NewReader(nil), directoryReaderBufferSize)
		},
	}
)

// detectVersion reads the first four bytes of an .img stream and reports V2 on "VER2" magic.
// Short or unreadable headers fall back to V1.
func detectVersion(ra io.ReaderAt) Version {
	var magic [4]byte
	if _, err := ra.ReadAt(magic[:], 0); err != nil {
		return V1
	}
	if magic == v2Magic {
		return V2
	}

	return V1
}

// decodeRecordV1 decodes a 32-byte V1 record: offset u32, size u32, name[24].
func decodeRecordV1(rec []byte) *Entry {
	return &Entry{
		OffsetSectors: binary.LittleEndian.Uint32(rec[0:4]),
		SizeSectors:   binary.LittleEndian.Uint32(rec[4:8]),
		Name:          DecodeName(rec[8:recordSize]),
	}
}

// decodeRecordV2 decodes a 32-byte V2 record: offset u32, streaming u16, size u16, name[24].
// A zero size field falls back to the streaming size.
func decodeRecordV2(rec []byte) *Entry {
	streaming := binary.LittleEndian.Uint16(rec[4:6])
	size := binary.LittleEndian.Uint16(rec[6:8])
	if size == 0 {
		size = streaming
	}

	return &Entry{
		OffsetSectors:        binary.LittleEndian.Uint32(rec[0:4]),
		StreamingSizeSectors: streaming,
		SizeSectors:          uint32(size),
		Name:                 DecodeName(rec[8:recordSize]),
	}
}

// readDirectoryV1 reads V1 records until EOF. A trailing partial record is ignored.
func readDirectoryV1(r io.Reader, sizeHint int64, logger *slog.Logger) ([]*Entry, error) {
	br := directoryReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(r)
	defer directoryReaderPool.Put(br)

	entries := make([]*Entry, 0, estimateEntryCapacity(sizeHint))
	var rec [recordSize]byte
	for {
		n, err := io.ReadFull(br, rec[:])
		if err == nil {
			entries = append(entries, decodeRecordV1(rec[:]))
			continue
		}
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logger.Warn("ignoring partial directory record", slog.Int("bytes", n), slog.Int("entries", len(entries)))
			return entries, nil
		}

		return nil, fmt.Errorf("%w: read directory: %w", ErrIO, err)
	}
}

// readDirectoryV2 reads the embedded V2 header and exactly count records.
func readDirectoryV2(ra io.ReaderAt, size int64) ([]*Entry, error) {
	if size < v2HeaderSize {
		return nil, fmt.Errorf("%w: short V2 header", ErrInvalidFormat)
	}

	var header [v2HeaderSize]byte
	if _, err := ra.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read V2 header: %w", ErrIO, err)
	}
	if [4]byte(header[0:4]) != v2Magic {
		return nil, fmt.Errorf("%w: missing VER2 magic", ErrInvalidFormat)
	}

	count := int64(binary.LittleEndian.Uint32(header[4:8]))
	tableLen := count * recordSize
	if tableLen > size-v2HeaderSize {
		return nil, fmt.Errorf("%w: %d entries do not fit %d-byte archive", ErrInvalidFormat, count, size)
	}

	sr := io.NewSectionReader(ra, v2HeaderSize, tableLen)
	br := directoryReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer directoryReaderPool.Put(br)

	entries := make([]*Entry, 0, count)
	var rec [recordSize]byte
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidFormat, i, err)
		}

		entries = append(entries, decodeRecordV2(rec[:]))
	}

	return entries, nil
}

// estimateEntryCapacity returns a conservative initial capacity for a V1 directory of known size.
func estimateEntryCapacity(dirBytes int64) int {
	const (
		minCap = 64
		maxCap = 1 << 16
	)

	if dirBytes <= 0 {
		return minCap
	}

	estimated := int(dirBytes / recordSize)
	if estimated < minCap {
		return minCap
	}
	if estimated > maxCap {
		return maxCap
	}

	return estimated
}

// validateEntryOffsets checks that entries start after the directory block and end inside the backing file.
func validateEntryOffsets(entries []*Entry, dataStartSector uint32, totalSize int64) error {
	for _, e := range entries {
		if e.OffsetSectors < dataStartSector {
			return fmt.Errorf("%w: entry %s starts at sector %d inside directory block", ErrInvalidEntryOffset, e.Name, e.OffsetSectors)
		}

		end, err := endSector(e.OffsetSectors, e.SizeSectors)
		if err != nil {
			return fmt.Errorf("%w: entry %s: %w", ErrInvalidEntryOffset, e.Name, err)
		}
		// The last entry may be stored unpadded, so compare against the file end rounded up.
		if end > ToSectors(totalSize) {
			return fmt.Errorf("%w: entry %s payload out of file bounds", ErrInvalidEntryOffset, e.Name)
		}
	}

	return nil
}
