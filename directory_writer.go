// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

var (
	// defaultArchiveWriterPool reuses default-sized bufio writers between writes.
	defaultArchiveWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// copyBufferPool reuses payload copy buffers between writes.
	copyBufferPool = sync.Pool{
		New: func() any {
			return new([copyBufferSize]byte)
		},
	}
)

// copyBufferSize is per-write temporary buffer used by streaming payload copy.
const copyBufferSize = 64 * 1024

// zeroSector is the padding source for gaps and partial trailing sectors.
var zeroSector [SectorSize]byte

// WriteDirectory encodes the directory of entries as they are.
// V2 emits "VER2", the u32 count and the records; V1 emits the bare .dir records.
// Payload bytes are not written.
func WriteDirectory(w io.Writer, version Version, entries []*Entry) error {
	plan := &writePlan{version: version, items: make([]placement, len(entries))}
	for i, e := range entries {
		plan.items[i] = placement{
			entry:     e,
			offset:    e.OffsetSectors,
			size:      e.SizeSectors,
			streaming: e.StreamingSizeSectors,
		}
	}

	return writeDirectory(w, plan)
}

// writeDirectory encodes plan records in directory order.
func writeDirectory(w io.Writer, plan *writePlan) error {
	switch plan.version {
	case V2:
		if uint64(len(plan.items)) > math.MaxUint32 {
			return fmt.Errorf("%w: %d entries", ErrSizeOverflow, len(plan.items))
		}

		var header [v2HeaderSize]byte
		copy(header[0:4], v2Magic[:])
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(plan.items))) //nolint:gosec // checked above
		if _, err := w.Write(header[:]); err != nil {
			return fmt.Errorf("%w: write V2 header: %w", ErrIO, err)
		}
	case V1:
	default:
		return ErrUnknownVersion
	}

	var rec [recordSize]byte
	for _, item := range plan.items {
		if err := encodeRecord(rec[:], plan.version, item); err != nil {
			return err
		}
		if _, err := w.Write(rec[:]); err != nil {
			return fmt.Errorf("%w: write record %s: %w", ErrIO, item.entry.Name, err)
		}
	}

	return nil
}

// encodeRecord fills one 32-byte directory record.
func encodeRecord(rec []byte, version Version, item placement) error {
	binary.LittleEndian.PutUint32(rec[0:4], item.offset)
	if version == V2 {
		if item.size > maxV2Sectors {
			return fmt.Errorf("%w: entry %s has %d sectors, V2 allows %d", ErrSizeOverflow, item.entry.Name, item.size, maxV2Sectors)
		}

		binary.LittleEndian.PutUint16(rec[4:6], item.streaming)
		binary.LittleEndian.PutUint16(rec[6:8], uint16(item.size)) //nolint:gosec // checked above
	} else {
		binary.LittleEndian.PutUint32(rec[4:8], item.size)
	}

	name := EncodeName(item.entry.Name)
	copy(rec[8:recordSize], name[:])
	return nil
}

// archiveWriteOptions carries tuning for writeArchiveData.
type archiveWriteOptions struct {
	onEntryDone func(*Entry)
	bufferSize  int
}

// writeArchiveData writes a planned archive: the V2 directory block or the V1 .dir records,
// then every payload at its planned offset with zero padding up to the sector boundary.
// Backing-file payloads are read from src; dirOut is used only for V1.
func writeArchiveData(
	ctx context.Context,
	plan *writePlan,
	src io.ReaderAt,
	imgOut io.Writer,
	dirOut io.Writer,
	opts archiveWriteOptions,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w, releaseWriter := acquireArchiveWriter(imgOut, opts.bufferSize)
	defer releaseWriter()

	var pos int64
	switch plan.version {
	case V2:
		if err := writeDirectory(w, plan); err != nil {
			return err
		}

		pos = v2HeaderSize + int64(len(plan.items))*recordSize
		if err := writeZeros(w, ToBytes(plan.dirSectors)-pos); err != nil {
			return err
		}

		pos = ToBytes(plan.dirSectors)
	case V1:
		dw := bufio.NewWriter(dirOut)
		if err := writeDirectory(dw, plan); err != nil {
			return err
		}
		if err := dw.Flush(); err != nil {
			return fmt.Errorf("%w: flush directory: %w", ErrIO, err)
		}
	default:
		return ErrUnknownVersion
	}

	copyBuf, releaseCopyBuffer := acquireCopyBuffer()
	defer releaseCopyBuffer()

	for _, idx := range plan.offsetOrder() {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := plan.items[idx]
		if item.size == 0 {
			continue
		}

		start := ToBytes(item.offset)
		if start < pos {
			return fmt.Errorf("%w: entry %s overlaps previous payload", ErrInvalidEntryOffset, item.entry.Name)
		}
		if err := writeZeros(w, start-pos); err != nil {
			return err
		}

		if err := writeEntryPayload(w, src, item, copyBuf); err != nil {
			return err
		}

		pos = start + ToBytes(item.size)
		if opts.onEntryDone != nil {
			opts.onEntryDone(item.entry)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush payloads: %w", ErrIO, err)
	}

	return nil
}

// writeEntryPayload copies one payload and pads it to its planned sector length.
func writeEntryPayload(dst io.Writer, src io.ReaderAt, item placement, copyBuf []byte) error {
	e := item.entry
	limit := ToBytes(item.size)

	var r io.Reader
	switch {
	case e.data != nil:
		r = bytes.NewReader(e.data)
	case e.source != nil:
		rc, err := openSource(e)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		r = rc
	case src == nil:
		return fmt.Errorf("%w: entry %s: backing file unavailable", ErrIO, e.Name)
	default:
		r = &strictReader{
			r:    io.NewSectionReader(src, e.ActualOffset(), limit),
			want: limit,
			name: e.Name,
		}
	}

	written, err := copyPayloadBounded(dst, r, limit, copyBuf)
	if err != nil {
		return fmt.Errorf("%w: copy entry %s: %w", ErrIO, e.Name, err)
	}

	// Pending payloads must deliver every byte they declared at import time.
	if e.data != nil || e.source != nil {
		if want := min(e.payloadLen(), limit); written < want {
			return fmt.Errorf("%w: entry %s: read %d of %d bytes: %w", ErrIO, e.Name, written, want, io.ErrUnexpectedEOF)
		}
	}

	return writeZeros(dst, limit-written)
}

// writeZeros writes n zero bytes.
func writeZeros(w io.Writer, n int64) error {
	for n > 0 {
		chunk := min(n, SectorSize)
		if _, err := w.Write(zeroSector[:chunk]); err != nil {
			return fmt.Errorf("%w: write padding: %w", ErrIO, err)
		}

		n -= chunk
	}

	return nil
}

// acquireArchiveWriter returns a buffered writer and release callback.
func acquireArchiveWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer || size <= 0 {
		w := defaultArchiveWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultArchiveWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquireCopyBuffer returns reusable payload copy buffer and release callback.
func acquireCopyBuffer() ([]byte, func()) {
	arr := copyBufferPool.Get().(*[copyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		copyBufferPool.Put(arr)
	}
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	// At exactly the limit, read one more byte to reject a longer source.
	if written == limit {
		var extra [1]byte
		n, err := src.Read(extra[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && err != io.EOF {
			return written, err
		}
	}

	return written, nil
}
