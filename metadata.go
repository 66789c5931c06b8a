// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"io"
	"strings"
)

// ArchiveInfo is a metadata-only description of an archive on disk.
type ArchiveInfo struct {
	// Path is the .img path.
	Path string `json:"path" yaml:"path"`
	// DirPath is the .dir sibling for V1.
	DirPath string `json:"dir_path,omitempty" yaml:"dir_path,omitempty"`
	// Version is the detected container version.
	Version Version `json:"version" yaml:"version"`
	// Entries is the directory record count.
	Entries int `json:"entries" yaml:"entries"`
	// FileSize is the .img size in bytes.
	FileSize int64 `json:"file_size" yaml:"file_size"`
	// DataSize is the sum of sector-padded entry sizes.
	DataSize int64 `json:"data_size" yaml:"data_size"`
}

// DetectVersion reads only the signature of an archive file.
func DetectVersion(path string) (Version, error) {
	f, _, err := openFileWithSize(ImgPath(strings.TrimSpace(path)))
	if err != nil {
		return VersionUnknown, err
	}
	defer func() { _ = f.Close() }()

	return detectVersion(f), nil
}

// DetectVersionFromReaderAt reads only the signature from a random-access source.
func DetectVersionFromReaderAt(ra io.ReaderAt) (Version, error) {
	if ra == nil {
		return VersionUnknown, fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}

	return detectVersion(ra), nil
}

// ListEntries opens an archive and returns its directory without payload reads.
func ListEntries(path string) ([]*Entry, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}

	entries := a.entries
	_ = a.Close()
	return entries, nil
}

// ListEntriesFromReaderAt decodes a V2 directory from a random-access source.
// V1 directories live in a separate file; use ReadDirectoryV1 for them.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64) ([]*Entry, error) {
	if ra == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}
	if detectVersion(ra) != V2 {
		return nil, fmt.Errorf("%w: missing VER2 magic", ErrInvalidFormat)
	}

	return readDirectoryV2(ra, size)
}

// ReadDirectoryV1 decodes V1 .dir records from r until EOF.
func ReadDirectoryV1(r io.Reader) ([]*Entry, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}

	return readDirectoryV1(r, 0, discardLogger())
}

// Stat returns metadata of an archive on disk.
func Stat(path string) (*ArchiveInfo, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	f, size, err := openFileWithSize(a.path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	return &ArchiveInfo{
		Path:     a.path,
		DirPath:  a.dirPath,
		Version:  a.version,
		Entries:  len(a.entries),
		FileSize: size,
		DataSize: a.TotalSize(),
	}, nil
}
