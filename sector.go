// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"math"
)

// ToSectors returns the number of whole sectors needed to hold byteLen bytes.
// Negative lengths map to zero. Lengths beyond the uint32 sector range saturate.
func ToSectors(byteLen int64) uint32 {
	if byteLen <= 0 {
		return 0
	}

	sectors := (byteLen + SectorSize - 1) / SectorSize
	if sectors > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(sectors) //nolint:gosec // bounded above
}

// ToBytes converts a sector count to a byte length.
func ToBytes(sectors uint32) int64 {
	return int64(sectors) * SectorSize
}

// DirectorySectors returns the sector count of the directory block that precedes payload data.
// V1 keeps its directory in a separate file, so payload starts at sector zero.
func DirectorySectors(version Version, count int) uint32 {
	if version != V2 {
		return 0
	}

	return ToSectors(v2HeaderSize + int64(count)*recordSize)
}

// checkedSectors converts byte length to sectors and rejects lengths that do not fit the version field.
func checkedSectors(version Version, name string, byteLen int64) (uint32, error) {
	if byteLen < 0 || byteLen > ToBytes(math.MaxUint32) {
		return 0, fmt.Errorf("%w: entry %s size %d", ErrSizeOverflow, name, byteLen)
	}

	sectors := ToSectors(byteLen)
	if version == V2 && sectors > maxV2Sectors {
		return 0, fmt.Errorf("%w: entry %s needs %d sectors, V2 allows %d", ErrSizeOverflow, name, sectors, maxV2Sectors)
	}

	return sectors, nil
}

// endSector returns offset+size with overflow detection.
func endSector(offset uint32, size uint32) (uint32, error) {
	if uint64(offset)+uint64(size) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: sector range %d+%d", ErrSizeOverflow, offset, size)
	}

	return offset + size, nil
}
