// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"slices"
)

// placement is the on-disk position assigned to one entry by a write plan.
type placement struct {
	entry     *Entry
	offset    uint32
	size      uint32
	streaming uint16
}

// writePlan is the complete directory of an archive about to be written.
type writePlan struct {
	// items are in directory order.
	items []placement
	// dirSectors is the directory block length (V2) in sectors.
	dirSectors uint32
	// endSector is the first sector after the last payload.
	endSector uint32
	version   Version
	// repacked reports whether offsets were reassigned sequentially.
	repacked bool
}

// planLayout assigns offsets for writing entries as version.
// With preserve set, current offsets are kept when they form a valid layout:
// no payload before the directory end and no two payloads overlapping.
// Otherwise entries are packed sequentially in directory order right after the directory block.
func planLayout(entries []*Entry, version Version, preserve bool) (*writePlan, error) {
	if !version.valid() {
		return nil, ErrUnknownVersion
	}

	plan := &writePlan{
		version:    version,
		dirSectors: DirectorySectors(version, len(entries)),
		items:      make([]placement, len(entries)),
	}

	for i, e := range entries {
		size, err := entrySectors(version, e)
		if err != nil {
			return nil, err
		}

		plan.items[i] = placement{
			entry:     e,
			offset:    e.OffsetSectors,
			size:      size,
			streaming: entryStreaming(version, e, size),
		}
	}

	if preserve && plan.validOffsets() {
		return plan, plan.computeEnd()
	}

	plan.repacked = true
	current := plan.dirSectors
	for i := range plan.items {
		plan.items[i].offset = current
		next, err := endSector(current, plan.items[i].size)
		if err != nil {
			return nil, err
		}

		current = next
	}

	plan.endSector = current
	return plan, nil
}

// entrySectors returns the sector length written for e and checks the version field width.
func entrySectors(version Version, e *Entry) (uint32, error) {
	if e.data != nil || e.source != nil {
		return checkedSectors(version, e.Name, e.payloadLen())
	}

	return checkedSectors(version, e.Name, e.ActualSize())
}

// entryStreaming returns the V2 streaming field for e; zero for V1.
func entryStreaming(version Version, e *Entry, size uint32) uint16 {
	if version != V2 {
		return 0
	}
	if e.StreamingSizeSectors == 0 || e.data != nil || e.source != nil {
		return clampStreaming(size)
	}

	return e.StreamingSizeSectors
}

// validOffsets reports whether current offsets start after the directory and never overlap.
func (p *writePlan) validOffsets() bool {
	order := p.offsetOrder()
	var prevEnd uint32
	for _, idx := range order {
		item := p.items[idx]
		if item.size == 0 {
			continue
		}
		if item.offset < p.dirSectors || item.offset < prevEnd {
			return false
		}

		end, err := endSector(item.offset, item.size)
		if err != nil {
			return false
		}

		prevEnd = end
	}

	return true
}

// computeEnd sets endSector to the furthest payload end.
func (p *writePlan) computeEnd() error {
	p.endSector = p.dirSectors
	for _, item := range p.items {
		end, err := endSector(item.offset, item.size)
		if err != nil {
			return err
		}

		p.endSector = max(p.endSector, end)
	}

	return nil
}

// offsetOrder returns item indexes sorted by offset, stable for equal offsets.
func (p *writePlan) offsetOrder() []int {
	order := make([]int, len(p.items))
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case p.items[a].offset < p.items[b].offset:
			return -1
		case p.items[a].offset > p.items[b].offset:
			return 1
		default:
			return 0
		}
	})

	return order
}

// dataSectors returns the sector count occupied by payload data.
func (p *writePlan) dataSectors() uint32 {
	return p.endSector - p.dirSectors
}

// apply copies planned positions back into entries after a successful write.
func (p *writePlan) apply() {
	for _, item := range p.items {
		e := item.entry
		e.OffsetSectors = item.offset
		e.SizeSectors = item.size
		e.StreamingSizeSectors = item.streaming
		e.data = nil
		e.source = nil
		e.isNew = false
	}
}
