// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dat

import (
	"fmt"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// Index provides constant-time lookups over a catalog. All keys are
// lowercased at build time and on probe. The index never mutates after
// construction and is safe for concurrent readers.
type Index struct {
	bySHA1 map[string][]int
	byMD5  map[string][]int
	// byCRC32Size is keyed by "crc32|size"; CRC32 matches are only valid
	// when the DAT declares a size and the sizes agree.
	byCRC32Size map[string][]int
	// byNameSize is keyed by "lowername|size". Short common names can
	// collide across DAT rows; the scoring layer compensates, but set
	// assembly may still admit the wrong file on a collision.
	byNameSize map[string][]int

	roms []romset.DatRom
}

// NewIndex builds the four lookups over roms. The rom slice is captured by
// reference; callers must not mutate it afterwards.
func NewIndex(roms []romset.DatRom) *Index {
	idx := &Index{
		bySHA1:      make(map[string][]int),
		byMD5:       make(map[string][]int),
		byCRC32Size: make(map[string][]int),
		byNameSize:  make(map[string][]int),
		roms:        roms,
	}
	for i := range roms {
		rom := &roms[i]
		if rom.SHA1 != "" {
			k := strings.ToLower(rom.SHA1)
			idx.bySHA1[k] = append(idx.bySHA1[k], i)
		}
		if rom.MD5 != "" {
			k := strings.ToLower(rom.MD5)
			idx.byMD5[k] = append(idx.byMD5[k], i)
		}
		if rom.CRC32 != "" && rom.HasSize() {
			k := crcSizeKey(rom.CRC32, rom.Size)
			idx.byCRC32Size[k] = append(idx.byCRC32Size[k], i)
		}
		if rom.Name != "" && rom.HasSize() {
			k := nameSizeKey(rom.Name, rom.Size)
			idx.byNameSize[k] = append(idx.byNameSize[k], i)
		}
	}
	return idx
}

func crcSizeKey(crc string, size int64) string {
	return fmt.Sprintf("%s|%d", strings.ToLower(crc), size)
}

func nameSizeKey(name string, size int64) string {
	return fmt.Sprintf("%s|%d", strings.ToLower(name), size)
}

// Find returns the first catalog entry matching the record, probing in
// identification priority: SHA-1, MD5, CRC32 conditioned on size, then
// filename plus size. Nil when nothing matches.
func (idx *Index) Find(rec *romset.FileRecord) *romset.DatRom {
	if rec.Checksums.SHA1 != "" {
		if hits := idx.bySHA1[strings.ToLower(rec.Checksums.SHA1)]; len(hits) > 0 {
			return &idx.roms[hits[0]]
		}
	}
	if rec.Checksums.MD5 != "" {
		if hits := idx.byMD5[strings.ToLower(rec.Checksums.MD5)]; len(hits) > 0 {
			return &idx.roms[hits[0]]
		}
	}
	if rec.Checksums.CRC32 != "" {
		if hits := idx.byCRC32Size[crcSizeKey(rec.Checksums.CRC32, rec.Size)]; len(hits) > 0 {
			return &idx.roms[hits[0]]
		}
	}
	if name := rec.BaseName(); name != "" {
		if hits := idx.byNameSize[nameSizeKey(name, rec.Size)]; len(hits) > 0 {
			return &idx.roms[hits[0]]
		}
	}
	return nil
}

// Matches reports whether any catalog entry matches the record.
func (idx *Index) Matches(rec *romset.FileRecord) bool {
	return idx.Find(rec) != nil
}

// Partition splits the catalog into entries with at least one matching
// record and entries without.
func Partition(records []*romset.FileRecord, roms []romset.DatRom) (matched, unmatched []romset.DatRom) {
	for i := range roms {
		rom := &roms[i]
		hit := false
		for _, rec := range records {
			if romMatchesRecord(rec, rom) {
				hit = true
				break
			}
		}
		if hit {
			matched = append(matched, *rom)
		} else {
			unmatched = append(unmatched, *rom)
		}
	}
	return matched, unmatched
}

// Unmatched returns the records no catalog entry matches.
func Unmatched(records []*romset.FileRecord, idx *Index) []*romset.FileRecord {
	var out []*romset.FileRecord
	for _, rec := range records {
		if !idx.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func romMatchesRecord(rec *romset.FileRecord, rom *romset.DatRom) bool {
	if rom.SHA1 != "" && strings.EqualFold(rec.Checksums.SHA1, rom.SHA1) {
		return true
	}
	if rom.MD5 != "" && strings.EqualFold(rec.Checksums.MD5, rom.MD5) {
		return true
	}
	if rom.CRC32 != "" && strings.EqualFold(rec.Checksums.CRC32, rom.CRC32) {
		if !rom.HasSize() || rec.Size == rom.Size {
			return true
		}
	}
	if rom.HasSize() && rec.Size == rom.Size && rec.BaseName() == rom.Name {
		return true
	}
	return false
}
