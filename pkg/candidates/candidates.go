// Copyright 2025 RetroLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@retrolabs.io
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package candidates scores catalog entries against scanned records and
// assembles multi-part write sets. Scoring is additive; checksum-backed
// matches are collected apart from name/size fallbacks and win outright
// when present. Ordering is total: score descending, then the record key
// lexicographically, so repeated runs rank identically.
package candidates

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/retrolabs/romkeeper/pkg/dat"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

const (
	minScore        = 25.0
	scoreSHA1       = 900.0
	scoreMD5        = 850.0
	scoreCRC32Size  = 800.0
	scoreNameSize   = 700.0
	scoreSizeOnly   = 20.0
	scoreTitleEqual = 300.0
	scoreTokenScale = 300.0
)

type scored struct {
	rec      *romset.FileRecord
	score    float64
	checksum bool
}

// Generate produces one ranked Candidate per catalog entry. Entries are
// scored independently and in parallel; the output preserves the catalog
// order.
func Generate(roms []romset.DatRom, records []*romset.FileRecord, workers int) []romset.Candidate {
	out := make([]romset.Candidate, len(roms))
	if workers <= 0 {
		workers = 1
	}
	if workers > len(roms) {
		workers = len(roms)
	}
	if workers <= 1 {
		for i := range roms {
			out[i] = rankEntry(&roms[i], records)
		}
		return out
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = rankEntry(&roms[i], records)
			}
		}()
	}
	for i := range roms {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

func rankEntry(rom *romset.DatRom, records []*romset.FileRecord) romset.Candidate {
	datStem := stem(rom.Name)
	datNorm := dat.NormalizeTitle(datStem)
	datTokens := dat.TokenizeTitle(datNorm)
	datSet := toSet(datTokens)

	var checksumMatches, fallbackMatches []scored
	for _, rec := range records {
		s, checksum := scorePair(rom, rec, datNorm, datSet)
		if s < minScore {
			continue
		}
		m := scored{rec: rec, score: s, checksum: checksum}
		if checksum {
			checksumMatches = append(checksumMatches, m)
		} else {
			fallbackMatches = append(fallbackMatches, m)
		}
	}

	sortMatches(checksumMatches)
	sortMatches(fallbackMatches)

	// Checksum-backed matches win outright; fallbacks only surface when no
	// checksum hit exists for this entry.
	ordered := checksumMatches
	if len(ordered) == 0 {
		ordered = fallbackMatches
	}

	c := romset.Candidate{Name: rom.Name}
	for _, m := range ordered {
		c.Matches = append(c.Matches, m.rec)
	}
	return c
}

// scorePair computes the additive score for one (entry, record) pair and
// whether any checksum contributed.
func scorePair(rom *romset.DatRom, rec *romset.FileRecord, datNorm string, datSet map[string]bool) (float64, bool) {
	var score float64
	var checksum bool

	// CRC32 only counts when the DAT declares a size and it matches;
	// collisions and truncated files are too common otherwise.
	if rom.CRC32 != "" && rom.HasSize() &&
		strings.EqualFold(rec.Checksums.CRC32, rom.CRC32) && rec.Size == rom.Size {
		score += scoreCRC32Size
		checksum = true
	}
	if rom.MD5 != "" && strings.EqualFold(rec.Checksums.MD5, rom.MD5) {
		score += scoreMD5
		checksum = true
	}
	if rom.SHA1 != "" && strings.EqualFold(rec.Checksums.SHA1, rom.SHA1) {
		score += scoreSHA1
		checksum = true
	}

	if rom.HasSize() && rec.Size == rom.Size {
		if rec.BaseName() == rom.Name {
			score += scoreNameSize
		} else {
			score += scoreSizeOnly
		}
	}

	recNorm := dat.NormalizeTitle(rec.Stem())
	if datNorm != "" && strings.EqualFold(recNorm, datNorm) {
		score += scoreTitleEqual
	} else if len(datSet) > 0 {
		recTokens := dat.TokenizeTitle(recNorm)
		if len(recTokens) > 0 {
			recSet := toSet(recTokens)
			inter := 0
			for tok := range recSet {
				if datSet[tok] {
					inter++
				}
			}
			union := len(datSet) + len(recSet) - inter
			if union > 0 {
				score += float64(inter) / float64(union) * scoreTokenScale
			}
		}
	}

	return score, checksum
}

// sortMatches orders by descending score with the record key as the stable
// tie-break.
func sortMatches(matches []scored) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].rec.Key() < matches[j].rec.Key()
	})
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func stem(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// AssemblyOptions relaxes set completeness requirements.
type AssemblyOptions struct {
	// AllowIncompleteSets emits sets with missing parts instead of
	// dropping them.
	AllowIncompleteSets bool
	// AllowExcessSets emits set shells even when no part matched.
	AllowExcessSets bool
	// Workers bounds candidate-generation parallelism.
	Workers int
}

// BuildWriteCandidates assembles one WriteCandidate per set. Within one
// call no physical record (source::relative) is assigned to more than one
// part: each part takes the highest-ranked not-yet-used match.
func BuildWriteCandidates(
	sets map[string][]string,
	roms []romset.DatRom,
	records []*romset.FileRecord,
	opts AssemblyOptions,
) []romset.WriteCandidate {
	romByName := make(map[string]*romset.DatRom, len(roms))
	for i := range roms {
		romByName[roms[i].Name] = &roms[i]
	}

	// Deterministic set order regardless of map iteration.
	setNames := make([]string, 0, len(sets))
	for name := range sets {
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)

	used := make(map[string]bool)
	var out []romset.WriteCandidate

	for _, setName := range setNames {
		parts := sets[setName]
		var files []*romset.FileRecord
		filesMap := make(map[string]*romset.FileRecord)
		allFound := true

		for _, part := range parts {
			rom, ok := romByName[part]
			if !ok {
				allFound = false
				break
			}
			ranked := Generate([]romset.DatRom{*rom}, records, opts.Workers)
			var chosen *romset.FileRecord
			for _, match := range ranked[0].Matches {
				if !used[match.Key()] {
					chosen = match
					used[match.Key()] = true
					break
				}
			}
			if chosen != nil {
				files = append(files, chosen)
				filesMap[part] = chosen
				continue
			}
			if opts.AllowIncompleteSets {
				continue
			}
			allFound = false
			break
		}

		complete := allFound || opts.AllowIncompleteSets
		if (len(files) > 0 && complete) || (len(files) == 0 && opts.AllowExcessSets) {
			out = append(out, romset.WriteCandidate{
				Name:     setName,
				Files:    files,
				FilesMap: filesMap,
			})
		}
	}

	return out
}
