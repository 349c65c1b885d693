// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package actions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retrolabs/romkeeper/pkg/cache"
	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/enrich"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

func outputRoot(cfg *config.Config) string {
	if cfg.Output != "" {
		return cfg.Output
	}
	return "output"
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// writePlaylist emits playlist.m3u listing every record's relative path.
func writePlaylist(records []*romset.FileRecord, cfg *config.Config) (string, error) {
	target := filepath.Join(outputRoot(cfg), "playlist.m3u")
	if err := ensureParent(target); err != nil {
		return "", err
	}
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", target, err)
	}
	for _, rec := range records {
		if _, err := fmt.Fprintln(f, rec.Relative); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("writing %s: %w", target, err)
		}
	}
	return target, f.Close()
}

// onlineMatchSummary compacts one record's online identification.
type onlineMatchSummary struct {
	Source          string   `json:"source"`
	Relative        string   `json:"relative"`
	MatchSource     string   `json:"match_source"`
	DerivedPlatform string   `json:"derived_platform,omitempty"`
	DerivedGenres   []string `json:"derived_genres,omitempty"`
}

// writeReport emits report.json (full enriched records) and
// online_matches.json (compacted per-record summaries). With --diag the
// raw cached payloads are dumped next to them.
func writeReport(records []*romset.FileRecord, cfg *config.Config, enricher *enrich.Enricher, cacheDB *cache.Cache) ([]string, error) {
	root := outputRoot(cfg)

	reportPath := filepath.Join(root, "report.json")
	if err := writeJSON(reportPath, records); err != nil {
		return nil, err
	}

	var summaries []onlineMatchSummary
	for _, rec := range records {
		src := enrich.SourceHeuristic
		if enricher != nil {
			src = enricher.MatchSource(rec)
		}
		if src == enrich.SourceHeuristic && rec.DerivedPlatform == "" && len(rec.DerivedGenres) == 0 {
			continue
		}
		summaries = append(summaries, onlineMatchSummary{
			Source:          rec.Source,
			Relative:        rec.Relative,
			MatchSource:     src,
			DerivedPlatform: rec.DerivedPlatform,
			DerivedGenres:   rec.DerivedGenres,
		})
	}
	matchesPath := filepath.Join(root, "online_matches.json")
	if err := writeJSON(matchesPath, summaries); err != nil {
		return nil, err
	}

	written := []string{reportPath, matchesPath}
	if cfg.Diag && cacheDB != nil {
		dumps, err := dumpRawPayloads(records, root, cacheDB)
		if err != nil {
			return nil, err
		}
		written = append(written, dumps...)
	}
	return written, nil
}

// dumpRawPayloads writes the cached raw service responses for each record
// into hasheous_raw/ and igdb_raw/ subdirectories.
func dumpRawPayloads(records []*romset.FileRecord, root string, cacheDB *cache.Cache) ([]string, error) {
	var written []string
	for i, rec := range records {
		key := rec.Checksums.ContentKey()
		if key == "" {
			continue
		}
		stemName := fmt.Sprintf("%03d_%s.json", i, rec.Stem())

		if raw, ok, err := cacheDB.GetHasheousRaw(key); err == nil && ok {
			path := filepath.Join(root, "hasheous_raw", stemName)
			if err := ensureParent(path); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return nil, fmt.Errorf("writing %s: %w", path, err)
			}
			written = append(written, path)
		}
		if entry, ok, err := cacheDB.GetIgdbEntry(key); err == nil && ok {
			path := filepath.Join(root, "igdb_raw", stemName)
			if err := ensureParent(path); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, entry.Raw, 0o644); err != nil {
				return nil, fmt.Errorf("writing %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}

// writeDir2dat serializes the enriched record set as dir2dat.json.
func writeDir2dat(records []*romset.FileRecord, cfg *config.Config) (string, error) {
	target := filepath.Join(outputRoot(cfg), "dir2dat.json")
	return target, writeJSON(target, records)
}

// writeFixdat serializes the catalog entries no record matched as
// fixdat.json: the set a collector still needs to find.
func writeFixdat(unmatched []romset.DatRom, cfg *config.Config) (string, error) {
	target := filepath.Join(outputRoot(cfg), "fixdat.json")
	return target, writeJSON(target, unmatched)
}

// writeUnknownGenreReport emits the --diag genre diagnostics.
func writeUnknownGenreReport(entries []enrich.UnknownGenreEntry, cfg *config.Config) (string, error) {
	target := filepath.Join(outputRoot(cfg), "unknown_genres.json")
	return target, writeJSON(target, entries)
}
