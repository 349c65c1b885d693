// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrich

import (
	"fmt"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/cache"
	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/dat"
	"github.com/retrolabs/romkeeper/pkg/online"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// UnknownGenreEntry explains why one record ended the run without genres.
type UnknownGenreEntry struct {
	Source          string   `json:"source"`
	Relative        string   `json:"relative"`
	DerivedPlatform string   `json:"derived_platform,omitempty"`
	NormalizedName  string   `json:"normalized_name,omitempty"`
	CacheKey        string   `json:"cache_key,omitempty"`
	IgdbQueryBody   string   `json:"igdb_query_body,omitempty"`
	IgdbMode        string   `json:"igdb_mode"`
	Reason          string   `json:"reason"`
	CachedPlatforms []string `json:"cached_platforms,omitempty"`
}

// UnknownGenreReport builds one entry per record lacking genres, with the
// closest diagnosable reason: disabled lookups, missing credentials, cache
// misses, or cached entries that themselves carry no genres.
func UnknownGenreReport(records []*romset.FileRecord, cfg *config.Config, cacheDB *cache.Cache) []UnknownGenreEntry {
	var entries []UnknownGenreEntry
	for _, rec := range records {
		if len(rec.DerivedGenres) > 0 {
			continue
		}

		normalized := dat.NormalizeName(rec.BaseName())
		key := strings.ToLower(normalized)
		entry := UnknownGenreEntry{
			Source:          rec.Source,
			Relative:        rec.Relative,
			DerivedPlatform: rec.DerivedPlatform,
			NormalizedName:  normalized,
			CacheKey:        key,
			IgdbMode:        string(cfg.IgdbMode),
		}
		if normalized != "" {
			entry.IgdbQueryBody = fmt.Sprintf(`search "%s"; fields %s; limit 5;`, normalized, online.QueryFields)
		}

		switch {
		case cfg.IgdbMode == config.IgdbOff:
			entry.Reason = "igdb-disabled"
		case !cfg.IgdbClientConfigured():
			entry.Reason = "missing-credentials"
		case normalized == "":
			entry.Reason = "normalized-name-empty"
		case cacheDB == nil:
			entry.Reason = "igdb-cache-unavailable"
		default:
			cached, ok, err := cacheDB.GetIgdbEntry(key)
			switch {
			case err != nil:
				entry.Reason = fmt.Sprintf("igdb-cache-error: %v", err)
			case !ok:
				entry.Reason = "cache-miss"
			case len(cached.Genres) == 0:
				entry.Reason = "entry-missing-genres"
				entry.CachedPlatforms = cached.Platforms
			default:
				entry.Reason = "entry-has-genres"
				entry.CachedPlatforms = cached.Platforms
			}
		}

		entries = append(entries, entry)
	}
	return entries
}
