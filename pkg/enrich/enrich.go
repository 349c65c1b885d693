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

// Package enrich runs the per-record identification cascade: cache probe,
// DAT match, Hasheous content lookup, IGDB slug and name lookups, and the
// parent-genre graft. Each attribute stops at its first success. The loop
// is sequential per record so cache writes stay ordered; per-record
// failures are logged and never abort the run.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/cache"
	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/console"
	"github.com/retrolabs/romkeeper/pkg/dat"
	"github.com/retrolabs/romkeeper/pkg/online"
	"github.com/retrolabs/romkeeper/pkg/progress"
	"github.com/retrolabs/romkeeper/pkg/romset"
	"github.com/retrolabs/romkeeper/pkg/scan"
)

// Source labels for the per-record match origin.
const (
	SourceHeuristic = "heuristic"
	SourceDat       = "dat"
	SourceHasheous  = "hasheous"
	SourceIgdb      = "igdb"
	SourceIgdbCache = "igdb-cache"
)

// Enricher holds the shared collaborators for one run.
type Enricher struct {
	cfg      *config.Config
	cache    *cache.Cache     // nil disables caching
	hasheous *online.Hasheous // nil disables the service
	igdb     *online.IGDB     // nil disables the service
	logger   *slog.Logger
	metrics  *progress.Metrics

	index *dat.Index
	roms  []romset.DatRom

	// Per-run negative memos: content keys and title keys that already
	// produced nothing over the network are not re-queried this run.
	triedHasheous map[string]bool
	triedTitles   map[string]bool

	// matchSource records where each record's identification came from.
	matchSource map[string]string
}

// New wires an Enricher. Any of cacheDB, hasheous, and igdb may be nil.
func New(cfg *config.Config, cacheDB *cache.Cache, hasheous *online.Hasheous, igdb *online.IGDB,
	index *dat.Index, roms []romset.DatRom, logger *slog.Logger, metrics *progress.Metrics) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		cfg:           cfg,
		cache:         cacheDB,
		hasheous:      hasheous,
		igdb:          igdb,
		logger:        logger,
		metrics:       metrics,
		index:         index,
		roms:          roms,
		triedHasheous: make(map[string]bool),
		triedTitles:   make(map[string]bool),
		matchSource:   make(map[string]string),
	}
}

// Dats returns the catalog the enricher was built with.
func (e *Enricher) Dats() []romset.DatRom { return e.roms }

// MatchSource returns where the record's identification came from.
func (e *Enricher) MatchSource(rec *romset.FileRecord) string {
	if src, ok := e.matchSource[rec.Key()]; ok {
		return src
	}
	return SourceHeuristic
}

// EnrichAll runs the cascade over every record in order. Errors inside a
// record's cascade are logged and swallowed; the record stays unenriched.
func (e *Enricher) EnrichAll(ctx context.Context, records []*romset.FileRecord) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		e.enrichRecord(ctx, rec)
	}
}

func (e *Enricher) enrichRecord(ctx context.Context, rec *romset.FileRecord) {
	attemptedSlugs := make(map[string]bool)
	source := SourceHeuristic

	// Content key; compute the full checksum set when the configured
	// fidelity produced none.
	key := rec.Checksums.ContentKey()
	if key == "" {
		if all, err := scan.ComputeAllChecksums(rec.Source); err == nil {
			rec.Checksums.Merge(all)
			key = rec.Checksums.ContentKey()
		} else {
			e.logger.Warn("enrich.checksum.error", "path", rec.Source, "err", err)
		}
	}
	hasContentKey := key != ""
	if key == "" {
		key = rec.Source
	}

	// Step 1: checksum cache read-through, then write-back.
	if e.cache != nil {
		if cached, ok, err := e.cache.GetChecksums(key); err != nil {
			e.logger.Warn("enrich.cache.read.error", "table", "checksums", "key", key, "err", err)
		} else if ok {
			e.metrics.CacheHit("checksums")
			rec.Checksums.Merge(cached)
		} else {
			e.metrics.CacheMiss("checksums")
		}
		if hasContentKey {
			if err := e.cache.SetChecksums(key, rec.Source, rec.Size, rec.Checksums); err != nil {
				e.logger.Warn("enrich.cache.write.error", "table", "checksums", "key", key, "err", err)
			}
		}
	}

	// Step 2: DAT match.
	if e.index != nil {
		if datEntry := e.index.Find(rec); datEntry != nil {
			source = SourceDat
			if rec.DerivedPlatform == "" {
				if tok := console.TokenFromDat(datEntry); tok != "" && e.acceptPlatform(rec, tok) {
					rec.DerivedPlatform = tok
					e.logger.Debug("enrich.dat.platform", "path", rec.Relative, "token", tok, "dat", datEntry.SourceDat)
				}
			}
		}
	}

	// Step 3: Hasheous, cache first, then network in checksum-preference
	// order.
	if e.cfg.EnableHasheous {
		if raw := e.hasheousPayload(ctx, rec, key); raw != nil {
			source = SourceHasheous
			e.applyHasheous(ctx, rec, raw, attemptedSlugs)
		}
	}

	// Step 4: IGDB name lookup when the record still qualifies.
	if e.igdbNameLookup(ctx, rec) {
		if source == SourceHeuristic {
			source = SourceIgdb
		}
	}

	e.matchSource[rec.Key()] = source
}

// acceptPlatform applies the platform-acceptance rule: an online or
// catalog token loses to an unambiguous conflicting extension token.
func (e *Enricher) acceptPlatform(rec *romset.FileRecord, candidate string) bool {
	ext := console.TokenFromExtension(rec.Relative)
	switch {
	case ext == "":
		return true
	case ext == candidate:
		return true
	case e.cfg.IsAmbiguousToken(ext):
		return true
	}
	return false
}

// hasheousPayload returns the Hasheous JSON for the record, from cache or
// network. Misses are memoized per content key for the rest of the run.
func (e *Enricher) hasheousPayload(ctx context.Context, rec *romset.FileRecord, key string) json.RawMessage {
	if e.cache != nil {
		raw, ok, err := e.cache.GetHasheousRaw(key)
		if err != nil {
			e.logger.Warn("enrich.cache.read.error", "table", "hasheous", "key", key, "err", err)
		} else if ok {
			e.metrics.CacheHit("hasheous")
			e.logger.Debug("enrich.hasheous.cache.hit", "path", rec.Relative, "key", key)
			return raw
		} else {
			e.metrics.CacheMiss("hasheous")
		}
	}

	if !e.cfg.HasheousNetworkEnabled() || e.hasheous == nil {
		return nil
	}
	if e.triedHasheous[key] {
		e.logger.Debug("enrich.hasheous.skip", "path", rec.Relative, "key", key, "reason", "already-tried")
		return nil
	}

	e.metrics.NetLookup("hasheous")
	raw, attempted, err := e.hasheous.LookupAny(ctx, rec.Checksums)
	if err != nil {
		// Network errors decay to cache misses.
		e.logger.Warn("enrich.hasheous.error", "path", rec.Relative, "err", err)
	}
	if raw == nil {
		if attempted {
			e.triedHasheous[key] = true
		}
		return nil
	}

	if e.cache != nil {
		if err := e.cache.SetHasheousRaw(key, rec.Source, raw); err != nil {
			e.logger.Warn("enrich.cache.write.error", "table", "hasheous", "key", key, "err", err)
		}
	}
	return raw
}

// applyHasheous folds a Hasheous payload into the record: embedded hashes,
// platform name, and IGDB slug references.
func (e *Enricher) applyHasheous(ctx context.Context, rec *romset.FileRecord, raw json.RawMessage, attemptedSlugs map[string]bool) {
	sha1Hex, md5Hex := online.ExtractEmbeddedHashes(raw)
	rec.Checksums.Merge(romset.ChecksumSet{SHA1: sha1Hex, MD5: md5Hex})

	if rec.DerivedPlatform == "" {
		if name := online.ExtractHasheousPlatform(raw); name != "" {
			if tok := console.TokenFromPlatformName(name); tok != "" {
				if e.acceptPlatform(rec, tok) {
					rec.DerivedPlatform = tok
					e.logger.Debug("enrich.hasheous.platform", "path", rec.Relative, "name", name, "token", tok)
				} else {
					e.logger.Debug("enrich.hasheous.platform.rejected", "path", rec.Relative, "token", tok,
						"ext_token", console.TokenFromExtension(rec.Relative))
				}
			} else {
				e.logger.Debug("enrich.hasheous.platform.unmapped", "path", rec.Relative, "name", name)
			}
		}
	}

	if rec.DerivedPlatform != "" && len(rec.DerivedGenres) > 0 {
		return
	}
	if !e.cfg.IgdbLookupEnabled() {
		return
	}
	for _, slug := range online.ExtractIgdbSlugs(raw) {
		e.hydrateFromSlug(ctx, rec, slug, attemptedSlugs)
		if len(rec.DerivedGenres) > 0 {
			break
		}
	}
}

// hydrateFromSlug resolves one IGDB slug reference: cache, then network.
func (e *Enricher) hydrateFromSlug(ctx context.Context, rec *romset.FileRecord, slug string, attemptedSlugs map[string]bool) {
	if slug == "" {
		return
	}
	key := online.SlugCacheKey(slug)

	if e.cache != nil {
		entry, ok, err := e.cache.GetIgdbEntry(key)
		if err != nil {
			e.logger.Warn("enrich.cache.read.error", "table", "igdb", "key", key, "err", err)
		} else if ok {
			e.metrics.CacheHit("igdb")
			e.applyIgdbEntry(rec, entry, SourceIgdbCache)
			if len(rec.DerivedGenres) > 0 {
				return
			}
			// Entry cached without genres: try the parent graft on the raw
			// payload before giving up.
			e.ensureGenres(ctx, rec, entry.Raw, key)
			return
		} else {
			e.metrics.CacheMiss("igdb")
		}
	}

	if !e.cfg.IgdbNetworkEnabled() || e.igdb == nil {
		return
	}
	if attemptedSlugs[slug] {
		return
	}
	attemptedSlugs[slug] = true

	e.metrics.NetLookup("igdb")
	raw, err := e.igdb.LookupBySlug(ctx, slug)
	if err != nil {
		e.logger.Warn("enrich.igdb.slug.error", "path", rec.Relative, "slug", slug, "err", err)
		return
	}
	if raw == nil {
		e.logger.Debug("enrich.igdb.slug.miss", "path", rec.Relative, "slug", slug)
		return
	}
	if e.cache != nil {
		if err := e.cache.SetIgdbRaw(key, raw); err != nil {
			e.logger.Warn("enrich.cache.write.error", "table", "igdb", "key", key, "err", err)
		}
	}
	e.applyIgdbRaw(rec, raw, SourceIgdb)
	e.ensureGenres(ctx, rec, raw, key)
}

// igdbNameLookup runs the normalized-name query when the gating admits it.
// Reports whether IGDB contributed anything.
func (e *Enricher) igdbNameLookup(ctx context.Context, rec *romset.FileRecord) bool {
	extTok := console.TokenFromExtension(rec.Relative)
	extIdentifies := extTok != "" && !e.cfg.IsAmbiguousToken(extTok)
	if !e.cfg.ShouldAttemptIgdbLookup(rec.DerivedPlatform != "", len(rec.DerivedGenres) > 0, extIdentifies) {
		return false
	}

	normalized := dat.NormalizeName(rec.BaseName())
	if normalized == "" {
		return false
	}
	key := strings.ToLower(normalized)

	contributed := false
	cacheEntryFound := false

	if e.cache != nil {
		entry, ok, err := e.cache.GetIgdbEntry(key)
		if err != nil {
			e.logger.Warn("enrich.cache.read.error", "table", "igdb", "key", key, "err", err)
		} else if ok {
			// A cached entry whose platforms contradict the record's
			// derived platform is stale for this record: drop and requery.
			if rec.DerivedPlatform != "" && !entry.EntryMatchesPlatform(rec.DerivedPlatform, console.TokenFromPlatformName) {
				e.logger.Debug("enrich.igdb.cache.invalid", "path", rec.Relative, "key", key,
					"derived", rec.DerivedPlatform, "cached_platforms", entry.Platforms)
				if err := e.cache.DeleteIgdb(key); err != nil {
					e.logger.Warn("enrich.cache.delete.error", "table", "igdb", "key", key, "err", err)
				}
			} else {
				cacheEntryFound = true
				e.metrics.CacheHit("igdb")
				if e.applyIgdbEntry(rec, entry, SourceIgdbCache) {
					contributed = true
				}
				if len(rec.DerivedGenres) == 0 {
					e.ensureGenres(ctx, rec, entry.Raw, key)
					contributed = contributed || len(rec.DerivedGenres) > 0
				}
			}
		} else {
			e.metrics.CacheMiss("igdb")
		}
	}

	if cacheEntryFound && len(rec.DerivedGenres) > 0 {
		return contributed
	}
	if e.cfg.CacheOnly {
		e.logger.Debug("enrich.igdb.cache-only.miss", "path", rec.Relative, "key", key)
		return contributed
	}
	if e.igdb == nil || !e.cfg.IgdbNetworkEnabled() {
		return contributed
	}
	if e.triedTitles[key] {
		e.logger.Debug("enrich.igdb.skip", "path", rec.Relative, "key", key, "reason", "already-tried")
		return contributed
	}
	e.triedTitles[key] = true

	e.metrics.NetLookup("igdb")
	raw, err := e.igdb.SearchByName(ctx, normalized)
	if err != nil {
		e.logger.Warn("enrich.igdb.error", "path", rec.Relative, "key", key, "err", err)
		return contributed
	}
	if raw == nil {
		e.logger.Debug("enrich.igdb.miss", "path", rec.Relative, "key", key)
		return contributed
	}
	if e.cache != nil {
		if err := e.cache.SetIgdbRaw(key, raw); err != nil {
			e.logger.Warn("enrich.cache.write.error", "table", "igdb", "key", key, "err", err)
		}
	}
	if e.applyIgdbRaw(rec, raw, SourceIgdb) {
		contributed = true
	}
	e.ensureGenres(ctx, rec, raw, key)
	return contributed || len(rec.DerivedGenres) > 0
}

// applyIgdbEntry folds a cached entry's summary columns into the record.
func (e *Enricher) applyIgdbEntry(rec *romset.FileRecord, entry *cache.IgdbEntry, label string) bool {
	updated := false
	if rec.DerivedPlatform == "" && len(entry.Platforms) > 0 {
		preferred := console.TokenFromExtension(rec.Relative)
		if tok, ident := console.ResolvePlatformToken(entry.Platforms, preferred); tok != "" && e.acceptPlatform(rec, tok) {
			rec.DerivedPlatform = tok
			e.logger.Debug("enrich.igdb.platform", "source", label, "path", rec.Relative, "token", tok, "identifier", ident)
			updated = true
		}
	}
	if len(rec.DerivedGenres) == 0 && rec.AddGenres(entry.Genres) {
		e.logger.Debug("enrich.igdb.genres", "source", label, "path", rec.Relative, "genres", rec.DerivedGenres)
		updated = true
	}
	if rec.DerivedPlatform == "" || len(rec.DerivedGenres) == 0 {
		if e.applyIgdbRaw(rec, entry.Raw, label) {
			updated = true
		}
	}
	return updated
}

// applyIgdbRaw folds a raw IGDB payload into the record.
func (e *Enricher) applyIgdbRaw(rec *romset.FileRecord, raw json.RawMessage, label string) bool {
	updated := false
	if rec.DerivedPlatform == "" {
		identifiers := online.ExtractIgdbPlatforms(raw)
		preferred := console.TokenFromExtension(rec.Relative)
		if tok, ident := console.ResolvePlatformToken(identifiers, preferred); tok != "" && e.acceptPlatform(rec, tok) {
			rec.DerivedPlatform = tok
			e.logger.Debug("enrich.igdb.platform", "source", label, "path", rec.Relative, "token", tok, "identifier", ident)
			updated = true
		}
	}
	if len(rec.DerivedGenres) == 0 && rec.AddGenres(online.ExtractIgdbGenres(raw)) {
		e.logger.Debug("enrich.igdb.genres", "source", label, "path", rec.Relative, "genres", rec.DerivedGenres)
		updated = true
	}
	return updated
}

// ensureGenres applies the parent-genre graft: when the payload has no
// genres but names a parent, fetch the parent (cache first, depth 1), copy
// its genres onto the child payload, adopt them, and persist the grafted
// child under its own key. The parent response is cached under id:<n>.
func (e *Enricher) ensureGenres(ctx context.Context, rec *romset.FileRecord, raw json.RawMessage, cacheKey string) {
	if len(rec.DerivedGenres) > 0 || raw == nil {
		return
	}
	if len(online.ExtractIgdbGenres(raw)) > 0 {
		rec.AddGenres(online.ExtractIgdbGenres(raw))
		return
	}

	parentID := online.ExtractParentID(raw)
	if parentID == 0 {
		return
	}
	parentRaw := e.fetchParent(ctx, parentID)
	if parentRaw == nil {
		return
	}

	combined := online.GraftParentGenres(raw, parentRaw)
	if combined == nil {
		return
	}
	if rec.AddGenres(online.ExtractIgdbGenres(combined)) {
		e.logger.Debug("enrich.igdb.parent.graft", "path", rec.Relative, "parent_id", parentID, "genres", rec.DerivedGenres)
		if e.cache != nil && cacheKey != "" {
			if err := e.cache.SetIgdbRaw(cacheKey, combined); err != nil {
				e.logger.Warn("enrich.cache.write.error", "table", "igdb", "key", cacheKey, "err", err)
			}
		}
	}
}

// fetchParent loads a parent game by id, caching under id:<n>. Depth is
// bounded at 1: grandparents are never followed.
func (e *Enricher) fetchParent(ctx context.Context, id int64) json.RawMessage {
	key := online.ParentCacheKey(id)
	if e.cache != nil {
		if entry, ok, err := e.cache.GetIgdbEntry(key); err == nil && ok {
			e.metrics.CacheHit("igdb")
			return entry.Raw
		}
		e.metrics.CacheMiss("igdb")
	}
	if e.igdb == nil || !e.cfg.IgdbNetworkEnabled() {
		return nil
	}
	e.metrics.NetLookup("igdb")
	raw, err := e.igdb.LookupByID(ctx, id)
	if err != nil {
		e.logger.Warn("enrich.igdb.parent.error", "id", id, "err", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	if e.cache != nil {
		if err := e.cache.SetIgdbRaw(key, raw); err != nil {
			e.logger.Warn("enrich.cache.write.error", "table", "igdb", "key", key, "err", err)
		}
	}
	return raw
}
