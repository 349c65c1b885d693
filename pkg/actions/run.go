// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/retrolabs/romkeeper/pkg/cache"
	"github.com/retrolabs/romkeeper/pkg/candidates"
	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/dat"
	"github.com/retrolabs/romkeeper/pkg/enrich"
	"github.com/retrolabs/romkeeper/pkg/online"
	"github.com/retrolabs/romkeeper/pkg/progress"
	"github.com/retrolabs/romkeeper/pkg/romset"
	"github.com/retrolabs/romkeeper/pkg/scan"
)

// Perform runs the whole pipeline: scan, catalog load, enrichment, and the
// requested commands in order. The returned plan aggregates
// deterministically; the first action error aborts the remaining commands.
func Perform(ctx context.Context, cfg *config.Config, logger *slog.Logger, reporter *progress.Reporter) (*romset.ExecutionPlan, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = progress.NewReporter(true, cfg.Diag, nil)
	}

	// Input scan.
	reporter.BeginPhase("collect_inputs")
	collection, err := scan.Collect(ctx, cfg, logger, nil)
	reporter.EndPhase()
	if err != nil {
		return nil, err
	}
	records := collection.Records
	logger.Info("run.scan.complete", "records", len(records), "skipped", len(collection.Skipped))

	// Catalog load and indexing. Parse errors abort before enrichment.
	reporter.BeginPhase("load_dats")
	roms, err := dat.Load(cfg.Dat)
	reporter.EndPhase()
	if err != nil {
		return nil, err
	}
	index := dat.NewIndex(roms)
	matchedDats, unmatchedDats := dat.Partition(records, roms)
	logger.Info("run.dats.indexed", "roms", len(roms), "matched", len(matchedDats), "unmatched", len(unmatchedDats))

	// Cache: open failures disable caching for the run.
	var cacheDB *cache.Cache
	if db, err := cache.Open(cfg.CacheDB); err != nil {
		logger.Warn("run.cache.open.error", "err", err)
	} else {
		cacheDB = db
		defer func() { _ = cacheDB.Close() }()
	}

	// Online clients per gating; cache-only never constructs a transport.
	opts := online.Options{
		Timeout:    cfg.OnlineTimeout,
		MaxRetries: cfg.OnlineMaxRetries,
		Throttle:   cfg.OnlineThrottle,
	}
	var hasheous *online.Hasheous
	if cfg.HasheousNetworkEnabled() {
		hasheous = online.NewHasheous(cfg.HasheousBase, opts)
	}
	var igdb *online.IGDB
	if cfg.IgdbNetworkEnabled() {
		igdb = online.NewIGDB(cfg.IgdbBase, cfg.IgdbClientID, cfg.IgdbToken, opts)
	}

	// Enrichment cascade.
	reporter.BeginPhase("enrich_records")
	enricher := enrich.New(cfg, cacheDB, hasheous, igdb, index, roms, logger, reporter.Metrics())
	enricher.EnrichAll(ctx, records)
	reporter.EndPhase()

	plan := &romset.ExecutionPlan{
		FilesProcessed: len(records),
		DatMatched:     matchedDats,
		Skipped:        collection.Skipped,
	}
	if len(unmatchedDats) > 0 {
		plan.DatUnmatched = unmatchedDats
	}

	for _, action := range cfg.Commands {
		reporter.BeginPhase("action_" + string(action))
		outcome, err := runAction(action, records, unmatchedDats, cfg, enricher, cacheDB, reporter, logger)
		reporter.EndPhase()
		if err != nil {
			plan.Steps = append(plan.Steps, romset.ActionOutcome{
				Action: action, Status: "error", Note: err.Error(),
			})
			plan.Summary = buildSummary(cfg, plan, collection.Skipped, len(unmatchedDats))
			return plan, err
		}
		plan.Steps = append(plan.Steps, outcome)
	}

	if cfg.Diag {
		entries := enrich.UnknownGenreReport(records, cfg, cacheDB)
		if len(entries) > 0 {
			if path, err := writeUnknownGenreReport(entries, cfg); err != nil {
				logger.Warn("run.unknown-genres.error", "err", err)
			} else {
				logger.Info("run.unknown-genres.written", "path", path, "entries", len(entries))
			}
		}
	}

	plan.Summary = buildSummary(cfg, plan, collection.Skipped, len(unmatchedDats))
	return plan, nil
}

func runAction(
	action romset.Action,
	records []*romset.FileRecord,
	unmatchedDats []romset.DatRom,
	cfg *config.Config,
	enricher *enrich.Enricher,
	cacheDB *cache.Cache,
	reporter *progress.Reporter,
	logger *slog.Logger,
) (romset.ActionOutcome, error) {
	dats := enricherDats(enricher)
	start := time.Now()
	outcome := romset.ActionOutcome{Action: action, Status: "ok"}

	switch action {
	case romset.ActionCopy:
		err := runParallel(string(action), records, cfg.ActionThreads, reporter, func(rec *romset.FileRecord, handle *ProgressHandle) error {
			_, err := copyRecord(rec, cfg, dats, handle)
			return err
		})
		if err != nil {
			return outcome, err
		}
		outcome.Note = "Copied input files to output"

	case romset.ActionMove:
		err := runParallel(string(action), records, cfg.ActionThreads, reporter, func(rec *romset.FileRecord, handle *ProgressHandle) error {
			_, err := moveRecord(rec, cfg, dats, handle)
			return err
		})
		if err != nil {
			return outcome, err
		}
		outcome.Note = "Moved input files to output"

	case romset.ActionLink:
		err := runParallel(string(action), records, cfg.ActionThreads, reporter, func(rec *romset.FileRecord, handle *ProgressHandle) error {
			_, err := linkRecord(rec, cfg, dats, handle)
			return err
		})
		if err != nil {
			return outcome, err
		}
		outcome.Note = fmt.Sprintf("Linked files using %s", cfg.LinkMode)

	case romset.ActionExtract:
		var extractable []*romset.FileRecord
		for _, rec := range records {
			if isExtractableArchive(rec) {
				extractable = append(extractable, rec)
			}
		}
		err := runParallel(string(action), extractable, cfg.ActionThreads, reporter, func(rec *romset.FileRecord, handle *ProgressHandle) error {
			_, err := extractRecord(rec, cfg, dats, handle)
			return err
		})
		if err != nil {
			return outcome, err
		}
		if len(extractable) == 0 {
			outcome.Note = "No archives required extraction"
		} else {
			outcome.Note = fmt.Sprintf("Extracted %d archive(s)", len(extractable))
		}

	case romset.ActionZip:
		var targets []*romset.FileRecord
		skippedCount := 0
		for _, rec := range records {
			if shouldZip(rec, dats) {
				targets = append(targets, rec)
			} else {
				skippedCount++
				logger.Debug("run.zip.skip", "path", rec.Relative, "reason", "non-cartridge")
			}
		}
		if len(targets) == 0 {
			outcome.Note = "No cartridge ROMs required zipping"
			break
		}
		err := runParallel(string(action), targets, cfg.ActionThreads, reporter, func(rec *romset.FileRecord, handle *ProgressHandle) error {
			_, err := zipRecord(rec, cfg, dats, handle)
			return err
		})
		if err != nil {
			return outcome, err
		}
		outcome.Note = fmt.Sprintf("Zipped %d cartridge ROM(s), left %d raw", len(targets), skippedCount)

	case romset.ActionPlaylist:
		if _, err := writePlaylist(records, cfg); err != nil {
			return outcome, err
		}
		outcome.Note = "Generated playlist"

	case romset.ActionReport:
		if _, err := writeReport(records, cfg, enricher, cacheDB); err != nil {
			return outcome, err
		}
		outcome.Note = "Wrote report"

	case romset.ActionDir2dat:
		if _, err := writeDir2dat(records, cfg); err != nil {
			return outcome, err
		}
		outcome.Note = "Generated dir2dat JSON"

	case romset.ActionFixdat:
		if _, err := writeFixdat(unmatchedDats, cfg); err != nil {
			return outcome, err
		}
		outcome.Note = "Generated fixdat JSON"

	case romset.ActionClean:
		cleaned, err := cleanOutput(records, cfg, dats)
		if err != nil {
			return outcome, err
		}
		if cfg.CleanDryRun {
			outcome.Note = fmt.Sprintf("Would clean %d file(s)", len(cleaned))
		} else {
			outcome.Note = fmt.Sprintf("Cleaned %d file(s)", len(cleaned))
		}

	case romset.ActionTest:
		outcome.Note = "Validated configuration only"
	}

	logger.Info("run.action.complete", "action", action, "elapsed", time.Since(start).Round(time.Millisecond))
	return outcome, nil
}

// enricherDats exposes the catalog the enricher was built with; nil
// enricher (tests) means no catalog.
func enricherDats(e *enrich.Enricher) []romset.DatRom {
	if e == nil {
		return nil
	}
	return e.Dats()
}

// BuildSets assembles write candidates for the catalog's multi-part sets.
// Exposed for callers that want set-level planning (and for tests); the
// per-record actions above do not consume it directly.
func BuildSets(roms []romset.DatRom, records []*romset.FileRecord, cfg *config.Config) []romset.WriteCandidate {
	sets := dat.Sets(roms)
	return candidates.BuildWriteCandidates(sets, roms, records, candidates.AssemblyOptions{
		AllowIncompleteSets: cfg.AllowIncompleteSets,
		AllowExcessSets:     cfg.AllowExcessSets,
		Workers:             cfg.ActionThreads,
	})
}

func buildSummary(cfg *config.Config, plan *romset.ExecutionPlan, skipped []romset.SkippedFile, datUnmatched int) romset.RunSummary {
	counts := make(map[romset.SkipReason]int)
	for _, s := range skipped {
		counts[s.Reason]++
	}
	breakdown := make([]romset.SkipSummary, 0, len(counts))
	for reason, count := range counts {
		breakdown = append(breakdown, romset.SkipSummary{Reason: reason, Count: count})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].Reason < breakdown[j].Reason
	})

	return romset.RunSummary{
		TotalInputs:    len(cfg.Input),
		InputRoots:     cfg.Input,
		FilesProcessed: plan.FilesProcessed,
		FilesSkipped:   len(skipped),
		DatUnmatched:   datUnmatched,
		SkipBreakdown:  breakdown,
		ActionsRun:     cfg.Commands,
	}
}
