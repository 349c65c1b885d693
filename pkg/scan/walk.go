// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// Result carries the scanned records plus the skip accounting.
type Result struct {
	Records []*romset.FileRecord
	Skipped []romset.SkippedFile
}

// ProgressFunc receives (done, total) after each hashed file.
type ProgressFunc func(done, total int64)

// Collect walks every input root, filters excludes, hashes the survivors in
// parallel to the configured fidelity, and runs the header scanner.
// Records are returned sorted by Key for deterministic downstream order.
func Collect(ctx context.Context, cfg *config.Config, logger *slog.Logger, onProgress ProgressFunc) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	type pending struct {
		source   string
		relative string
		size     int64
	}
	var (
		mu      sync.Mutex
		files   []pending
		skipped []romset.SkippedFile
	)

	excluded := func(path string) bool {
		for _, pattern := range cfg.InputExclude {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
			if ok, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && ok {
				return true
			}
		}
		return false
	}

	// Input roots are independent; walk them in parallel under the scan
	// thread limit.
	scanWorkers := cfg.ScanThreads
	if scanWorkers <= 0 {
		scanWorkers = 1
	}
	wg, walkCtx := errgroup.WithContext(ctx)
	wg.SetLimit(scanWorkers)
	for _, input := range cfg.Input {
		input := input
		wg.Go(func() error {
			if err := walkCtx.Err(); err != nil {
				return err
			}
			abs, err := filepath.Abs(input)
			if err != nil {
				return fmt.Errorf("resolving input %s: %w", input, err)
			}
			root := abs
			err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					mu.Lock()
					skipped = append(skipped, romset.SkippedFile{Path: path, Reason: romset.SkipUnreadable})
					mu.Unlock()
					logger.Warn("scan.walk.error", "path", path, "err", err)
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					return nil
				}
				if !d.Type().IsRegular() {
					mu.Lock()
					skipped = append(skipped, romset.SkippedFile{Path: path, Reason: romset.SkipNotFile})
					mu.Unlock()
					return nil
				}
				if excluded(path) {
					mu.Lock()
					skipped = append(skipped, romset.SkippedFile{Path: path, Reason: romset.SkipExcluded})
					mu.Unlock()
					return nil
				}
				info, err := d.Info()
				if err != nil {
					mu.Lock()
					skipped = append(skipped, romset.SkippedFile{Path: path, Reason: romset.SkipUnreadable})
					mu.Unlock()
					logger.Warn("scan.stat.error", "path", path, "err", err)
					return nil
				}
				rel, err := filepath.Rel(root, path)
				if err != nil || rel == "." {
					rel = filepath.Base(path)
				}
				mu.Lock()
				files = append(files, pending{source: path, relative: rel, size: info.Size()})
				mu.Unlock()
				return nil
			})
			if err != nil {
				return fmt.Errorf("scanning input %s: %w", input, err)
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	// Stable order before hashing so record indices are deterministic.
	sort.Slice(files, func(i, j int) bool { return files[i].source < files[j].source })

	logger.Info("scan.discovered", "files", len(files), "skipped", len(skipped))

	algs := romset.ChecksumRange(cfg.InputChecksumMin, cfg.InputChecksumMax)
	records := make([]*romset.FileRecord, len(files))

	workers := cfg.HashThreads
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		progressMu sync.Mutex
		done       int64
	)
	total := int64(len(files))
	for i := range files {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := files[i]
			sums, err := ComputeChecksums(p.source, algs)
			if err != nil {
				return err
			}
			rec := &romset.FileRecord{
				Source:    p.source,
				Relative:  p.relative,
				Size:      p.size,
				Checksums: sums,
			}
			if info, err := ScanHeader(p.source); err == nil {
				rec.ScanInfo = info
			} else {
				logger.Warn("scan.header.error", "path", p.source, "err", err)
			}
			records[i] = rec

			progressMu.Lock()
			done++
			n := done
			progressMu.Unlock()
			if onProgress != nil {
				onProgress(n, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })

	return &Result{Records: records, Skipped: skipped}, nil
}
