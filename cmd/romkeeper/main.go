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

// Package main implements the romkeeper CLI: a ROM collection curator that
// identifies files against DAT catalogs and online services, then
// materializes a curated output tree.
//
// Usage:
//
//	romkeeper <command>... [options]
//
// Commands run in the order given: copy, move, link, extract, zip,
// playlist, test, dir2dat, fixdat, clean, report.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/retrolabs/romkeeper/internal/errors"
	"github.com/retrolabs/romkeeper/internal/ui"
	"github.com/retrolabs/romkeeper/pkg/actions"
	"github.com/retrolabs/romkeeper/pkg/progress"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	fs := flag.NewFlagSet("romkeeper", flag.ExitOnError)
	fs.Usage = printUsage(fs)

	cli := bindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if cli.showVersion {
		fmt.Printf("romkeeper version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		return
	}

	ui.InitColors(cli.noColor)

	if cli.quiet > 0 && cli.verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		os.Exit(2)
	}

	cfg, err := resolveConfig(cli, fs.Args())
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Invalid configuration",
			err.Error(),
			"Run 'romkeeper --help' for the accepted commands and flags",
			nil,
		), false)
	}

	logger := newLogger(cli.verbose, cli.quiet)
	slog.SetDefault(logger)

	metrics := startMetrics(cfg, logger)
	reporter := progress.NewReporter(cli.quiet > 0, cfg.Diag, metrics)

	start := time.Now()
	plan, runErr := actions.Perform(context.Background(), cfg, logger, reporter)
	reporter.Finalize()

	if plan != nil {
		printSummary(plan, time.Since(start))
		if cfg.Diag {
			printDiagTimings(reporter.PhaseTimings())
		}
	}

	if runErr != nil {
		errors.FatalError(errors.NewIOError(
			"Run failed",
			runErr.Error(),
			"",
			runErr,
		), false)
	}
}

// newLogger builds the text logger: --verbose raises the level to Debug,
// --quiet drops it to Error.
func newLogger(verbose, quiet int) *slog.Logger {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}
	if quiet > 0 {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printUsage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `romkeeper - ROM collection curator

romkeeper reconciles on-disk ROM collections against DAT catalogs and
online metadata services (Hasheous, IGDB), derives per-file platform and
genre tags, and materializes a curated output tree with deterministic
TorrentZip archives.

Usage:
  romkeeper <command>... [options]

Commands (run in the order given):
  copy       Copy input files to the output tree
  move       Move input files to the output tree
  link       Link input files into the output tree
  extract    Expand archives into the output tree
  zip        TorrentZip cartridge ROMs
  playlist   Write playlist.m3u for the record set
  report     Write report.json and online_matches.json
  dir2dat    Serialize the enriched record set
  fixdat     Serialize catalog entries no input matched
  clean      Remove unexpected files from the output tree
  test       Scan and enrich only; no side effects

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Copy a collection into a per-platform tree, zipping cartridges
  romkeeper copy zip --input ~/roms --output ~/curated \
      --dat "No-Intro Collection.dat" --dir-letter

  # Offline re-run against a warm cache
  romkeeper test --input ~/roms --cache-db cache.sqlite --cache-only \
      --enable-hasheous

Environment:
  ROMKEEPER_CACHE_DB   Default cache database path
  ROMKEEPER_OUTPUT     Default output directory
  IGDB_CLIENT_ID       IGDB credentials
  IGDB_TOKEN

`)
	}
}
