// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// cliFlags mirrors the raw flag values before they are folded into a
// validated config.Config.
type cliFlags struct {
	showVersion bool
	noColor     bool
	verbose     int
	quiet       int

	configPath string

	input        []string
	inputExclude []string
	checksumMin  string
	checksumMax  string

	dat              []string
	showMatchReasons bool

	output         string
	dirMirror      bool
	dirDatName     bool
	dirLetter      bool
	dirLetterCount int
	dirGameSubdir  string

	overwrite           bool
	moveDeleteDirs      bool
	zipFormat           string
	linkMode            string
	symlinkRelative     bool
	cleanExclude        []string
	cleanBackup         string
	cleanDryRun         bool
	allowExcessSets     bool
	allowIncompleteSets bool

	enableHasheous bool
	hasheousBase   string
	igdbBase       string
	igdbClientID   string
	igdbToken      string
	igdbMode       string
	onlineTimeout  time.Duration
	onlineRetries  int
	onlineThrottle time.Duration

	cacheDB   string
	cacheOnly bool

	scanThreads   int
	hashThreads   int
	actionThreads int

	diag        bool
	metricsAddr string
}

func bindFlags(fs *flag.FlagSet) *cliFlags {
	cli := &cliFlags{}

	fs.BoolVarP(&cli.showVersion, "version", "V", false, "Show version and exit")
	fs.BoolVar(&cli.noColor, "no-color", false, "Disable color output (respects NO_COLOR)")
	fs.CountVarP(&cli.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.CountVarP(&cli.quiet, "quiet", "q", "Suppress non-essential output (repeatable)")
	fs.StringVarP(&cli.configPath, "config", "c", "", "Path to project.yaml defaults file")

	fs.StringArrayVarP(&cli.input, "input", "i", nil, "Input file or directory (repeatable)")
	fs.StringArrayVarP(&cli.inputExclude, "input-exclude", "I", nil, "Glob of inputs to skip (repeatable)")
	fs.StringVar(&cli.checksumMin, "input-checksum-min", "CRC32", "Minimum checksum fidelity {CRC32,MD5,SHA1,SHA256}")
	fs.StringVar(&cli.checksumMax, "input-checksum-max", "", "Maximum checksum fidelity")

	fs.StringArrayVar(&cli.dat, "dat", nil, "DAT catalog file (repeatable)")
	fs.BoolVar(&cli.showMatchReasons, "show-match-reasons", false, "Record per-entry match reasons")

	fs.StringVarP(&cli.output, "output", "o", "", "Output directory (supports {platform}/{genre}/{romm} tokens)")
	fs.BoolVar(&cli.dirMirror, "dir-mirror", false, "Mirror input subdirectories in the output")
	fs.BoolVar(&cli.dirDatName, "dir-dat-name", false, "Group outputs by derived platform directory")
	fs.BoolVar(&cli.dirLetter, "dir-letter", false, "Bucket outputs by leading letter(s)")
	fs.IntVar(&cli.dirLetterCount, "dir-letter-count", 0, "Letters per bucket (requires --dir-letter)")
	fs.StringVar(&cli.dirGameSubdir, "dir-game-subdir", "multiple", "Per-game subdirectory {never,multiple,always}")

	fs.BoolVar(&cli.overwrite, "overwrite", false, "Overwrite existing outputs")
	fs.BoolVar(&cli.moveDeleteDirs, "move-delete-dirs", false, "Prune emptied source directories after move")
	fs.StringVar(&cli.zipFormat, "zip-format", "torrentzip", "Archive format {torrentzip,rvzstd,deflate}")
	fs.StringVar(&cli.linkMode, "link-mode", "hardlink", "Link strategy {hardlink,symlink,reflink}")
	fs.BoolVar(&cli.symlinkRelative, "symlink-relative", false, "Create relative symlinks")
	fs.StringArrayVar(&cli.cleanExclude, "clean-exclude", nil, "Glob of outputs clean must keep (repeatable)")
	fs.StringVar(&cli.cleanBackup, "clean-backup", "", "Move cleaned files here instead of deleting")
	fs.BoolVar(&cli.cleanDryRun, "clean-dry-run", false, "Report what clean would remove")
	fs.BoolVar(&cli.allowExcessSets, "allow-excess-sets", false, "Emit set shells with no matched parts")
	fs.BoolVar(&cli.allowIncompleteSets, "allow-incomplete-sets", false, "Emit sets with missing parts")

	fs.BoolVar(&cli.enableHasheous, "enable-hasheous", false, "Enable Hasheous content lookups")
	fs.StringVar(&cli.hasheousBase, "hasheous-base", "", "Hasheous service base URL")
	fs.StringVar(&cli.igdbBase, "igdb-base", "", "IGDB API base URL")
	fs.StringVar(&cli.igdbClientID, "igdb-client-id", "", "IGDB client id")
	fs.StringVar(&cli.igdbToken, "igdb-token", "", "IGDB bearer token")
	fs.StringVar(&cli.igdbMode, "igdb-mode", "", "IGDB lookup mode {off,best-effort,always} (default best-effort)")
	fs.DurationVar(&cli.onlineTimeout, "online-timeout", 5*time.Second, "Per-request timeout for online lookups")
	fs.IntVar(&cli.onlineRetries, "online-max-retries", 3, "Retry ceiling for online lookups")
	fs.DurationVar(&cli.onlineThrottle, "online-throttle", 0, "Delay between requests per endpoint")

	fs.StringVar(&cli.cacheDB, "cache-db", "", "SQLite cache database path")
	fs.BoolVar(&cli.cacheOnly, "cache-only", false, "Never touch the network; serve lookups from cache")

	fs.IntVar(&cli.scanThreads, "scan-threads", 0, "Scanner parallelism (0 = CPU count)")
	fs.IntVar(&cli.hashThreads, "hash-threads", 0, "Hashing parallelism (0 = CPU count)")
	fs.IntVar(&cli.actionThreads, "action-threads", 0, "Action worker parallelism (0 = CPU count)")

	fs.BoolVar(&cli.diag, "diag", false, "Emit per-phase timings and the unknown-genre report")
	fs.StringVar(&cli.metricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics")

	return cli
}

// resolveConfig folds the project file, environment, and flags (in
// ascending precedence) into a validated Config.
func resolveConfig(cli *cliFlags, args []string) (*config.Config, error) {
	cfg := config.Defaults()

	if err := applyProjectFile(&cfg, cli.configPath); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)

	for _, arg := range args {
		action, err := romset.ParseAction(arg)
		if err != nil {
			return nil, err
		}
		cfg.Commands = append(cfg.Commands, action)
	}

	if len(cli.input) > 0 {
		cfg.Input = cli.input
	}
	if len(cli.inputExclude) > 0 {
		cfg.InputExclude = cli.inputExclude
	}
	min, err := romset.ParseChecksum(cli.checksumMin)
	if err != nil {
		return nil, err
	}
	cfg.InputChecksumMin = min
	if cli.checksumMax != "" {
		max, err := romset.ParseChecksum(cli.checksumMax)
		if err != nil {
			return nil, err
		}
		cfg.InputChecksumMax = &max
	}

	if len(cli.dat) > 0 {
		cfg.Dat = cli.dat
	}
	cfg.ShowMatchReasons = cli.showMatchReasons

	if cli.output != "" {
		cfg.Output = cli.output
	}
	cfg.DirMirror = cli.dirMirror
	cfg.DirDatName = cli.dirDatName
	cfg.DirLetter = cli.dirLetter
	cfg.DirLetterCount = cli.dirLetterCount
	subdir, err := config.ParseGameSubdirMode(cli.dirGameSubdir)
	if err != nil {
		return nil, err
	}
	cfg.DirGameSubdir = subdir

	cfg.Overwrite = cli.overwrite
	cfg.MoveDeleteDirs = cli.moveDeleteDirs
	zipFormat, err := config.ParseZipFormat(cli.zipFormat)
	if err != nil {
		return nil, err
	}
	cfg.ZipFormat = zipFormat
	linkMode, err := config.ParseLinkMode(cli.linkMode)
	if err != nil {
		return nil, err
	}
	cfg.LinkMode = linkMode
	cfg.SymlinkRelative = cli.symlinkRelative
	if len(cli.cleanExclude) > 0 {
		cfg.CleanExclude = cli.cleanExclude
	}
	if cli.cleanBackup != "" {
		cfg.CleanBackup = cli.cleanBackup
	}
	cfg.CleanDryRun = cli.cleanDryRun
	cfg.AllowExcessSets = cli.allowExcessSets
	cfg.AllowIncompleteSets = cli.allowIncompleteSets

	if cli.enableHasheous {
		cfg.EnableHasheous = true
	}
	if cli.hasheousBase != "" {
		cfg.HasheousBase = cli.hasheousBase
	}
	if cli.igdbBase != "" {
		cfg.IgdbBase = cli.igdbBase
	}
	if cli.igdbClientID != "" {
		cfg.IgdbClientID = cli.igdbClientID
	}
	if cli.igdbToken != "" {
		cfg.IgdbToken = cli.igdbToken
	}
	if cli.igdbMode != "" {
		igdbMode, err := config.ParseIgdbMode(cli.igdbMode)
		if err != nil {
			return nil, err
		}
		cfg.IgdbMode = igdbMode
	}
	cfg.OnlineTimeout = cli.onlineTimeout
	cfg.OnlineMaxRetries = cli.onlineRetries
	cfg.OnlineThrottle = cli.onlineThrottle

	if cli.cacheDB != "" {
		cfg.CacheDB = cli.cacheDB
	}
	cfg.CacheOnly = cli.cacheOnly

	if cli.scanThreads > 0 {
		cfg.ScanThreads = cli.scanThreads
	}
	if cli.hashThreads > 0 {
		cfg.HashThreads = cli.hashThreads
	}
	if cli.actionThreads > 0 {
		cfg.ActionThreads = cli.actionThreads
	}

	cfg.Verbose = cli.verbose
	cfg.Quiet = cli.quiet
	cfg.Diag = cli.diag
	cfg.MetricsAddr = cli.metricsAddr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment defaults below flag precedence.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("ROMKEEPER_CACHE_DB"); v != "" {
		cfg.CacheDB = v
	}
	if v := os.Getenv("ROMKEEPER_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("IGDB_CLIENT_ID"); v != "" {
		cfg.IgdbClientID = v
	}
	if v := os.Getenv("IGDB_TOKEN"); v != "" {
		cfg.IgdbToken = v
	}
}
