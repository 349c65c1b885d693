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

// Package config holds the resolved run configuration and its validation
// rules. The CLI layer builds a Config from flags, environment, and the
// optional project file; everything below the CLI consumes it read-only.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// ZipFormat selects the archive trailer and compression for the zip action.
type ZipFormat string

const (
	ZipTorrentzip ZipFormat = "torrentzip"
	ZipRvzstd     ZipFormat = "rvzstd"
	ZipDeflate    ZipFormat = "deflate"
)

// ParseZipFormat maps a flag value to a ZipFormat.
func ParseZipFormat(s string) (ZipFormat, error) {
	switch ZipFormat(strings.ToLower(s)) {
	case ZipTorrentzip:
		return ZipTorrentzip, nil
	case ZipRvzstd:
		return ZipRvzstd, nil
	case ZipDeflate:
		return ZipDeflate, nil
	}
	return "", fmt.Errorf("unknown zip format %q", s)
}

// LinkMode selects how the link action materializes output entries.
type LinkMode string

const (
	LinkHardlink LinkMode = "hardlink"
	LinkSymlink  LinkMode = "symlink"
	LinkReflink  LinkMode = "reflink"
)

// ParseLinkMode maps a flag value to a LinkMode.
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(strings.ToLower(s)) {
	case LinkHardlink:
		return LinkHardlink, nil
	case LinkSymlink:
		return LinkSymlink, nil
	case LinkReflink:
		return LinkReflink, nil
	}
	return "", fmt.Errorf("unknown link mode %q", s)
}

// IgdbMode gates IGDB name lookups.
type IgdbMode string

const (
	IgdbOff        IgdbMode = "off"
	IgdbBestEffort IgdbMode = "best-effort"
	IgdbAlways     IgdbMode = "always"
)

// ParseIgdbMode maps a flag value to an IgdbMode.
func ParseIgdbMode(s string) (IgdbMode, error) {
	switch IgdbMode(strings.ToLower(s)) {
	case IgdbOff:
		return IgdbOff, nil
	case IgdbBestEffort:
		return IgdbBestEffort, nil
	case IgdbAlways:
		return IgdbAlways, nil
	}
	return "", fmt.Errorf("unknown igdb mode %q", s)
}

// GameSubdirMode controls the per-game output subdirectory.
type GameSubdirMode string

const (
	GameSubdirNever    GameSubdirMode = "never"
	GameSubdirMultiple GameSubdirMode = "multiple"
	GameSubdirAlways   GameSubdirMode = "always"
)

// ParseGameSubdirMode maps a flag value to a GameSubdirMode.
func ParseGameSubdirMode(s string) (GameSubdirMode, error) {
	switch GameSubdirMode(strings.ToLower(s)) {
	case GameSubdirNever:
		return GameSubdirNever, nil
	case GameSubdirMultiple:
		return GameSubdirMultiple, nil
	case GameSubdirAlways:
		return GameSubdirAlways, nil
	}
	return "", fmt.Errorf("unknown dir-game-subdir mode %q", s)
}

// Config is the fully resolved run configuration.
type Config struct {
	Commands []romset.Action

	// Inputs.
	Input            []string
	InputExclude     []string
	InputChecksumMin romset.Checksum
	InputChecksumMax *romset.Checksum

	// Catalogs.
	Dat              []string
	ShowMatchReasons bool

	// Output layout.
	Output         string
	DirMirror      bool
	DirDatName     bool
	DirLetter      bool
	DirLetterCount int
	DirGameSubdir  GameSubdirMode

	// Action behavior.
	Overwrite           bool
	MoveDeleteDirs      bool
	ZipFormat           ZipFormat
	LinkMode            LinkMode
	SymlinkRelative     bool
	CleanExclude        []string
	CleanBackup         string
	CleanDryRun         bool
	AllowExcessSets     bool
	AllowIncompleteSets bool

	// Online services.
	EnableHasheous   bool
	HasheousBase     string
	IgdbBase         string
	IgdbClientID     string
	IgdbToken        string
	IgdbMode         IgdbMode
	OnlineTimeout    time.Duration
	OnlineMaxRetries int
	OnlineThrottle   time.Duration

	// Cache.
	CacheDB   string
	CacheOnly bool

	// Platform tokens whose extension mapping is too generic to veto an
	// online-derived platform (e.g. raw disc images).
	AmbiguousTokens []string

	// Concurrency.
	ScanThreads   int
	HashThreads   int
	ActionThreads int

	// Diagnostics.
	Verbose     int
	Quiet       int
	Diag        bool
	MetricsAddr string
}

// Defaults returns a Config with the documented default values filled in.
func Defaults() Config {
	return Config{
		InputChecksumMin: romset.ChecksumCRC32,
		DirGameSubdir:    GameSubdirMultiple,
		ZipFormat:        ZipTorrentzip,
		LinkMode:         LinkHardlink,
		IgdbMode:         IgdbBestEffort,
		HasheousBase:     "https://hasheous.com",
		IgdbBase:         "https://api.igdb.com/v4",
		OnlineTimeout:    5 * time.Second,
		OnlineMaxRetries: 3,
		AmbiguousTokens:  []string{"cdrom"},
		ScanThreads:      runtime.NumCPU(),
		HashThreads:      runtime.NumCPU(),
		ActionThreads:    runtime.NumCPU(),
	}
}

// Validate rejects inconsistent settings before any work starts.
func (c *Config) Validate() error {
	if len(c.Commands) == 0 {
		return fmt.Errorf("at least one command must be provided")
	}
	if c.InputChecksumMax != nil && c.InputChecksumMax.Rank() < c.InputChecksumMin.Rank() {
		return fmt.Errorf("input-checksum-max cannot be lower fidelity than input-checksum-min")
	}
	if c.DirLetterCount > 0 && !c.DirLetter {
		return fmt.Errorf("dir-letter-count requires --dir-letter to organize by letter")
	}
	for _, cmd := range c.Commands {
		if cmd.NeedsOutput() && c.Output == "" {
			return fmt.Errorf("--output is required for the %s command", cmd)
		}
	}
	if c.IgdbMode != IgdbOff && (c.IgdbClientID == "") != (c.IgdbToken == "") {
		return fmt.Errorf("--igdb-client-id and --igdb-token must be provided together")
	}
	return nil
}

// LetterCount returns the effective --dir-letter-count (default 1).
func (c *Config) LetterCount() int {
	if c.DirLetterCount > 0 {
		return c.DirLetterCount
	}
	return 1
}

// IgdbClientConfigured reports whether IGDB credentials are present.
func (c *Config) IgdbClientConfigured() bool {
	return c.IgdbClientID != "" && c.IgdbToken != ""
}

// IgdbLookupEnabled reports whether IGDB may be consulted at all (cache
// included).
func (c *Config) IgdbLookupEnabled() bool {
	return c.IgdbMode != IgdbOff && c.IgdbClientConfigured()
}

// IgdbNetworkEnabled reports whether IGDB may be reached over the network.
// Cache-only mode forbids all HTTP regardless of mode.
func (c *Config) IgdbNetworkEnabled() bool {
	return c.IgdbLookupEnabled() && !c.CacheOnly
}

// HasheousNetworkEnabled reports whether Hasheous may be reached over the
// network.
func (c *Config) HasheousNetworkEnabled() bool {
	return c.EnableHasheous && !c.CacheOnly
}

// ShouldAttemptIgdbLookup applies the mode gating to one record's state.
// extIdentifies is true when the record's extension maps to an unambiguous
// platform token on its own.
func (c *Config) ShouldAttemptIgdbLookup(hasPlatform, hasGenres, extIdentifies bool) bool {
	if !c.IgdbLookupEnabled() {
		return false
	}
	switch c.IgdbMode {
	case IgdbAlways:
		return !hasGenres || !hasPlatform
	case IgdbBestEffort:
		if hasPlatform && hasGenres {
			return false
		}
		if hasGenres && extIdentifies {
			return false
		}
		return !hasGenres
	}
	return false
}

// IsAmbiguousToken reports whether token belongs to the configured
// ambiguous-extension set.
func (c *Config) IsAmbiguousToken(token string) bool {
	for _, t := range c.AmbiguousTokens {
		if t == token {
			return true
		}
	}
	return false
}
