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

// Package actions executes run commands over enriched records: the
// parallel copy/move/link/extract/zip workers, the report and playlist
// writers, output-tree cleaning, and the run orchestration tying scan,
// enrichment, and execution together.
package actions

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/console"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// LetterBucket derives the --dir-letter directory: the first count
// alphabetic characters of the stem, uppercased; "_misc" when the stem has
// none.
func LetterBucket(stem string, count int) string {
	if count <= 0 {
		count = 1
	}
	var b strings.Builder
	for _, r := range stem {
		if b.Len() >= count {
			break
		}
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "_misc"
	}
	return b.String()
}

// substituteTokens expands {platform}, {genre}, and {romm} in the output
// root using the record's derived fields.
func substituteTokens(root string, rec *romset.FileRecord, dats []romset.DatRom) string {
	if !strings.Contains(root, "{") {
		return root
	}
	platform := console.TokenForRecord(rec, dats)
	if platform == "" {
		platform = "unknown"
	}
	genre := "unknown"
	if len(rec.DerivedGenres) > 0 {
		genre = rec.DerivedGenres[0]
	}
	replacer := strings.NewReplacer(
		"{platform}", platform,
		"{romm}", platform,
		"{genre}", genre,
	)
	return replacer.Replace(root)
}

// ResolveOutputPath computes where a record lands in the output tree:
//
//	<output-root> / [dir-mirror? parent] / [dir-dat-name? platform-dir]
//	             / [dir-letter? bucket] / [dir-game-subdir? stem] / filename
func ResolveOutputPath(rec *romset.FileRecord, cfg *config.Config, dats []romset.DatRom) string {
	base := cfg.Output
	if base == "" {
		base = "output"
	}
	base = substituteTokens(base, rec, dats)

	if cfg.DirMirror {
		if parent := filepath.Dir(rec.Relative); parent != "." && parent != string(filepath.Separator) {
			base = filepath.Join(base, parent)
		}
	}
	if cfg.DirDatName {
		dir := console.TokenForRecord(rec, dats)
		if dir == "" {
			dir = "uncategorized"
		}
		base = filepath.Join(base, dir)
	}
	if cfg.DirLetter {
		base = filepath.Join(base, LetterBucket(rec.Stem(), cfg.LetterCount()))
	}
	if cfg.DirGameSubdir == config.GameSubdirAlways {
		base = filepath.Join(base, rec.Stem())
	}

	return filepath.Join(base, rec.BaseName())
}

// ensureParent creates the target's parent directory. Concurrent creates
// of the same directory are fine: MkdirAll succeeds on existing paths.
func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
