// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package actions

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// cleanOutput walks the output tree and removes (or backs up) every file
// that is not an expected output of the current record set and does not
// match a clean-exclude glob. Dry-run only reports what would go.
func cleanOutput(records []*romset.FileRecord, cfg *config.Config, dats []romset.DatRom) ([]string, error) {
	if cfg.Output == "" {
		return nil, nil
	}

	expected := make(map[string]bool, len(records)*2)
	for _, rec := range records {
		path := ResolveOutputPath(rec, cfg, dats)
		expected[path] = true
		// The zip action replaces raw outputs with .zip siblings; both
		// spellings count as expected.
		expected[strings.TrimSuffix(path, filepath.Ext(path))+".zip"] = true
	}

	excluded := func(path string) bool {
		for _, pattern := range cfg.CleanExclude {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
			if ok, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && ok {
				return true
			}
		}
		return false
	}

	var cleaned []string
	err := filepath.WalkDir(cfg.Output, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if expected[path] || excluded(path) {
			return nil
		}

		if cfg.CleanDryRun {
			cleaned = append(cleaned, path)
			return nil
		}

		if cfg.CleanBackup != "" {
			target := filepath.Join(cfg.CleanBackup, filepath.Base(path))
			if err := ensureParent(target); err != nil {
				return err
			}
			if err := os.Rename(path, target); err != nil {
				if err := copyFileWithProgress(path, target, nil); err != nil {
					return err
				}
				if err := os.Remove(path); err != nil {
					return err
				}
			}
			cleaned = append(cleaned, target)
			return nil
		}

		if err := os.Remove(path); err != nil {
			return err
		}
		cleaned = append(cleaned, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleaned, nil
}
