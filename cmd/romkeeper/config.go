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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/retrolabs/romkeeper/pkg/config"
)

const (
	defaultConfigDir  = ".romkeeper"
	defaultConfigFile = "project.yaml"
)

// projectFile is the optional per-collection defaults file. Every field is
// a default; flags always win.
type projectFile struct {
	Input        []string `yaml:"input,omitempty"`
	InputExclude []string `yaml:"input_exclude,omitempty"`
	Dat          []string `yaml:"dat,omitempty"`
	Output       string   `yaml:"output,omitempty"`
	CacheDB      string   `yaml:"cache_db,omitempty"`

	Hasheous struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url,omitempty"`
	} `yaml:"hasheous,omitempty"`

	Igdb struct {
		ClientID string `yaml:"client_id,omitempty"`
		Token    string `yaml:"token,omitempty"`
		Mode     string `yaml:"mode,omitempty"`
		BaseURL  string `yaml:"base_url,omitempty"`
	} `yaml:"igdb,omitempty"`

	// AmbiguousTokens overrides the platform tokens whose extension
	// mapping never vetoes an online-derived platform.
	AmbiguousTokens []string `yaml:"ambiguous_tokens,omitempty"`
}

// applyProjectFile merges the defaults file at path (or the first
// .romkeeper/project.yaml found walking up from the working directory)
// into cfg. A missing file is fine; a malformed one is not.
func applyProjectFile(cfg *config.Config, path string) error {
	if path == "" {
		path = findProjectFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if len(pf.Input) > 0 {
		cfg.Input = pf.Input
	}
	if len(pf.InputExclude) > 0 {
		cfg.InputExclude = pf.InputExclude
	}
	if len(pf.Dat) > 0 {
		cfg.Dat = pf.Dat
	}
	if pf.Output != "" {
		cfg.Output = pf.Output
	}
	if pf.CacheDB != "" {
		cfg.CacheDB = pf.CacheDB
	}
	if pf.Hasheous.Enabled {
		cfg.EnableHasheous = true
	}
	if pf.Hasheous.BaseURL != "" {
		cfg.HasheousBase = pf.Hasheous.BaseURL
	}
	if pf.Igdb.ClientID != "" {
		cfg.IgdbClientID = pf.Igdb.ClientID
	}
	if pf.Igdb.Token != "" {
		cfg.IgdbToken = pf.Igdb.Token
	}
	if pf.Igdb.Mode != "" {
		mode, err := config.ParseIgdbMode(pf.Igdb.Mode)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.IgdbMode = mode
	}
	if pf.Igdb.BaseURL != "" {
		cfg.IgdbBase = pf.Igdb.BaseURL
	}
	if len(pf.AmbiguousTokens) > 0 {
		cfg.AmbiguousTokens = pf.AmbiguousTokens
	}
	return nil
}

// findProjectFile searches the working directory and its parents for
// .romkeeper/project.yaml.
func findProjectFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, defaultConfigDir, defaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
