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

// Package cache persists identification results between runs: computed
// checksums, raw Hasheous payloads, and raw IGDB payloads, all keyed by a
// record's content key. The store is a single SQLite database; readers run
// concurrently, writers serialize on the handle.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// DefaultFileName is used when --cache-db is not given; the file lands in
// the working directory so runs are isolated per invocation location.
const DefaultFileName = "romkeeper_cache.sqlite"

// Cache wraps the SQLite handle. Safe for concurrent use.
type Cache struct {
	db *sql.DB
	// mu serializes writes; SQLite handles concurrent readers itself.
	mu sync.Mutex
}

// IgdbEntry is one cached IGDB response plus its indexed summary columns.
type IgdbEntry struct {
	Raw       json.RawMessage
	Slug      string
	Name      string
	Genres    []string
	Platforms []string
}

// Open opens (or creates) the database at path and applies the schema and
// migrations. A failure here is fatal to caching but not to the run; the
// caller decides.
func Open(path string) (*Cache, error) {
	if path == "" {
		path = DefaultFileName
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite cache %s: %w", path, err)
	}
	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS checksums (
    key TEXT PRIMARY KEY,
    source TEXT,
    size INTEGER,
    crc32 TEXT,
    md5 TEXT,
    sha1 TEXT,
    sha256 TEXT,
    updated_at INTEGER
);
CREATE TABLE IF NOT EXISTS hasheous (
    key TEXT PRIMARY KEY,
    source TEXT,
    json TEXT,
    updated_at INTEGER
);
CREATE TABLE IF NOT EXISTS igdb (
    key TEXT PRIMARY KEY,
    json TEXT,
    slug TEXT,
    name TEXT,
    genres_json TEXT,
    platforms_json TEXT,
    updated_at INTEGER
);`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("creating cache schema: %w", err)
	}
	return c.migrate()
}

// migrate adds columns introduced after the first release. "duplicate
// column" failures mean the column already exists and are ignored.
func (c *Cache) migrate() error {
	migrations := []string{
		"ALTER TABLE igdb ADD COLUMN slug TEXT",
		"ALTER TABLE igdb ADD COLUMN name TEXT",
		"ALTER TABLE igdb ADD COLUMN genres_json TEXT",
		"ALTER TABLE igdb ADD COLUMN platforms_json TEXT",
	}
	for _, ddl := range migrations {
		if _, err := c.db.Exec(ddl); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("cache migration %q: %w", ddl, err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetChecksums returns the cached checksum set for key, if any.
func (c *Cache) GetChecksums(key string) (romset.ChecksumSet, bool, error) {
	var set romset.ChecksumSet
	var crc, md5sum, sha1sum, sha256sum sql.NullString
	err := c.db.QueryRow(
		"SELECT crc32, md5, sha1, sha256 FROM checksums WHERE key = ?", key,
	).Scan(&crc, &md5sum, &sha1sum, &sha256sum)
	if errors.Is(err, sql.ErrNoRows) {
		return set, false, nil
	}
	if err != nil {
		return set, false, err
	}
	set.CRC32 = crc.String
	set.MD5 = md5sum.String
	set.SHA1 = sha1sum.String
	set.SHA256 = sha256sum.String
	return set, true, nil
}

// SetChecksums upserts the checksum row for key.
func (c *Cache) SetChecksums(key, source string, size int64, set romset.ChecksumSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		`REPLACE INTO checksums (key, source, size, crc32, md5, sha1, sha256, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, source, size,
		nullable(set.CRC32), nullable(set.MD5), nullable(set.SHA1), nullable(set.SHA256),
		time.Now().Unix(),
	)
	return err
}

// GetHasheousRaw returns the cached Hasheous payload for key, if any.
func (c *Cache) GetHasheousRaw(key string) (json.RawMessage, bool, error) {
	var raw sql.NullString
	err := c.db.QueryRow("SELECT json FROM hasheous WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, false, nil
	}
	return json.RawMessage(raw.String), true, nil
}

// SetHasheousRaw upserts the raw Hasheous payload for key.
func (c *Cache) SetHasheousRaw(key, source string, raw json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		"REPLACE INTO hasheous (key, source, json, updated_at) VALUES (?, ?, ?, ?)",
		key, source, string(raw), time.Now().Unix(),
	)
	return err
}

// GetIgdbEntry returns the cached IGDB entry for key, if any.
func (c *Cache) GetIgdbEntry(key string) (*IgdbEntry, bool, error) {
	var raw, slug, name, genres, platforms sql.NullString
	err := c.db.QueryRow(
		"SELECT json, slug, name, genres_json, platforms_json FROM igdb WHERE key = ?", key,
	).Scan(&raw, &slug, &name, &genres, &platforms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, false, nil
	}
	entry := &IgdbEntry{
		Raw:       json.RawMessage(raw.String),
		Slug:      slug.String,
		Name:      name.String,
		Genres:    parseStringList(genres.String),
		Platforms: parseStringList(platforms.String),
	}
	return entry, true, nil
}

// SetIgdbRaw upserts the raw IGDB payload for key, deriving the summary
// columns (slug, name, genres, platforms) from the payload.
func (c *Cache) SetIgdbRaw(key string, raw json.RawMessage) error {
	summary := summarizeIgdb(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		`REPLACE INTO igdb (key, json, slug, name, genres_json, platforms_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, string(raw),
		nullable(summary.slug), nullable(summary.name),
		nullable(summary.genresJSON), nullable(summary.platformsJSON),
		time.Now().Unix(),
	)
	return err
}

// DeleteIgdb removes the row for key; used when a cached entry's platforms
// contradict a record's derived platform.
func (c *Cache) DeleteIgdb(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec("DELETE FROM igdb WHERE key = ?", key)
	return err
}

func parseStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

type igdbSummary struct {
	slug          string
	name          string
	genresJSON    string
	platformsJSON string
}

// summarizeIgdb pulls the indexed columns out of an IGDB response (an array
// of game objects; only the first entry feeds the summary).
func summarizeIgdb(raw json.RawMessage) igdbSummary {
	var entries []struct {
		Slug   string `json:"slug"`
		Name   string `json:"name"`
		Genres []struct {
			Name string `json:"name"`
		} `json:"genres"`
		Platforms []struct {
			Name         string `json:"name"`
			Slug         string `json:"slug"`
			Abbreviation string `json:"abbreviation"`
		} `json:"platforms"`
	}
	var out igdbSummary
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return out
	}
	first := entries[0]
	out.slug = first.Slug
	out.name = first.Name

	var genres []string
	for _, g := range first.Genres {
		genres = appendUnique(genres, g.Name)
	}
	var platforms []string
	for _, p := range first.Platforms {
		platforms = appendUnique(platforms, p.Name)
		platforms = appendUnique(platforms, p.Slug)
		platforms = appendUnique(platforms, p.Abbreviation)
	}
	if len(genres) > 0 {
		if b, err := json.Marshal(genres); err == nil {
			out.genresJSON = string(b)
		}
	}
	if len(platforms) > 0 {
		if b, err := json.Marshal(platforms); err == nil {
			out.platformsJSON = string(b)
		}
	}
	return out
}

func appendUnique(list []string, candidate string) []string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return list
	}
	for _, have := range list {
		if strings.EqualFold(have, candidate) {
			return list
		}
	}
	return append(list, candidate)
}

// EntryMatchesPlatform reports whether any cached platform identifier maps
// to the given token, using the provided mapper. Entries without platform
// data match anything.
func (e *IgdbEntry) EntryMatchesPlatform(token string, mapToken func(string) string) bool {
	if len(e.Platforms) == 0 {
		return true
	}
	for _, ident := range e.Platforms {
		if mapToken(ident) == token {
			return true
		}
	}
	return false
}
