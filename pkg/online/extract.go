// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package online

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractHasheousPlatform pulls a platform name out of any of the response
// shapes the service emits:
//
//	{platform: {name}}, {platforms: ["…"|{name}]}, {console|system: "…"},
//	{metadata: [{source: "platform", name|id}]},
//	{signature: {game: {system|systemVariant}}}.
func ExtractHasheousPlatform(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}

	if p, ok := obj["platform"].(map[string]any); ok {
		if name, ok := p["name"].(string); ok && name != "" {
			return name
		}
	}
	if arr, ok := obj["platforms"].([]any); ok {
		for _, e := range arr {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
			if m, ok := e.(map[string]any); ok {
				if name, ok := m["name"].(string); ok && name != "" {
					return name
				}
			}
		}
	}
	if s, ok := obj["console"].(string); ok && s != "" {
		return s
	}
	if s, ok := obj["system"].(string); ok && s != "" {
		return s
	}
	if meta, ok := obj["metadata"].([]any); ok {
		for _, e := range meta {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			src, _ := m["source"].(string)
			if !strings.EqualFold(src, "platform") && !strings.EqualFold(src, "system") {
				continue
			}
			if id, ok := m["id"].(string); ok && id != "" {
				return id
			}
			if name, ok := m["name"].(string); ok && name != "" {
				return name
			}
		}
	}
	if sig, ok := obj["signature"].(map[string]any); ok {
		if game, ok := sig["game"].(map[string]any); ok {
			if s, ok := game["system"].(string); ok && s != "" {
				return s
			}
			if s, ok := game["systemVariant"].(string); ok && s != "" {
				return s
			}
		}
		if p, ok := sig["platform"].(map[string]any); ok {
			if name, ok := p["name"].(string); ok && name != "" {
				return name
			}
		}
	}
	return ""
}

// ExtractEmbeddedHashes scans every string field recursively for 40-digit
// (SHA-1) and 32-digit (MD5) hex values. First hit of each wins.
func ExtractEmbeddedHashes(raw json.RawMessage) (sha1Hex, md5Hex string) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", ""
	}
	var visit func(any)
	visit = func(node any) {
		if sha1Hex != "" && md5Hex != "" {
			return
		}
		switch n := node.(type) {
		case string:
			s := strings.TrimSpace(n)
			if sha1Hex == "" && len(s) == 40 && isHex(s) {
				sha1Hex = strings.ToLower(s)
			}
			if md5Hex == "" && len(s) == 32 && isHex(s) {
				md5Hex = strings.ToLower(s)
			}
		case []any:
			for _, e := range n {
				visit(e)
			}
		case map[string]any:
			for _, e := range n {
				visit(e)
			}
		}
	}
	visit(v)
	return sha1Hex, md5Hex
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return len(s) > 0
}

// NormalizeSlug reduces a raw slug candidate to IGDB slug form: lowercase
// alphanumerics with single dashes.
func NormalizeSlug(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), `"'`)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '/':
			if s := b.String(); s != "" && !strings.HasSuffix(s, "-") {
				b.WriteByte('-')
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// slugFromURL extracts the slug segment of an igdb.com game URL.
func slugFromURL(url string) string {
	lower := strings.ToLower(url)
	var tail string
	if idx := strings.Index(lower, "/games/"); idx >= 0 {
		tail = url[idx+len("/games/"):]
	} else if idx := strings.Index(lower, "/game/"); idx >= 0 {
		tail = url[idx+len("/game/"):]
	} else {
		return ""
	}
	if cut := strings.IndexAny(tail, "/?#"); cut >= 0 {
		tail = tail[:cut]
	}
	return NormalizeSlug(tail)
}

// ExtractIgdbSlugs walks a Hasheous payload for IGDB references: igdb.com
// URLs anywhere, and {source: "igdb", id|url} metadata objects.
func ExtractIgdbSlugs(raw json.RawMessage) []string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var slugs []string
	push := func(slug string) {
		if slug == "" {
			return
		}
		for _, have := range slugs {
			if strings.EqualFold(have, slug) {
				return
			}
		}
		slugs = append(slugs, slug)
	}

	var visit func(any)
	visit = func(node any) {
		switch n := node.(type) {
		case string:
			if strings.Contains(n, "igdb.com") {
				push(slugFromURL(n))
			}
		case []any:
			for _, e := range n {
				visit(e)
			}
		case map[string]any:
			if src, ok := n["source"].(string); ok && strings.EqualFold(src, "igdb") {
				if id, ok := n["id"].(string); ok {
					push(NormalizeSlug(id))
				}
				if url, ok := n["url"].(string); ok {
					push(slugFromURL(url))
				}
			}
			for _, e := range n {
				visit(e)
			}
		}
	}
	visit(v)
	return slugs
}

// igdbGame mirrors the fields we request from the games endpoint.
type igdbGame struct {
	ID     int64  `json:"id"`
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
	VersionParent json.RawMessage `json:"version_parent"`
	ParentGame    json.RawMessage `json:"parent_game"`
}

func decodeGames(raw json.RawMessage) []igdbGame {
	var games []igdbGame
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil
	}
	return games
}

// ExtractIgdbPlatforms collects every platform identifier (name, slug,
// abbreviation) across all entries of an IGDB response.
func ExtractIgdbPlatforms(raw json.RawMessage) []string {
	var out []string
	push := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	for _, game := range decodeGames(raw) {
		for _, p := range game.Platforms {
			push(p.Name)
			push(p.Slug)
			push(p.Abbreviation)
		}
	}
	return out
}

// ExtractIgdbGenres collects genre names across all entries, dropping
// case-insensitive duplicates.
func ExtractIgdbGenres(raw json.RawMessage) []string {
	var out []string
	for _, game := range decodeGames(raw) {
		for _, g := range game.Genres {
			name := strings.TrimSpace(g.Name)
			if name == "" {
				continue
			}
			dup := false
			for _, have := range out {
				if strings.EqualFold(have, name) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, name)
			}
		}
	}
	return out
}

// ExtractParentID returns the first entry's version_parent or parent_game
// reference (bare id or {id: n}), or 0 when absent.
func ExtractParentID(raw json.RawMessage) int64 {
	games := decodeGames(raw)
	if len(games) == 0 {
		return 0
	}
	first := games[0]
	if id := decodeGameRef(first.VersionParent); id != 0 {
		return id
	}
	return decodeGameRef(first.ParentGame)
}

func decodeGameRef(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return 0
}

// GraftParentGenres builds a child payload whose first entry carries the
// parent's genres while keeping the child's identity (slug, name, id).
// Returns nil when either payload lacks the needed shape or the parent has
// no genres.
func GraftParentGenres(child, parent json.RawMessage) json.RawMessage {
	var childEntries []map[string]any
	if err := json.Unmarshal(child, &childEntries); err != nil || len(childEntries) == 0 {
		return nil
	}
	var parentEntries []map[string]any
	if err := json.Unmarshal(parent, &parentEntries); err != nil || len(parentEntries) == 0 {
		return nil
	}
	genres, ok := parentEntries[0]["genres"]
	if !ok {
		return nil
	}
	combined := childEntries[0]
	combined["genres"] = genres
	out, err := json.Marshal([]map[string]any{combined})
	if err != nil {
		return nil
	}
	return out
}

// ParentCacheKey is the cache key for a parent fetched by id.
func ParentCacheKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

// SlugCacheKey is the cache key for a slug lookup.
func SlugCacheKey(slug string) string {
	return "slug:" + slug
}
