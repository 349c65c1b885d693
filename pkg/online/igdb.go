// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package online

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryFields is the field list requested from the games endpoint. The
// parent references are included so empty-genre children can graft their
// parent's genres.
const QueryFields = "name,genres.name,platforms.name,platforms.slug,platforms.abbreviation,version_parent,parent_game"

// IGDB queries the games endpoint with Apicalypse-style bodies.
type IGDB struct {
	base     string
	clientID string
	token    string
	ep       *endpoint
}

// NewIGDB builds a client for the API at base (e.g.
// "https://api.igdb.com/v4") with the given credentials.
func NewIGDB(base, clientID, token string, opts Options) *IGDB {
	return &IGDB{
		base:     strings.TrimSuffix(base, "/"),
		clientID: clientID,
		token:    token,
		ep:       newEndpoint(opts),
	}
}

func (g *IGDB) headers() map[string]string {
	return map[string]string{
		"Client-ID":     g.clientID,
		"Authorization": "Bearer " + g.token,
		"Accept":        "application/json",
	}
}

func (g *IGDB) query(ctx context.Context, body string) (json.RawMessage, error) {
	data, ok, err := g.ep.post(ctx, g.base+"/games", g.headers(), body)
	if err != nil || !ok {
		return nil, err
	}
	// An empty result array is a miss, not a payload worth caching.
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "[]" {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// SearchByName runs a fuzzy title search (limit 5).
func (g *IGDB) SearchByName(ctx context.Context, name string) (json.RawMessage, error) {
	name = strings.ReplaceAll(name, `"`, ``)
	body := fmt.Sprintf(`search "%s"; fields %s; limit 5;`, name, QueryFields)
	return g.query(ctx, body)
}

// LookupBySlug fetches the single game with the given slug.
func (g *IGDB) LookupBySlug(ctx context.Context, slug string) (json.RawMessage, error) {
	body := fmt.Sprintf(`where slug = "%s"; fields %s; limit 1;`, slug, QueryFields)
	return g.query(ctx, body)
}

// LookupByID fetches the single game with the given id. Used for parent
// fetches, which are bounded at depth 1: parents are fetched, grandparents
// never.
func (g *IGDB) LookupByID(ctx context.Context, id int64) (json.RawMessage, error) {
	body := fmt.Sprintf(`where id = %d; fields %s; limit 1;`, id, QueryFields)
	return g.query(ctx, body)
}
