// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package online

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// Hasheous looks games up by content hash.
type Hasheous struct {
	base string
	ep   *endpoint
}

// NewHasheous builds a client for the service at base (no trailing slash).
func NewHasheous(base string, opts Options) *Hasheous {
	return &Hasheous{base: strings.TrimSuffix(base, "/"), ep: newEndpoint(opts)}
}

// LookupByHash queries one algorithm/value pair. A 404 or empty body is a
// clean miss (nil, nil).
func (h *Hasheous) LookupByHash(ctx context.Context, alg, hexValue string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/v1/Lookup/ByHash/%s/%s", h.base, alg, hexValue)
	body, ok, err := h.ep.get(ctx, url)
	if err != nil || !ok {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// hashAlgs is the service's algorithm vocabulary.
var hashAlgs = []string{"sha1", "md5", "sha256", "crc32"}

// guessAlg infers the algorithm from the hex length, or "" when ambiguous.
func guessAlg(hexValue string) string {
	switch len(hexValue) {
	case 40:
		return "sha1"
	case 32:
		return "md5"
	case 64:
		return "sha256"
	case 8:
		return "crc32"
	}
	return ""
}

// LookupAny walks the record's checksums in preference order (SHA-1, MD5,
// SHA-256, CRC32). For each value the length-guessed algorithm is tried
// first, then the remaining algorithms with the same value. The first hit
// wins. attempted reports whether any network request was issued.
func (h *Hasheous) LookupAny(ctx context.Context, set romset.ChecksumSet) (raw json.RawMessage, attempted bool, err error) {
	values := []string{set.SHA1, set.MD5, set.SHA256, set.CRC32}
	var lastErr error
	for _, value := range values {
		if value == "" {
			continue
		}
		guess := guessAlg(value)
		if guess != "" {
			attempted = true
			raw, err := h.LookupByHash(ctx, guess, value)
			if err != nil {
				lastErr = err
			} else if raw != nil {
				return raw, true, nil
			}
		}
		for _, alg := range hashAlgs {
			if alg == guess {
				continue
			}
			attempted = true
			raw, err := h.LookupByHash(ctx, alg, value)
			if err != nil {
				lastErr = err
			} else if raw != nil {
				return raw, true, nil
			}
		}
	}
	return nil, attempted, lastErr
}
