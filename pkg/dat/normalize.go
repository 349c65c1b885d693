// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dat

import (
	"regexp"
	"strings"
)

var (
	bracketGroupRe = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	yearTokenRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	revTokenRe     = regexp.MustCompile(`(?i)\b(rev|v|version)\s*[0-9.]+\b`)
	spaceRunRe     = regexp.MustCompile(`\s+`)
)

// NormalizeTitle strips bracketed region/language/revision groups, loose
// year and revision tokens, and collapses whitespace. Case is preserved;
// callers that need a case-insensitive key lowercase the result.
func NormalizeTitle(s string) string {
	s = bracketGroupRe.ReplaceAllString(s, " ")
	s = yearTokenRe.ReplaceAllString(s, " ")
	s = revTokenRe.ReplaceAllString(s, " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeName prepares a filename for an IGDB search query: drop the
// extension, then normalize like a title.
func NormalizeName(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		filename = filename[:idx]
	}
	return NormalizeTitle(filename)
}

// TokenizeTitle splits a normalized title into lowercase alphanumeric
// tokens for Jaccard overlap scoring.
func TokenizeTitle(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
