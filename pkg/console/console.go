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

// Package console maps files, catalogs, and online metadata onto platform
// tokens. Three sources feed the mapping, in decreasing authority: DAT
// catalog names (regex table), free-form platform names from online
// services, and file extensions. The package also classifies records as
// cartridge- or disc-based for the zip action.
package console

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// extMap maps lowercase file extensions (without dot) to platform tokens.
var extMap = map[string]string{
	"sfc": "snes", "smc": "snes", "snes": "snes", "fig": "snes",
	"nes": "nes", "fc": "nes", "nez": "nes",
	"gba": "gba", "gb": "gb", "sgb": "gb", "gbc": "gbc",
	"d64": "n64", "n64": "n64", "v64": "n64", "z64": "n64",
	"3ds": "3ds", "3dsx": "3ds", "cci": "3ds", "cia": "3ds",
	"nds": "nds", "dsi": "nintendo-dsi",
	"gcm": "ngc", "gcz": "ngc",
	"iso": "cdrom", "bin": "cdrom", "cue": "cdrom",
	"pbp": "ps", "psx": "ps", "psexe": "ps",
	"psp": "psp", "psvita": "psvita", "ps3": "ps3",
	"nsp": "switch", "xci": "switch", "nro": "switch", "nso": "switch",
	"md": "genesis-slash-megadrive", "gen": "genesis-slash-megadrive",
	"smd": "genesis-slash-megadrive", "mdx": "genesis-slash-megadrive",
	"32x": "sega32", "sms": "sms", "gg": "gamegear", "sgx": "supergrafx",
	"pce": "turbografx16--1", "sg": "sg1000", "sc": "sg1000",
	"min": "pokemon-mini", "tic": "tic80",
	"vb": "virtualboy", "vboy": "virtualboy",
	"mgw": "g-and-w", "int": "intellivision",
	"a26": "atari2600", "a52": "atari5200", "a78": "atari7800",
	"j64": "jaguar", "lnx": "lynx", "lyx": "lynx",
	"crt": "c64", "d88": "pc-8800-series", "d98": "pc-9800-series",
	"rpk": "ti-994a",
}

// discTokens lists platform tokens whose media is optical; records mapped to
// one of these are not cartridge-based.
var discTokens = map[string]bool{
	"3do": true, "amiga-cd32": true, "cdrom": true, "commodore-cdtv": true,
	"dc": true, "neo-geo-cd": true, "ngc": true, "pc-fx": true,
	"philips-cd-i": true, "ps": true, "ps2": true, "ps3": true, "psp": true,
	"saturn": true, "segacd": true,
	"turbografx-16-slash-pc-engine-cd": true,
	"wii": true, "wiiu": true, "xbox": true, "xbox360": true,
}

// discExtensions are raw-image extensions that imply optical media even when
// no platform token could be derived.
var discExtensions = map[string]bool{
	"iso": true, "cue": true, "img": true, "ccd": true, "mds": true,
	"mdf": true, "nrg": true, "uif": true, "cso": true, "wbfs": true,
	"wia": true, "rvz": true, "gcm": true, "gcz": true, "chd": true,
}

type datPattern struct {
	re    *regexp.Regexp
	token string
}

// datPatterns maps DAT catalog names to platform tokens. Order matters: the
// more specific patterns (e.g. "Game Boy Advance") come before the looser
// ones they would otherwise shadow ("Game Boy").
var datPatterns = compileDatPatterns([]struct{ pat, token string }{
	{`(?i)Archimedes|Archie`, "acorn-archimedes"},
	{`(?i)\bAtom\b`, "atom"},
	{`(?i)PCW`, "amstrad-pcw"},
	{`(?i)Amstrad|CPC`, "acpc"},
	{`(?i)Apple.?II`, "appleii"},
	{`(?i)Amiga CD32|CD32`, "amiga-cd32"},
	{`(?i)Amiga CDTV|CDTV`, "commodore-cdtv"},
	{`(?i)Amiga`, "amiga"},
	{`(?i)Atari.?ST`, "atari-st"},
	{`(?i)2600|A2600`, "atari2600"},
	{`(?i)5200|A5200`, "atari5200"},
	{`(?i)7800|A7800`, "atari7800"},
	{`(?i)Atari 800|8-bit Family`, "atari8bit"},
	{`(?i)Jaguar`, "jaguar"},
	{`(?i)Lynx`, "lynx"},
	{`(?i)Vectrex`, "vectrex"},
	{`(?i)PC[ -]?88\b|PC-8800`, "pc-8800-series"},
	{`(?i)PC[ -]?98\b|PC-9800`, "pc-9800-series"},
	{`(?i)FDS|Famicom Disk|Disk System`, "fds"},
	{`(?i)Game (and|&) Watch|Game.?Watch`, "g-and-w"},
	{`(?i)GameCube|\bGCM\b|\bNGC\b`, "ngc"},
	{`(?i)Game ?Boy Advance|\bGBA\b`, "gba"},
	{`(?i)Game ?Boy Color|\bGBC\b`, "gbc"},
	{`(?i)Game ?Boy|\bGB\b`, "gb"},
	{`(?i)Nintendo 64DD|64DD`, "64dd"},
	{`(?i)Nintendo 64|\bN64\b`, "n64"},
	{`(?i)Nintendo 3DS|3DS`, "3ds"},
	{`(?i)Nintendo DS|\bNDS\b`, "nds"},
	{`(?i)SNES|Super Nintendo|Super Famicom`, "snes"},
	{`(?i)\bNES\b|Famicom|Nintendo Entertainment System`, "nes"},
	{`(?i)Nintendo Switch|Switch`, "switch"},
	{`(?i)Virtual Boy`, "virtualboy"},
	{`(?i)WiiU|Wii U`, "wiiu"},
	{`(?i)Wii`, "wii"},
	{`(?i)3DO`, "3do"},
	{`(?i)CD-?i\b`, "philips-cd-i"},
	{`(?i)Mega CD|Sega CD|Segacd`, "segacd"},
	{`(?i)Mega Drive|Genesis`, "genesis-slash-megadrive"},
	{`(?i)Saturn`, "saturn"},
	{`(?i)SG[ -]?1000`, "sg1000"},
	{`(?i)Neo ?Geo Pocket Color|NGPC`, "neo-geo-pocket-color"},
	{`(?i)Neo ?Geo Pocket|\bNGP\b`, "neo-geo-pocket"},
	{`(?i)Neo ?Geo|Neogeo`, "neogeomvs"},
	{`(?i)PlayStation 2|\bPS2\b`, "ps2"},
	{`(?i)PlayStation 3|\bPS3\b`, "ps3"},
	{`(?i)PlayStation Portable|\bPSP\b`, "psp"},
	{`(?i)PlayStation Vita|PSVita`, "psvita"},
	{`(?i)PlayStation|PSX|\bPS1\b`, "ps"},
	{`(?i)PC Engine|TurboGrafx|TG16`, "turbografx16--1"},
	{`(?i)MSX`, "msx"},
	{`(?i)Intellivision`, "intellivision"},
	{`(?i)Master System|Mastersystem`, "sms"},
	{`(?i)Game Gear`, "gamegear"},
	{`(?i)Dreamcast`, "dc"},
	{`(?i)ColecoVision`, "colecovision"},
	{`(?i)TI[ -]?99`, "ti-994a"},
	{`(?i)Xbox ?360`, "xbox360"},
	{`(?i)Xbox`, "xbox"},
	{`(?i)Palm`, "palm-os"},
	{`(?i)Symbian`, "symbian"},
	{`(?i)C64|Commodore`, "c64"},
	{`(?i)Sharp MZ`, "sharp-mz-2200"},
	{`(?i)X68000`, "sharp-x68000"},
	{`(?i)ZX[ -]?Spectrum`, "zxs"},
	{`(?i)32X`, "sega32"},
})

func compileDatPatterns(rows []struct{ pat, token string }) []datPattern {
	out := make([]datPattern, 0, len(rows))
	for _, row := range rows {
		out = append(out, datPattern{re: regexp.MustCompile(row.pat), token: row.token})
	}
	return out
}

// TokenFromDatName matches a DAT catalog name against the pattern table.
func TokenFromDatName(name string) string {
	for _, p := range datPatterns {
		if p.re.MatchString(name) {
			return p.token
		}
	}
	return ""
}

// TokenFromDat derives a platform token from a catalog entry, trying the rom
// name, the description, and finally the DAT file name.
func TokenFromDat(dat *romset.DatRom) string {
	if tok := TokenFromDatName(dat.Name); tok != "" {
		return tok
	}
	if dat.Description != "" {
		if tok := TokenFromDatName(dat.Description); tok != "" {
			return tok
		}
	}
	if base := filepath.Base(dat.SourceDat); base != "" {
		if tok := TokenFromDatName(base); tok != "" {
			return tok
		}
	}
	return ""
}

// TokenFromPlatformName maps a free-form platform name from an online
// service. The IGDB identifier table is consulted first, then the DAT
// pattern table.
func TokenFromPlatformName(name string) string {
	if tok := lookupIgdbIdentifier(name); tok != "" {
		return tok
	}
	return TokenFromDatName(name)
}

// TokenFromExtension maps a path's extension to a platform token, or ""
// when the extension is absent or unmapped.
func TokenFromExtension(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return ""
	}
	return extMap[ext]
}

// IsDiscToken reports whether the token names an optical-media platform.
func IsDiscToken(token string) bool {
	return discTokens[token]
}

func looksLikeDiscExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "bin" {
		// Many cartridge systems also ship .bin files; only treat the
		// name as optical when it reads like a cue/bin bundle.
		name := strings.ToLower(filepath.Base(path))
		return strings.Contains(name, "disc") || strings.Contains(name, "track")
	}
	return discExtensions[ext]
}

// TokenForRecord derives the platform token for a record: the enriched
// platform when present, else a DAT checksum match, else a DAT name match,
// else scan-info hints, else the extension mapping.
func TokenForRecord(rec *romset.FileRecord, dats []romset.DatRom) string {
	if rec.DerivedPlatform != "" {
		return rec.DerivedPlatform
	}

	for i := range dats {
		dat := &dats[i]
		hit := (dat.SHA1 != "" && strings.EqualFold(rec.Checksums.SHA1, dat.SHA1)) ||
			(dat.MD5 != "" && strings.EqualFold(rec.Checksums.MD5, dat.MD5)) ||
			(dat.CRC32 != "" && strings.EqualFold(rec.Checksums.CRC32, dat.CRC32))
		if hit {
			if tok := TokenFromDat(dat); tok != "" {
				return tok
			}
		}
	}
	base := strings.ToLower(rec.BaseName())
	if base != "" {
		for i := range dats {
			dat := &dats[i]
			if strings.Contains(strings.ToLower(dat.Name), base) {
				if tok := TokenFromDat(dat); tok != "" {
					return tok
				}
			}
		}
	}

	if info := rec.ScanInfo; info != nil {
		if info.IsPBP || info.IsPSXExe {
			return "ps"
		}
		if info.IsCUE {
			if tok := tokenFromCueSheet(rec.Source); tok != "" {
				return tok
			}
		}
	}

	return TokenFromExtension(rec.Relative)
}

var cueFileRe = regexp.MustCompile(`(?i)FILE\s+"?([^"\s]+)"?`)

// tokenFromCueSheet maps the extension of the first FILE reference inside a
// cue sheet.
func tokenFromCueSheet(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	m := cueFileRe.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return TokenFromExtension(string(m[1]))
}

// IsCartridgeBased classifies a record for the zip action. Disc-platform
// tokens, disc-like scan info, and disc-like extensions all mean "not
// cartridge"; everything else defaults to cartridge.
func IsCartridgeBased(rec *romset.FileRecord, dats []romset.DatRom) bool {
	if tok := TokenForRecord(rec, dats); tok != "" {
		return !IsDiscToken(tok)
	}
	if info := rec.ScanInfo; info != nil {
		if info.IsISO || info.IsCUE || info.IsCHD || info.IsPBP {
			return false
		}
	}
	if looksLikeDiscExtension(rec.Source) || looksLikeDiscExtension(rec.Relative) {
		return false
	}
	return true
}
