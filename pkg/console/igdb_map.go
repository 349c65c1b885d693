// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import "strings"

// igdbIdentifiers maps normalized IGDB platform names, slugs, and
// abbreviations to platform tokens. Keys are normalized with
// normalizeIdentifier so "Game Boy Advance", "game-boy-advance", and "GBA"
// all resolve the same way.
var igdbIdentifiers = buildIgdbIdentifiers()

func buildIgdbIdentifiers() map[string]string {
	m := make(map[string]string)
	add := func(token string, names ...string) {
		for _, name := range names {
			m[normalizeIdentifier(name)] = token
		}
	}

	add("acorn-archimedes", "Acorn Archimedes", "Archimedes")
	add("atom", "Acorn Atom", "Atom")
	add("acpc", "Amstrad CPC")
	add("amstrad-pcw", "Amstrad PCW")
	add("appleii", "Apple II")
	add("amiga", "Amiga", "Commodore Amiga")
	add("amiga-cd32", "Amiga CD32", "CD32")
	add("commodore-cdtv", "Commodore CDTV", "CDTV")
	add("atari2600", "Atari 2600", "VCS")
	add("atari5200", "Atari 5200")
	add("atari7800", "Atari 7800")
	add("atari8bit", "Atari 8-bit", "Atari 800")
	add("atari-st", "Atari ST")
	add("lynx", "Atari Lynx", "Lynx")
	add("vectrex", "Vectrex")
	add("c64", "Commodore 64", "C64")
	add("pc-8800-series", "PC-8800 Series", "PC-88")
	add("pc-9800-series", "PC-9800 Series", "PC-98")
	add("fds", "Famicom Disk System", "Disk System", "Nintendo Disk System")
	add("g-and-w", "Game & Watch", "Game and Watch")
	add("64dd", "Nintendo 64DD", "64DD")
	add("nes", "Nintendo Entertainment System", "NES", "Famicom")
	add("snes", "Super Nintendo", "Super Nintendo Entertainment System", "SNES", "Super Famicom")
	add("gb", "Game Boy", "GB")
	add("gbc", "Game Boy Color", "GBC")
	add("gba", "Game Boy Advance", "GBA")
	add("n64", "Nintendo 64", "N64")
	add("ngc", "Nintendo GameCube", "GameCube")
	add("nds", "Nintendo DS", "NDS")
	add("3ds", "Nintendo 3DS", "3DS")
	add("switch", "Nintendo Switch", "Switch")
	add("wii", "Nintendo Wii", "Wii")
	add("wiiu", "Nintendo Wii U", "Wii U", "WiiU")
	add("virtualboy", "Virtual Boy")
	add("gamegear", "Game Gear", "Sega Game Gear", "GameGear", "GG")
	add("sms", "Sega Master System", "Master System", "Mark III")
	add("sega32", "Sega 32X", "32X")
	add("genesis-slash-megadrive", "Mega Drive", "Sega Mega Drive", "Genesis", "Sega Genesis")
	add("segacd", "Sega CD", "Mega CD")
	add("saturn", "Sega Saturn", "Saturn")
	add("sg1000", "SG-1000", "Sega SG-1000")
	add("dc", "Dreamcast", "Sega Dreamcast")
	add("turbografx16--1", "TurboGrafx-16", "PC Engine")
	add("philips-cd-i", "Philips CD-i", "CD-i")
	add("3do", "3DO", "Panasonic 3DO")
	add("neo-geo-pocket", "Neo Geo Pocket", "NGP")
	add("neo-geo-pocket-color", "Neo Geo Pocket Color", "NGPC")
	add("neogeomvs", "Neo Geo", "Neo-Geo", "Neo Geo AES", "Neo Geo MVS")
	add("colecovision", "ColecoVision")
	add("intellivision", "Intellivision")
	add("jaguar", "Atari Jaguar", "Jaguar")
	add("msx", "MSX")
	add("ti-994a", "TI-99/4A", "TI 99/4A")
	add("sharp-mz-2200", "Sharp MZ", "Sharp MZ-2200")
	add("sharp-x68000", "Sharp X68000", "X68000")
	add("zxs", "ZX Spectrum", "Sinclair ZX Spectrum")
	add("palm-os", "Palm OS")
	add("symbian", "Symbian")
	add("ps", "PlayStation", "PSX", "PS1")
	add("ps2", "PlayStation 2", "PS2")
	add("ps3", "PlayStation 3", "PS3")
	add("psp", "PlayStation Portable", "PSP")
	add("psvita", "PlayStation Vita", "PS Vita", "Vita")
	add("xbox", "Xbox")
	add("xbox360", "Xbox 360")
	add("pokemon-mini", "Pokemon Mini", "Pokémon mini")
	add("supergrafx", "SuperGrafx", "PC Engine SuperGrafx")

	// Slug spellings used by IGDB itself map through unchanged.
	for _, slug := range []string{
		"snes", "nes", "gb", "gbc", "gba", "n64", "ngc", "nds", "3ds",
		"switch", "wii", "wiiu", "virtualboy", "gamegear", "sms",
		"genesis-slash-megadrive", "segacd", "saturn", "sg1000", "dc",
		"turbografx16--1", "philips-cd-i", "3do", "neo-geo-pocket",
		"neo-geo-pocket-color", "colecovision", "intellivision", "jaguar",
		"lynx", "msx", "zxs", "ps", "ps2", "ps3", "psp", "psvita", "xbox",
		"xbox360", "amiga", "c64", "atari2600", "atari5200", "atari7800",
	} {
		m[normalizeIdentifier(slug)] = slug
	}

	return m
}

// normalizeIdentifier lowercases and strips everything except letters and
// digits so punctuation and spacing differences collapse.
func normalizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lookupIgdbIdentifier(name string) string {
	return igdbIdentifiers[normalizeIdentifier(name)]
}

// ResolvePlatformToken maps a list of online platform identifiers to a
// token. When preferred is non-empty and one identifier maps to it, that
// mapping wins; otherwise the first mappable identifier is returned. The
// second return value is the identifier that produced the token.
func ResolvePlatformToken(identifiers []string, preferred string) (token, identifier string) {
	for _, ident := range identifiers {
		tok := TokenFromPlatformName(ident)
		if tok == "" {
			continue
		}
		if token == "" {
			token, identifier = tok, ident
		}
		if preferred != "" && tok == preferred {
			return tok, ident
		}
	}
	return token, identifier
}
