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

// Package dat loads DAT catalog files and builds the checksum/name indexes
// used for record identification. The accepted XML shape is a top-level
// <datafile> with <game> or <machine> children, each carrying an optional
// <description> and self-closing <rom> elements with name/size/crc/md5/
// sha1/sha256 attributes. Unknown elements and attributes are ignored.
package dat

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// Load parses every DAT file in paths into a flat catalog entry list.
// A parse failure in any file aborts the load with a file-and-position
// message; catalogs are trusted inputs and a broken one is a config error.
func Load(paths []string) ([]romset.DatRom, error) {
	var roms []romset.DatRom
	for _, path := range paths {
		fileRoms, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		roms = append(roms, fileRoms...)
	}
	return roms, nil
}

func loadFile(path string) ([]romset.DatRom, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open DAT file %s: %w", path, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var roms []romset.DatRom
	var currentGame string
	var inDescription bool

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing DAT file %s at offset %d: %w", path, dec.InputOffset(), err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "game", "machine":
				currentGame = ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "name" {
						currentGame = attr.Value
					}
				}
			case "description":
				inDescription = true
			case "rom":
				roms = append(roms, romFromElement(t, path, currentGame))
				// Self-closing in every dialect we accept, but skip any
				// body defensively so nesting stays balanced.
				if err := dec.Skip(); err != nil && err != io.EOF {
					return nil, fmt.Errorf("parsing DAT file %s at offset %d: %w", path, dec.InputOffset(), err)
				}
			}
		case xml.CharData:
			if inDescription {
				if text := strings.TrimSpace(string(t)); text != "" {
					currentGame = text
				}
				inDescription = false
			}
		case xml.EndElement:
			if t.Name.Local == "description" {
				inDescription = false
			}
		}
	}

	return roms, nil
}

func romFromElement(el xml.StartElement, path, description string) romset.DatRom {
	rom := romset.DatRom{
		Description: description,
		SourceDat:   path,
		Size:        -1,
	}
	for _, attr := range el.Attr {
		value := attr.Value
		switch attr.Name.Local {
		case "name":
			rom.Name = value
		case "size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				rom.Size = n
			}
		case "crc":
			rom.CRC32 = strings.ToUpper(value)
		case "md5":
			rom.MD5 = strings.ToLower(value)
		case "sha1":
			rom.SHA1 = strings.ToLower(value)
		case "sha256":
			rom.SHA256 = strings.ToLower(value)
		}
	}
	return rom
}

// Sets groups catalog entries into multi-part sets keyed by game
// description: every rom that shares a description belongs to one set.
// Entries without a description form single-part sets named after the rom.
func Sets(roms []romset.DatRom) map[string][]string {
	sets := make(map[string][]string)
	for i := range roms {
		name := roms[i].Description
		if name == "" {
			name = roms[i].Name
		}
		sets[name] = append(sets[name], roms[i].Name)
	}
	return sets
}
