// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scan

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// headerProbeSize covers the largest signature offset we check in the
// leading bytes.
const headerProbeSize = 1024

// iso9660DescriptorOffset is where an ISO9660 primary volume descriptor
// lives; the signature "CD001" sits one byte in.
const iso9660DescriptorOffset = 0x8000

// ScanHeader runs the signature heuristics over one file and returns its
// ScanInfo. The scanner is best-effort: read failures yield a nil info and
// the error so the caller can log and continue.
func ScanHeader(path string) (*romset.ScanInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := st.Size()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	info := &romset.ScanInfo{
		IsCHD: ext == "chd",
		IsISO: ext == "iso",
		IsPBP: ext == "pbp",
		IsCUE: ext == "cue",
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	probe := headerProbeSize
	if size < int64(probe) {
		probe = int(size)
	}
	buf := make([]byte, probe)
	if _, err := io.ReadFull(f, buf); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}

	// iNES, Lynx, and SMC headers carry fixed data offsets.
	switch {
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x4E, 0x45, 0x53, 0x1A}):
		info.HeaderSize = 16
	case len(buf) >= 4 && bytes.Equal(buf[:4], []byte("LYNX")):
		info.HeaderSize = 64
	case size > 512 && (size%1024) == 512:
		// SMC-style copier header: file is 512 bytes past a multiple of
		// 1 KiB.
		info.HeaderSize = 512
	}

	if !info.IsCHD && len(buf) >= 8 && bytes.Equal(buf[:8], []byte("MComprHD")) {
		info.IsCHD = true
	}
	if !info.IsPBP && len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x00, 'P', 'B', 'P'}) {
		info.IsPBP = true
	}
	if bytes.Contains(buf, []byte("PS-X EXE")) {
		info.IsPSXExe = true
	}
	if !info.IsCUE && looksLikeCueText(buf) {
		info.IsCUE = true
	}

	if !info.IsISO && size > iso9660DescriptorOffset+6 {
		var desc [6]byte
		if _, err := f.ReadAt(desc[:], iso9660DescriptorOffset); err == nil {
			if bytes.Equal(desc[1:6], []byte("CD001")) {
				info.IsISO = true
			}
		}
	}

	return info, nil
}

// looksLikeCueText detects cue sheets without the .cue extension by their
// FILE/TRACK directives in the leading bytes.
func looksLikeCueText(buf []byte) bool {
	upper := bytes.ToUpper(buf)
	return bytes.Contains(upper, []byte("FILE ")) && bytes.Contains(upper, []byte("TRACK "))
}
