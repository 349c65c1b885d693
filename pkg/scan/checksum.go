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

// Package scan discovers input files, computes their checksums in a single
// streaming pass per file, and runs the ROM header heuristics that feed
// cartridge/disc classification.
package scan

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

// copyBufSize bounds memory per hashing worker; large files are read in
// chunks of this size.
const copyBufSize = 1 << 20

// ComputeChecksums reads path once and fills every requested digest.
func ComputeChecksums(path string, algs []romset.Checksum) (romset.ChecksumSet, error) {
	var set romset.ChecksumSet
	if len(algs) == 0 {
		return set, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return set, fmt.Errorf("reading file for checksum %s: %w", path, err)
	}
	defer f.Close()

	var (
		writers []io.Writer
		crc     hash.Hash32
		md5h    hash.Hash
		sha1h   hash.Hash
		sha256h hash.Hash
	)
	for _, alg := range algs {
		switch alg {
		case romset.ChecksumCRC32:
			crc = crc32.NewIEEE()
			writers = append(writers, crc)
		case romset.ChecksumMD5:
			md5h = md5.New()
			writers = append(writers, md5h)
		case romset.ChecksumSHA1:
			sha1h = sha1.New()
			writers = append(writers, sha1h)
		case romset.ChecksumSHA256:
			sha256h = sha256.New()
			writers = append(writers, sha256h)
		}
	}

	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(io.MultiWriter(writers...), f, buf); err != nil {
		return set, fmt.Errorf("hashing %s: %w", path, err)
	}

	if crc != nil {
		set.CRC32 = fmt.Sprintf("%08x", crc.Sum32())
	}
	if md5h != nil {
		set.MD5 = hex.EncodeToString(md5h.Sum(nil))
	}
	if sha1h != nil {
		set.SHA1 = hex.EncodeToString(sha1h.Sum(nil))
	}
	if sha256h != nil {
		set.SHA256 = hex.EncodeToString(sha256h.Sum(nil))
	}
	return set, nil
}

// ComputeAllChecksums fills all four digests in one pass. Used when a
// record needs a content key but the configured fidelity produced none.
func ComputeAllChecksums(path string) (romset.ChecksumSet, error) {
	return ComputeChecksums(path, []romset.Checksum{
		romset.ChecksumCRC32, romset.ChecksumMD5, romset.ChecksumSHA1, romset.ChecksumSHA256,
	})
}
