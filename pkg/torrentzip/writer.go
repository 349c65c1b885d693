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

// Package torrentzip writes byte-deterministic ZIP archives. Entries carry
// zero timestamps and CP437 filenames, the central directory is followed by
// an EOCD whose comment embeds the CRC32 of the central directory bytes
// ("TORRENTZIPPED-XXXXXXXX", or "RVZSTD-XXXXXXXX" for Zstandard entries),
// and Zip64 records appear exactly when the classic fields overflow. Names
// that cannot be encoded to CP437 are routed through a library fallback
// that still patches a correct trailer.
package torrentzip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Format selects compression method and trailer marker.
type Format string

const (
	FormatTorrentzip Format = "torrentzip"
	FormatRvzstd     Format = "rvzstd"
	FormatDeflate    Format = "deflate"
)

// ZIP compression method ids.
const (
	methodDeflate uint16 = 8
	methodZstd    uint16 = 93
)

const (
	sigLocalHeader  uint32 = 0x04034b50
	sigCentralDir   uint32 = 0x02014b50
	sigEOCD         uint32 = 0x06054b50
	sigZip64EOCD    uint32 = 0x06064b50
	sigZip64Locator uint32 = 0x07064b50

	max16 = 0xFFFF
	max32 = 0xFFFFFFFF
)

const copyBufSize = 1 << 20

// ErrNoSources is returned when the caller passes an empty source list.
var ErrNoSources = errors.New("torrentzip: no source files")

// SourceEntry names one file to add: the on-disk path and the in-archive
// name.
type SourceEntry struct {
	Path string
	Name string
}

// ProgressFunc receives aggregate uncompressed bytes consumed and the total
// hint (0 when unknown).
type ProgressFunc func(done, total int64)

// entry is one written member, as needed for the central directory.
type entry struct {
	name             []byte
	crc              uint32
	compressedSize   uint64
	uncompressedSize uint64
	offset           uint64
}

func (f Format) method() uint16 {
	if f == FormatRvzstd {
		return methodZstd
	}
	return methodDeflate
}

// trailerMarker returns the EOCD comment prefix for the format. The plain
// deflate format keeps the TorrentZip marker: its layout is identical.
func (f Format) trailerMarker() string {
	if f == FormatRvzstd {
		return "RVZSTD-"
	}
	return "TORRENTZIPPED-"
}

// TrailerComment renders the EOCD comment for a central-directory CRC.
func TrailerComment(f Format, cdCRC uint32) string {
	return fmt.Sprintf("%s%08X", f.trailerMarker(), cdCRC)
}

// WriteArchive builds dest from srcs. The manual writer runs whenever every
// in-archive name is CP437-encodable; otherwise the library fallback writes
// UTF-8 names and patches the trailer afterwards.
func WriteArchive(srcs []SourceEntry, dest string, format Format, progress ProgressFunc) error {
	if len(srcs) == 0 {
		return ErrNoSources
	}

	names := make([][]byte, len(srcs))
	cp437OK := true
	for i, src := range srcs {
		raw, ok := EncodeCP437(src.Name)
		if !ok {
			cp437OK = false
			break
		}
		names[i] = raw
	}
	if !cp437OK {
		return writeWithFallback(srcs, dest, format, progress)
	}
	return writeManual(srcs, names, dest, format, progress)
}

func writeManual(srcs []SourceEntry, names [][]byte, dest string, format Format, progress ProgressFunc) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	var totalHint int64
	for _, src := range srcs {
		st, err := os.Stat(src.Path)
		if err != nil {
			totalHint = 0
			break
		}
		totalHint += st.Size()
	}

	var (
		entries []entry
		offset  uint64
		done    int64
	)
	report := func(n int64) {
		if progress != nil && n > 0 {
			done += n
			progress(done, totalHint)
		}
	}

	for i, src := range srcs {
		tmp, crcValue, usize, csize, err := compressToTemp(src.Path, format, report)
		if err != nil {
			return err
		}
		lh := buildLocalHeader(names[i], crcValue, csize, usize, format)
		if _, err := out.Write(lh); err != nil {
			tmp.discard()
			return fmt.Errorf("writing local header for %s: %w", src.Name, err)
		}
		if err := tmp.copyInto(out); err != nil {
			return fmt.Errorf("writing payload for %s: %w", src.Name, err)
		}
		entries = append(entries, entry{
			name:             names[i],
			crc:              crcValue,
			compressedSize:   csize,
			uncompressedSize: usize,
			offset:           offset,
		})
		offset += uint64(len(lh)) + csize
	}

	if err := writeCentralAndEOCD(out, entries, format, offset); err != nil {
		return err
	}
	return out.Sync()
}

// buildLocalHeader lays out one local file header: fixed fields, zero
// mtime/mdate, and a 16-byte Zip64 extra when either size overflows.
func buildLocalHeader(name []byte, crcValue uint32, csize, usize uint64, format Format) []byte {
	zip64 := csize > max32 || usize > max32

	b := make([]byte, 0, 30+len(name)+20)
	b = le32(b, sigLocalHeader)
	b = le16(b, 20) // version needed
	b = le16(b, 0)  // general purpose flags
	b = le16(b, format.method())
	b = le16(b, 0) // mod time
	b = le16(b, 0) // mod date
	b = le32(b, crcValue)
	if zip64 {
		b = le32(b, max32)
		b = le32(b, max32)
		b = le16(b, uint16(len(name)))
		b = le16(b, 20) // extra: header(4) + two uint64
		b = append(b, name...)
		b = le16(b, 0x0001)
		b = le16(b, 16)
		b = le64(b, usize)
		b = le64(b, csize)
	} else {
		b = le32(b, uint32(csize))
		b = le32(b, uint32(usize))
		b = le16(b, uint16(len(name)))
		b = le16(b, 0)
		b = append(b, name...)
	}
	return b
}

// buildCentralDirectory serializes all central-directory entries.
func buildCentralDirectory(entries []entry, format Format) []byte {
	var cd []byte
	for i := range entries {
		cd = appendCentralEntry(cd, &entries[i], format.method())
	}
	return cd
}

func appendCentralEntry(cd []byte, e *entry, method uint16) []byte {
	sizesOverflow := e.compressedSize > max32 || e.uncompressedSize > max32
	offsetOverflow := e.offset > max32
	needZip64 := sizesOverflow || offsetOverflow

	var extra []byte
	if needZip64 {
		extra = le16(extra, 0x0001)
		extra = le16(extra, 24)
		extra = le64(extra, e.uncompressedSize)
		extra = le64(extra, e.compressedSize)
		extra = le64(extra, e.offset)
	}

	cd = le32(cd, sigCentralDir)
	cd = le16(cd, 20) // version made by
	cd = le16(cd, 20) // version needed
	cd = le16(cd, 0) // flags
	cd = le16(cd, method)
	cd = le16(cd, 0) // mod time
	cd = le16(cd, 0) // mod date
	cd = le32(cd, e.crc)
	if sizesOverflow {
		cd = le32(cd, max32)
		cd = le32(cd, max32)
	} else {
		cd = le32(cd, uint32(e.compressedSize))
		cd = le32(cd, uint32(e.uncompressedSize))
	}
	cd = le16(cd, uint16(len(e.name)))
	cd = le16(cd, uint16(len(extra)))
	cd = le16(cd, 0) // comment length
	cd = le16(cd, 0) // disk number start
	cd = le16(cd, 0) // internal attrs
	cd = le32(cd, 0) // external attrs
	if offsetOverflow {
		cd = le32(cd, max32)
	} else {
		cd = le32(cd, uint32(e.offset))
	}
	cd = append(cd, e.name...)
	cd = append(cd, extra...)
	return cd
}

// writeCentralAndEOCD emits the central directory, the Zip64 EOCD record
// and locator when required, and the classic EOCD whose comment carries the
// CRC32 of the central-directory bytes.
func writeCentralAndEOCD(w io.Writer, entries []entry, format Format, cdOffset uint64) error {
	cd := buildCentralDirectory(entries, format)
	cdCRC := crc32.ChecksumIEEE(cd)
	cdSize := uint64(len(cd))

	needZip64 := len(entries) > max16 || cdSize > max32 || cdOffset > max32
	for i := range entries {
		e := &entries[i]
		if e.compressedSize > max32 || e.uncompressedSize > max32 || e.offset > max32 {
			needZip64 = true
			break
		}
	}

	if _, err := w.Write(cd); err != nil {
		return fmt.Errorf("writing central directory: %w", err)
	}

	if needZip64 {
		zip64Offset := cdOffset + cdSize

		var b []byte
		b = le32(b, sigZip64EOCD)
		b = le64(b, 44) // size of remaining record
		b = le16(b, 45) // version made by
		b = le16(b, 45) // version needed
		b = le32(b, 0)  // this disk
		b = le32(b, 0)  // disk with CD start
		b = le64(b, uint64(len(entries)))
		b = le64(b, uint64(len(entries)))
		b = le64(b, cdSize)
		b = le64(b, cdOffset)

		b = le32(b, sigZip64Locator)
		b = le32(b, 0) // disk with zip64 EOCD
		b = le64(b, zip64Offset)
		b = le32(b, 1) // total disks

		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("writing zip64 records: %w", err)
		}
	}

	comment := TrailerComment(format, cdCRC)

	var b []byte
	b = le32(b, sigEOCD)
	b = le16(b, 0) // this disk
	b = le16(b, 0) // CD start disk
	if len(entries) > max16 {
		b = le16(b, max16)
		b = le16(b, max16)
	} else {
		b = le16(b, uint16(len(entries)))
		b = le16(b, uint16(len(entries)))
	}
	if cdSize > max32 {
		b = le32(b, max32)
	} else {
		b = le32(b, uint32(cdSize))
	}
	if cdOffset > max32 {
		b = le32(b, max32)
	} else {
		b = le32(b, uint32(cdOffset))
	}
	b = le16(b, uint16(len(comment)))
	b = append(b, comment...)

	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("writing EOCD: %w", err)
	}
	return nil
}

// tempPayload holds one entry's compressed bytes on disk until its local
// header (which needs the sizes up front) is written.
type tempPayload struct {
	f *os.File
}

func (t tempPayload) copyInto(w io.Writer) error {
	defer t.discard()
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, copyBufSize)
	_, err := io.CopyBuffer(w, t.f, buf)
	return err
}

func (t tempPayload) discard() {
	name := t.f.Name()
	_ = t.f.Close()
	_ = os.Remove(name)
}

// compressToTemp streams src through the format's compressor into a temp
// file, computing the payload CRC32 and both sizes. report receives
// uncompressed byte deltas as they are consumed.
func compressToTemp(src string, format Format, report func(int64)) (tmp tempPayload, crcValue uint32, usize, csize uint64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return tempPayload{}, 0, 0, 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	f, err := os.CreateTemp("", ".romkeeper-zip-*")
	if err != nil {
		return tempPayload{}, 0, 0, 0, fmt.Errorf("creating temp payload: %w", err)
	}
	tmp = tempPayload{f: f}

	counter := &countingWriter{w: f}
	var comp io.WriteCloser
	switch format.method() {
	case methodZstd:
		// Single-threaded encoding keeps the output byte-stable.
		comp, err = zstd.NewWriter(counter, zstd.WithEncoderConcurrency(1))
		if err != nil {
			tmp.discard()
			return tempPayload{}, 0, 0, 0, fmt.Errorf("creating zstd writer: %w", err)
		}
	default:
		comp, err = flate.NewWriter(counter, flate.BestCompression)
		if err != nil {
			tmp.discard()
			return tempPayload{}, 0, 0, 0, fmt.Errorf("creating deflate writer: %w", err)
		}
	}

	hasher := crc32.NewIEEE()
	buf := make([]byte, copyBufSize)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, err := comp.Write(buf[:n]); err != nil {
				tmp.discard()
				return tempPayload{}, 0, 0, 0, fmt.Errorf("compressing %s: %w", src, err)
			}
			usize += uint64(n)
			if report != nil {
				report(int64(n))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.discard()
			return tempPayload{}, 0, 0, 0, fmt.Errorf("reading %s: %w", src, readErr)
		}
	}
	if err := comp.Close(); err != nil {
		tmp.discard()
		return tempPayload{}, 0, 0, 0, fmt.Errorf("finishing compression of %s: %w", src, err)
	}

	return tmp, hasher.Sum32(), usize, counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

func le16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func le32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func le64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}
