// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package torrentzip

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// writeWithFallback builds the archive with archive/zip (UTF-8 filenames)
// and then patches the EOCD comment in place. This path only runs for
// names CP437 cannot represent; the layout is not bit-exact TorrentZip but
// the trailer contract (comment = marker + CD CRC) still holds.
func writeWithFallback(srcs []SourceEntry, dest string, format Format, progress ProgressFunc) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	zw.RegisterCompressor(methodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	})

	var totalHint int64
	for _, src := range srcs {
		if st, err := os.Stat(src.Path); err == nil {
			totalHint += st.Size()
		} else {
			totalHint = 0
			break
		}
	}

	var done int64
	buf := make([]byte, copyBufSize)
	for _, src := range srcs {
		hdr := &zip.FileHeader{
			Name:   src.Name,
			Method: zip.Deflate,
		}
		if format == FormatRvzstd {
			hdr.Method = methodZstd
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("creating entry %s: %w", src.Name, err)
		}
		in, err := os.Open(src.Path)
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("opening %s: %w", src.Path, err)
		}
		for {
			n, readErr := in.Read(buf)
			if n > 0 {
				if _, err := w.Write(buf[:n]); err != nil {
					_ = in.Close()
					_ = out.Close()
					return fmt.Errorf("writing entry %s: %w", src.Name, err)
				}
				done += int64(n)
				if progress != nil {
					progress(done, totalHint)
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				_ = in.Close()
				_ = out.Close()
				return fmt.Errorf("reading %s: %w", src.Path, readErr)
			}
		}
		_ = in.Close()
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finishing archive %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	return PatchTrailer(dest, format)
}

// Trailer describes the EOCD state of an emitted archive.
type Trailer struct {
	EOCDOffset int64
	CDOffset   int64
	CDSize     int64
	Comment    string
}

// findTrailer locates the last EOCD record and resolves the central
// directory bounds, following the Zip64 EOCD when the classic fields hold
// sentinel values.
func findTrailer(data []byte) (*Trailer, error) {
	sig := make([]byte, 4)
	binary.LittleEndian.PutUint32(sig, sigEOCD)
	pos := bytes.LastIndex(data, sig)
	if pos < 0 {
		return nil, fmt.Errorf("EOCD not found")
	}
	if len(data) < pos+22 {
		return nil, fmt.Errorf("EOCD truncated")
	}

	cdSize := int64(binary.LittleEndian.Uint32(data[pos+12 : pos+16]))
	cdOffset := int64(binary.LittleEndian.Uint32(data[pos+16 : pos+20]))
	commentLen := int(binary.LittleEndian.Uint16(data[pos+20 : pos+22]))
	comment := ""
	if len(data) >= pos+22+commentLen {
		comment = string(data[pos+22 : pos+22+commentLen])
	}

	if uint64(cdSize) == uint64(max32) || uint64(cdOffset) == uint64(max32) {
		z64sig := make([]byte, 4)
		binary.LittleEndian.PutUint32(z64sig, sigZip64EOCD)
		zpos := bytes.LastIndex(data[:pos], z64sig)
		if zpos < 0 || len(data) < zpos+56 {
			return nil, fmt.Errorf("zip64 EOCD not found despite sentinel fields")
		}
		cdSize = int64(binary.LittleEndian.Uint64(data[zpos+40 : zpos+48]))
		cdOffset = int64(binary.LittleEndian.Uint64(data[zpos+48 : zpos+56]))
	}

	if cdOffset < 0 || cdSize < 0 || cdOffset+cdSize > int64(pos) {
		return nil, fmt.Errorf("central directory bounds out of range")
	}

	return &Trailer{
		EOCDOffset: int64(pos),
		CDOffset:   cdOffset,
		CDSize:     cdSize,
		Comment:    comment,
	}, nil
}

// PatchTrailer rereads an emitted archive, computes the CRC32 of its
// central directory, and rewrites the EOCD comment to the format's marker
// plus that CRC.
func PatchTrailer(path string, format Format) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rereading %s for trailer patch: %w", path, err)
	}
	tr, err := findTrailer(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	cd := data[tr.CDOffset : tr.CDOffset+tr.CDSize]
	comment := TrailerComment(format, crc32.ChecksumIEEE(cd))

	patched := data[:tr.EOCDOffset+20]
	patched = le16(patched, uint16(len(comment)))
	patched = append(patched, comment...)

	if err := os.WriteFile(path, patched, 0o644); err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	return nil
}

// VerifyTrailer recomputes the central-directory CRC from the archive
// bytes and checks it against the embedded comment. Returns the parsed
// trailer for inspection.
func VerifyTrailer(data []byte) (*Trailer, error) {
	tr, err := findTrailer(data)
	if err != nil {
		return nil, err
	}
	cd := data[tr.CDOffset : tr.CDOffset+tr.CDSize]
	crcHex := fmt.Sprintf("%08X", crc32.ChecksumIEEE(cd))
	if !bytes.HasSuffix([]byte(tr.Comment), []byte(crcHex)) {
		return tr, fmt.Errorf("trailer comment %q does not match central directory CRC %s", tr.Comment, crcHex)
	}
	return tr, nil
}
