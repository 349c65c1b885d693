package torrentzip

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSrc(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncodeCP437(t *testing.T) {
	raw, ok := EncodeCP437("hello.bin")
	require.True(t, ok)
	assert.Equal(t, []byte("hello.bin"), raw)

	raw, ok = EncodeCP437("café.bin")
	require.True(t, ok)
	assert.Equal(t, byte(0x82), raw[3], "é must encode to CP437 0x82")

	_, ok = EncodeCP437("ゲーム.bin")
	assert.False(t, ok, "Japanese filenames are not CP437-encodable")

	assert.Equal(t, "café.bin", DecodeCP437(mustEncode(t, "café.bin")))
}

func mustEncode(t *testing.T, s string) []byte {
	t.Helper()
	raw, ok := EncodeCP437(s)
	require.True(t, ok)
	return raw
}

func TestSingleEntryTorrentzipDeterministic(t *testing.T) {
	src := writeSrc(t, "hello.bin", []byte("hello"))
	dest1 := filepath.Join(t.TempDir(), "a.zip")
	dest2 := filepath.Join(t.TempDir(), "b.zip")

	entries := []SourceEntry{{Path: src, Name: "hello.bin"}}
	require.NoError(t, WriteArchive(entries, dest1, FormatTorrentzip, nil))
	require.NoError(t, WriteArchive(entries, dest2, FormatTorrentzip, nil))

	b1, err := os.ReadFile(dest1)
	require.NoError(t, err)
	b2, err := os.ReadFile(dest2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "same input must produce byte-identical archives")
}

func TestTrailerCommentMatchesCentralDirectoryCRC(t *testing.T) {
	src := writeSrc(t, "hello.bin", []byte("hello"))
	dest := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, WriteArchive([]SourceEntry{{Path: src, Name: "hello.bin"}}, dest, FormatTorrentzip, nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	tr, err := VerifyTrailer(data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.Comment, "TORRENTZIPPED-"), "comment = %q", tr.Comment)
	assert.Len(t, tr.Comment, len("TORRENTZIPPED-")+8)
}

func TestArchiveReadableByStdZip(t *testing.T) {
	srcA := writeSrc(t, "alpha.bin", bytes.Repeat([]byte("alpha "), 1000))
	srcB := writeSrc(t, "beta.bin", []byte("beta"))
	dest := filepath.Join(t.TempDir(), "multi.zip")

	entries := []SourceEntry{
		{Path: srcA, Name: "alpha.bin"},
		{Path: srcB, Name: "beta.bin"},
	}
	require.NoError(t, WriteArchive(entries, dest, FormatTorrentzip, nil))

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 2)
	assert.Equal(t, "alpha.bin", zr.File[0].Name)
	assert.Equal(t, "beta.bin", zr.File[1].Name)

	for _, f := range zr.File {
		assert.Zero(t, f.ModifiedTime)
		assert.Zero(t, f.ModifiedDate)
		rc, err := f.Open()
		require.NoError(t, err)
		payload, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, f.CRC32, crc32.ChecksumIEEE(payload))
	}
}

func TestRvzstdTrailerAndPayload(t *testing.T) {
	src := writeSrc(t, "game.sfc", bytes.Repeat([]byte{0xAB}, 4096))
	dest := filepath.Join(t.TempDir(), "game.zip")
	require.NoError(t, WriteArchive([]SourceEntry{{Path: src, Name: "game.sfc"}}, dest, FormatRvzstd, nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	tr, err := VerifyTrailer(data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.Comment, "RVZSTD-"), "comment = %q", tr.Comment)

	// Method 93 entries need a zstd-aware reader.
	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()
	zr.RegisterDecompressor(methodZstd, func(r io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(r)
		}
		return dec.IOReadCloser()
	})
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 4096), payload)
}

func TestZip64RecordsEmittedForLargeEntries(t *testing.T) {
	entries := []entry{{
		name:             []byte("large.bin"),
		crc:              0xDEADBEEF,
		compressedSize:   0x1_0000_0000,
		uncompressedSize: 0x1_0000_0000,
		offset:           0x1_0000_0000,
	}}

	var buf bytes.Buffer
	require.NoError(t, writeCentralAndEOCD(&buf, entries, FormatTorrentzip, 0x1_0000_0100))
	data := buf.Bytes()

	sig := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	assert.True(t, bytes.Contains(data, sig(sigZip64EOCD)), "missing zip64 EOCD")
	assert.True(t, bytes.Contains(data, sig(sigZip64Locator)), "missing zip64 locator")
	assert.True(t, bytes.Contains(data, sig(sigEOCD)), "missing classic EOCD")

	// Classic EOCD must carry sentinel values for the CD offset.
	pos := bytes.LastIndex(data, sig(sigEOCD))
	require.GreaterOrEqual(t, pos, 0)
	cdOffsetField := binary.LittleEndian.Uint32(data[pos+16 : pos+20])
	assert.Equal(t, uint32(max32), cdOffsetField)
}

func TestZip64TrailerCRCRecomputable(t *testing.T) {
	entries := []entry{
		{
			name:             []byte("large1.bin"),
			crc:              0xAAAAAAAA,
			compressedSize:   0x1_0000_0000,
			uncompressedSize: 0x1_0000_0000,
			offset:           0,
		},
		{
			name:             []byte("large2.bin"),
			crc:              0xBBBBBBBB,
			compressedSize:   0x1_0000_0001,
			uncompressedSize: 0x1_0000_0001,
			offset:           0x1_0000_0010,
		},
	}

	var buf bytes.Buffer
	// The synthetic layout starts the CD at offset 0 of this buffer, so the
	// emitted bytes are self-consistent for VerifyTrailer.
	require.NoError(t, writeCentralAndEOCD(&buf, entries, FormatTorrentzip, 0))
	data := buf.Bytes()

	tr, err := VerifyTrailer(data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.Comment, "TORRENTZIPPED-"))

	cd := data[tr.CDOffset : tr.CDOffset+tr.CDSize]
	// Every central entry must carry the 24-byte Zip64 extra (id 0x0001).
	extraSig := []byte{0x01, 0x00, 0x18, 0x00}
	assert.Equal(t, 2, bytes.Count(cd, extraSig), "both entries need zip64 extras")
}

func TestFallbackPathForNonCP437Names(t *testing.T) {
	src := writeSrc(t, "game.bin", []byte("payload"))
	dest := filepath.Join(t.TempDir(), "fallback.zip")

	name := "ゲーム.bin"
	require.NoError(t, WriteArchive([]SourceEntry{{Path: src, Name: name}}, dest, FormatTorrentzip, nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	_, err = VerifyTrailer(data)
	require.NoError(t, err, "fallback archives still carry a CRC-correct trailer")

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, name, zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("payload"), payload)
}

func TestWriteArchiveRejectsEmptySources(t *testing.T) {
	err := WriteArchive(nil, filepath.Join(t.TempDir(), "x.zip"), FormatTorrentzip, nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestProgressReportsAggregateBytes(t *testing.T) {
	srcA := writeSrc(t, "a.bin", bytes.Repeat([]byte{1}, 1000))
	srcB := writeSrc(t, "b.bin", bytes.Repeat([]byte{2}, 500))
	dest := filepath.Join(t.TempDir(), "prog.zip")

	var lastDone, lastTotal int64
	progress := func(done, total int64) {
		assert.GreaterOrEqual(t, done, lastDone, "per-run progress must be monotonic")
		lastDone, lastTotal = done, total
	}

	entries := []SourceEntry{
		{Path: srcA, Name: "a.bin"},
		{Path: srcB, Name: "b.bin"},
	}
	require.NoError(t, WriteArchive(entries, dest, FormatTorrentzip, progress))
	assert.Equal(t, int64(1500), lastDone)
	assert.Equal(t, int64(1500), lastTotal)
}
