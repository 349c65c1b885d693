package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

// Digests of "hello" are fixed points; a regression here means the
// streaming hasher is broken.
const (
	helloCRC32  = "3610a686"
	helloMD5    = "5d41402abc4b2a76b9719d911017c592"
	helloSHA1   = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestComputeChecksumsSinglePass(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.bin", []byte("hello"))

	max := romset.ChecksumSHA256
	algs := romset.ChecksumRange(romset.ChecksumCRC32, &max)
	set, err := ComputeChecksums(path, algs)
	if err != nil {
		t.Fatalf("ComputeChecksums() error = %v", err)
	}

	if set.CRC32 != helloCRC32 {
		t.Errorf("CRC32 = %q, want %q", set.CRC32, helloCRC32)
	}
	if set.MD5 != helloMD5 {
		t.Errorf("MD5 = %q, want %q", set.MD5, helloMD5)
	}
	if set.SHA1 != helloSHA1 {
		t.Errorf("SHA1 = %q, want %q", set.SHA1, helloSHA1)
	}
	if set.SHA256 != helloSHA256 {
		t.Errorf("SHA256 = %q, want %q", set.SHA256, helloSHA256)
	}
}

func TestComputeChecksumsRespectsRange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.bin", []byte("hello"))

	set, err := ComputeChecksums(path, []romset.Checksum{romset.ChecksumCRC32})
	if err != nil {
		t.Fatal(err)
	}
	if set.CRC32 == "" || set.MD5 != "" || set.SHA1 != "" || set.SHA256 != "" {
		t.Fatalf("range not respected: %+v", set)
	}
}

func TestComputeChecksumsUnreadable(t *testing.T) {
	if _, err := ComputeChecksums(filepath.Join(t.TempDir(), "missing.bin"), []romset.Checksum{romset.ChecksumCRC32}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCollectWalksAndExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep/a.sfc", []byte("aaaa"))
	writeFile(t, dir, "keep/b.gba", []byte("bbbb"))
	writeFile(t, dir, "skip/c.tmp", []byte("cccc"))

	cfg := config.Defaults()
	cfg.Commands = []romset.Action{romset.ActionTest}
	cfg.Input = []string{dir}
	cfg.InputExclude = []string{"**/*.tmp"}
	cfg.HashThreads = 2

	res, err := Collect(context.Background(), &cfg, nil, nil)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("Collect() records = %d, want 2", len(res.Records))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != romset.SkipExcluded {
		t.Fatalf("Collect() skipped = %+v", res.Skipped)
	}

	// Deterministic ordering by record key.
	if res.Records[0].Key() > res.Records[1].Key() {
		t.Error("records not sorted by key")
	}
	for _, rec := range res.Records {
		if rec.Checksums.CRC32 == "" {
			t.Errorf("record %s missing CRC32", rec.Relative)
		}
		if rec.Size != 4 {
			t.Errorf("record %s size = %d", rec.Relative, rec.Size)
		}
	}
}

func TestCollectSingleFileInput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "only.nes", []byte("just one"))

	cfg := config.Defaults()
	cfg.Input = []string{path}

	res, err := Collect(context.Background(), &cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	if res.Records[0].Relative != "only.nes" {
		t.Fatalf("relative = %q", res.Records[0].Relative)
	}
}

func TestScanHeaderNES(t *testing.T) {
	data := append([]byte{0x4E, 0x45, 0x53, 0x1A}, make([]byte, 64)...)
	path := writeFile(t, t.TempDir(), "game.nes", data)

	info, err := ScanHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.HeaderSize != 16 {
		t.Fatalf("HeaderSize = %d, want 16", info.HeaderSize)
	}
}

func TestScanHeaderCHDMagic(t *testing.T) {
	data := append([]byte("MComprHD"), make([]byte, 32)...)
	path := writeFile(t, t.TempDir(), "image.bin", data)

	info, err := ScanHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsCHD {
		t.Fatal("CHD magic not detected")
	}
}

func TestScanHeaderISO9660(t *testing.T) {
	data := make([]byte, 0x8000+8)
	copy(data[0x8001:], "CD001")
	path := writeFile(t, t.TempDir(), "disc.img", data)

	info, err := ScanHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsISO {
		t.Fatal("ISO9660 descriptor not detected")
	}
}

func TestScanHeaderCueContent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sheet.txt", []byte("FILE \"x.bin\" BINARY\nTRACK 01 MODE1/2352\n"))

	info, err := ScanHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsCUE {
		t.Fatal("cue content not detected")
	}
}
