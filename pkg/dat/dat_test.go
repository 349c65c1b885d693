package dat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

const sampleDat = `<?xml version="1.0"?>
<datafile>
  <game name="Example Game (World)">
    <description>Example Game</description>
    <rom name="Example Game (World).gg" size="524288" crc="deadbeef" md5="D41D8CD98F00B204E9800998ECF8427E" sha1="DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"/>
  </game>
  <machine name="Other Game">
    <rom name="other (disc 1).bin" size="100"/>
    <rom name="other (disc 2).bin" size="200" sha256="E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"/>
  </machine>
</datafile>
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.dat")
	if err := os.WriteFile(path, []byte(sampleDat), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesGamesAndMachines(t *testing.T) {
	path := writeSample(t)
	roms, err := Load([]string{path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(roms) != 3 {
		t.Fatalf("Load() returned %d roms, want 3", len(roms))
	}

	first := roms[0]
	if first.Name != "Example Game (World).gg" {
		t.Errorf("first rom name = %q", first.Name)
	}
	if first.Description != "Example Game" {
		t.Errorf("description = %q, want Example Game", first.Description)
	}
	if first.Size != 524288 {
		t.Errorf("size = %d", first.Size)
	}
	if first.CRC32 != "DEADBEEF" {
		t.Errorf("crc should be uppercased, got %q", first.CRC32)
	}
	if first.MD5 != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("md5 should be lowercased, got %q", first.MD5)
	}
	if first.SHA1 != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("sha1 should be lowercased, got %q", first.SHA1)
	}

	// Machine without <description> keeps its name attribute.
	if roms[1].Description != "Other Game" {
		t.Errorf("machine description = %q", roms[1].Description)
	}
	if roms[1].HasSize() && roms[1].Size != 100 {
		t.Errorf("machine rom size = %d", roms[1].Size)
	}
	if roms[2].SHA256 == "" {
		t.Error("sha256 attribute not parsed")
	}
}

func TestLoadRejectsBrokenXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dat")
	if err := os.WriteFile(path, []byte("<datafile><game"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load([]string{path}); err == nil {
		t.Fatal("Load() should fail on malformed XML")
	}
}

func TestIndexPriorityOrder(t *testing.T) {
	roms := []romset.DatRom{
		{Name: "by-sha1.bin", SHA1: "aaaa", Size: -1},
		{Name: "by-md5.bin", MD5: "bbbb", Size: -1},
		{Name: "by-crc.bin", CRC32: "CCCC", Size: 100},
		{Name: "by-name.bin", Size: 100},
	}
	idx := NewIndex(roms)

	rec := &romset.FileRecord{
		Source: "/x/by-name.bin", Relative: "by-name.bin", Size: 100,
		Checksums: romset.ChecksumSet{SHA1: "AAAA", MD5: "bbbb", CRC32: "cccc"},
	}
	// SHA-1 wins even though every tier would match something.
	if got := idx.Find(rec); got == nil || got.Name != "by-sha1.bin" {
		t.Fatalf("Find() = %+v, want by-sha1.bin", got)
	}

	rec.Checksums.SHA1 = ""
	if got := idx.Find(rec); got == nil || got.Name != "by-md5.bin" {
		t.Fatalf("Find() = %+v, want by-md5.bin", got)
	}

	rec.Checksums.MD5 = ""
	if got := idx.Find(rec); got == nil || got.Name != "by-crc.bin" {
		t.Fatalf("Find() = %+v, want by-crc.bin", got)
	}

	rec.Checksums.CRC32 = ""
	if got := idx.Find(rec); got == nil || got.Name != "by-name.bin" {
		t.Fatalf("Find() = %+v, want by-name.bin", got)
	}

	rec.Size = 999
	if got := idx.Find(rec); got != nil {
		t.Fatalf("Find() with wrong size = %+v, want nil", got)
	}
}

func TestIndexCRC32RequiresSize(t *testing.T) {
	roms := []romset.DatRom{{Name: "a.bin", CRC32: "CCCC", Size: 100}}
	idx := NewIndex(roms)

	rec := &romset.FileRecord{
		Source: "/x/a.bin", Relative: "other-name.bin", Size: 50,
		Checksums: romset.ChecksumSet{CRC32: "cccc"},
	}
	if idx.Matches(rec) {
		t.Fatal("CRC32 match must be conditioned on size equality")
	}
	rec.Size = 100
	if !idx.Matches(rec) {
		t.Fatal("CRC32+size should match")
	}
}

func TestPartitionAndUnmatched(t *testing.T) {
	roms := []romset.DatRom{
		{Name: "hit.bin", SHA1: "aaaa", Size: -1},
		{Name: "miss.bin", SHA1: "ffff", Size: -1},
	}
	records := []*romset.FileRecord{{
		Source: "/x/hit.bin", Relative: "hit.bin", Size: 5,
		Checksums: romset.ChecksumSet{SHA1: "aaaa"},
	}}

	matched, unmatched := Partition(records, roms)
	if len(matched) != 1 || matched[0].Name != "hit.bin" {
		t.Fatalf("matched = %+v", matched)
	}
	if len(unmatched) != 1 || unmatched[0].Name != "miss.bin" {
		t.Fatalf("unmatched = %+v", unmatched)
	}

	idx := NewIndex(roms)
	if left := Unmatched(records, idx); len(left) != 0 {
		t.Fatalf("Unmatched() = %v, want none", left)
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"Super Mario (USA) (1995) [Rev 1] (En)": "Super Mario",
		"Game Deluxe (Europe)":                  "Game Deluxe",
		"Plain Title":                           "Plain Title",
		"Spaced   Out  [!]":                     "Spaced Out",
	}
	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("Game Deluxe (Europe).bin"); got != "Game Deluxe" {
		t.Fatalf("NormalizeName() = %q", got)
	}
}

func TestTokenizeTitle(t *testing.T) {
	got := TokenizeTitle("Super Mario World 2")
	want := []string{"super", "mario", "world", "2"}
	if len(got) != len(want) {
		t.Fatalf("TokenizeTitle() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TokenizeTitle()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSetsGroupsByDescription(t *testing.T) {
	roms := []romset.DatRom{
		{Name: "game (disc 1).bin", Description: "Game (Multi)", Size: -1},
		{Name: "game (disc 2).bin", Description: "Game (Multi)", Size: -1},
		{Name: "solo.bin", Size: -1},
	}
	sets := Sets(roms)
	if len(sets["Game (Multi)"]) != 2 {
		t.Fatalf("multi set = %v", sets["Game (Multi)"])
	}
	if len(sets["solo.bin"]) != 1 {
		t.Fatalf("solo set = %v", sets["solo.bin"])
	}
}
