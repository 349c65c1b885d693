package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

const datTemplate = `<?xml version="1.0"?>
<datafile>
  <game name="Sonic The Hedgehog (World)">
    <description>Sonic The Hedgehog</description>
    <rom name="sonic.md" size="4" crc="%s"/>
  </game>
</datafile>
`

func TestPerformCopyEndToEnd(t *testing.T) {
	inDir := t.TempDir()
	romPath := filepath.Join(inDir, "sonic.md")
	if err := os.WriteFile(romPath, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	// CRC32("data") = adf3f363.
	datPath := filepath.Join(t.TempDir(), "Sega - Mega Drive - Genesis.dat")
	if err := os.WriteFile(datPath, []byte(fmt.Sprintf(datTemplate, "ADF3F363")), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Commands = []romset.Action{romset.ActionCopy, romset.ActionReport}
	cfg.Input = []string{inDir}
	cfg.Dat = []string{datPath}
	cfg.Output = filepath.Join(t.TempDir(), "out")
	cfg.CacheDB = filepath.Join(t.TempDir(), "cache.sqlite")
	cfg.Quiet = 1

	plan, err := Perform(context.Background(), &cfg, nil, nil)
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}

	if plan.FilesProcessed != 1 {
		t.Fatalf("FilesProcessed = %d", plan.FilesProcessed)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].Status != "ok" {
		t.Fatalf("steps = %+v", plan.Steps)
	}
	if len(plan.DatMatched) != 1 {
		t.Fatalf("DatMatched = %+v", plan.DatMatched)
	}

	copied, err := os.ReadFile(filepath.Join(cfg.Output, "sonic.md"))
	if err != nil || string(copied) != "data" {
		t.Fatalf("copied output: %q, %v", copied, err)
	}

	reportData, err := os.ReadFile(filepath.Join(cfg.Output, "report.json"))
	if err != nil {
		t.Fatalf("report.json missing: %v", err)
	}
	var reported []romset.FileRecord
	if err := json.Unmarshal(reportData, &reported); err != nil {
		t.Fatal(err)
	}
	if len(reported) != 1 {
		t.Fatalf("reported records = %d", len(reported))
	}
	if reported[0].DerivedPlatform != "genesis-slash-megadrive" {
		t.Fatalf("derived platform = %q", reported[0].DerivedPlatform)
	}
	if reported[0].Checksums.CRC32 != "adf3f363" {
		t.Fatalf("crc32 = %q", reported[0].Checksums.CRC32)
	}

	summary := plan.Summary
	if summary.TotalInputs != 1 || summary.FilesProcessed != 1 || summary.FilesSkipped != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestPerformAbortsOnBrokenDat(t *testing.T) {
	inDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "x.sfc"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	datPath := filepath.Join(t.TempDir(), "broken.dat")
	if err := os.WriteFile(datPath, []byte("<datafile><game"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Commands = []romset.Action{romset.ActionTest}
	cfg.Input = []string{inDir}
	cfg.Dat = []string{datPath}
	cfg.Quiet = 1

	if _, err := Perform(context.Background(), &cfg, nil, nil); err == nil {
		t.Fatal("broken DAT must abort the run")
	}
}

func TestPerformCopyTwiceIsIdempotent(t *testing.T) {
	inDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "game.gba"), []byte("gba data"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Commands = []romset.Action{romset.ActionCopy}
	cfg.Input = []string{inDir}
	cfg.Output = filepath.Join(t.TempDir(), "out")
	cfg.CacheDB = filepath.Join(t.TempDir(), "cache.sqlite")
	cfg.Overwrite = true
	cfg.Quiet = 1

	if _, err := Perform(context.Background(), &cfg, nil, nil); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(cfg.Output, "game.gba"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Perform(context.Background(), &cfg, nil, nil); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(cfg.Output, "game.gba"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("repeated copy produced different bytes")
	}
}

func TestBuildSetsRespectsRelaxations(t *testing.T) {
	rec := &romset.FileRecord{
		Source: "/in/game (disc 1).bin", Relative: "game (disc 1).bin", Size: 100,
		Checksums: romset.ChecksumSet{CRC32: "AAA"},
	}
	roms := []romset.DatRom{
		{Name: "game (disc 1).bin", Description: "Game", CRC32: "AAA", Size: 100},
		{Name: "game (disc 2).bin", Description: "Game", CRC32: "BBB", Size: 200},
	}

	cfg := config.Defaults()
	cfg.Commands = []romset.Action{romset.ActionTest}
	out := BuildSets(roms, []*romset.FileRecord{rec}, &cfg)
	if len(out) != 0 {
		t.Fatalf("incomplete set emitted without relaxation: %+v", out)
	}

	cfg.AllowIncompleteSets = true
	out = BuildSets(roms, []*romset.FileRecord{rec}, &cfg)
	if len(out) != 1 || len(out[0].Files) != 1 {
		t.Fatalf("relaxed sets = %+v", out)
	}
}
