package main

import (
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/romset"
)

func parse(t *testing.T, args ...string) (*cliFlags, []string) {
	t.Helper()
	fs := flag.NewFlagSet("romkeeper", flag.ContinueOnError)
	cli := bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return cli, fs.Args()
}

func TestResolveConfigCommandsInOrder(t *testing.T) {
	cli, args := parse(t, "copy", "zip", "--input", "/roms", "--output", "/out")
	cfg, err := resolveConfig(cli, args)
	if err != nil {
		t.Fatalf("resolveConfig() error = %v", err)
	}
	if len(cfg.Commands) != 2 || cfg.Commands[0] != romset.ActionCopy || cfg.Commands[1] != romset.ActionZip {
		t.Fatalf("commands = %v", cfg.Commands)
	}
	if len(cfg.Input) != 1 || cfg.Input[0] != "/roms" {
		t.Fatalf("input = %v", cfg.Input)
	}
}

func TestResolveConfigRejectsUnknownCommand(t *testing.T) {
	cli, args := parse(t, "frobnicate", "--output", "/out")
	if _, err := resolveConfig(cli, args); err == nil {
		t.Fatal("unknown command accepted")
	}
}

func TestResolveConfigChecksumRange(t *testing.T) {
	cli, args := parse(t, "test", "--input", "/roms",
		"--input-checksum-min", "MD5", "--input-checksum-max", "SHA256")
	cfg, err := resolveConfig(cli, args)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.InputChecksumMin != romset.ChecksumMD5 {
		t.Fatalf("min = %v", cfg.InputChecksumMin)
	}
	if cfg.InputChecksumMax == nil || *cfg.InputChecksumMax != romset.ChecksumSHA256 {
		t.Fatalf("max = %v", cfg.InputChecksumMax)
	}

	cli, args = parse(t, "test", "--input-checksum-min", "SHA1", "--input-checksum-max", "CRC32")
	if _, err := resolveConfig(cli, args); err == nil {
		t.Fatal("inverted checksum range accepted")
	}
}

func TestResolveConfigRequiresOutputForWritingCommands(t *testing.T) {
	cli, args := parse(t, "copy", "--input", "/roms")
	if _, err := resolveConfig(cli, args); err == nil {
		t.Fatal("copy without output accepted")
	}

	cli, args = parse(t, "test", "--input", "/roms")
	if _, err := resolveConfig(cli, args); err != nil {
		t.Fatalf("test without output rejected: %v", err)
	}
}

func TestResolveConfigEnumFlags(t *testing.T) {
	cli, args := parse(t, "copy", "--output", "/out",
		"--zip-format", "rvzstd", "--link-mode", "symlink",
		"--igdb-mode", "always", "--dir-game-subdir", "never")
	cfg, err := resolveConfig(cli, args)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ZipFormat != config.ZipRvzstd || cfg.LinkMode != config.LinkSymlink {
		t.Fatalf("formats = %v / %v", cfg.ZipFormat, cfg.LinkMode)
	}
	if cfg.IgdbMode != config.IgdbAlways || cfg.DirGameSubdir != config.GameSubdirNever {
		t.Fatalf("modes = %v / %v", cfg.IgdbMode, cfg.DirGameSubdir)
	}

	cli, args = parse(t, "copy", "--output", "/out", "--zip-format", "tar")
	if _, err := resolveConfig(cli, args); err == nil {
		t.Fatal("bad zip format accepted")
	}
}

func TestProjectFileDefaultsAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "project.yaml")
	content := `
output: /from/file
cache_db: /from/file.sqlite
hasheous:
  enabled: true
igdb:
  mode: always
ambiguous_tokens: [cdrom, ngc]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cli, args := parse(t, "test", "--input", "/roms", "--config", cfgPath, "--output", "/from/flag")
	cfg, err := resolveConfig(cli, args)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "/from/flag" {
		t.Fatalf("flag should beat file: output = %q", cfg.Output)
	}
	if cfg.CacheDB != "/from/file.sqlite" {
		t.Fatalf("cache db = %q", cfg.CacheDB)
	}
	if !cfg.EnableHasheous {
		t.Fatal("hasheous not enabled from file")
	}
	if cfg.IgdbMode != config.IgdbAlways {
		t.Fatalf("igdb mode = %v", cfg.IgdbMode)
	}
	if len(cfg.AmbiguousTokens) != 2 || !cfg.IsAmbiguousToken("ngc") {
		t.Fatalf("ambiguous tokens = %v", cfg.AmbiguousTokens)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROMKEEPER_CACHE_DB", "/env/cache.sqlite")
	t.Setenv("IGDB_CLIENT_ID", "env-cid")
	t.Setenv("IGDB_TOKEN", "env-tok")

	cli, args := parse(t, "test", "--input", "/roms")
	cfg, err := resolveConfig(cli, args)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheDB != "/env/cache.sqlite" {
		t.Fatalf("cache db = %q", cfg.CacheDB)
	}
	if cfg.IgdbClientID != "env-cid" || cfg.IgdbToken != "env-tok" {
		t.Fatalf("igdb credentials = %q / %q", cfg.IgdbClientID, cfg.IgdbToken)
	}
}
