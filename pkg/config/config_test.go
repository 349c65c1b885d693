package config

import (
	"testing"

	"github.com/retrolabs/romkeeper/pkg/romset"
)

func testConfig(commands ...romset.Action) Config {
	cfg := Defaults()
	cfg.Commands = commands
	cfg.Output = "/tmp/out"
	return cfg
}

func TestValidateRequiresCommands(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should fail without commands")
	}
}

func TestValidateChecksumRange(t *testing.T) {
	cfg := testConfig(romset.ActionTest)
	cfg.InputChecksumMin = romset.ChecksumSHA1
	max := romset.ChecksumMD5
	cfg.InputChecksumMax = &max
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject max below min")
	}

	max = romset.ChecksumSHA256
	cfg.InputChecksumMax = &max
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidateLetterCountNeedsLetter(t *testing.T) {
	cfg := testConfig(romset.ActionTest)
	cfg.DirLetterCount = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject dir-letter-count without dir-letter")
	}
	cfg.DirLetter = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidateOutputRequirement(t *testing.T) {
	cfg := testConfig(romset.ActionCopy)
	cfg.Output = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should require output for copy")
	}

	cfg = testConfig(romset.ActionTest)
	cfg.Output = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test command must not require output: %v", err)
	}
}

func TestValidateIgdbCredentialPair(t *testing.T) {
	cfg := testConfig(romset.ActionTest)
	cfg.IgdbClientID = "abc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject client-id without token")
	}
	cfg.IgdbToken = "tok"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestIgdbGating(t *testing.T) {
	cfg := testConfig(romset.ActionTest)
	cfg.IgdbClientID = "abc"
	cfg.IgdbToken = "tok"

	cfg.IgdbMode = IgdbOff
	if cfg.ShouldAttemptIgdbLookup(false, false, false) {
		t.Error("off mode must never attempt lookups")
	}

	cfg.IgdbMode = IgdbBestEffort
	if cfg.ShouldAttemptIgdbLookup(true, true, false) {
		t.Error("best-effort must skip fully identified records")
	}
	if !cfg.ShouldAttemptIgdbLookup(true, false, true) {
		t.Error("best-effort must attempt when genres are missing")
	}

	cfg.IgdbMode = IgdbAlways
	if !cfg.ShouldAttemptIgdbLookup(true, false, true) {
		t.Error("always mode must attempt when anything is missing")
	}

	cfg.CacheOnly = true
	if cfg.IgdbNetworkEnabled() {
		t.Error("cache-only forbids IGDB network access")
	}
	if !cfg.IgdbLookupEnabled() {
		t.Error("cache-only still allows cache lookups")
	}
}

func TestHasheousNetworkGating(t *testing.T) {
	cfg := testConfig(romset.ActionTest)
	cfg.EnableHasheous = true
	if !cfg.HasheousNetworkEnabled() {
		t.Fatal("hasheous should be network-enabled")
	}
	cfg.CacheOnly = true
	if cfg.HasheousNetworkEnabled() {
		t.Fatal("cache-only forbids hasheous network access")
	}
}
