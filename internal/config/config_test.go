package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Port != 8780 {
		t.Fatalf("expected default port 8780, got %d", cfg.Gateway.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected default store backend memory, got %s", cfg.Store.Backend)
	}
}

func TestLoadParsesJSON5File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	content := `{
		// a comment, which json5 permits and encoding/json does not
		gateway: { host: "127.0.0.1", port: 9001, rate_limit_rpm: 30 },
		store: { backend: "sqlite", sqlite_path: "~/.convoke/data.db" },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 9001 {
		t.Fatalf("expected file values to apply, got %+v", cfg.Gateway)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("expected store backend sqlite, got %s", cfg.Store.Backend)
	}
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	if err := os.WriteFile(path, []byte(`{ gateway: { port: 9001 } }`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONVOKE_PORT", "9500")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9500 {
		t.Fatalf("expected env override to win, got port %d", cfg.Gateway.Port)
	}
}

func TestHashIsStableForEqualConfig(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() != b.Hash() {
		t.Fatal("expected two default configs to hash identically")
	}
	b.Gateway.Port = 1
	if a.Hash() == b.Hash() {
		t.Fatal("expected a changed config to hash differently")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	cfg := Default()
	cfg.Gateway.Port = 7777

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Gateway.Port != 7777 {
		t.Fatalf("expected round-tripped port 7777, got %d", loaded.Gateway.Port)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/data.db"); got != home+"/data.db" {
		t.Fatalf("expected %s, got %s", home+"/data.db", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("expected unchanged absolute path, got %s", got)
	}
}
