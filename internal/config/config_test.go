package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("BOOKKEEPER_AUTH_SECRET", "test-secret")
	t.Setenv("BOOKKEEPER_IDENTITY_ADMIN_SUBJECTS", "CN=urn:node:CN,DC=dataone,DC=org")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.Secret != "test-secret" {
		t.Fatalf("env secret not applied")
	}
}

func TestLoadRequiresSecretAndAdmins(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without auth secret")
	}

	t.Setenv("BOOKKEEPER_AUTH_SECRET", "test-secret")
	t.Setenv("BOOKKEEPER_IDENTITY_ADMIN_SUBJECTS", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without admin subjects")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  addr: ":9090"
  rate_limit_rps: 10
database:
  dsn: "postgres://localhost/bookkeeper"
auth:
  secret: "file-secret"
  issuer: "test"
identity:
  admin_subjects:
    - "CN=urn:node:CN,DC=dataone,DC=org"
  groups:
    "S1":
      - "G1"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Database.DSN == "" {
		t.Fatalf("dsn not loaded")
	}
	if len(cfg.Identity.Groups["S1"]) != 1 || cfg.Identity.Groups["S1"][0] != "G1" {
		t.Fatalf("groups not loaded: %v", cfg.Identity.Groups)
	}
}
