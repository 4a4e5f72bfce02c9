package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HEARTH_JWT_SECRET", "s3cret")

	cfg, err := Load([]string{noEnvFile(t)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.DBPath != "hearth.db" {
		t.Errorf("db = %q, want %q", cfg.DBPath, "hearth.db")
	}
	if cfg.TokenTTL != 30*24*time.Hour {
		t.Errorf("ttl = %v, want 720h", cfg.TokenTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("cors = %v, want [*]", cfg.CORSOrigins)
	}
	if cfg.S3.Enabled() {
		t.Error("s3 should be disabled without a bucket")
	}
	if cfg.TrustProxy {
		t.Error("forwarding headers should not be trusted by default")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("HEARTH_JWT_SECRET", "")

	if _, err := Load([]string{noEnvFile(t)}); err == nil {
		t.Fatal("expected error without HEARTH_JWT_SECRET")
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HEARTH_JWT_SECRET", "s3cret")
	t.Setenv("HEARTH_ADDR", ":9000")
	t.Setenv("HEARTH_DB_PATH", "env.db")

	cfg, err := Load([]string{noEnvFile(t), "-addr", ":7000"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("addr = %q, want flag value :7000", cfg.Addr)
	}
	if cfg.DBPath != "env.db" {
		t.Errorf("db = %q, want env value env.db", cfg.DBPath)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "HEARTH_JWT_SECRET=fromfile\nHEARTH_CORS_ORIGINS=https://a.example, https://b.example\nHEARTH_S3_BUCKET=docs\nHEARTH_S3_ACCESS_KEY=ak\nHEARTH_S3_SECRET_KEY=sk\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	for _, k := range []string{"HEARTH_JWT_SECRET", "HEARTH_CORS_ORIGINS", "HEARTH_S3_BUCKET", "HEARTH_S3_ACCESS_KEY", "HEARTH_S3_SECRET_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load([]string{"-env-file", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "fromfile" {
		t.Errorf("secret = %q, want %q", cfg.JWTSecret, "fromfile")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
	if !cfg.S3.Enabled() {
		t.Error("expected s3 enabled from env file")
	}
}

func TestLoadInvalidTTL(t *testing.T) {
	t.Setenv("HEARTH_JWT_SECRET", "s3cret")
	t.Setenv("HEARTH_TOKEN_TTL", "forever")

	if _, err := Load([]string{noEnvFile(t)}); err == nil {
		t.Fatal("expected error for invalid ttl")
	}
}

func TestLoadTrustProxy(t *testing.T) {
	t.Setenv("HEARTH_JWT_SECRET", "s3cret")
	t.Setenv("HEARTH_TRUST_PROXY", "true")

	cfg, err := Load([]string{noEnvFile(t)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TrustProxy {
		t.Error("expected TrustProxy from HEARTH_TRUST_PROXY=true")
	}

	t.Setenv("HEARTH_TRUST_PROXY", "sometimes")
	if _, err := Load([]string{noEnvFile(t)}); err == nil {
		t.Fatal("expected error for invalid HEARTH_TRUST_PROXY")
	}
}
