package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("YOUREDU_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	for _, key := range []string{"API_ADDR", "YOUREDU_ACCESS_TTL_SECONDS", "BUCKET_COMPLIANCE", "PASSWORD_IMPORT_EXCLUDE", "PSA_DEBOUNCE_MS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTTL)
	}
	if cfg.PSADebounce != time.Second {
		t.Fatalf("psa debounce = %v", cfg.PSADebounce)
	}
	if cfg.Buckets.Compliance != "compliance_documents" {
		t.Fatalf("compliance bucket = %q", cfg.Buckets.Compliance)
	}
	if !slices.Contains(cfg.ExcludedImports, "admin@youredu.school") {
		t.Fatalf("excluded imports = %v", cfg.ExcludedImports)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("YOUREDU_APP_URL", "https://app.youredu.school/")
	t.Setenv("COURSE_DEBOUNCE_MS", "250")
	t.Setenv("BLOB_USE_SSL", "true")

	cfg := Load()
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AppURL != "https://app.youredu.school" {
		t.Fatalf("app url = %q", cfg.AppURL)
	}
	if cfg.CourseDebounce != 250*time.Millisecond {
		t.Fatalf("course debounce = %v", cfg.CourseDebounce)
	}
	if !cfg.BlobUseSSL {
		t.Fatal("expected BLOB_USE_SSL to be honored")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SUPPORT_EMAIL=help@example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YOUREDU_ENV_FILE", path)
	t.Setenv("SUPPORT_EMAIL", "")
	os.Unsetenv("SUPPORT_EMAIL")

	cfg := Load()
	if cfg.SupportEmail != "help@example.com" {
		t.Fatalf("support email = %q", cfg.SupportEmail)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" Admin@YourEDU.school , ,support@youredu.school,")
	want := []string{"admin@youredu.school", "support@youredu.school"}
	if !slices.Equal(got, want) {
		t.Fatalf("splitList = %v, want %v", got, want)
	}
	if len(splitList("")) != 0 {
		t.Fatal("expected empty list")
	}
}

func TestBucketsAll(t *testing.T) {
	b := Buckets{CourseFiles: "a", Records: "b", Compliance: "c", Transcripts: "d", AdminMaterials: "e"}
	if !slices.Equal(b.All(), []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("All = %v", b.All())
	}
}
