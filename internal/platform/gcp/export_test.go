package gcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

func TestParseGCSURI(t *testing.T) {
	b, k, err := ParseGCSURI("gs://my-bucket/exports/run.json")
	if err != nil {
		t.Fatalf("ParseGCSURI: %v", err)
	}
	if b != "my-bucket" || k != "exports/run.json" {
		t.Fatalf("got bucket=%q key=%q", b, k)
	}
	for _, bad := range []string{"", "s3://x/y", "gs://", "gs://bucket", "gs://bucket/", "gs:///key"} {
		if _, _, err := ParseGCSURI(bad); err == nil {
			t.Fatalf("ParseGCSURI(%q): expected error", bad)
		}
	}
}

func TestExportJSONLocal(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "out.json")
	e := NewExporter(logger.Nop())
	defer e.Close()

	n, err := e.ExportJSON(context.Background(), dest, map[string]int{"saved": 3})
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	raw, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("bytes: want=%d got=%d", len(raw), n)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["saved"] != 3 {
		t.Fatalf("saved: want=3 got=%d", got["saved"])
	}
}

func TestExportJSONRequiresDest(t *testing.T) {
	if _, err := NewExporter(logger.Nop()).ExportJSON(context.Background(), " ", 1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStorageConfigFromEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	cfg, err := StorageConfigFromEnv()
	if err != nil || cfg.Mode != StorageModeGCS {
		t.Fatalf("default: mode=%q err=%v", cfg.Mode, err)
	}

	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	cfg, err = StorageConfigFromEnv()
	if err != nil || !cfg.IsEmulator() {
		t.Fatalf("emulator fallback: mode=%q err=%v", cfg.Mode, err)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs")
	if _, err := StorageConfigFromEnv(); err == nil {
		t.Fatalf("expected invalid emulator host error")
	}

	t.Setenv("OBJECT_STORAGE_MODE", "local")
	if _, err := StorageConfigFromEnv(); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestStorageCredentialOptions(t *testing.T) {
	cases := []struct {
		creds string
		want  int
	}{
		{"", 1},
		{`{"type":"service_account"}`, 2},
		{"/etc/keys/export.json", 2},
	}
	for _, tc := range cases {
		got := StorageConfig{Mode: StorageModeGCS, Credentials: tc.creds}.clientOptions()
		if len(got) != tc.want {
			t.Fatalf("creds=%q: got %d options, want %d", tc.creds, len(got), tc.want)
		}
	}
}

func TestExportToEmulatorIntegration(t *testing.T) {
	host := os.Getenv("TEST_STORAGE_EMULATOR_HOST")
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if host == "" || bucket == "" {
		t.Skip("set TEST_STORAGE_EMULATOR_HOST and TEST_STORAGE_BUCKET to run")
	}
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", host)
	e := NewExporter(logger.Nop())
	defer e.Close()
	if _, err := e.ExportJSON(context.Background(), "gs://"+bucket+"/test/export.json", []int{1, 2}); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
}
