package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("CONFIG_FILE", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("store = %q", cfg.ObjectStoreType)
	}
	if cfg.Upload.MaxFileBytes != 10<<20 {
		t.Fatalf("max file bytes = %d", cfg.Upload.MaxFileBytes)
	}
	if !cfg.ExposeErrorDetails {
		t.Fatalf("expected error details exposed outside production")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
port: "9090"
object_store: minio
upload:
  allowed_extensions: [pdf, md]
  max_file_bytes: 2048
pipeline:
  new_document_url: http://yaml.example/new
  dispatch_timeout: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("ENV", "prod")

	cfg := Load()
	if cfg.Port != "7070" {
		t.Fatalf("env should override yaml, port = %q", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("env = %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "minio" {
		t.Fatalf("store = %q", cfg.ObjectStoreType)
	}
	if len(cfg.Upload.AllowedExtensions) != 2 || cfg.Upload.AllowedExtensions[1] != "md" {
		t.Fatalf("extensions = %v", cfg.Upload.AllowedExtensions)
	}
	if cfg.Upload.MaxFileBytes != 2048 {
		t.Fatalf("max file bytes = %d", cfg.Upload.MaxFileBytes)
	}
	if cfg.Pipeline.NewDocumentURL != "http://yaml.example/new" {
		t.Fatalf("pipeline url = %q", cfg.Pipeline.NewDocumentURL)
	}
	if cfg.Pipeline.DispatchTimeout != 5*time.Second {
		t.Fatalf("timeout = %s", cfg.Pipeline.DispatchTimeout)
	}
	if cfg.ExposeErrorDetails {
		t.Fatalf("expected error details hidden in production")
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DISPATCH_TIMEOUT", "soon")
	t.Setenv("UPLOAD_MAX_FILE_BYTES", "ten")
	cfg := Load()
	if cfg.Pipeline.DispatchTimeout != 30*time.Second {
		t.Fatalf("timeout = %s", cfg.Pipeline.DispatchTimeout)
	}
	if cfg.Upload.MaxFileBytes != 10<<20 {
		t.Fatalf("max file bytes = %d", cfg.Upload.MaxFileBytes)
	}
}
