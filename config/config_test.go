package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_address: 127.0.0.1
  http_port: 9000
ingest:
  root_path: game
  timeout_seconds: 30
producer:
  name: studio-1
  consumer_url: ws://example:9000/ws
  interval_seconds: 5
  batch_size: 250
  compress: true
journal:
  enabled: true
  dir: /tmp/journal
recorder:
  enabled: true
  path: /tmp/history.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d", cfg.Server.HTTPPort)
	}
	if cfg.Ingest.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %s", cfg.Ingest.Timeout())
	}
	if cfg.Producer.Name != "studio-1" || !cfg.Producer.Compress {
		t.Errorf("Producer = %+v", cfg.Producer)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Dir != "/tmp/journal" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  http_port: 8123\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.RootPath != "game" {
		t.Errorf("default root path = %q", cfg.Ingest.RootPath)
	}
	if cfg.Producer.BatchSize != 500 {
		t.Errorf("default batch size = %d", cfg.Producer.BatchSize)
	}
	if cfg.Producer.ConsumerURL != "ws://127.0.0.1:8123/ws" {
		t.Errorf("default consumer URL = %q", cfg.Producer.ConsumerURL)
	}
	if cfg.Ingest.CheckInterval() != 5*time.Second {
		t.Errorf("default check interval = %s", cfg.Ingest.CheckInterval())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [not a map")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultIsComplete(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPPort == 0 || cfg.Ingest.RootPath == "" || cfg.Producer.BatchSize == 0 {
		t.Fatalf("Default left gaps: %+v", cfg)
	}
}
