package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Memory.Backend != "lexical" {
		t.Errorf("expected lexical memory backend, got %s", cfg.Memory.Backend)
	}
	if cfg.Tools.CallTimeoutSeconds != 60 || cfg.Tools.GraceSeconds != 2 {
		t.Errorf("unexpected tool defaults: %+v", cfg.Tools)
	}
	if cfg.Audit.Backend != "memory" {
		t.Errorf("expected memory audit backend, got %s", cfg.Audit.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weft.yaml")
	data := []byte(`
log:
  level: debug
  format: json
memory:
  backend: vector
  qdrant_addr: qdrant.internal:6334
audit:
  backend: sqlite
  path: /tmp/weft-audit.db
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("file values not applied: %+v", cfg.Log)
	}
	if cfg.Memory.Backend != "vector" || cfg.Memory.QdrantAddr != "qdrant.internal:6334" {
		t.Errorf("file values not applied: %+v", cfg.Memory)
	}
	if cfg.Audit.Backend != "sqlite" || cfg.Audit.Path != "/tmp/weft-audit.db" {
		t.Errorf("file values not applied: %+v", cfg.Audit)
	}
	// Defaults untouched by the file survive.
	if cfg.Memory.EmbedderModel != "nomic-embed-text" {
		t.Errorf("defaults lost: %+v", cfg.Memory)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEFT_MEMORY_BACKEND", "vector")
	t.Setenv("WEFT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Memory.Backend != "vector" {
		t.Errorf("env override missed, got %s", cfg.Memory.Backend)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env override missed, got %s", cfg.Log.Level)
	}
}
