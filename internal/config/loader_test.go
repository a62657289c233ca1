package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.BatchWindow != 4 {
		t.Fatalf("expected default batch window 4, got %d", cfg.Orchestrator.BatchWindow)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	data := `
server:
  port: "9090"
confidence:
  automated: 90
  review: 75
  expert: 55
orchestrator:
  batch_window: 8
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected yaml port, got %s", cfg.Server.Port)
	}
	if cfg.Confidence.Automated != 90 || cfg.Confidence.Expert != 55 {
		t.Fatalf("expected yaml confidence thresholds, got %+v", cfg.Confidence)
	}
	if cfg.Orchestrator.BatchWindow != 8 {
		t.Fatalf("expected batch window 8, got %d", cfg.Orchestrator.BatchWindow)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SFDR_PORT", "7070")
	t.Setenv("SFDR_ORCH_STEP_TIMEOUT", "45s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env port, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.DefaultStepTimeout != 45*time.Second {
		t.Fatalf("expected env step timeout, got %v", cfg.Orchestrator.DefaultStepTimeout)
	}
}

func TestLoadFrom_RejectsInvertedConfidenceBands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	data := `
confidence:
  automated: 60
  review: 70
  expert: 50
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for inverted confidence bands")
	}
}

func TestLoadFrom_RejectsZeroBatchWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("orchestrator:\n  batch_window: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SFDR_ORCH_BATCH_WINDOW", "")

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for zero batch window")
	}
}
