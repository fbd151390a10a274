package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Loop.MaxTurns != 50 {
		t.Errorf("expected 50, got %d", cfg.Loop.MaxTurns)
	}
	if cfg.Loop.OutputCapacity != 1000 {
		t.Errorf("expected 1000, got %d", cfg.Loop.OutputCapacity)
	}
	if cfg.Journal.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Journal.Backend)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
model = "local-model"
base_url = "http://localhost:11434/v1"

[loop]
max_turns = 12
`), 0644)

	cfg := Load(path)
	if cfg.LLM.Model != "local-model" {
		t.Errorf("expected local-model, got %s", cfg.LLM.Model)
	}
	if cfg.Loop.MaxTurns != 12 {
		t.Errorf("expected 12, got %d", cfg.Loop.MaxTurns)
	}
	// Defaults preserved for untouched sections.
	if cfg.Loop.InputCapacity != 100 {
		t.Errorf("expected 100, got %d", cfg.Loop.InputCapacity)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONDUIT_LLM_API_KEY", "sk-test")
	t.Setenv("CONDUIT_OBSERVER_ENABLED", "1")

	cfg := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected sk-test, got %s", cfg.LLM.APIKey)
	}
	if !cfg.Observer.Enabled {
		t.Error("expected observer enabled")
	}
}
