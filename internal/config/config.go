// Package config loads settings for the example binary:
// defaults -> TOML file -> env vars (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Loop     LoopConfig     `toml:"loop"`
	Journal  JournalConfig  `toml:"journal"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type LoopConfig struct {
	ThreadID       string `toml:"thread_id"`
	MaxTurns       int    `toml:"max_turns"`
	InputCapacity  int    `toml:"input_capacity"`
	OutputCapacity int    `toml:"output_capacity"`
}

type JournalConfig struct {
	// Backend selects the sink: "sqlite", "postgres", or "" (disabled).
	Backend string `toml:"backend"`
	// Path is the SQLite file (sqlite backend).
	Path string `toml:"path"`
	// DSN is the connection string (postgres backend).
	DSN string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:     LLMConfig{Model: "gpt-4.1-mini", BaseURL: "https://api.openai.com/v1"},
		Loop:    LoopConfig{ThreadID: "main", MaxTurns: 50, InputCapacity: 100, OutputCapacity: 1000},
		Journal: JournalConfig{Backend: "sqlite", Path: "conduit.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "conduit.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CONDUIT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CONDUIT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CONDUIT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CONDUIT_JOURNAL_DSN"); v != "" {
		cfg.Journal.DSN = v
	}
	if os.Getenv("CONDUIT_OBSERVER_ENABLED") == "true" || os.Getenv("CONDUIT_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
