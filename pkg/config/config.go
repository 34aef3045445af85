// Package config loads Weft runtime settings from defaults, an optional
// YAML file, and WEFT_-prefixed environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Providers ProvidersConfig `koanf:"providers"`
	Memory    MemoryConfig    `koanf:"memory"`
	Tools     ToolsConfig     `koanf:"tools"`
	Audit     AuditConfig     `koanf:"audit"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ProvidersConfig struct {
	Gemini    ProviderConfig `koanf:"gemini"`
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
}

type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type MemoryConfig struct {
	// Backend selects the semantic index: "lexical" (in-process) or
	// "vector" (qdrant + embedder).
	Backend         string  `koanf:"backend"`
	BackupPath      string  `koanf:"backup_path"`
	QdrantAddr      string  `koanf:"qdrant_addr"`
	Collection      string  `koanf:"collection"`
	EmbedderBaseURL string  `koanf:"embedder_base_url"`
	EmbedderModel   string  `koanf:"embedder_model"`
	ScoreThreshold  float64 `koanf:"score_threshold"`
}

type ToolsConfig struct {
	// CallTimeoutSeconds bounds each tool call; 0 disables the bound.
	CallTimeoutSeconds int `koanf:"call_timeout_seconds"`
	// GraceSeconds is how long a tool server may take to exit before it is
	// killed.
	GraceSeconds int `koanf:"grace_seconds"`
}

type AuditConfig struct {
	Backend string `koanf:"backend"` // memory, sqlite
	Path    string `koanf:"path"`
}

// Load reads configuration from the optional file at path and the
// environment (WEFT_MEMORY_BACKEND -> memory.backend).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")

	k.Set("memory.backend", "lexical")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "weft_context")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("memory.score_threshold", 0.3)

	k.Set("tools.call_timeout_seconds", 60)
	k.Set("tools.grace_seconds", 2)

	k.Set("audit.backend", "memory")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("WEFT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "WEFT_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
