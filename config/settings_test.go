package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv unsets every variable Load reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "OLLAMA_BASE_URL", "OLLAMA_MODEL_NAME", "OLLAMA_EMBED_MODEL_NAME",
		"OPENAI_MODEL", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_TIMEOUT_SECS",
		"AGENT_MAX_ITERATIONS", "AGENT_TOP_K", "TOOL_RETRIES", "TRANSLATE_TIMEOUT_SECS",
		"QDRANT_URL", "QDRANT_API_KEY", "QDRANT_TIMEOUT_SECS",
		"QDRANT_COLLECTION_CLS", "QDRANT_COLLECTION_DS", "QDRANT_COLLECTION_NL",
		"CHUNKS_DB", "CHUNKS_DIR", "CACHE_TTL_HOURS", "SERVER_ADDR",
	} {
		t.Setenv(key, "")
	}
	if val, ok := os.LookupEnv("CACHE_DIR"); ok {
		os.Unsetenv("CACHE_DIR")
		t.Cleanup(func() { os.Setenv("CACHE_DIR", val) })
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlqa.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "ollama" || settings.LLM.Model != "qwen3:8b" {
		t.Errorf("expected ollama/qwen3:8b, got %s/%s", settings.LLM.Provider, settings.LLM.Model)
	}
	if settings.Agent.MaxIterations != 3 || settings.Agent.TopK != 5 {
		t.Errorf("unexpected agent defaults: %+v", settings.Agent)
	}
	if settings.Cache.TTLHours != 24 || settings.Cache.Dir == "" {
		t.Errorf("unexpected cache defaults: %+v", settings.Cache)
	}
	if settings.Retrieval.CollectionLinear != "cls_ogata" ||
		settings.Retrieval.CollectionDiscrete != "ds_ogata" ||
		settings.Retrieval.CollectionNonlinear != "nl_khalil" {
		t.Errorf("unexpected collections: %+v", settings.Retrieval)
	}
}

func TestNewValidProvider(t *testing.T) {
	clearEnv(t)

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
}

func TestNewWithAlias(t *testing.T) {
	clearEnv(t)

	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	clearEnv(t)

	_, err := New("unknown_provider")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "gpt")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("AGENT_MAX_ITERATIONS", "5")
	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("CACHE_DIR", "")

	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" || settings.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected openai/gpt-4o-mini, got %s/%s", settings.LLM.Provider, settings.LLM.Model)
	}
	if settings.Agent.MaxIterations != 5 {
		t.Errorf("expected 5 iterations, got %d", settings.Agent.MaxIterations)
	}
	if settings.Retrieval.QdrantURL != "http://localhost:6333" {
		t.Errorf("unexpected qdrant url %q", settings.Retrieval.QdrantURL)
	}
	if settings.Cache.Dir != "" {
		t.Errorf("expected empty CACHE_DIR to select memory, got %q", settings.Cache.Dir)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  model: qwen3:14b
agent:
  max_iterations: 2
  top_k: 8
retrieval:
  qdrant_url: http://vectors:6333
`)
	t.Setenv("AGENT_TOP_K", "4")

	settings, err := Load(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Model != "qwen3:14b" {
		t.Errorf("expected model from file, got %q", settings.LLM.Model)
	}
	if settings.Agent.MaxIterations != 2 {
		t.Errorf("expected iterations from file, got %d", settings.Agent.MaxIterations)
	}
	if settings.Agent.TopK != 4 {
		t.Errorf("expected env to override file, got %d", settings.Agent.TopK)
	}
	if settings.Retrieval.QdrantURL != "http://vectors:6333" {
		t.Errorf("unexpected qdrant url %q", settings.Retrieval.QdrantURL)
	}
	if settings.Retrieval.CollectionLinear != "cls_ogata" {
		t.Error("fields absent from the file must keep their defaults")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"bad yaml", "agent: [", nil, "parse config"},
		{"invalid env", "", map[string]string{"LLM_MAX_TOKENS": "not-a-number"}, "LLM_MAX_TOKENS"},
		{"zero iterations", "agent:\n  max_iterations: 0\n", nil, "MaxIterations"},
		{"bad qdrant url", "retrieval:\n  qdrant_url: not a url\n", nil, "QdrantURL"},
		{"temperature out of range", "", map[string]string{"LLM_TEMPERATURE": "3.5"}, "Temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.body), "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := APIKeyFor("openai")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForOllama(t *testing.T) {
	key, err := APIKeyFor("local")
	if err != nil || key != "" {
		t.Errorf("expected no key and no error, got %q, %v", key, err)
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	clearEnv(t)

	model, err := ModelFor("ollama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "qwen3:8b" {
		t.Errorf("expected qwen3:8b, got %q", model)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 5 {
		t.Errorf("expected 5 supported providers, got %v", providers)
	}
}
