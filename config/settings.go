// Package config provides application settings.
//
// Settings are created via New() or Load() which handle:
// - Default value application
// - An optional YAML file overlay
// - Environment variable parsing with validation
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"required"`
	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	EmbedModel  string  `yaml:"embed_model" validate:"required"`
	MaxTokens   uint32  `yaml:"max_tokens" validate:"min=1"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"min=1"`
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxIterations        int    `yaml:"max_iterations" validate:"min=1,max=20"`
	TopK                 int    `yaml:"top_k" validate:"min=1,max=50"`
	ToolRetries          uint32 `yaml:"tool_retries" validate:"min=1,max=10"`
	TranslateTimeoutSecs int    `yaml:"translate_timeout_secs" validate:"min=1"`
}

// RetrievalConfig holds vector search and chunk store configuration.
type RetrievalConfig struct {
	QdrantURL           string `yaml:"qdrant_url" validate:"required,url"`
	QdrantAPIKey        string `yaml:"qdrant_api_key"`
	QdrantTimeoutSecs   int    `yaml:"qdrant_timeout_secs" validate:"min=1"`
	CollectionLinear    string `yaml:"collection_linear" validate:"required"`
	CollectionDiscrete  string `yaml:"collection_discrete" validate:"required"`
	CollectionNonlinear string `yaml:"collection_nonlinear" validate:"required"`
	ChunksDB            string `yaml:"chunks_db" validate:"required"`
	ChunksDir           string `yaml:"chunks_dir"`
}

// CacheConfig holds answer cache configuration. An empty Dir means an
// in-memory store.
type CacheConfig struct {
	Dir      string `yaml:"dir"`
	TTLHours int    `yaml:"ttl_hours" validate:"min=1"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// DefaultProvider is used when neither the caller, the file nor LLM_PROVIDER
// names one.
const DefaultProvider = "ollama"

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"ollama":    {"OLLAMA_MODEL_NAME", "qwen3:8b", ""},
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
	"local":  "ollama",
}

var validate = validator.New()

// Defaults returns the built-in settings before any file or environment
// overlay. The model is left empty and resolved per provider.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			BaseURL:     "http://ollama:11434",
			EmbedModel:  "embeddinggemma",
			MaxTokens:   4096,
			Temperature: 0.2,
			TimeoutSecs: 600,
		},
		Agent: AgentConfig{
			MaxIterations:        3,
			TopK:                 5,
			ToolRetries:          2,
			TranslateTimeoutSecs: 120,
		},
		Retrieval: RetrievalConfig{
			QdrantURL:           "http://qdrant:6333",
			QdrantTimeoutSecs:   600,
			CollectionLinear:    "cls_ogata",
			CollectionDiscrete:  "ds_ogata",
			CollectionNonlinear: "nl_khalil",
			ChunksDB:            ".controlqa/chunks.db",
			ChunksDir:           "/app/chunks",
		},
		Cache: CacheConfig{
			Dir:      ".controlqa/cache",
			TTLHours: 24,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
	}
}

// New creates settings for the specified provider from defaults and
// environment variables. An empty provider falls back to LLM_PROVIDER.
func New(provider string) (Settings, error) {
	return Load("", provider)
}

// Load creates settings from defaults, then the YAML file at path (if any),
// then environment variables. A non-empty provider overrides all three.
func Load(path, provider string) (Settings, error) {
	settings := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if provider != "" {
		settings.LLM.Provider = provider
	}
	settings.LLM.Provider = normalizeProvider(settings.LLM.Provider)

	info, err := getProviderInfo(settings.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}

	// The environment overrides the file for the model too.
	if val := os.Getenv(info.modelEnv); val != "" {
		settings.LLM.Model = val
	} else if settings.LLM.Model == "" {
		settings.LLM.Model = info.defaultModel
	}

	if err := validate.Struct(settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func applyEnv(s *Settings) error {
	setString(&s.LLM.Provider, "LLM_PROVIDER")
	setString(&s.LLM.BaseURL, "OLLAMA_BASE_URL")
	setString(&s.LLM.EmbedModel, "OLLAMA_EMBED_MODEL_NAME")
	setString(&s.Retrieval.QdrantURL, "QDRANT_URL")
	setString(&s.Retrieval.QdrantAPIKey, "QDRANT_API_KEY")
	setString(&s.Retrieval.CollectionLinear, "QDRANT_COLLECTION_CLS")
	setString(&s.Retrieval.CollectionDiscrete, "QDRANT_COLLECTION_DS")
	setString(&s.Retrieval.CollectionNonlinear, "QDRANT_COLLECTION_NL")
	setString(&s.Retrieval.ChunksDB, "CHUNKS_DB")
	setString(&s.Retrieval.ChunksDir, "CHUNKS_DIR")
	setString(&s.Server.Addr, "SERVER_ADDR")

	// CACHE_DIR may be set to empty on purpose to select the in-memory store.
	if val, ok := os.LookupEnv("CACHE_DIR"); ok {
		s.Cache.Dir = val
	}

	var err error
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.Agent.ToolRetries, err = getEnvUint32("TOOL_RETRIES", s.Agent.ToolRetries); err != nil {
		return err
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LLM_TIMEOUT_SECS", &s.LLM.TimeoutSecs},
		{"AGENT_MAX_ITERATIONS", &s.Agent.MaxIterations},
		{"AGENT_TOP_K", &s.Agent.TopK},
		{"TRANSLATE_TIMEOUT_SECS", &s.Agent.TranslateTimeoutSecs},
		{"QDRANT_TIMEOUT_SECS", &s.Retrieval.QdrantTimeoutSecs},
		{"CACHE_TTL_HOURS", &s.Cache.TTLHours},
	}
	for _, e := range ints {
		if *e.dst, err = getEnvInt(e.key, *e.dst); err != nil {
			return err
		}
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
// Ollama needs no key and always returns "".
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	if info.apiKeyEnv == "" {
		return "", nil
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
