// Ollama Provider implementation using the OpenAI-compatible endpoint.
//
// Information Hiding:
// - Ollama serves the Chat Completions API under /v1, tool calls included
// - Request/response conversion shared with the other Chat Completions backends
// - No API key; a placeholder satisfies the client

package llm

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOllamaBaseURL is the address of the Ollama service in the compose stack.
const DefaultOllamaBaseURL = "http://ollama:11434"

// ollamaAPIKey is sent as the bearer token; Ollama ignores it.
const ollamaAPIKey = "ollama"

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	*chatCompletions
}

// NewOllamaProvider creates a provider talking to baseURL (e.g. http://ollama:11434).
func NewOllamaProvider(baseURL, model string, maxTokens uint32, temperature float32) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	config := openai.DefaultConfig(ollamaAPIKey)
	config.BaseURL = OllamaOpenAIBaseURL(baseURL)

	return &OllamaProvider{newChatCompletions(config, model, maxTokens, temperature)}
}

// OllamaOpenAIBaseURL returns the OpenAI-compatible API root for an Ollama server.
func OllamaOpenAIBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Verify OllamaProvider implements Provider
var _ Provider = (*OllamaProvider)(nil)
