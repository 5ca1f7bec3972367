// Chat Completions providers: OpenAI, DeepSeek and Ollama share one wire
// format through go-openai and differ only in endpoint and token field.
//
// Information Hiding:
// - Request building and response decoding for /chat/completions
// - Tool-call and tool-result conversion, tool names included
// - Token accounting from the usage block

package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// errNoChoices is returned when a completion carries no choices at all.
var errNoChoices = errors.New("completion returned no choices")

// chatCompletions is the shared client for every Chat Completions backend.
type chatCompletions struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32

	// completionTokens sends max_completion_tokens instead of max_tokens.
	completionTokens bool
}

func newChatCompletions(config openai.ClientConfig, model string, maxTokens uint32, temperature float32) *chatCompletions {
	return &chatCompletions{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Model returns the current model.
func (c *chatCompletions) Model() string {
	return c.model
}

// Chat sends a completion request without tools.
func (c *chatCompletions) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return c.complete(ctx, messages, nil)
}

// ChatWithTools sends one agent step: the transcript plus the tool catalogue.
func (c *chatCompletions) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return c.complete(ctx, messages, tools)
}

func (c *chatCompletions) complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, tools))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errNoChoices
	}

	msg := resp.Choices[0].Message
	out := LLMResponse{
		Content: msg.Content,
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (c *chatCompletions) request(messages []ChatMessage, tools []ToolDefinition) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.temperature,
	}
	if c.completionTokens {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}
	return req
}

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	*chatCompletions
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{newChatCompletions(openai.DefaultConfig(apiKey), model, maxTokens, temperature)}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// toOpenAIMessages converts a transcript. Tool turns carry both the call id
// and the tool name so backends that key results by name can match them.
func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		if msg.Role == "tool" {
			oaiMsg.ToolCallID = msg.ToolCallID
			oaiMsg.Name = msg.Name
		}

		result[i] = oaiMsg
	}
	return result
}

// toOpenAITools converts tool definitions to function tools.
func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
