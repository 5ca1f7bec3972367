// Package llm provides the chat-model backends the agent talks to.
//
// Every backend hides its own wire format behind Provider: the agent loop
// only ever sends a transcript, optionally with the tool catalogue, and reads
// back text, tool calls and token usage.

package llm

import (
	"context"
)

// Provider is a chat model.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat completes a transcript without offering tools. The summary pass
	// and translation use it.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithTools runs one step of the agent loop. The reply may request
	// tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
