// Client runs single-prompt completions on top of a Provider.

package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCompletion is returned when the model replies with blank text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Client wraps a Provider for one-shot instruction prompts.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Complete sends instruction as the system turn and input as the user turn,
// and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, instruction, input string) (string, *TokenUsage, error) {
	response, err := c.provider.Chat(ctx, []ChatMessage{
		SystemMessage(instruction),
		UserMessage(input),
	})
	if err != nil {
		return "", nil, err
	}

	out := strings.TrimSpace(response.Content)
	if out == "" {
		return "", response.Usage, ErrEmptyCompletion
	}
	return out, response.Usage, nil
}
