// Translation tool.
//
// Information Hiding:
// - Translation backend hidden behind Translator
// - Fail-open policy: the tool never fails the turn over a translation error

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

// translationPrompt instructs the model to return a bare Russian translation.
const translationPrompt = "Переведи текст на русский, кратко и ясно. Оставь математические обозначения без изменений. Ответь только переводом."

// DefaultTranslateTimeout bounds a single translation call.
const DefaultTranslateTimeout = 120 * time.Second

// Translator turns text into the output language. A degraded outcome
// carries the original text.
type Translator interface {
	Translate(ctx context.Context, text string) model.Outcome[string]
}

// LLMTranslator translates with a chat model.
type LLMTranslator struct {
	client  *llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMTranslator creates a translator backed by provider.
func NewLLMTranslator(provider llm.Provider, timeout time.Duration, logger *slog.Logger) *LLMTranslator {
	if timeout <= 0 {
		timeout = DefaultTranslateTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMTranslator{
		client:  llm.NewClient(provider),
		timeout: timeout,
		logger:  logger,
	}
}

// Translate returns the translation, or the input unchanged on any failure.
func (t *LLMTranslator) Translate(ctx context.Context, text string) model.Outcome[string] {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, _, err := t.client.Complete(ctx, translationPrompt, text)
	if errors.Is(err, llm.ErrEmptyCompletion) {
		t.logger.Warn("translation empty, returning input")
		return model.Degrade(text, fmt.Errorf("translate: %w: empty response", model.ErrBackendUnavailable))
	}
	if err != nil {
		t.logger.Warn("translation failed, returning input", slog.String("error", err.Error()))
		return model.Degrade(text, fmt.Errorf("translate: %w", err))
	}
	return model.Ok(out)
}

// TranslateTool exposes a Translator to the model.
type TranslateTool struct {
	BaseTool
	translator Translator
}

// NewTranslateTool creates the translation tool.
func NewTranslateTool(translator Translator) *TranslateTool {
	return &TranslateTool{translator: translator}
}

// Metadata returns the tool metadata.
func (t *TranslateTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "translate_to_russian",
		Description: "Translate a draft answer into concise Russian, keeping mathematical notation unchanged.",
		Parameters: []ToolParameter{
			{Name: "text", ParamType: "string", Description: "Text to translate", Required: true},
		},
	}
}

type translateArgs struct {
	Text string `json:"text"`
}

// Validate validates the arguments.
func (t *TranslateTool) Validate(args json.RawMessage) error {
	var a translateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Execute translates the text. It only fails on malformed arguments.
func (t *TranslateTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a translateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("%w: invalid arguments: %w", model.ErrToolExecution, err)), nil
	}
	if strings.TrimSpace(a.Text) == "" {
		return SuccessResult(a.Text), nil
	}
	return SuccessResult(t.translator.Translate(ctx, a.Text).Value), nil
}

var _ Tool = (*TranslateTool)(nil)
