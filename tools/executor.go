// Tool Executor with Retry Logic.
//
// Retries belong to the tool layer, not to the agent loop: the loop sees one
// CallResult per requested call no matter how many attempts were made.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/controlqa/model"
)

// Executor provides tool execution with retry and timeout support.
type Executor struct {
	config ToolConfig
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultToolConfig()}
}

// Execute runs a tool with retry logic. Each attempt gets the configured
// timeout. Only backend and timeout failures are retried.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	var lastErr error
	toolName := tool.Metadata().Name
	maxAttempts := e.config.Retries()
	timeout := time.Duration(e.config.Timeout()) * time.Second

	for attempt := uint32(0); attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := e.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := e.attempt(ctx, tool, args, timeout)
		if err == nil && result.Success() {
			return result, nil
		}
		if err == nil {
			err = result.Error
		}

		lastErr = err
		if !e.shouldRetry(err) {
			return FailureResult(err), nil
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: unknown error", model.ErrToolExecution)
	}
	return FailureResult(fmt.Errorf("tool '%s' failed after %d attempts: %w", toolName, maxAttempts, lastErr)), nil
}

func (e *Executor) attempt(ctx context.Context, tool Tool, args json.RawMessage, timeout time.Duration) (ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Execute(ctx, args)
	if err == nil && result.Error == nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%w: %w", model.ErrTimeout, ctx.Err())
	}
	return result, err
}

// calculateBackoff returns the backoff duration for the given attempt.
func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if an error is retryable.
func (e *Executor) shouldRetry(err error) bool {
	return model.KindOf(err).Retryable()
}
