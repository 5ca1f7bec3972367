// Package tools provides the tool system for the agent loop.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Tool parameters and schemas hidden in implementations
// - Registry implementation details hidden from consumers
// - Failures surface as error markers, never as loop aborts
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richinex/controlqa/model"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// Schema returns the JSON schema of the tool's arguments object.
func (m ToolMetadata) Schema() map[string]interface{} {
	props := make(map[string]interface{}, len(m.Parameters))
	required := []string{}
	for _, p := range m.Parameters {
		props[p.Name] = map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToolResult is what a tool hands back to the loop. Output is the payload
// the model sees; a non-nil Error is replaced by a marker instead.
type ToolResult struct {
	Output string
	Error  error
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// SuccessResult creates a successful tool result.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// FailureResultf creates a failed tool result with a formatted error message.
func FailureResultf(format string, args ...interface{}) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is the interface that all tools must implement.
//
// Information Hiding: Tool implementations hide their internal execution logic,
// data structures, and error handling strategies behind this interface.
// From the loop's point of view every tool is idempotent.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with given arguments.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate validates arguments before execution (optional).
	Validate(args json.RawMessage) error
}

// Partitioned is implemented by tools bound to one knowledge partition.
type Partitioned interface {
	Theory() model.Theory
}

// BaseTool provides a default implementation for Validate.
type BaseTool struct{}

// Validate provides a default no-op validation.
func (BaseTool) Validate(args json.RawMessage) error {
	return nil
}

// ToolConfig holds tool execution configuration.
// The zero value is safe: timeout defaults to 600s and retries to 2.
type ToolConfig struct {
	TimeoutSecs uint64
	MaxRetries  uint32
}

// Timeout returns the configured timeout, defaulting to 600 seconds if zero.
func (c *ToolConfig) Timeout() uint64 {
	if c == nil || c.TimeoutSecs == 0 {
		return DefaultToolTimeout
	}
	return c.TimeoutSecs
}

// Retries returns the configured attempt count, defaulting to 2 if zero.
func (c *ToolConfig) Retries() uint32 {
	if c == nil || c.MaxRetries == 0 {
		return 2
	}
	return c.MaxRetries
}

// DefaultToolConfig returns the default tool configuration.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		TimeoutSecs: DefaultToolTimeout,
		MaxRetries:  2,
	}
}

// marker is the error payload fed back to the model in place of a result.
type marker struct {
	Error  string `json:"error"`
	Tool   string `json:"tool"`
	Detail string `json:"detail"`
}

// Marker renders an explicit error marker for a failed or unknown tool call.
func Marker(kind model.Kind, tool, detail string) string {
	data, err := json.Marshal(marker{Error: kind.String(), Tool: tool, Detail: detail})
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"tool":%q}`, kind.String(), tool)
	}
	return string(data)
}
