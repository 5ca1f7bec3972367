// Agent configuration types.
//
// Information Hiding:
// - Configuration validation logic hidden
// - Default values hidden

package agent

import (
	"github.com/richinex/controlqa/tools"
)

// DefaultMaxIterations is the number of model/tool round trips allowed
// before the loop forces a summary.
const DefaultMaxIterations = 3

// Config holds agent configuration. It is built once and shared read-only
// by every request.
type Config struct {
	// Name identifies the agent in logs and traces.
	Name string

	// SystemPrompt is prepended to every transcript.
	SystemPrompt string

	// Tools available to this agent.
	Tools []tools.Tool

	// MaxIterations is the iteration ceiling. Zero means DefaultMaxIterations.
	MaxIterations int

	// SummaryDirective is sent on the forced tool-free pass at the ceiling.
	SummaryDirective string

	// InsufficientContextNotice is appended when every retrieval failed.
	InsufficientContextNotice string
}

// DefaultConfig returns the control-theory agent configuration without tools.
func DefaultConfig() Config {
	return Config{
		Name:                      "controlqa",
		SystemPrompt:              SystemPrompt,
		Tools:                     []tools.Tool{},
		MaxIterations:             DefaultMaxIterations,
		SummaryDirective:          SummaryDirective,
		InsufficientContextNotice: InsufficientContextNotice,
	}
}

// Ceiling returns the effective iteration ceiling.
func (c *Config) Ceiling() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}
