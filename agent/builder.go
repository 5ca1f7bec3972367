// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"github.com/richinex/controlqa/tools"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder("name") - no stutter.
type Builder struct {
	name             string
	systemPrompt     string
	tools            []tools.Tool
	maxIterations    int
	summaryDirective string
	notice           string
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		tools: []tools.Tool{},
	}
}

// SystemPrompt sets the agent's system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.systemPrompt = prompt
	return b
}

// Tool adds a tool to the agent.
func (b *Builder) Tool(tool tools.Tool) *Builder {
	b.tools = append(b.tools, tool)
	return b
}

// Tools adds multiple tools at once.
func (b *Builder) Tools(toolList []tools.Tool) *Builder {
	b.tools = append(b.tools, toolList...)
	return b
}

// MaxIterations sets the iteration ceiling.
func (b *Builder) MaxIterations(n int) *Builder {
	b.maxIterations = n
	return b
}

// SummaryDirective sets the directive for the forced summary pass.
func (b *Builder) SummaryDirective(directive string) *Builder {
	b.summaryDirective = directive
	return b
}

// InsufficientContextNotice sets the notice appended when retrieval failed.
func (b *Builder) InsufficientContextNotice(notice string) *Builder {
	b.notice = notice
	return b
}

// Build creates the agent configuration. Unset fields take their defaults.
func (b *Builder) Build() Config {
	config := DefaultConfig()
	if b.name != "" {
		config.Name = b.name
	}
	if b.systemPrompt != "" {
		config.SystemPrompt = b.systemPrompt
	}
	if b.maxIterations > 0 {
		config.MaxIterations = b.maxIterations
	}
	if b.summaryDirective != "" {
		config.SummaryDirective = b.summaryDirective
	}
	if b.notice != "" {
		config.InsufficientContextNotice = b.notice
	}
	config.Tools = b.tools
	return config
}
