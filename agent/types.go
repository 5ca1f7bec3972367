// Package agent provides the bounded tool-use loop.
//
// Contains the loop states and the per-question session.
package agent

import (
	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

// State is a loop state.
type State int

const (
	StateAwaitModel State = iota
	StateDispatchTools
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitModel:
		return "await_model"
	case StateDispatchTools:
		return "dispatch_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Session is the state of one question's loop. It is created per question,
// mutated only by the loop, and never shared between requests.
type Session struct {
	Question   string
	Transcript []llm.ChatMessage

	// Iterations counts completed tool rounds.
	Iterations int
	Terminated bool

	// Forced is set when the ceiling ended the loop.
	Forced bool

	// Theory is the partition of the most recent successful retrieval.
	Theory *model.Theory

	// RetrievalAttempts counts calls to partition-bound tools, and
	// RetrievalFailures those that failed on backend or timeout.
	RetrievalAttempts int
	RetrievalFailures int

	ModelCalls int
	Usage      llm.TokenUsage
}

func newSession(systemPrompt, question string) *Session {
	return &Session{
		Question: question,
		Transcript: []llm.ChatMessage{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage(question),
		},
	}
}

func (s *Session) append(msgs ...llm.ChatMessage) {
	s.Transcript = append(s.Transcript, msgs...)
}

// last returns the most recent turn.
func (s *Session) last() llm.ChatMessage {
	return s.Transcript[len(s.Transcript)-1]
}

func (s *Session) addUsage(u *llm.TokenUsage) {
	if u == nil {
		return
	}
	s.Usage.PromptTokens += u.PromptTokens
	s.Usage.CompletionTokens += u.CompletionTokens
	s.Usage.TotalTokens += u.TotalTokens
}

// InsufficientContext reports whether retrieval was tried and every call
// failed on an unreachable or slow backend.
func (s *Session) InsufficientContext() bool {
	return s.RetrievalAttempts > 0 && s.RetrievalFailures == s.RetrievalAttempts
}

// ToolResults returns the tool turns in transcript order.
func (s *Session) ToolResults() []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, m := range s.Transcript {
		if m.Role == "tool" {
			out = append(out, m)
		}
	}
	return out
}
