package model

import (
	"context"
	"errors"
	"net"
)

// Error taxonomy. Wrap these with fmt.Errorf("...: %w", ErrX) and classify
// with KindOf.
var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrToolExecution       = errors.New("tool execution failure")
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrSerialization       = errors.New("serialization failure")
	ErrInsufficientContext = errors.New("insufficient context")
)

// Kind classifies an error into the taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindUnknownTool
	KindToolExecution
	KindBackendUnavailable
	KindTimeout
	KindSerialization
	KindCanceled
)

// String returns the marker name used in tool error payloads.
func (k Kind) String() string {
	switch k {
	case KindUnknownTool:
		return "unknown_tool"
	case KindToolExecution:
		return "tool_execution_failure"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindTimeout:
		return "timeout"
	case KindSerialization:
		return "serialization_failure"
	case KindCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == KindBackendUnavailable || k == KindTimeout
}

// KindOf classifies err. Timeouts win over backend errors since a deadline
// hit while dialing is still a timeout to the caller.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, ErrBackendUnavailable):
		return KindBackendUnavailable
	case errors.Is(err, ErrSerialization):
		return KindSerialization
	default:
		return KindToolExecution
	}
}
