package model

// Outcome is either Ok(value) or Degraded(fallback, reason). Fallback paths
// (cache misses on error, fail-open translation, insufficient context) are
// returned as values instead of being swallowed.
type Outcome[T any] struct {
	Value  T
	Reason error // nil when Ok
}

// Ok wraps a value produced on the normal path.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degrade wraps a fallback value together with the reason it was used.
func Degrade[T any](fallback T, reason error) Outcome[T] {
	return Outcome[T]{Value: fallback, Reason: reason}
}

// IsDegraded reports whether the fallback path produced this outcome.
func (o Outcome[T]) IsDegraded() bool {
	return o.Reason != nil
}
