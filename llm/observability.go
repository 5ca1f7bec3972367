// Instrumented provider: timeouts, error classification, metrics and traces.
//
// Information Hiding:
// - Per-call deadline handling hidden
// - Error taxonomy mapping hidden (callers only see model.Err* sentinels)
// - Prometheus and OTel wiring hidden

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/richinex/controlqa/model"
)

const llmTracerName = "controlqa.llm"

// DefaultCallTimeout bounds a single model call. Large local models are slow.
const DefaultCallTimeout = 10 * time.Minute

var (
	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "controlqa",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of model calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider", "status"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlqa",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of model calls.",
		},
		[]string{"provider", "status"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlqa",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total tokens consumed by model calls.",
		},
		[]string{"provider", "direction"},
	)
)

// InstrumentedProvider wraps a Provider with a per-call timeout, error
// classification, Prometheus metrics and an OTel span per call.
type InstrumentedProvider struct {
	inner   Provider
	timeout time.Duration
}

// Instrument wraps p. A non-positive timeout uses DefaultCallTimeout.
func Instrument(p Provider, timeout time.Duration) *InstrumentedProvider {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &InstrumentedProvider{inner: p, timeout: timeout}
}

// Name returns the wrapped provider name.
func (p *InstrumentedProvider) Name() string {
	return p.inner.Name()
}

// Model returns the wrapped provider model.
func (p *InstrumentedProvider) Model() string {
	return p.inner.Model()
}

// Chat sends a chat completion request.
func (p *InstrumentedProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.call(ctx, "Chat", len(messages), 0, func(ctx context.Context) (LLMResponse, error) {
		return p.inner.Chat(ctx, messages)
	})
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *InstrumentedProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return p.call(ctx, "ChatWithTools", len(messages), len(tools), func(ctx context.Context) (LLMResponse, error) {
		return p.inner.ChatWithTools(ctx, messages, tools)
	})
}

func (p *InstrumentedProvider) call(ctx context.Context, op string, messageCount, toolCount int, fn func(context.Context) (LLMResponse, error)) (LLMResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "llm."+op,
		trace.WithAttributes(
			attribute.String("provider", p.inner.Name()),
			attribute.String("model", p.inner.Model()),
			attribute.Int("message_count", messageCount),
			attribute.Int("tool_count", toolCount),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := fn(ctx)
	err = classifyModelError(ctx, err)
	p.record(time.Since(start), resp.Usage, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return LLMResponse{}, err
	}
	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

func (p *InstrumentedProvider) record(d time.Duration, usage *TokenUsage, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	name := p.inner.Name()
	llmCallDuration.WithLabelValues(name, status).Observe(d.Seconds())
	llmCallsTotal.WithLabelValues(name, status).Inc()
	if usage != nil {
		llmTokensTotal.WithLabelValues(name, "input").Add(float64(usage.PromptTokens))
		llmTokensTotal.WithLabelValues(name, "output").Add(float64(usage.CompletionTokens))
	}
}

// classifyModelError maps a provider failure onto the taxonomy. A call
// cancelled by its caller is passed through unclassified; any other model
// failure is either a timeout or the backend being unavailable.
func classifyModelError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrTimeout) || errors.Is(err, model.ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", context.Canceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", model.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", model.ErrBackendUnavailable, err)
}

// Verify InstrumentedProvider implements Provider
var _ Provider = (*InstrumentedProvider)(nil)
