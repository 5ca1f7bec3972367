// Bounded tool-use loop.
//
// All question answering goes through this module: the cache read, the
// AwaitModel/DispatchTools state machine with its iteration ceiling, result
// assembly and the cache write.
//
// Information Hiding:
// - Loop state transitions hidden
// - LLM communication hidden
// - Tool dispatch coordination hidden
// - Cache read/write policy hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/richinex/controlqa/cache"
	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
	"github.com/richinex/controlqa/tools"
)

const tracerName = "controlqa.agent"

var (
	asksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlqa",
			Subsystem: "agent",
			Name:      "asks_total",
			Help:      "Questions answered, by outcome (ok, degraded, cached, error).",
		},
		[]string{"outcome"},
	)

	roundsHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "controlqa",
			Subsystem: "agent",
			Name:      "tool_rounds",
			Help:      "Tool rounds per loop run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	forcedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "controlqa",
			Subsystem: "agent",
			Name:      "forced_terminations_total",
			Help:      "Loop runs ended by the iteration ceiling.",
		},
	)
)

// Agent answers questions with a bounded tool-use loop.
// Safe for concurrent use: each Ask runs its own Session.
type Agent struct {
	config   Config
	provider llm.Provider
	registry *tools.Registry
	cache    *cache.ResultCache
	logger   *slog.Logger
	flight   singleflight.Group
}

// Option configures an Agent.
type Option func(*Agent)

// WithCache enables the answer cache.
func WithCache(c *cache.ResultCache) Option {
	return func(a *Agent) { a.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRegistry uses an existing registry. Config tools are added to it.
func WithRegistry(r *tools.Registry) Option {
	return func(a *Agent) {
		if r != nil {
			a.registry = r
		}
	}
}

// New creates an agent with the given configuration and provider.
func New(config Config, provider llm.Provider, opts ...Option) *Agent {
	a := &Agent{
		config:   config,
		provider: provider,
		registry: tools.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, tool := range config.Tools {
		_ = a.registry.Register(tool) // Ignore duplicate errors - caller's responsibility
	}
	return a
}

// Ask answers a question. A cached answer is returned without running the
// loop. Concurrent identical questions share one loop run.
//
// The error is non-nil only when the model backend failed or ctx ended
// before the answer was ready. An answer built without any successful
// retrieval is returned as a degraded outcome wrapping
// model.ErrInsufficientContext.
func (a *Agent) Ask(ctx context.Context, question string) (model.Outcome[model.Result], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.ask",
		trace.WithAttributes(attribute.String("agent", a.config.Name)))
	defer span.End()

	if res, ok := a.lookup(ctx, question); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		asksTotal.WithLabelValues("cached").Inc()
		return model.Ok(res), nil
	}

	// The shared run outlives any one caller: a caller that goes away stops
	// waiting but does not cancel the answer for the others.
	runCtx := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(cache.Key(question), func() (interface{}, error) {
		return a.answer(runCtx, question)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		span.SetAttributes(attribute.Bool("cache_hit", false))
		span.RecordError(ctx.Err())
		asksTotal.WithLabelValues("abandoned").Inc()
		return model.Outcome[model.Result]{}, ctx.Err()
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	span.SetAttributes(attribute.Bool("cache_hit", false), attribute.Bool("shared", res.Shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		asksTotal.WithLabelValues("error").Inc()
		return model.Outcome[model.Result]{}, err
	}

	out := v.(model.Outcome[model.Result])
	if out.IsDegraded() {
		asksTotal.WithLabelValues("degraded").Inc()
	} else {
		asksTotal.WithLabelValues("ok").Inc()
	}
	return out, nil
}

// lookup reads the cache. Every failure is a miss.
func (a *Agent) lookup(ctx context.Context, question string) (model.Result, bool) {
	if a.cache == nil {
		return model.Result{}, false
	}

	key := cache.Key(question)
	out := a.cache.Load(ctx, question)
	switch {
	case out.IsDegraded():
		a.logger.Warn("cache read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", out.Reason.Error()),
		)
		return model.Result{}, false
	case out.Value == nil:
		a.logger.Debug("cache miss", slog.String("key", key))
		return model.Result{}, false
	default:
		a.logger.Debug("cache hit", slog.String("key", key))
		return *out.Value, true
	}
}

// answer runs the loop, assembles the result and writes it through.
func (a *Agent) answer(ctx context.Context, question string) (model.Outcome[model.Result], error) {
	session, err := a.Run(ctx, question)
	if err != nil {
		return model.Outcome[model.Result]{}, err
	}

	result := Assemble(session)
	if session.InsufficientContext() {
		result.Answer = withNotice(result.Answer, a.config.InsufficientContextNotice)
		result.Citations = []model.Citation{}
		a.logger.Warn("answered without retrieved context",
			slog.Int("retrieval_attempts", session.RetrievalAttempts),
		)
		return model.Degrade(result, fmt.Errorf("%w: all %d retrieval calls failed",
			model.ErrInsufficientContext, session.RetrievalAttempts)), nil
	}

	a.store(ctx, question, result)
	return model.Ok(result), nil
}

// store writes the result to the cache. Failures are logged and dropped.
func (a *Agent) store(ctx context.Context, question string, result model.Result) {
	if a.cache == nil {
		return
	}
	key := cache.Key(question)
	if err := a.cache.Save(ctx, question, result); err != nil {
		a.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	a.logger.Debug("cache stored", slog.String("key", key), slog.Duration("ttl", a.cache.TTL()))
}

// Run executes the loop for one question and returns the finished session.
// The only error is a model backend failure.
func (a *Agent) Run(ctx context.Context, question string) (*Session, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent", a.config.Name)),
	)
	defer span.End()

	start := time.Now()
	s := newSession(a.config.SystemPrompt, question)
	defs := a.registry.Definitions()
	ceiling := a.config.Ceiling()

	state := StateAwaitModel
	for state != StateDone {
		switch state {
		case StateAwaitModel:
			if s.Iterations >= ceiling {
				a.summarize(ctx, s)
				state = StateDone
				continue
			}

			resp, err := a.invoke(ctx, s, defs)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return s, err
			}

			s.append(llm.ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
			a.logger.Info("model step",
				slog.Int("iteration", s.Iterations),
				slog.Int("tool_calls", len(resp.ToolCalls)),
			)
			if len(resp.ToolCalls) > 0 {
				state = StateDispatchTools
			} else {
				state = StateDone
			}

		case StateDispatchTools:
			a.dispatch(ctx, s)
			s.Iterations++
			state = StateAwaitModel
		}
	}

	s.Terminated = true
	roundsHistogram.Observe(float64(s.Iterations))
	span.SetAttributes(
		attribute.Int("iterations", s.Iterations),
		attribute.Bool("forced", s.Forced),
	)
	a.logger.Info("loop done",
		slog.Int("iterations", s.Iterations),
		slog.Bool("forced", s.Forced),
		slog.Int("model_calls", s.ModelCalls),
		slog.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

// invoke asks the model for the next step with tools offered.
func (a *Agent) invoke(ctx context.Context, s *Session, defs []llm.ToolDefinition) (llm.LLMResponse, error) {
	s.ModelCalls++
	resp, err := a.provider.ChatWithTools(ctx, s.Transcript, defs)
	if err != nil {
		return llm.LLMResponse{}, modelError(err)
	}
	s.addUsage(resp.Usage)
	return resp, nil
}

// summarize runs the forced tool-free pass at the ceiling. On failure the
// session keeps whatever text the model produced earlier.
func (a *Agent) summarize(ctx context.Context, s *Session) {
	s.Forced = true
	forcedTotal.Inc()
	a.logger.Warn("iteration ceiling reached, forcing summary",
		slog.Int("iterations", s.Iterations),
	)

	s.append(llm.UserMessage(a.config.SummaryDirective))
	s.ModelCalls++
	resp, err := a.provider.Chat(ctx, s.Transcript)
	if err != nil {
		a.logger.Warn("summary pass failed, using last text", slog.String("error", err.Error()))
		return
	}
	s.addUsage(resp.Usage)
	if strings.TrimSpace(resp.Content) == "" {
		a.logger.Warn("summary pass returned no text, using last text")
		return
	}
	s.append(llm.AssistantMessage(resp.Content))
}

// dispatch runs the tool calls of the latest turn and appends the results
// in request order.
func (a *Agent) dispatch(ctx context.Context, s *Session) {
	results := a.registry.Dispatch(ctx, s.last().ToolCalls)
	for _, r := range results {
		s.append(llm.ToolMessage(r.CallID, r.Name, r.Content))
		a.track(s, r)
	}
}

// track updates retrieval bookkeeping for partition-bound tools.
func (a *Agent) track(s *Session, r tools.CallResult) {
	tool, ok := a.registry.Get(r.Name)
	if !ok {
		return
	}
	p, ok := tool.(tools.Partitioned)
	if !ok {
		return
	}

	s.RetrievalAttempts++
	if !r.Failed() {
		s.Theory = p.Theory().Ptr()
		return
	}
	if model.KindOf(r.Err).Retryable() {
		s.RetrievalFailures++
	}
}

// modelError makes sure a model failure carries a backend or timeout kind.
func modelError(err error) error {
	if errors.Is(err, model.ErrBackendUnavailable) || errors.Is(err, model.ErrTimeout) {
		return fmt.Errorf("model invocation: %w", err)
	}
	if model.KindOf(err) == model.KindTimeout {
		return fmt.Errorf("model invocation: %w: %w", model.ErrTimeout, err)
	}
	return fmt.Errorf("model invocation: %w: %w", model.ErrBackendUnavailable, err)
}

func withNotice(answer, notice string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return notice
	}
	return answer + "\n\n" + notice
}
