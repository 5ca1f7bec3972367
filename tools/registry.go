// Package tools provides tool management, registration and dispatch.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Concurrent dispatch and result ordering hidden
// - Unknown tools and failures converted to error markers

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

const toolsTracerName = "controlqa.tools"

// DefaultToolTimeout is the per-call timeout in seconds. Retrieval against a
// cold vector index can take minutes.
const DefaultToolTimeout = 600

// maxDispatchConcurrency caps goroutines per dispatch batch.
const maxDispatchConcurrency = 8

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlqa",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total tool calls by tool and outcome kind.",
		},
		[]string{"tool", "outcome"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "controlqa",
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "Duration of tool calls in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"tool"},
	)
)

// Registry manages available tools with dynamic registration.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	executor *Executor
	logger   *slog.Logger
}

// NewRegistry creates a new empty tool registry using the default executor.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		executor: NewDefaultExecutor(),
		logger:   slog.Default(),
	}
}

// WithExecutor sets the executor used by Dispatch.
func (r *Registry) WithExecutor(e *Executor) *Registry {
	r.executor = e
	return r
}

// WithLogger sets the logger used by Dispatch.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(names))
	for _, name := range names {
		metadata = append(metadata, r.tools[name].Metadata())
	}
	return metadata
}

// Description returns a formatted description of all tools for LLM prompts.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}

		paramStr := strings.Join(params, "\n")
		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, paramStr))
	}

	return strings.Join(descriptions, "\n\n")
}

// Definitions returns the tool definitions offered to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	metas := r.List()
	defs := make([]llm.ToolDefinition, len(metas))
	for i, meta := range metas {
		defs[i] = llm.ToolDefinition{
			Name:        meta.Name,
			Description: meta.Description,
			Parameters:  meta.Schema(),
		}
	}
	return defs
}

// CallResult is the outcome of one dispatched tool call. Content is what the
// model sees: the tool output, or an error marker when Err is set.
type CallResult struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

// Failed reports whether the call produced an error marker.
func (c CallResult) Failed() bool {
	return c.Err != nil
}

// Dispatch runs all calls concurrently and returns one CallResult per call,
// in request order. It never fails: unknown tools and tool failures become
// error markers so the loop can feed them back to the model.
func (r *Registry) Dispatch(ctx context.Context, calls []llm.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))

	var g errgroup.Group
	g.SetLimit(maxDispatchConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.dispatchOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	return results
}

func (r *Registry) dispatchOne(ctx context.Context, call llm.ToolCall) CallResult {
	result := CallResult{CallID: call.ID, Name: call.Name}

	tool, ok := r.Get(call.Name)
	if !ok {
		result.Err = fmt.Errorf("%w: %q", model.ErrUnknownTool, call.Name)
		result.Content = Marker(model.KindUnknownTool, call.Name, "tool is not registered")
		toolCallsTotal.WithLabelValues("unknown", model.KindUnknownTool.String()).Inc()
		r.logger.Warn("unknown tool requested", slog.String("tool", call.Name), slog.String("call_id", call.ID))
		return result
	}

	ctx, span := otel.Tracer(toolsTracerName).Start(ctx, "tools.dispatch",
		trace.WithAttributes(
			attribute.String("tool", call.Name),
			attribute.String("call_id", call.ID),
		),
	)
	defer span.End()

	r.logger.Debug("tool dispatch", slog.String("tool", call.Name), slog.String("call_id", call.ID))

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	start := time.Now()
	out, err := r.run(ctx, tool, args)
	toolCallDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := model.KindOf(err)
		result.Err = err
		result.Content = Marker(kind, call.Name, err.Error())
		toolCallsTotal.WithLabelValues(call.Name, kind.String()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("tool failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Content = out
	toolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
	return result
}

// run validates and executes a tool, folding every failure shape into err.
func (r *Registry) run(ctx context.Context, tool Tool, args json.RawMessage) (string, error) {
	if err := tool.Validate(args); err != nil {
		return "", fmt.Errorf("%w: validation failed: %w", model.ErrToolExecution, err)
	}

	res, err := r.executor.Execute(ctx, tool, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", model.ErrTimeout, err)
		}
		return "", err
	}
	if !res.Success() {
		return "", res.Error
	}
	return res.Output, nil
}
