// Command execution for CLI commands.
//
// Information Hiding:
// - Provider, retrieval, cache and agent wiring hidden
// - Logger setup hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/richinex/controlqa/agent"
	"github.com/richinex/controlqa/cache"
	"github.com/richinex/controlqa/config"
	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
	"github.com/richinex/controlqa/retrieval"
	"github.com/richinex/controlqa/server"
	"github.com/richinex/controlqa/storage"
	"github.com/richinex/controlqa/tools"
)

// Options holds CLI execution options.
type Options struct {
	Verbose   bool
	LogFormat string // "text" or "json"
	JSON      bool   // print answers as JSON
	Out       io.Writer

	// Provider replaces the configured model provider when set.
	Provider llm.Provider
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		LogFormat: "text",
		Out:       os.Stdout,
	}
}

// NewLogger builds the process logger. Verbose selects debug level.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Runtime is the wired application: one agent with its tools, stores and
// provider. Close releases the stores.
type Runtime struct {
	Settings config.Settings
	Logger   *slog.Logger
	Agent    *agent.Agent

	out    io.Writer
	asJSON bool
	chunks *storage.SqliteChunkStore
	store  cache.Store
}

// NewRuntime wires every component from settings.
func NewRuntime(settings config.Settings, opts Options) (*Runtime, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	logger := NewLogger(os.Stderr, opts.LogFormat, opts.Verbose)

	provider := opts.Provider
	if provider == nil {
		p, err := createProvider(settings)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	provider = llm.Instrument(provider, seconds(settings.LLM.TimeoutSecs))

	chunks, err := storage.OpenSqlite(settings.Retrieval.ChunksDB, settings.Retrieval.ChunksDir)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	rt := &Runtime{
		Settings: settings,
		Logger:   logger,
		out:      opts.Out,
		asJSON:   opts.JSON,
		chunks:   chunks,
	}

	retriever := retrieval.NewRetriever(
		retrieval.NewOllamaEmbedder(settings.LLM.BaseURL, settings.LLM.EmbedModel),
		retrieval.NewQdrantSearcher(settings.Retrieval.QdrantURL, settings.Retrieval.QdrantAPIKey,
			seconds(settings.Retrieval.QdrantTimeoutSecs)),
		chunks,
		logger,
	)

	registry := tools.NewRegistry().
		WithExecutor(tools.NewExecutor(tools.ToolConfig{
			TimeoutSecs: uint64(settings.Retrieval.QdrantTimeoutSecs),
			MaxRetries:  settings.Agent.ToolRetries,
		})).
		WithLogger(logger)

	translator := tools.NewLLMTranslator(provider, seconds(settings.Agent.TranslateTimeoutSecs), logger)
	agentConfig := agent.NewBuilder("controlqa").
		Tools(tools.NewSearchTools(collections(settings), retriever, settings.Agent.TopK)).
		Tool(tools.NewTranslateTool(translator)).
		MaxIterations(settings.Agent.MaxIterations).
		Build()

	agentOpts := []agent.Option{agent.WithRegistry(registry), agent.WithLogger(logger)}

	// The cache is best-effort: without it every question runs the loop.
	store, err := cache.OpenBadger(settings.Cache.Dir)
	if err != nil {
		logger.Warn("answer cache unavailable, continuing without it",
			slog.String("dir", settings.Cache.Dir),
			slog.String("error", err.Error()),
		)
	} else {
		rt.store = store
		ttl := time.Duration(settings.Cache.TTLHours) * time.Hour
		agentOpts = append(agentOpts, agent.WithCache(cache.NewResultCache(store, ttl)))
	}

	rt.Agent = agent.New(agentConfig, provider, agentOpts...)

	logger.Debug("runtime ready",
		slog.String("provider", provider.Name()),
		slog.String("model", provider.Model()),
		slog.Int("tools", len(agentConfig.Tools)),
		slog.Bool("cache", rt.store != nil),
	)
	return rt, nil
}

// Close releases the chunk store and the cache.
func (r *Runtime) Close() error {
	var firstErr error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := r.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Ask answers one question and prints the result.
func (r *Runtime) Ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("question must not be blank")
	}

	out, err := r.Agent.Ask(ctx, question)
	if err != nil {
		return err
	}
	if out.IsDegraded() {
		r.Logger.Warn("degraded answer", slog.String("reason", out.Reason.Error()))
	}

	if r.asJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Value)
	}
	printResult(r.out, out.Value)
	return nil
}

// Serve runs the HTTP API until ctx is cancelled.
func (r *Runtime) Serve(ctx context.Context) error {
	return server.New(r.Agent, r.Logger).Run(ctx, r.Settings.Server.Addr)
}

// ListTools prints the tools the agent offers the model. Verbose prints the
// full catalogue with parameters, as the model sees it.
func ListTools(w io.Writer, settings config.Settings, verbose bool) {
	registry := tools.NewRegistry()

	// Metadata only: no backend is contacted while listing.
	search := tools.NewSearchTools(collections(settings), nil, settings.Agent.TopK)
	for _, tool := range search {
		_ = registry.Register(tool)
	}
	_ = registry.Register(tools.NewTranslateTool(nil))

	if verbose {
		fmt.Fprintln(w, registry.Description())
		return
	}

	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)
	for _, meta := range registry.List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)
	}

	fmt.Fprintln(w, "\nCollections:")
	for _, tool := range search {
		if st, ok := tool.(*tools.SearchTool); ok {
			fmt.Fprintf(w, "  %-10s %s\n", st.Theory(), st.Collection())
		}
	}
}

// AddChunks registers already-chunked text files in the chunk store.
func AddChunks(ctx context.Context, w io.Writer, settings config.Settings, paths []string) error {
	store, err := storage.OpenSqlite(settings.Retrieval.ChunksDB, settings.Retrieval.ChunksDir)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer store.Close()

	for _, path := range paths {
		rec, err := storage.RecordFromFile(path)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, rec); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s  %s  %s/%s\n", rec.ChunkID, path, rec.Theory, rec.BookID)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d added, %d chunks registered\n", len(paths), total)
	return nil
}

// RemoveChunks deletes chunk records by id. Vectors in Qdrant are left as
// they are, so a later hit on a removed id comes back with empty text.
func RemoveChunks(ctx context.Context, w io.Writer, settings config.Settings, ids []string) error {
	store, err := storage.OpenSqlite(settings.Retrieval.ChunksDB, settings.Retrieval.ChunksDir)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer store.Close()

	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Fprintf(w, "removed %s\n", id)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d chunks registered\n", total)
	return nil
}

// Helper functions

func createProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		BaseURL(settings.LLM.BaseURL).
		APIKey(apiKey)
}

func collections(settings config.Settings) tools.Collections {
	return tools.Collections{
		Linear:    settings.Retrieval.CollectionLinear,
		Discrete:  settings.Retrieval.CollectionDiscrete,
		Nonlinear: settings.Retrieval.CollectionNonlinear,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

const maxChunkIDLen = 60

func printResult(w io.Writer, res model.Result) {
	fmt.Fprintf(w, "%s\n", res.Answer)

	if res.Theory != nil {
		fmt.Fprintf(w, "\nTheory: %s\n", *res.Theory)
	}
	if len(res.Citations) == 0 {
		return
	}

	fmt.Fprintln(w, "\n--- Citations ---")
	for i, c := range res.Citations {
		fmt.Fprintf(w, "[%d] %s pp. %d-%d (score %.3f) %s\n",
			i+1, c.BookID, c.Pages[0], c.Pages[1], c.Score, truncateString(c.ChunkID, maxChunkIDLen))
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
