package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/richinex/controlqa/model"
)

const tracerName = "controlqa.retrieval"

// ChunkLookup resolves chunk text by id. A missing chunk yields "".
type ChunkLookup interface {
	Lookup(ctx context.Context, chunkID string) (string, error)
}

// Retriever embeds a query, searches a collection and resolves chunk text.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	chunks   ChunkLookup
	logger   *slog.Logger
}

// NewRetriever creates a retriever. A nil logger means slog.Default().
func NewRetriever(embedder Embedder, searcher Searcher, chunks ChunkLookup, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		chunks:   chunks,
		logger:   logger,
	}
}

// Retrieve returns at most k chunks ordered by descending score. No matches
// is an empty slice; any backend failure is an error.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string, k int) ([]model.RetrievedChunk, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "retrieval.search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("k", k),
		),
	)
	defer span.End()

	chunks, err := r.retrieve(ctx, collection, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("search failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("found", len(chunks)))
	return chunks, nil
}

func (r *Retriever) retrieve(ctx context.Context, collection, query string, k int) ([]model.RetrievedChunk, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	r.logger.Info("search",
		slog.String("collection", collection),
		slog.String("query", query),
		slog.Int("k", k),
	)

	hits, err := r.searcher.Search(ctx, collection, vector, k)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		text, err := r.chunks.Lookup(ctx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup chunk %s: %w", hit.ID, err)
		}
		chunks = append(chunks, model.RetrievedChunk{
			ChunkID:   hit.ID,
			Text:      text,
			Score:     hit.Score,
			BookID:    hit.Payload.BookID,
			Theory:    model.Theory(hit.Payload.Theory),
			PageStart: hit.Payload.PageStart,
			PageEnd:   hit.Payload.PageEnd,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if k > 0 && len(chunks) > k {
		chunks = chunks[:k]
	}

	r.logger.Info("search done",
		slog.String("collection", collection),
		slog.Int("found", len(chunks)),
	)
	return chunks, nil
}
