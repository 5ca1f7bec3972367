// Knowledge-base search tools.
//
// Information Hiding:
// - Embedding, vector search and chunk text lookup hidden behind Retriever
// - Result encoding hidden (the model sees a JSON array of chunks)

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/controlqa/model"
)

// DefaultTopK is the number of chunks returned per search.
const DefaultTopK = 5

// Retriever finds the k most relevant chunks for a query in a collection.
// An empty slice means no matches; an error means the backend failed.
type Retriever interface {
	Retrieve(ctx context.Context, collection, query string, k int) ([]model.RetrievedChunk, error)
}

// SearchTool searches one knowledge partition.
type SearchTool struct {
	BaseTool
	name        string
	description string
	theory      model.Theory
	collection  string
	retriever   Retriever
	k           int
}

// NewSearchTool creates a search tool bound to one collection.
func NewSearchTool(name, description string, theory model.Theory, collection string, retriever Retriever, k int) *SearchTool {
	if k <= 0 {
		k = DefaultTopK
	}
	return &SearchTool{
		name:        name,
		description: description,
		theory:      theory,
		collection:  collection,
		retriever:   retriever,
		k:           k,
	}
}

// Collections names the vector collection behind each partition.
type Collections struct {
	Linear    string
	Discrete  string
	Nonlinear string
}

// DefaultCollections returns the stock collection names.
func DefaultCollections() Collections {
	return Collections{
		Linear:    "cls_ogata",
		Discrete:  "ds_ogata",
		Nonlinear: "nl_khalil",
	}
}

// NewSearchTools creates the three partition search tools.
func NewSearchTools(c Collections, retriever Retriever, k int) []Tool {
	return []Tool{
		NewSearchTool("search_cls_ogata",
			"Search Ogata, Modern Control Engineering: classical linear continuous-time control systems.",
			model.TheoryLinear, c.Linear, retriever, k),
		NewSearchTool("search_ds_ogata",
			"Search Ogata, Discrete-Time Control Systems: sampled-data and discrete-time control.",
			model.TheoryDiscrete, c.Discrete, retriever, k),
		NewSearchTool("search_nl_khalil",
			"Search Khalil, Nonlinear Systems: nonlinear control and stability theory.",
			model.TheoryNonlinear, c.Nonlinear, retriever, k),
	}
}

// Metadata returns the tool metadata.
func (t *SearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "Search query in English", Required: true},
		},
	}
}

// Theory returns the partition this tool searches.
func (t *SearchTool) Theory() model.Theory {
	return t.theory
}

// Collection returns the vector collection name.
func (t *SearchTool) Collection() string {
	return t.collection
}

type searchArgs struct {
	Query string `json:"query"`
}

// Validate validates the arguments.
func (t *SearchTool) Validate(args json.RawMessage) error {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute runs the search and returns the chunks as a JSON array ordered by
// descending score.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("%w: invalid arguments: %w", model.ErrToolExecution, err)), nil
	}

	chunks, err := t.retriever.Retrieve(ctx, t.collection, a.Query, t.k)
	if err != nil {
		return FailureResult(fmt.Errorf("search %s: %w", t.collection, err)), nil
	}
	if chunks == nil {
		chunks = []model.RetrievedChunk{}
	}
	if len(chunks) > t.k {
		chunks = chunks[:t.k]
	}

	data, err := json.Marshal(chunks)
	if err != nil {
		return FailureResult(fmt.Errorf("%w: encode chunks: %w", model.ErrSerialization, err)), nil
	}
	return SuccessResult(string(data)), nil
}

var (
	_ Tool        = (*SearchTool)(nil)
	_ Partitioned = (*SearchTool)(nil)
)
