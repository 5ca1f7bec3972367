package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/controlqa/model"
)

// DefaultQdrantTimeout bounds one search request.
const DefaultQdrantTimeout = 600 * time.Second

// Hit is one scored point returned by a vector search.
type Hit struct {
	ID      string
	Score   float64
	Payload HitPayload
}

// HitPayload is the metadata stored with each point.
type HitPayload struct {
	BookID    string `json:"book_id"`
	Theory    string `json:"theory"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

// Searcher runs a nearest-neighbour search in one collection.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)
}

// QdrantSearcher talks to the Qdrant REST API.
type QdrantSearcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantSearcher creates a searcher for the Qdrant instance at baseURL.
func NewQdrantSearcher(baseURL, apiKey string, timeout time.Duration) *QdrantSearcher {
	if timeout <= 0 {
		timeout = DefaultQdrantTimeout
	}
	return &QdrantSearcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload HitPayload      `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status any           `json:"status"`
}

// Search returns up to limit hits in the order Qdrant ranks them.
func (q *QdrantSearcher) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	body, err := json.Marshal(qdrantSearchRequest{Vector: vector, Limit: limit, WithPayload: true})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: %w", model.ErrSerialization, err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points/search", q.baseURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: %w", model.ErrToolExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, classify("qdrant", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("qdrant: %w", statusError(resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var decoded qdrantSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, classifyDecode(err)
	}

	hits := make([]Hit, 0, len(decoded.Result))
	for _, p := range decoded.Result {
		hits = append(hits, Hit{ID: pointID(p.ID), Score: p.Score, Payload: p.Payload})
	}
	return hits, nil
}

// statusError maps a non-2xx status to the error taxonomy.
func statusError(status int, detail string) error {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", model.ErrTimeout, status, detail)
	case status >= 500 || status == http.StatusNotFound || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", model.ErrBackendUnavailable, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", model.ErrToolExecution, status, detail)
	}
}

// classifyDecode separates a body cut off by a deadline from a malformed one.
func classifyDecode(err error) error {
	if k := model.KindOf(err); k == model.KindTimeout {
		return fmt.Errorf("qdrant: %w: %w", model.ErrTimeout, err)
	}
	return fmt.Errorf("qdrant: %w: decode response: %w", model.ErrSerialization, err)
}

// pointID renders a Qdrant point id, which is either a UUID string or an
// unsigned integer.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return strings.TrimSpace(string(raw))
}

var _ Searcher = (*QdrantSearcher)(nil)
