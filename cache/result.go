package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/controlqa/model"
)

// DefaultTTL is how long an answer stays cached.
const DefaultTTL = 24 * time.Hour

// keyPrefix namespaces answer entries.
const keyPrefix = "llm_cache:"

// Key derives the cache key of a question: the prefix plus the hex SHA-1 of
// the question bytes.
func Key(question string) string {
	sum := sha1.Sum([]byte(question))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// ResultCache stores assembled answers keyed by question.
type ResultCache struct {
	store Store
	ttl   time.Duration
}

// NewResultCache creates a result cache over store. A non-positive ttl means
// DefaultTTL.
func NewResultCache(store Store, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{store: store, ttl: ttl}
}

// TTL returns the entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Load returns the cached result. A miss is Ok(nil); a backend or decode
// error is Degraded(nil, err) and callers treat it as a miss.
func (c *ResultCache) Load(ctx context.Context, question string) model.Outcome[*model.Result] {
	raw, ok, err := c.store.Get(ctx, Key(question))
	if err != nil {
		return model.Degrade[*model.Result](nil, fmt.Errorf("cache load: %w: %w", model.ErrBackendUnavailable, err))
	}
	if !ok {
		return model.Ok[*model.Result](nil)
	}

	var res model.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return model.Degrade[*model.Result](nil, fmt.Errorf("cache load: %w: %w", model.ErrSerialization, err))
	}
	res = res.Normalize()
	return model.Ok(&res)
}

// Save writes result under the question's key with the cache TTL.
func (c *ResultCache) Save(ctx context.Context, question string, result model.Result) error {
	raw, err := json.Marshal(result.Normalize())
	if err != nil {
		return fmt.Errorf("cache save: %w: %w", model.ErrSerialization, err)
	}
	if err := c.store.Set(ctx, Key(question), raw, c.ttl); err != nil {
		return fmt.Errorf("cache save: %w: %w", model.ErrBackendUnavailable, err)
	}
	return nil
}
