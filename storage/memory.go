package storage

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryChunkStore implements ChunkStore using an in-memory map.
// Data is lost when process terminates.
type InMemoryChunkStore struct {
	mu      sync.RWMutex
	chunks  map[string]ChunkRecord
	baseDir string
}

// NewInMemoryChunkStore creates a new in-memory chunk store.
func NewInMemoryChunkStore(baseDir string) *InMemoryChunkStore {
	return &InMemoryChunkStore{
		chunks:  make(map[string]ChunkRecord),
		baseDir: baseDir,
	}
}

// Put inserts or replaces a chunk record.
func (s *InMemoryChunkStore) Put(ctx context.Context, rec ChunkRecord) error {
	if rec.ChunkID == "" {
		return fmt.Errorf("chunk id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks[rec.ChunkID] = rec
	return nil
}

// Lookup returns the text of a chunk, or "" when the id or file is missing.
func (s *InMemoryChunkStore) Lookup(ctx context.Context, chunkID string) (string, error) {
	s.mu.RLock()
	rec, ok := s.chunks[chunkID]
	s.mu.RUnlock()

	if !ok {
		return "", nil
	}
	return resolveText(rec, s.baseDir)
}

// Count returns the number of stored chunks.
func (s *InMemoryChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.chunks), nil
}

// Close is a no-op.
func (s *InMemoryChunkStore) Close() error {
	return nil
}

var _ ChunkStore = (*InMemoryChunkStore)(nil)
