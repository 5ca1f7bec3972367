// Package storage provides chunk text storage for retrieval.
//
// Vector search returns chunk ids with page metadata; the chunk text lives
// here, either inline or in a text file referenced by path.
//
// Information Hiding:
// - Persistence backend hidden behind ChunkStore
// - Inline text vs. file-backed text resolution hidden
// - Chunk id derivation and source detection encapsulated
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/richinex/controlqa/model"
)

// ChunkRecord describes one stored chunk. Either Text or Path is set.
type ChunkRecord struct {
	ChunkID   string
	Path      string
	Text      string
	BookID    string
	Theory    model.Theory
	PageStart int
	PageEnd   int
}

// ChunkStore persists chunk records and resolves chunk text by id.
type ChunkStore interface {
	// Put inserts or replaces a chunk record.
	Put(ctx context.Context, rec ChunkRecord) error

	// Lookup returns the text of a chunk. A missing id or a missing file
	// yields "" with no error; errors are reserved for backend failures.
	Lookup(ctx context.Context, chunkID string) (string, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	Close() error
}

// ChunkID derives the deterministic id of a chunk from its text.
func ChunkID(text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(text)).String()
}

// DetectSource maps a source file name such as "NL-Khalil-11-40.pdf" to its
// knowledge partition and book id.
func DetectSource(fileName string) (model.Theory, string) {
	name := filepath.Base(fileName)
	prefix := strings.ToUpper(strings.SplitN(name, "-", 2)[0])

	switch {
	case strings.HasPrefix(prefix, "NL"):
		return model.TheoryNonlinear, "nl_khalil"
	case strings.HasPrefix(prefix, "DC"), strings.HasPrefix(prefix, "DС"): // Latin or Cyrillic С
		return model.TheoryDiscrete, "ds_ogata"
	default:
		return model.TheoryLinear, "cls_ogata"
	}
}

// RecordFromFile builds a record for an already-chunked text file. The id is
// derived from the file content, and the partition from the file name.
func RecordFromFile(path string) (ChunkRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("read chunk file: %w", err)
	}
	theory, book := DetectSource(path)
	return ChunkRecord{
		ChunkID: ChunkID(string(data)),
		Path:    path,
		BookID:  book,
		Theory:  theory,
	}, nil
}

// resolveText returns the record's inline text or reads its file, relative
// paths resolved against baseDir.
func resolveText(rec ChunkRecord, baseDir string) (string, error) {
	if rec.Text != "" || rec.Path == "" {
		return rec.Text, nil
	}

	path := rec.Path
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read chunk %s: %w", rec.ChunkID, err)
	}
	return string(data), nil
}
