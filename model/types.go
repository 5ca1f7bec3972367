// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
)

// Theory is the knowledge partition a chunk or session belongs to.
type Theory string

const (
	TheoryLinear    Theory = "linear"
	TheoryDiscrete  Theory = "discrete"
	TheoryNonlinear Theory = "nonlinear"
)

// ParseTheory parses a partition label (case-insensitive).
func ParseTheory(s string) (Theory, error) {
	switch Theory(strings.ToLower(strings.TrimSpace(s))) {
	case TheoryLinear:
		return TheoryLinear, nil
	case TheoryDiscrete:
		return TheoryDiscrete, nil
	case TheoryNonlinear:
		return TheoryNonlinear, nil
	default:
		return "", fmt.Errorf("unknown theory: %q", s)
	}
}

// Ptr returns a pointer to a copy of t.
func (t Theory) Ptr() *Theory {
	return &t
}

// RetrievedChunk is one search hit returned by a retrieval tool.
// Score is a similarity: higher means more relevant.
type RetrievedChunk struct {
	ChunkID   string  `json:"chunk_id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	BookID    string  `json:"book_id"`
	Theory    Theory  `json:"theory_tag"`
	PageStart int     `json:"page_start"`
	PageEnd   int     `json:"page_end"`
}

// Citation is a normalized reference derived from a RetrievedChunk.
type Citation struct {
	ChunkID string  `json:"chunk_id"`
	BookID  string  `json:"book_id"`
	Theory  Theory  `json:"theory_tag"`
	Pages   [2]int  `json:"pages"`
	Score   float64 `json:"score"`
}

// CitationFrom projects a chunk onto a citation.
func CitationFrom(c RetrievedChunk) Citation {
	return Citation{
		ChunkID: c.ChunkID,
		BookID:  c.BookID,
		Theory:  c.Theory,
		Pages:   [2]int{c.PageStart, c.PageEnd},
		Score:   c.Score,
	}
}

// Result is the externally visible answer to a question.
type Result struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Theory    *Theory    `json:"theory"`
}

// Normalize replaces a nil citation slice with an empty one so the
// encoded form is always a JSON array.
func (r Result) Normalize() Result {
	if r.Citations == nil {
		r.Citations = []Citation{}
	}
	return r
}
