package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestCitationFromKeepsPages(t *testing.T) {
	chunk := RetrievedChunk{
		ChunkID:   "c1",
		BookID:    "cls_ogata",
		Theory:    TheoryLinear,
		PageStart: 40,
		PageEnd:   41,
		Score:     0.87,
	}

	c := CitationFrom(chunk)
	if c.Pages != [2]int{40, 41} {
		t.Errorf("expected pages [40 41], got %v", c.Pages)
	}
	if c.ChunkID != "c1" || c.BookID != "cls_ogata" || c.Theory != TheoryLinear || c.Score != 0.87 {
		t.Errorf("unexpected projection: %+v", c)
	}
}

func TestResultNormalizeEncodesEmptyArray(t *testing.T) {
	data, err := json.Marshal(Result{Answer: "x"}.Normalize())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"answer":"x","citations":[],"theory":null}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestParseTheory(t *testing.T) {
	tests := []struct {
		in      string
		want    Theory
		wantErr bool
	}{
		{"linear", TheoryLinear, false},
		{" Discrete ", TheoryDiscrete, false},
		{"NONLINEAR", TheoryNonlinear, false},
		{"fuzzy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTheory(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTheory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTheory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"unknown tool", fmt.Errorf("dispatch: %w", ErrUnknownTool), KindUnknownTool},
		{"backend", fmt.Errorf("qdrant: %w", ErrBackendUnavailable), KindBackendUnavailable},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), KindTimeout},
		{"timeout sentinel", ErrTimeout, KindTimeout},
		{"caller cancelled", fmt.Errorf("model call: %w", context.Canceled), KindCanceled},
		{"serialization", fmt.Errorf("decode: %w", ErrSerialization), KindSerialization},
		{"other", errors.New("boom"), KindToolExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	ok := Ok("value")
	if ok.IsDegraded() {
		t.Error("Ok outcome reported degraded")
	}

	d := Degrade("fallback", ErrTimeout)
	if !d.IsDegraded() {
		t.Error("Degrade outcome not reported degraded")
	}
	if d.Value != "fallback" {
		t.Errorf("expected fallback value, got %q", d.Value)
	}
}
