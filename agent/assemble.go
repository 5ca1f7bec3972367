// Result assembly.
//
// Information Hiding:
// - Answer selection over the transcript hidden
// - Lenient parsing of tool payloads hidden
// - Record-to-citation projection hidden

package agent

import (
	"encoding/json"
	"strconv"
	"strings"

	jsonutil "github.com/richinex/controlqa/internal/json"
	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

// Assemble builds the externally visible result of a finished session.
func Assemble(s *Session) model.Result {
	return model.Result{
		Answer:    answerText(s.Transcript),
		Citations: citations(s.Transcript),
		Theory:    s.Theory,
	}.Normalize()
}

// answerText returns the most recent plain assistant text. When the loop
// was forced to stop without one, the last non-empty assistant text is used.
func answerText(transcript []llm.ChatMessage) string {
	fallback := ""
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		if m.Role != "assistant" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if !m.HasToolCalls() {
			return m.Content
		}
		if fallback == "" {
			fallback = m.Content
		}
	}
	return fallback
}

// citations projects the newest tool payload that is a list of records.
// Older batches are never merged in.
func citations(transcript []llm.ChatMessage) []model.Citation {
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		if m.Role != "tool" {
			continue
		}
		records, ok := parseRecords(m.Content)
		if !ok {
			continue
		}
		out := make([]model.Citation, 0, len(records))
		for _, r := range records {
			out = append(out, model.CitationFrom(chunkFrom(r)))
		}
		return out
	}
	return []model.Citation{}
}

// parseRecords decodes a payload that is itself a list of objects. Anything
// else, including error markers and text that merely contains brackets, is
// opaque.
func parseRecords(content string) ([]map[string]json.RawMessage, bool) {
	records, err := jsonutil.DecodeStrict[[]map[string]json.RawMessage](content, jsonutil.Array)
	if err != nil {
		return nil, false
	}
	for _, r := range records {
		if r == nil {
			return nil, false
		}
	}
	return records, true
}

// chunkFrom reads a record leniently: numbers may arrive as strings, the
// partition as theory_tag or theory, and pages as start/end or a pair.
func chunkFrom(r map[string]json.RawMessage) model.RetrievedChunk {
	theory := stringField(r, "theory_tag")
	if theory == "" {
		theory = stringField(r, "theory")
	}

	c := model.RetrievedChunk{
		ChunkID:   stringField(r, "chunk_id"),
		Text:      stringField(r, "text"),
		Score:     floatField(r, "score"),
		BookID:    stringField(r, "book_id"),
		Theory:    model.Theory(theory),
		PageStart: intField(r, "page_start"),
		PageEnd:   intField(r, "page_end"),
	}

	if _, ok := r["page_start"]; !ok {
		var pages []int
		if raw, ok := r["pages"]; ok && json.Unmarshal(raw, &pages) == nil && len(pages) == 2 {
			c.PageStart, c.PageEnd = pages[0], pages[1]
		}
	}
	return c
}

// stringField reads a string, rendering numbers as text.
func stringField(r map[string]json.RawMessage, key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func floatField(r map[string]json.RawMessage, key string) float64 {
	raw, ok := r[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	f, _ = strconv.ParseFloat(stringField(r, key), 64)
	return f
}

func intField(r map[string]json.RawMessage, key string) int {
	return int(floatField(r, key))
}
