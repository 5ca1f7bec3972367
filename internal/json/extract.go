// Package json extracts JSON payloads from model and tool output.
//
// Tool payloads reach the transcript as text and models sometimes wrap
// them in prose or markdown fences. This package recovers the JSON value.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape selects which JSON value to look for.
type Shape int

const (
	// Any accepts an object or an array.
	Any Shape = iota
	// Object accepts only a JSON object.
	Object
	// Array accepts only a JSON array.
	Array
)

func (s Shape) delimiters() [][2]string {
	switch s {
	case Object:
		return [][2]string{{"{", "}"}}
	case Array:
		return [][2]string{{"[", "]"}}
	default:
		return [][2]string{{"[", "]"}, {"{", "}"}}
	}
}

func (s Shape) accepts(raw string) bool {
	first := strings.TrimSpace(raw)
	if first == "" {
		return false
	}
	switch s {
	case Object:
		return first[0] == '{'
	case Array:
		return first[0] == '['
	default:
		return first[0] == '{' || first[0] == '['
	}
}

// extract finds the JSON portion of text. It handles:
// 1. Pure JSON - returns the trimmed text
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON embedded in prose - first opening to last closing delimiter
//
// Limitations:
// - Uses outermost delimiter matching, not a full scan
// - Fails if prose after the value contains a closing delimiter
func extract(text string, shape Shape) (string, error) {
	text = stripMarkdownCodeBlocks(text)

	if shape.accepts(text) && json.Valid([]byte(text)) {
		return text, nil
	}

	for _, d := range shape.delimiters() {
		start := strings.Index(text, d[0])
		end := strings.LastIndex(text, d[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from text: %q", preview)
}

// stripMarkdownCodeBlocks removes markdown code block markers.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeBlocks(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// Extract returns the raw JSON value of the requested shape found in text.
func Extract(text string, shape Shape) (string, error) {
	return extract(text, shape)
}

// Decode extracts a JSON value of the requested shape and unmarshals it.
func Decode[T any](text string, shape Shape) (T, error) {
	var result T
	raw, err := extract(text, shape)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// DecodeStrict unmarshals text that is itself a JSON value of the requested
// shape. Markdown fences are stripped; prose around the value is rejected.
func DecodeStrict[T any](text string, shape Shape) (T, error) {
	var result T
	raw := stripMarkdownCodeBlocks(text)
	if !shape.accepts(raw) {
		return result, fmt.Errorf("text is not a bare JSON value of the requested shape")
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
