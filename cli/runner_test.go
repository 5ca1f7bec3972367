package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/controlqa/config"
	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

// answerProvider answers every question directly without tools.
type answerProvider struct {
	answer string
	calls  int
}

func (p *answerProvider) Name() string  { return "fake" }
func (p *answerProvider) Model() string { return "fake-1" }

func (p *answerProvider) Chat(context.Context, []llm.ChatMessage) (llm.LLMResponse, error) {
	p.calls++
	return llm.LLMResponse{Content: p.answer}, nil
}

func (p *answerProvider) ChatWithTools(ctx context.Context, m []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.Chat(ctx, m)
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Defaults()
	s.LLM.Model = "fake-1"
	s.Retrieval.ChunksDB = filepath.Join(t.TempDir(), "chunks.db")
	s.Retrieval.ChunksDir = t.TempDir()
	s.Cache.Dir = ""
	return s
}

func TestRuntimeAskUsesCache(t *testing.T) {
	var out bytes.Buffer
	provider := &answerProvider{answer: "Полюс - корень знаменателя."}

	rt, err := NewRuntime(testSettings(t), Options{Out: &out, JSON: true, Provider: provider})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer rt.Close()

	for i := 0; i < 2; i++ {
		if err := rt.Ask(context.Background(), "What is a pole?"); err != nil {
			t.Fatalf("Ask %d failed: %v", i, err)
		}
	}
	if provider.calls != 1 {
		t.Errorf("expected the second ask to be served from cache, got %d model calls", provider.calls)
	}

	dec := json.NewDecoder(&out)
	for i := 0; i < 2; i++ {
		var res model.Result
		if err := dec.Decode(&res); err != nil {
			t.Fatalf("decode result %d: %v", i, err)
		}
		if res.Answer != provider.answer || res.Citations == nil {
			t.Errorf("unexpected result %+v", res)
		}
	}
}

func TestRuntimeAskRejectsBlank(t *testing.T) {
	rt, err := NewRuntime(testSettings(t), Options{Out: &bytes.Buffer{}, Provider: &answerProvider{}})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer rt.Close()

	if err := rt.Ask(context.Background(), "   "); err == nil {
		t.Error("expected error for blank question")
	}
}

func TestListTools(t *testing.T) {
	tests := []struct {
		verbose bool
		want    []string
		absent  string
	}{
		{false, []string{"search_cls_ogata", "search_ds_ogata", "search_nl_khalil", "translate_to_russian", "Collections:", "nonlinear  nl_khalil"}, "Parameters:"},
		{true, []string{"Tool: search_nl_khalil", "Parameters:", "query (string)", "[required]"}, "Collections:"},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		ListTools(&out, config.Defaults(), tt.verbose)

		for _, w := range tt.want {
			if !strings.Contains(out.String(), w) {
				t.Errorf("verbose=%v: expected %q in output:\n%s", tt.verbose, w, out.String())
			}
		}
		if strings.Contains(out.String(), tt.absent) {
			t.Errorf("verbose=%v: unexpected %q in output", tt.verbose, tt.absent)
		}
	}
}

func TestAddChunks(t *testing.T) {
	settings := testSettings(t)
	dir := t.TempDir()

	files := map[string]string{
		"NL_chunk_001.txt": "Lyapunov function candidate.",
		"DC_chunk_001.txt": "The z-transform of a sequence.",
		"chunk_001.txt":    "Root locus construction rules.",
	}
	var paths []string
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}

	var out bytes.Buffer
	if err := AddChunks(context.Background(), &out, settings, paths); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}

	for _, want := range []string{"nonlinear/nl_khalil", "discrete/ds_ogata", "linear/cls_ogata", "3 chunks registered"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}

	// Registering the same files again keeps one record per content id.
	out.Reset()
	if err := AddChunks(context.Background(), &out, settings, paths); err != nil {
		t.Fatalf("second AddChunks failed: %v", err)
	}
	if !strings.Contains(out.String(), "3 chunks registered") {
		t.Errorf("expected idempotent registration, got:\n%s", out.String())
	}
}

func TestRemoveChunks(t *testing.T) {
	settings := testSettings(t)
	path := filepath.Join(t.TempDir(), "chunk_001.txt")
	if err := os.WriteFile(path, []byte("Bode plot asymptotes."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	if err := AddChunks(context.Background(), &out, settings, []string{path}); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}
	id := strings.Fields(out.String())[0]

	out.Reset()
	if err := RemoveChunks(context.Background(), &out, settings, []string{id}); err != nil {
		t.Fatalf("RemoveChunks failed: %v", err)
	}
	for _, want := range []string{"removed " + id, "0 chunks registered"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestAddChunksMissingFile(t *testing.T) {
	err := AddChunks(context.Background(), &bytes.Buffer{}, testSettings(t), []string{filepath.Join(t.TempDir(), "absent.txt")})
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "json", false).Debug("hidden")
	NewLogger(&buf, "json", true).Debug("shown", "k", "v")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug must be off without verbose")
	}
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("expected JSON debug record, got %q", buf.String())
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, model.Result{
		Answer:    "Ответ.",
		Citations: []model.Citation{{ChunkID: "c1", BookID: "nl_khalil", Pages: [2]int{10, 12}, Score: 0.5}},
		Theory:    model.TheoryNonlinear.Ptr(),
	})

	for _, want := range []string{"Ответ.", "Theory: nonlinear", "nl_khalil pp. 10-12"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in %q", want, buf.String())
		}
	}
}
