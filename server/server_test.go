package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/richinex/controlqa/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAsker struct {
	out      model.Outcome[model.Result]
	err      error
	question string
}

func (f *fakeAsker) Ask(_ context.Context, question string) (model.Outcome[model.Result], error) {
	f.question = question
	return f.out, f.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAsk(t *testing.T) {
	answer := model.Result{
		Answer: "Полюс.",
		Citations: []model.Citation{
			{ChunkID: "a", BookID: "cls_ogata", Theory: model.TheoryLinear, Pages: [2]int{3, 4}, Score: 0.9},
		},
		Theory: model.TheoryLinear.Ptr(),
	}
	asker := &fakeAsker{out: model.Ok(answer)}

	w := post(t, New(asker, nil).Handler(), `{"question":"  What is a pole?  ","chat_history":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if asker.question != "What is a pole?" {
		t.Errorf("expected trimmed question, got %q", asker.question)
	}
	if w.Header().Get(statusHeader) != "" {
		t.Error("status header must be absent on a normal answer")
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id")
	}

	var got model.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Answer != answer.Answer || len(got.Citations) != 1 || got.Theory == nil || *got.Theory != model.TheoryLinear {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestAskDegraded(t *testing.T) {
	asker := &fakeAsker{out: model.Degrade(model.Result{Answer: "best effort"}, model.ErrInsufficientContext)}

	w := post(t, New(asker, nil).Handler(), `{"question":"q"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(statusHeader) != "degraded" {
		t.Errorf("expected degraded header, got %q", w.Header().Get(statusHeader))
	}
	if !strings.Contains(w.Body.String(), `"citations":[]`) || !strings.Contains(w.Body.String(), `"theory":null`) {
		t.Errorf("expected empty citations and null theory, got %s", w.Body.String())
	}
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"question":`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"missing question", `{"chat_history":[]}`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"blank question", `{"question":"   "}`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"model down", `{"question":"q"}`, fmt.Errorf("model invocation: %w", model.ErrBackendUnavailable), http.StatusServiceUnavailable, CodeModelUnavailable},
		{"model timeout", `{"question":"q"}`, fmt.Errorf("model invocation: %w", model.ErrTimeout), http.StatusServiceUnavailable, CodeModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{err: tt.err}
			w := post(t, New(asker, nil).Handler(), tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantErr || resp.Error == "" {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestAskCallerGone(t *testing.T) {
	asker := &fakeAsker{err: fmt.Errorf("model invocation: %w", context.Canceled)}
	w := post(t, New(asker, nil).Handler(), `{"question":"q"}`)

	if w.Code != statusClientClosedRequest {
		t.Errorf("expected %d for a cancelled ask, got %d", statusClientClosedRequest, w.Code)
	}
	if strings.Contains(w.Body.String(), CodeModelUnavailable) {
		t.Errorf("a cancelled ask is not a model outage: %s", w.Body.String())
	}
}

func TestModelFailureHidesDetail(t *testing.T) {
	asker := &fakeAsker{err: errors.New("dial tcp 10.0.0.7:11434: connection refused")}
	w := post(t, New(asker, nil).Handler(), `{"question":"q"}`)
	if strings.Contains(w.Body.String(), "10.0.0.7") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}

func TestRequestIDPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	New(&fakeAsker{}, nil).Handler().ServeHTTP(w, req)

	if w.Header().Get(requestIDHeader) != "req-42" {
		t.Errorf("expected caller's request id, got %q", w.Header().Get(requestIDHeader))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(&fakeAsker{}, nil).Handler()

	tests := []struct {
		path string
		want string
	}{
		{"/health", `{"status":"ok"}`},
		{"/metrics", "# HELP"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("expected body containing %q, got %q", tt.want, w.Body.String())
			}
		})
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeAsker{}, nil).Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
