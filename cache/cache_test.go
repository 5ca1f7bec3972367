package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/richinex/controlqa/model"
)

// openTestBadger opens an in-memory BadgerDB for testing.
func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKey(t *testing.T) {
	k := Key("What is a pole?")
	if !strings.HasPrefix(k, "llm_cache:") {
		t.Errorf("missing prefix: %s", k)
	}
	if len(k) != len("llm_cache:")+40 {
		t.Errorf("expected 40 hex chars after prefix, got %s", k)
	}
	if Key("What is a pole?") != k {
		t.Error("key is not deterministic")
	}
	if Key("What is a zero?") == k {
		t.Error("different questions share a key")
	}
	if Key("") != "llm_cache:da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("unexpected key for empty question: %s", Key(""))
	}
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"badger": openTestBadger(t),
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := store.Get(ctx, "missing"); ok || err != nil {
				t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
			}

			if err := store.Set(ctx, "k", []byte("v1"), time.Hour); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, ok, err := store.Get(ctx, "k")
			if err != nil || !ok || !bytes.Equal(got, []byte("v1")) {
				t.Errorf("expected hit with v1, got %q ok=%v err=%v", got, ok, err)
			}

			_ = store.Set(ctx, "k", []byte("v2"), time.Hour)
			if got, _, _ := store.Get(ctx, "k"); string(got) != "v2" {
				t.Errorf("expected overwrite, got %q", got)
			}
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_ = store.Set(context.Background(), "k", []byte("v"), DefaultTTL)

	now = now.Add(23 * time.Hour)
	if _, ok, _ := store.Get(context.Background(), "k"); !ok {
		t.Error("expected entry to be live before TTL")
	}

	now = now.Add(time.Hour)
	if _, ok, _ := store.Get(context.Background(), "k"); ok {
		t.Error("expected entry to expire after TTL")
	}
}

func TestBadgerStoreCancelledContext(t *testing.T) {
	store := openTestBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	rc := NewResultCache(openTestBadger(t), 0)
	if rc.TTL() != DefaultTTL {
		t.Errorf("expected default TTL, got %v", rc.TTL())
	}
	ctx := context.Background()

	if out := rc.Load(ctx, "q"); out.IsDegraded() || out.Value != nil {
		t.Fatalf("expected clean miss, got %+v", out)
	}

	want := model.Result{
		Answer: "A pole is a root of the denominator.",
		Citations: []model.Citation{
			{ChunkID: "c1", BookID: "cls_ogata", Theory: model.TheoryLinear, Pages: [2]int{40, 41}, Score: 0.9},
		},
		Theory: model.TheoryLinear.Ptr(),
	}
	if err := rc.Save(ctx, "q", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := rc.Load(ctx, "q")
	if out.IsDegraded() || out.Value == nil {
		t.Fatalf("expected hit, got %+v", out)
	}
	got := out.Value
	if got.Answer != want.Answer || len(got.Citations) != 1 || got.Citations[0].Pages != [2]int{40, 41} {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Theory == nil || *got.Theory != model.TheoryLinear {
		t.Errorf("theory lost: %v", got.Theory)
	}
}

func TestResultCacheCorruptEntryIsDegradedMiss(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set(context.Background(), Key("q"), []byte("{not json"), time.Hour)

	out := NewResultCache(store, time.Hour).Load(context.Background(), "q")
	if !out.IsDegraded() || out.Value != nil {
		t.Fatalf("expected degraded miss, got %+v", out)
	}
	if model.KindOf(out.Reason) != model.KindSerialization {
		t.Errorf("expected serialization kind, got %v", out.Reason)
	}
}

type failingStore struct{}

func (failingStore) Close() error { return nil }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk on fire")
}

func TestResultCacheBackendErrors(t *testing.T) {
	rc := NewResultCache(failingStore{}, time.Hour)

	out := rc.Load(context.Background(), "q")
	if !out.IsDegraded() || !errors.Is(out.Reason, model.ErrBackendUnavailable) {
		t.Errorf("expected degraded backend miss, got %+v", out)
	}
	if err := rc.Save(context.Background(), "q", model.Result{}); !errors.Is(err, model.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}
