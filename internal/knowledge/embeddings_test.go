package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

// stubEmbedder returns the same vector for every input and counts calls.
type stubEmbedder struct {
	vec   []float64
	calls atomic.Int64
}

func (s *stubEmbedder) Embed(_ context.Context, _ string, texts []string) ([][]float64, error) {
	s.calls.Add(1)
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestWarm_SingleFlight(t *testing.T) {
	corpus := testCorpus()
	emb := &stubEmbedder{vec: []float64{0.5, 0.5}}
	idx := NewEmbeddingIndex(emb, "test-model", "", discardLogger())

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if err := idx.Warm(context.Background(), corpus); err != nil {
				t.Errorf("warm failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := emb.calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 provider call under concurrent warm-up, got %d", got)
	}
	if !idx.Ready() {
		t.Error("index should be ready after warm-up")
	}
}

func TestWarm_NoEmbedderDegrades(t *testing.T) {
	idx := NewEmbeddingIndex(nil, "test-model", "", discardLogger())
	if err := idx.Warm(context.Background(), testCorpus()); err != nil {
		t.Fatalf("warm without embedder must not error: %v", err)
	}
	if idx.Ready() {
		t.Error("index must stay cold without an embedder")
	}
}

func TestWarm_DiskCacheRoundTrip(t *testing.T) {
	corpus := testCorpus()
	path := filepath.Join(t.TempDir(), "embeddings.json")

	first := &stubEmbedder{vec: []float64{1, 2, 3}}
	idx := NewEmbeddingIndex(first, "test-model", path, discardLogger())
	if err := idx.Warm(context.Background(), corpus); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if first.calls.Load() != 1 {
		t.Fatalf("expected 1 call on cold start, got %d", first.calls.Load())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file to exist: %v", err)
	}

	// A fresh index with the same corpus and model loads from disk.
	second := &stubEmbedder{vec: []float64{9, 9, 9}}
	idx2 := NewEmbeddingIndex(second, "test-model", path, discardLogger())
	if err := idx2.Warm(context.Background(), corpus); err != nil {
		t.Fatalf("warm from disk: %v", err)
	}
	if second.calls.Load() != 0 {
		t.Errorf("expected no provider calls on cache hit, got %d", second.calls.Load())
	}

	var got []float64
	idx2.ForEach(func(id string, vec []float64) {
		if id == "med-box" {
			got = vec
		}
	})
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("expected vectors loaded from disk, got %v", got)
	}
}

func TestWarm_HashMismatchInvalidatesWholeCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")

	first := &stubEmbedder{vec: []float64{1}}
	idx := NewEmbeddingIndex(first, "test-model", path, discardLogger())
	if err := idx.Warm(context.Background(), testCorpus()); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// Changed corpus content → different hash → full recompute.
	changed := NewCorpus([]Topic{{
		Category: "meditation",
		Entries:  []Entry{{ID: "med-box", Title: "Box Breathing", Content: "edited content"}},
	}})
	second := &stubEmbedder{vec: []float64{2}}
	idx2 := NewEmbeddingIndex(second, "test-model", path, discardLogger())
	if err := idx2.Warm(context.Background(), changed); err != nil {
		t.Fatalf("warm after edit: %v", err)
	}
	if second.calls.Load() != 1 {
		t.Errorf("expected recompute after content change, got %d calls", second.calls.Load())
	}
}

func TestWarm_ModelChangeInvalidatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")
	corpus := testCorpus()

	first := &stubEmbedder{vec: []float64{1}}
	if err := NewEmbeddingIndex(first, "model-a", path, discardLogger()).Warm(context.Background(), corpus); err != nil {
		t.Fatalf("warm: %v", err)
	}

	second := &stubEmbedder{vec: []float64{2}}
	if err := NewEmbeddingIndex(second, "model-b", path, discardLogger()).Warm(context.Background(), corpus); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if second.calls.Load() != 1 {
		t.Errorf("expected recompute after model change, got %d calls", second.calls.Load())
	}
}
