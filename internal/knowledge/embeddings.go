package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ariahq/aria/internal/llm"
)

// EmbeddingIndex holds one embedding vector per corpus entry. The corpus is
// embedded exactly once per process: concurrent warm-up callers share a
// single in-flight computation, and a disk cache keyed by (content hash,
// model) avoids recomputing across restarts.
type EmbeddingIndex struct {
	embedder  llm.Embedder
	model     string
	cachePath string
	logger    *slog.Logger

	warm singleflight.Group

	mu      sync.RWMutex
	vectors map[string][]float64 // entry id → vector; nil until warmed
}

// diskCache is the persisted embedding file format. One file per corpus
// snapshot; a hash mismatch invalidates the whole file.
type diskCache struct {
	Hash        string         `json:"hash"`
	Model       string         `json:"model"`
	GeneratedAt time.Time      `json:"generated_at"`
	Embeddings  []cachedVector `json:"embeddings"`
}

type cachedVector struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
}

// NewEmbeddingIndex creates an index. embedder may be nil, in which case the
// index never becomes ready and search stays keyword-only.
func NewEmbeddingIndex(embedder llm.Embedder, model, cachePath string, logger *slog.Logger) *EmbeddingIndex {
	return &EmbeddingIndex{
		embedder:  embedder,
		model:     model,
		cachePath: cachePath,
		logger:    logger,
	}
}

// Ready reports whether entry vectors are loaded.
func (idx *EmbeddingIndex) Ready() bool {
	if idx == nil {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.vectors != nil
}

// ForEach visits every (entry id, vector) pair. No-op when cold.
func (idx *EmbeddingIndex) ForEach(fn func(id string, vec []float64)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for id, vec := range idx.vectors {
		fn(id, vec)
	}
}

// QueryVector embeds a single query string. Query vectors are not cached;
// only the corpus vectors are.
func (idx *EmbeddingIndex) QueryVector(ctx context.Context, query string) ([]float64, error) {
	if idx.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	vecs, err := idx.embedder.Embed(ctx, idx.model, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Warm ensures corpus vectors are loaded, computing them at most once even
// under concurrent callers. Without an embedder it returns nil and the index
// stays cold (keyword-only degradation, not an error).
func (idx *EmbeddingIndex) Warm(ctx context.Context, corpus *Corpus) error {
	if idx == nil || idx.embedder == nil {
		return nil
	}
	if idx.Ready() {
		return nil
	}

	_, err, _ := idx.warm.Do("corpus", func() (any, error) {
		// Re-check under the flight: a previous caller may have finished.
		if idx.Ready() {
			return nil, nil
		}
		vectors, err := idx.compute(ctx, corpus)
		if err != nil {
			return nil, err
		}
		idx.mu.Lock()
		idx.vectors = vectors
		idx.mu.Unlock()
		return nil, nil
	})
	return err
}

func (idx *EmbeddingIndex) compute(ctx context.Context, corpus *Corpus) (map[string][]float64, error) {
	hash := contentHash(corpus)

	if cached := idx.loadDisk(hash); cached != nil {
		idx.logger.Info("embedding cache hit",
			slog.String("hash", hash[:12]),
			slog.String("model", idx.model),
			slog.Int("entries", len(cached)),
		)
		return cached, nil
	}

	var ids []string
	var texts []string
	corpus.ForEach(func(_ string, e *Entry) {
		ids = append(ids, e.ID)
		texts = append(texts, e.Title+"\n"+e.Content)
	})

	idx.logger.Info("computing corpus embeddings",
		slog.String("model", idx.model),
		slog.Int("entries", len(ids)),
	)

	vecs, err := idx.embedder.Embed(ctx, idx.model, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding corpus: %w", err)
	}
	if len(vecs) != len(ids) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d entries", len(vecs), len(ids))
	}

	vectors := make(map[string][]float64, len(ids))
	for i, id := range ids {
		vectors[id] = vecs[i]
	}

	idx.saveDisk(hash, ids, vectors)
	return vectors, nil
}

// loadDisk returns cached vectors when the file exists and both hash and
// model match, nil otherwise. A mismatch invalidates the whole file.
func (idx *EmbeddingIndex) loadDisk(hash string) map[string][]float64 {
	if idx.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(idx.cachePath)
	if err != nil {
		return nil
	}
	var cache diskCache
	if err := json.Unmarshal(data, &cache); err != nil {
		idx.logger.Warn("embedding cache unreadable, recomputing",
			slog.String("path", idx.cachePath),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if cache.Hash != hash || cache.Model != idx.model {
		idx.logger.Info("embedding cache invalidated",
			slog.String("cached_model", cache.Model),
			slog.Bool("hash_match", cache.Hash == hash),
		)
		return nil
	}
	if !cache.GeneratedAt.IsZero() && time.Since(cache.GeneratedAt) > StaleAfter {
		idx.logger.Warn("embedding cache is old, consider regenerating",
			slog.String("path", idx.cachePath),
			slog.Time("generated_at", cache.GeneratedAt),
		)
	}
	vectors := make(map[string][]float64, len(cache.Embeddings))
	for _, cv := range cache.Embeddings {
		vectors[cv.ID] = cv.Embedding
	}
	return vectors
}

func (idx *EmbeddingIndex) saveDisk(hash string, ids []string, vectors map[string][]float64) {
	if idx.cachePath == "" {
		return
	}
	cache := diskCache{Hash: hash, Model: idx.model, GeneratedAt: time.Now().UTC()}
	for _, id := range ids {
		cache.Embeddings = append(cache.Embeddings, cachedVector{ID: id, Embedding: vectors[id]})
	}
	data, err := json.Marshal(cache)
	if err != nil {
		idx.logger.Warn("marshaling embedding cache", slog.String("error", err.Error()))
		return
	}
	if err := os.MkdirAll(filepath.Dir(idx.cachePath), 0o755); err != nil {
		idx.logger.Warn("creating embedding cache dir", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(idx.cachePath, data, 0o644); err != nil {
		idx.logger.Warn("writing embedding cache",
			slog.String("path", idx.cachePath),
			slog.String("error", err.Error()),
		)
	}
}

func contentHash(corpus *Corpus) string {
	sum := sha256.Sum256([]byte(corpus.ContentText()))
	return hex.EncodeToString(sum[:])
}
