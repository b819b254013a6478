package knowledge

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
)

const (
	maxQueryLen      = 200
	maxResults       = 5
	semanticWeight   = 8.0
	minWordLen       = 3 // query words shorter than this are noise
	scoreTitleExact  = 10.0
	scoreKeywordFull = 5.0
	scoreKeywordPart = 2.0
	scoreSynonym     = 4.0
	scoreContentFull = 3.0
	scoreContentWord = 1.0
)

// ResultEntry is one ranked hit, trimmed to what the model needs.
type ResultEntry struct {
	Category string  `json:"category"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Score    float64 `json:"-"`
}

// Result is the outcome of a search. Found is false exactly when Results is
// empty; callers never receive an ambiguous empty success.
type Result struct {
	Found           bool          `json:"found"`
	Results         []ResultEntry `json:"results,omitempty"`
	Suggestion      string        `json:"suggestion,omitempty"`
	AvailableTopics []string      `json:"available_topics,omitempty"`
}

// Engine scores knowledge entries against queries. The embedding index is
// optional; without it the engine runs keyword-only.
type Engine struct {
	corpus *Corpus
	index  *EmbeddingIndex // nil = keyword-only
	logger *slog.Logger
}

// NewEngine creates a search engine over the corpus. index may be nil.
func NewEngine(corpus *Corpus, index *EmbeddingIndex, logger *slog.Logger) *Engine {
	return &Engine{corpus: corpus, index: index, logger: logger}
}

// Search ranks entries against query. topicFilter restricts candidates to a
// single category when non-empty; an unknown filter behaves like no matches.
func (e *Engine) Search(ctx context.Context, query, topicFilter string) Result {
	query = normalizeQuery(query)
	words := queryWords(query)

	semantic := e.semanticScores(ctx, query)

	var hits []ResultEntry
	e.corpus.ForEach(func(category string, entry *Entry) {
		if topicFilter != "" && !strings.EqualFold(category, topicFilter) {
			return
		}
		score := keywordScore(entry, query, words)
		if vec, ok := semantic[entry.ID]; ok {
			score += vec * semanticWeight
		}
		if score > 0 {
			hits = append(hits, ResultEntry{
				Category: category,
				Title:    entry.Title,
				Content:  entry.Content,
				Score:    score,
			})
		}
	})

	if len(hits) == 0 {
		return Result{
			Found:           false,
			Suggestion:      "No matching entries. Try one of the available topics.",
			AvailableTopics: e.corpus.Topics(),
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return Result{Found: true, Results: hits}
}

// semanticScores returns cosine similarity per entry id, or nil when the
// index is cold or unavailable. Embedding failures degrade to keyword-only.
func (e *Engine) semanticScores(ctx context.Context, query string) map[string]float64 {
	if e.index == nil || !e.index.Ready() {
		return nil
	}
	qvec, err := e.index.QueryVector(ctx, query)
	if err != nil {
		e.logger.WarnContext(ctx, "query embedding failed, falling back to keyword-only",
			slog.String("error", err.Error()),
		)
		return nil
	}
	scores := make(map[string]float64, e.corpus.Len())
	e.index.ForEach(func(id string, vec []float64) {
		scores[id] = cosineSimilarity(qvec, vec)
	})
	return scores
}

func normalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if len(q) > maxQueryLen {
		q = q[:maxQueryLen]
	}
	return q
}

func queryWords(q string) []string {
	var words []string
	for _, w := range strings.Fields(q) {
		w = strings.Trim(w, ".,!?\"'()")
		if len(w) >= minWordLen {
			words = append(words, w)
		}
	}
	return words
}

// keywordScore reproduces the platform's ranking heuristics:
// title containment dominates, declared keywords and synonyms rank above
// incidental content matches, and partial keyword overlap catches typos.
func keywordScore(entry *Entry, query string, words []string) float64 {
	var score float64

	title := strings.ToLower(entry.Title)
	content := strings.ToLower(entry.Content)

	if strings.Contains(title, query) {
		score += scoreTitleExact
	}

	for _, kw := range entry.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(query, kw) {
			score += scoreKeywordFull
			continue
		}
		// Partial overlap: a query word containing the keyword (or vice
		// versa) still counts, which is what catches typos like "calmn".
		for _, w := range words {
			if strings.Contains(w, kw) || strings.Contains(kw, w) {
				score += scoreKeywordPart
			}
		}
	}

	for _, syn := range entry.Synonyms {
		syn = strings.ToLower(syn)
		if syn != "" && strings.Contains(query, syn) {
			score += scoreSynonym
		}
	}

	if strings.Contains(content, query) {
		score += scoreContentFull
	}
	for _, w := range words {
		if strings.Contains(content, w) {
			score += scoreContentWord
		}
	}

	return score
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
