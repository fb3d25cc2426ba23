package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"tutor/internal/domain"
)

// normEpsilon floors vector norms so all-zero vectors normalize to zero
// instead of dividing by zero; they then score 0 against everything.
const normEpsilon = 1e-12

// snapshot is an immutable view of the corpus: texts, an L2-normalized
// embedding matrix, and per-chunk metadata, all index-aligned in storage
// order. Concurrent searches share one snapshot without locking.
type snapshot struct {
	texts  []string
	matrix [][]float64
	meta   []domain.ChunkMetadata
}

// Retriever answers queries with brute-force cosine ranking over the corpus
// snapshot. O(N·D) per query; N is one course's corpus, not web-scale.
type Retriever struct {
	embedder domain.Embedder
	store    domain.ChunkStore
	course   string
	snap     atomic.Pointer[snapshot]
}

// New creates a retriever. Call Reload before the first search to load the
// corpus; an unloaded retriever returns empty results.
func New(embedder domain.Embedder, store domain.ChunkStore, course string) *Retriever {
	return &Retriever{embedder: embedder, store: store, course: course}
}

// Reload builds a fresh snapshot from the store and publishes it atomically.
// Searches running against the previous snapshot are unaffected.
func (r *Retriever) Reload(ctx context.Context) error {
	start := time.Now()
	chunks, err := r.store.FetchAll(ctx, r.course)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	snap := &snapshot{
		texts:  make([]string, len(chunks)),
		matrix: make([][]float64, len(chunks)),
		meta:   make([]domain.ChunkMetadata, len(chunks)),
	}
	for i, c := range chunks {
		snap.texts[i] = c.Content
		snap.matrix[i] = normalize(c.Embedding)
		snap.meta[i] = c.Metadata
	}
	r.snap.Store(snap)
	log.Info().
		Str("course", r.course).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("corpus snapshot loaded")
	return nil
}

// Size reports how many chunks the current snapshot holds.
func (r *Retriever) Size() int {
	snap := r.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.texts)
}

// Search embeds the query and returns the topK chunks by cosine similarity,
// descending, ties broken by storage order. An empty corpus yields empty
// results, never an error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	snap := r.snap.Load()
	if snap == nil || len(snap.texts) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qvec = normalize(qvec)

	scores := make([]float64, len(snap.matrix))
	for i, row := range snap.matrix {
		scores[i] = dot(row, qvec)
	}

	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	if topK > len(idxs) {
		topK = len(idxs)
	}
	out := make([]domain.SearchResult, 0, topK)
	for _, i := range idxs[:topK] {
		out = append(out, domain.SearchResult{
			Content:  snap.texts[i],
			Score:    scores[i],
			Metadata: snap.meta[i],
		})
	}
	return out, nil
}

func normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm < normEpsilon {
		norm = normEpsilon
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
