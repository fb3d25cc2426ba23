package retriever

import (
	"context"
	"math"
	"testing"

	"tutor/internal/domain"
)

// fakeEmbedder returns a fixed vector for every query.
type fakeEmbedder struct {
	vec []float64
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return f.vec, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

// fakeStore serves a fixed corpus.
type fakeStore struct {
	chunks []domain.Chunk
}

func (f *fakeStore) Upsert(ctx context.Context, chunks []domain.Chunk) error { return nil }
func (f *fakeStore) FetchAll(ctx context.Context, course string) ([]domain.Chunk, error) {
	return f.chunks, nil
}
func (f *fakeStore) DeleteBySource(ctx context.Context, sourceURI string) error { return nil }

func corpus(vecs ...[]float64) *fakeStore {
	s := &fakeStore{}
	for i, v := range vecs {
		s.chunks = append(s.chunks, domain.Chunk{
			Content:   string(rune('a' + i)),
			Embedding: v,
			Metadata:  domain.ChunkMetadata{ChunkID: i + 1},
		})
	}
	return s
}

func loaded(t *testing.T, emb domain.Embedder, store domain.ChunkStore) *Retriever {
	t.Helper()
	r := New(emb, store, "DATA100")
	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSearch_Ranking(t *testing.T) {
	store := corpus([]float64{1, 0}, []float64{0, 1}, []float64{0.7, 0.7})
	r := loaded(t, &fakeEmbedder{vec: []float64{1, 0}}, store)

	res, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results", len(res))
	}
	if res[0].Content != "a" || math.Abs(res[0].Score-1.0) > 1e-9 {
		t.Errorf("top result = %q score %v", res[0].Content, res[0].Score)
	}
	if res[1].Content != "c" {
		t.Errorf("second result = %q, want the diagonal vector", res[1].Content)
	}
	for _, got := range res {
		if got.Content == "b" {
			t.Error("orthogonal vector must not rank in top 2")
		}
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	r := loaded(t, &fakeEmbedder{vec: []float64{1, 0}}, &fakeStore{})
	res, err := r.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Errorf("got %d results from empty corpus", len(res))
	}
}

func TestSearch_BeforeReload(t *testing.T) {
	r := New(&fakeEmbedder{vec: []float64{1}}, &fakeStore{}, "")
	res, err := r.Search(context.Background(), "q", 5)
	if err != nil || res != nil {
		t.Errorf("unloaded retriever: res=%v err=%v", res, err)
	}
}

func TestSearch_TopKLargerThanCorpus(t *testing.T) {
	store := corpus([]float64{1, 0}, []float64{0, 1})
	r := loaded(t, &fakeEmbedder{vec: []float64{1, 0}}, store)
	res, err := r.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Errorf("got %d results, want all 2", len(res))
	}
}

func TestSearch_TiesKeepStorageOrder(t *testing.T) {
	store := corpus([]float64{1, 0}, []float64{1, 0}, []float64{1, 0})
	r := loaded(t, &fakeEmbedder{vec: []float64{1, 0}}, store)
	res, err := r.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if res[i].Content != w {
			t.Errorf("result %d = %q, want %q", i, res[i].Content, w)
		}
	}
}

func TestSearch_ZeroVectorsScoreZero(t *testing.T) {
	store := corpus([]float64{0, 0}, []float64{1, 0})
	r := loaded(t, &fakeEmbedder{vec: []float64{0, 0}}, store)
	res, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, got := range res {
		if got.Score != 0 {
			t.Errorf("zero query should score 0, got %v", got.Score)
		}
	}
}

func TestReload_SwapsSnapshot(t *testing.T) {
	store := corpus([]float64{1, 0})
	r := loaded(t, &fakeEmbedder{vec: []float64{1, 0}}, store)
	if r.Size() != 1 {
		t.Fatalf("size = %d", r.Size())
	}

	store.chunks = append(store.chunks, domain.Chunk{Content: "late", Embedding: []float64{0, 1}})
	if r.Size() != 1 {
		t.Error("snapshot must not see store mutations before Reload")
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Size() != 2 {
		t.Errorf("size after reload = %d", r.Size())
	}
}

func TestNormalize_ScoresStayInRange(t *testing.T) {
	store := corpus([]float64{3, 4}, []float64{-3, -4})
	r := loaded(t, &fakeEmbedder{vec: []float64{30, 40}}, store)
	res, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res[0].Score-1.0) > 1e-9 {
		t.Errorf("parallel vectors should score 1.0, got %v", res[0].Score)
	}
	if math.Abs(res[1].Score+1.0) > 1e-9 {
		t.Errorf("anti-parallel vectors should score -1.0, got %v", res[1].Score)
	}
}
