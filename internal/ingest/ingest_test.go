package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/chunker"
	"tutor/internal/domain"
	"tutor/internal/extract"
)

// fakeEmbedder returns one fixed vector per text; failFor aborts a whole
// document's batch when any of its texts contains the marker.
type fakeEmbedder struct {
	failFor string
	calls   int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if f.failFor != "" && strings.Contains(text, f.failFor) {
			return nil, errors.New("embedding backend rejected input")
		}
		out[i] = []float64{float64(len(text)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

// memStore records upserted chunks.
type memStore struct {
	chunks []domain.Chunk
}

func (m *memStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) FetchAll(ctx context.Context, course string) ([]domain.Chunk, error) {
	return m.chunks, nil
}

func (m *memStore) DeleteBySource(ctx context.Context, sourceURI string) error { return nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newPipeline(store domain.ChunkStore, emb domain.Embedder) *Pipeline {
	return New(emb, store, chunker.New(100, 20), chunker.StrategyHybrid, "DATA100", "")
}

func TestRun_SingleTextFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Pandas DataFrames hold tabular data.")
	store := &memStore{}

	reports := newPipeline(store, &fakeEmbedder{}).Run(context.Background(), []string{path})
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].Err)
	assert.Equal(t, 1, reports[0].Chunks)
	assert.Equal(t, "local://notes.txt", reports[0].SourceURI)

	require.Len(t, store.chunks, 1)
	c := store.chunks[0]
	assert.Equal(t, "DATA100", c.Course)
	assert.Equal(t, 1, c.ChunkNo)
	assert.NotEmpty(t, c.Embedding, "no chunk may be stored without its embedding")
	assert.Equal(t, "notes.txt", c.Metadata.Title)
	assert.Equal(t, 1, c.Metadata.TotalChunks)
	assert.Equal(t, "hybrid", c.Metadata.Strategy)
}

func TestRun_BadDocumentDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a_good.txt", "clean content")
	bad := writeFile(t, dir, "b_bad.txt", "POISON content")
	good2 := writeFile(t, dir, "c_good.txt", "more clean content")
	store := &memStore{}

	reports := newPipeline(store, &fakeEmbedder{failFor: "POISON"}).
		Run(context.Background(), []string{good, bad, good2})
	require.Len(t, reports, 3)
	assert.NoError(t, reports[0].Err)
	assert.Error(t, reports[1].Err)
	assert.NoError(t, reports[2].Err)
	assert.Len(t, store.chunks, 2, "both healthy documents must be stored")
}

func TestRun_UnsupportedExplicitFileReported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grades.xlsx", "binary-ish")
	store := &memStore{}

	reports := newPipeline(store, &fakeEmbedder{}).Run(context.Background(), []string{path})
	require.Len(t, reports, 1)
	var ufe *extract.UnsupportedFormatError
	require.ErrorAs(t, reports[0].Err, &ufe)
	assert.Equal(t, ".xlsx", ufe.Ext)
	assert.Empty(t, store.chunks)
}

func TestRun_DirectoryWalkSkipsUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "week1.md", "# Week 1\n\nIntro material.")
	writeFile(t, dir, "solutions.zip", "not a document")
	sub := filepath.Join(dir, "week2")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "lab.txt", "lab instructions")
	store := &memStore{}

	reports := newPipeline(store, &fakeEmbedder{}).Run(context.Background(), []string{dir})
	require.Len(t, reports, 2, "zip is skipped without a report")
	for _, rep := range reports {
		assert.NoError(t, rep.Err)
	}
	assert.Len(t, store.chunks, 2)
}

func TestRun_MissingPath(t *testing.T) {
	store := &memStore{}
	reports := newPipeline(store, &fakeEmbedder{}).Run(context.Background(), []string{"/does/not/exist.txt"})
	require.Len(t, reports, 1)
	assert.Error(t, reports[0].Err)
}

func TestRun_EmptyDocumentStoresNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "   \n\n  ")
	store := &memStore{}
	emb := &fakeEmbedder{}

	reports := newPipeline(store, emb).Run(context.Background(), []string{path})
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].Err)
	assert.Zero(t, reports[0].Chunks)
	assert.Zero(t, emb.calls, "nothing to embed for an empty document")
}

func TestRun_CustomPrefixAndReingestKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "reader.md", "Some course reader text.")
	store := &memStore{}
	p := New(&fakeEmbedder{}, store, chunker.New(100, 20), chunker.StrategyHybrid, "CS61A", "course://")

	reports := p.Run(context.Background(), []string{path})
	require.Len(t, reports, 1)
	assert.Equal(t, "course://reader.md", reports[0].SourceURI)
	assert.Equal(t, "CS61A", store.chunks[0].Course)
}
