package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/phuslu/log"

	"tutor/internal/chunker"
	"tutor/internal/domain"
	"tutor/internal/extract"
)

// Report summarizes the outcome for one document. Err is set when the
// document failed; its siblings in the same run are unaffected.
type Report struct {
	Path      string
	SourceURI string
	Chunks    int
	Pages     int
	Err       error
}

// Pipeline runs extract → chunk → embed → store for course documents.
type Pipeline struct {
	embedder     domain.Embedder
	store        domain.ChunkStore
	splitter     *chunker.Splitter
	strategy     chunker.Strategy
	course       string
	sourcePrefix string
}

// New creates a pipeline. sourcePrefix defaults to "local://"; source URIs
// are prefix + base filename.
func New(embedder domain.Embedder, store domain.ChunkStore, splitter *chunker.Splitter, strategy chunker.Strategy, course, sourcePrefix string) *Pipeline {
	if sourcePrefix == "" {
		sourcePrefix = "local://"
	}
	return &Pipeline{
		embedder:     embedder,
		store:        store,
		splitter:     splitter,
		strategy:     strategy,
		course:       course,
		sourcePrefix: sourcePrefix,
	}
}

// Run ingests every path, expanding directories recursively. Each document
// gets its own Report; a failing document is recorded and skipped, never
// aborting the run.
func (p *Pipeline) Run(ctx context.Context, paths []string) []Report {
	files, errs := expand(paths)
	reports := errs
	for _, path := range files {
		if ctx.Err() != nil {
			reports = append(reports, Report{Path: path, Err: ctx.Err()})
			continue
		}
		rep := p.ingestFile(ctx, path)
		if rep.Err != nil {
			log.Warn().Str("path", path).Err(rep.Err).Msg("document ingestion failed")
		} else {
			log.Info().Str("path", path).Int("chunks", rep.Chunks).Msg("document ingested")
		}
		reports = append(reports, rep)
	}
	return reports
}

// expand resolves files and directories to a sorted list of supported files.
// Unsupported files named explicitly are reported as errors; unsupported
// files found while walking a directory are skipped quietly.
func expand(paths []string) (files []string, errs []Report) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, Report{Path: path, Err: err})
			continue
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		walkErr := filepath.WalkDir(path, func(sub string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(sub) {
				files = append(files, sub)
			}
			return nil
		})
		if walkErr != nil {
			errs = append(errs, Report{Path: path, Err: fmt.Errorf("failed to walk directory: %w", walkErr)})
		}
	}
	sort.Strings(files)
	return files, errs
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) Report {
	rep := Report{Path: path}

	res, err := extract.File(path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Pages = res.PageCount

	name := filepath.Base(path)
	rep.SourceURI = p.sourcePrefix + name

	var (
		texts []string
		pages []int
	)
	if p.strategy == chunker.StrategyPage && len(res.Pages) > 0 {
		for _, pc := range p.splitter.SplitPages(res.Pages) {
			texts = append(texts, pc.Text)
			pages = append(pages, pc.Page)
		}
	} else {
		texts = p.splitter.Split(res.Text, p.strategy)
	}
	if len(texts) == 0 {
		return rep
	}

	embs, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		rep.Err = fmt.Errorf("failed to embed %s: %w", name, err)
		return rep
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		c := domain.Chunk{
			Course:    p.course,
			SourceURI: rep.SourceURI,
			ChunkNo:   i + 1,
			Content:   text,
			Embedding: embs[i],
			Metadata: domain.ChunkMetadata{
				Title:       name,
				CourseID:    p.course,
				Source:      rep.SourceURI,
				ChunkID:     i + 1,
				TotalChunks: len(texts),
				Strategy:    string(p.strategy),
				UploadedAt:  now,
			},
		}
		if pages != nil {
			c.PageFrom = pages[i]
			c.PageTo = pages[i]
			c.Metadata.PageNumber = pages[i]
		}
		chunks[i] = c
	}

	if err := p.store.Upsert(ctx, chunks); err != nil {
		rep.Err = fmt.Errorf("failed to store chunks for %s: %w", name, err)
		return rep
	}
	rep.Chunks = len(chunks)
	return rep
}
