package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/phuslu/log"

	"tutor/internal/domain"
)

// Store persists chunks in SQLite. Embeddings are stored as JSON arrays and
// metadata as a JSON object with the fixed schema; (course, source_uri,
// chunk_no) carries a unique index so re-ingestion upserts instead of
// duplicating.
type Store struct {
	db          *sql.DB
	commitEvery int
}

// Open opens (creating if needed) the chunk store at path.
// commitEvery bounds how many upserted rows share one transaction.
func Open(path string, commitEvery int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store: %w", err)
	}
	if commitEvery <= 0 {
		commitEvery = 512
	}
	s := &Store{db: db, commitEvery: commitEvery}
	if err := s.setupTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up chunk store tables: %w", err)
	}
	return s, nil
}

// OpenWith wraps an existing database handle, sharing one file between the
// chunk store and the query log.
func OpenWith(db *sql.DB, commitEvery int) (*Store, error) {
	if commitEvery <= 0 {
		commitEvery = 512
	}
	s := &Store{db: db, commitEvery: commitEvery}
	if err := s.setupTables(); err != nil {
		return nil, fmt.Errorf("failed to set up chunk store tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so other stores can share the same file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) setupTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS doc_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course TEXT NOT NULL,
			source_uri TEXT NOT NULL,
			chunk_no INTEGER NOT NULL,
			section TEXT,
			page_from INTEGER,
			page_to INTEGER,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(course, source_uri, chunk_no)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_doc_chunks_course ON doc_chunks(course)`,
		`CREATE INDEX IF NOT EXISTS idx_doc_chunks_source ON doc_chunks(source_uri)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const upsertSQL = `INSERT INTO doc_chunks
	(course, source_uri, chunk_no, section, page_from, page_to, content, embedding, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(course, source_uri, chunk_no) DO UPDATE SET
		section = excluded.section,
		page_from = excluded.page_from,
		page_to = excluded.page_to,
		content = excluded.content,
		embedding = excluded.embedding,
		metadata = excluded.metadata,
		updated_at = CURRENT_TIMESTAMP`

// Upsert writes chunks in transactions of at most commitEvery rows.
// A crash between transactions leaves fully-written prefixes only, so
// re-running ingestion is safe: the same keys produce updates, not
// duplicates.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.commitEvery {
		end := start + s.commitEvery
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.upsertTx(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertTx(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		embJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.Course, c.SourceURI, c.ChunkNo,
			nullStr(c.Section), nullInt(c.PageFrom), nullInt(c.PageTo),
			c.Content, string(embJSON), string(metaJSON),
		); err != nil {
			return fmt.Errorf("failed to upsert chunk %s#%d: %w", c.SourceURI, c.ChunkNo, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert batch: %w", err)
	}
	log.Debug().Int("rows", len(chunks)).Msg("committed chunk batch")
	return nil
}

// FetchAll bulk-loads chunks in storage order for in-memory similarity
// search. An empty course loads everything.
func (s *Store) FetchAll(ctx context.Context, course string) ([]domain.Chunk, error) {
	query := `SELECT course, source_uri, chunk_no, section, page_from, page_to, content, embedding, metadata
		FROM doc_chunks`
	args := []any{}
	if course != "" {
		query += ` WHERE course = ?`
		args = append(args, course)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var (
			c        domain.Chunk
			section  sql.NullString
			pageFrom sql.NullInt64
			pageTo   sql.NullInt64
			embJSON  string
			metaJSON string
		)
		if err := rows.Scan(&c.Course, &c.SourceURI, &c.ChunkNo, &section, &pageFrom, &pageTo, &c.Content, &embJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.Section = section.String
		c.PageFrom = int(pageFrom.Int64)
		c.PageTo = int(pageTo.Int64)
		if err := json.Unmarshal([]byte(embJSON), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for %s#%d: %w", c.SourceURI, c.ChunkNo, err)
		}
		// Unknown metadata keys are dropped here by the fixed schema.
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s#%d: %w", c.SourceURI, c.ChunkNo, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteBySource removes every chunk belonging to one document.
func (s *Store) DeleteBySource(ctx context.Context, sourceURI string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM doc_chunks WHERE source_uri = ?`, sourceURI)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", sourceURI, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Debug().Str("source", sourceURI).Int64("rows", n).Msg("deleted source chunks")
	}
	return nil
}

// CountBySource reports how many chunks a document currently has.
func (s *Store) CountBySource(ctx context.Context, sourceURI string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_chunks WHERE source_uri = ?`, sourceURI).Scan(&n)
	return n, err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
