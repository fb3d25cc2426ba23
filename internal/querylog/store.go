package querylog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/phuslu/log"

	"tutor/internal/domain"
)

// Store logs student questions and tracks quiz mastery per user.
// (user_id, query_hash) is unique: re-asking a question whose normalized text
// hashes the same is a successful no-op.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the query log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open query log: %w", err)
	}
	s := &Store{db: db}
	if err := s.setupTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up query log tables: %w", err)
	}
	return s, nil
}

// OpenWith wraps an existing database handle, sharing one file with the
// chunk store.
func OpenWith(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.setupTables(); err != nil {
		return nil, fmt.Errorf("failed to set up query log tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) setupTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			query_text TEXT NOT NULL,
			query_hash TEXT NOT NULL,
			answered_correctly INTEGER NOT NULL DEFAULT 0,
			is_guest INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, query_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_queries_user_id ON user_queries(user_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Hash returns the dedup key for a question: SHA-256 of the lower-cased,
// whitespace-trimmed text.
func Hash(queryText string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(queryText))))
	return hex.EncodeToString(sum[:])
}

// Log records a question for future quizzes. Returns false when the user has
// already asked a question with the same normalized hash.
func (s *Store) Log(ctx context.Context, userID, queryText string, isGuest bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_queries (user_id, query_text, query_hash, is_guest) VALUES (?, ?, ?, ?)`,
		userID, queryText, Hash(queryText), boolInt(isGuest))
	if err != nil {
		return false, fmt.Errorf("failed to log query: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		log.Debug().Str("user", shortID(userID)).Msg("query already logged")
		return false, nil
	}
	return true, nil
}

// RandomUnmastered returns a uniformly random unmastered question for the
// user, skipping excludeHash (the question just asked this turn). Returns ""
// when no question is available; that is not an error.
func (s *Store) RandomUnmastered(ctx context.Context, userID, excludeHash string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT query_text FROM user_queries
		 WHERE user_id = ? AND answered_correctly = 0 AND query_hash <> ?
		 ORDER BY RANDOM() LIMIT 1`,
		userID, excludeHash).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pick quiz topic: %w", err)
	}
	return text, nil
}

// MarkMastered flips a question to its terminal mastered state; it will not
// be selected for quizzes again.
func (s *Store) MarkMastered(ctx context.Context, userID, queryText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_queries SET answered_correctly = 1 WHERE user_id = ? AND query_hash = ?`,
		userID, Hash(queryText))
	if err != nil {
		return fmt.Errorf("failed to mark mastered: %w", err)
	}
	log.Debug().Str("user", shortID(userID)).Msg("topic mastered")
	return nil
}

// Stats reports how many questions the user has asked and mastered.
func (s *Store) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	var st domain.UserStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(answered_correctly), 0) FROM user_queries WHERE user_id = ?`,
		userID).Scan(&st.TotalQuestions, &st.MasteredTopics)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to load user stats: %w", err)
	}
	return st, nil
}

// PurgeGuests removes guest records older than the retention window.
func (s *Store) PurgeGuests(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_queries WHERE is_guest = 1 AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge guest queries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("rows", n).Msg("purged expired guest queries")
	}
	return n, nil
}

// EndGuestSession removes everything logged for one guest user.
func (s *Store) EndGuestSession(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_queries WHERE user_id = ? AND is_guest = 1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to end guest session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
