package querylog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLog_DedupByNormalizedHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Log(ctx, "u1", "What is a DataFrame?", false)
	require.NoError(t, err)
	assert.True(t, created)

	// Same question modulo case and surrounding whitespace.
	created, err = s.Log(ctx, "u1", "  what is a dataframe?  ", false)
	require.NoError(t, err)
	assert.False(t, created, "normalized duplicate must be a no-op")

	st, err := s.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalQuestions)
}

func TestLog_SameQuestionDifferentUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Log(ctx, "u1", "What is gradient descent?", false)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Log(ctx, "u2", "What is gradient descent?", false)
	require.NoError(t, err)
	assert.True(t, created, "dedup is scoped per user")
}

func TestRandomUnmastered_ExcludesCurrentAndMastered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Log(ctx, "u1", "question one", false)
	require.NoError(t, err)
	_, err = s.Log(ctx, "u1", "question two", false)
	require.NoError(t, err)
	require.NoError(t, s.MarkMastered(ctx, "u1", "question two"))

	// The only unmastered question is "question one"; excluding its hash
	// leaves nothing to quiz on.
	got, err := s.RandomUnmastered(ctx, "u1", Hash("question one"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.RandomUnmastered(ctx, "u1", Hash("something else"))
	require.NoError(t, err)
	assert.Equal(t, "question one", got)
}

func TestRandomUnmastered_EmptyHistory(t *testing.T) {
	s := openTestStore(t)
	got, err := s.RandomUnmastered(context.Background(), "nobody", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkMastered_IsTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Log(ctx, "u1", "only question", false)
	require.NoError(t, err)
	require.NoError(t, s.MarkMastered(ctx, "u1", "only question"))

	// Mastered questions never come back, even with nothing excluded.
	for i := 0; i < 5; i++ {
		got, err := s.RandomUnmastered(ctx, "u1", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	st, err := s.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalQuestions)
	assert.Equal(t, 1, st.MasteredTopics)
}

func TestPurgeGuests_RespectsRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Log(ctx, "guest-old", "stale guest question", true)
	require.NoError(t, err)
	_, err = s.Log(ctx, "guest-new", "fresh guest question", true)
	require.NoError(t, err)
	_, err = s.Log(ctx, "student", "registered question", false)
	require.NoError(t, err)

	// Backdate the old guest record past the retention window.
	old := time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02 15:04:05")
	_, err = s.db.Exec(`UPDATE user_queries SET timestamp = ? WHERE user_id = 'guest-old'`, old)
	require.NoError(t, err)

	n, err := s.PurgeGuests(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := s.Stats(ctx, "guest-new")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalQuestions, "fresh guest rows survive the purge")
	st, err = s.Stats(ctx, "student")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalQuestions, "registered rows are never purged")
}

func TestEndGuestSession_OnlyRemovesGuestRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Log(ctx, "g1", "guest question", true)
	require.NoError(t, err)
	_, err = s.Log(ctx, "u1", "registered question", false)
	require.NoError(t, err)

	n, err := s.EndGuestSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.EndGuestSession(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n, "registered users are not guests")
}
