package tutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/phuslu/log"

	"tutor/internal/domain"
	"tutor/internal/querylog"
	"tutor/internal/quiz"
)

// Service drives one tutoring turn: retrieve context, generate a guiding
// hint, pick a past topic to quiz on, and log the question for future
// quizzes.
type Service struct {
	searcher  domain.Searcher
	generator domain.Generator
	queries   domain.QueryStore
	maker     *quiz.Maker
	topK      int
	quizTopK  int
}

// Answer is the tutor's response to one question.
type Answer struct {
	Hint    string
	Sources []domain.SearchResult
}

// Turn bundles the answer with the quiz topic selected for this round.
// QuizTopic is empty for first-time users with no history to review.
type Turn struct {
	Answer    Answer
	QuizTopic string
}

// New creates a tutor service. topK is the retrieval depth for answers,
// quizTopK for quiz-question context.
func New(searcher domain.Searcher, generator domain.Generator, queries domain.QueryStore, maker *quiz.Maker, topK, quizTopK int) *Service {
	if topK <= 0 {
		topK = 5
	}
	if quizTopK <= 0 {
		quizTopK = 3
	}
	return &Service{
		searcher:  searcher,
		generator: generator,
		queries:   queries,
		maker:     maker,
		topK:      topK,
		quizTopK:  quizTopK,
	}
}

// Ask answers a student question. The quiz topic is selected from history
// BEFORE the current question is logged, so students are quizzed on what
// they asked previously, never on what they just read.
func (s *Service) Ask(ctx context.Context, userID, question string, isGuest bool) (Turn, error) {
	results, err := s.searcher.Search(ctx, question, s.topK)
	if err != nil {
		return Turn{}, fmt.Errorf("retrieval failed: %w", err)
	}

	hint, err := s.generator.Generate(ctx, hintPrompt(question, contents(results)))
	if err != nil {
		return Turn{}, fmt.Errorf("hint generation failed: %w", err)
	}

	topic, err := s.queries.RandomUnmastered(ctx, userID, querylog.Hash(question))
	if err != nil {
		return Turn{}, fmt.Errorf("quiz topic selection failed: %w", err)
	}

	// The answer is already produced; a logging failure costs one future
	// quiz topic, not the turn.
	if _, err := s.queries.Log(ctx, userID, question, isGuest); err != nil {
		log.Warn().Err(err).Msg("failed to log question")
	}

	return Turn{
		Answer:    Answer{Hint: hint, Sources: results},
		QuizTopic: topic,
	}, nil
}

// MakeQuiz builds a multiple-choice question about a past topic, grounded on
// freshly retrieved context. Returns quiz.ErrNoQuestion when the model never
// produces a parseable question.
func (s *Service) MakeQuiz(ctx context.Context, topic string) (quiz.Question, error) {
	results, err := s.searcher.Search(ctx, topic, s.quizTopK)
	if err != nil {
		return quiz.Question{}, fmt.Errorf("quiz context retrieval failed: %w", err)
	}
	return s.maker.Make(ctx, topic, contents(results))
}

// CheckAnswer grades one attempt. Mastery is terminal and granted only for a
// correct answer on the first attempt; later correct answers leave the topic
// in rotation.
func (s *Service) CheckAnswer(ctx context.Context, userID string, q quiz.Question, answer string, attempt int) (correct, mastered bool, err error) {
	if !q.IsCorrect(answer) {
		return false, false, nil
	}
	if attempt == 1 {
		if err := s.queries.MarkMastered(ctx, userID, q.Topic); err != nil {
			return true, false, fmt.Errorf("failed to record mastery: %w", err)
		}
		return true, true, nil
	}
	return true, false, nil
}

// Stats reports the user's progress counters.
func (s *Service) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	return s.queries.Stats(ctx, userID)
}

// EndGuestSession discards a guest's logged questions.
func (s *Service) EndGuestSession(ctx context.Context, userID string) (int64, error) {
	return s.queries.EndGuestSession(ctx, userID)
}

func contents(results []domain.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Content)
	}
	return out
}

func hintPrompt(question string, context []string) string {
	return fmt.Sprintf(`You are a Data Science TA.
Context: %s
Student Question: %s

Now, respond as a helpful TA:
1. Offer a brief explanation of the underlying concept.
2. Give 2-3 hints or questions that guide the student toward the solution.
3. Be concise, clear, and friendly.`, strings.Join(context, "\n\n"), question)
}
