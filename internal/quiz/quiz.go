package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/phuslu/log"

	"tutor/internal/domain"
)

// ErrNoQuestion means the model never produced a parseable question within
// the attempt budget. Callers should tell the student no question is
// available rather than surface this as a failure.
var ErrNoQuestion = errors.New("no question available")

// Question is one parsed multiple-choice question. Prompt carries the
// question text plus the A)–D) choices; Correct is a single letter A–D.
type Question struct {
	Topic       string
	Prompt      string
	Correct     string
	Explanation string
}

// IsCorrect reports whether a student answer matches, ignoring case and
// surrounding whitespace.
func (q Question) IsCorrect(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), q.Correct)
}

// angles rotate the framing of generated questions so repeated quizzes on
// the same topic do not converge on one phrasing.
var angles = []string{
	"conceptual understanding",
	"syntax and coding specifics",
	"a real-world application",
	"troubleshooting a specific scenario",
	"predicting the output of code",
}

// Maker turns a past question into a fresh multiple-choice question,
// retrying when the model output does not follow the required format.
type Maker struct {
	llm         domain.Generator
	maxAttempts int
	pickAngle   func() string
}

// NewMaker creates a question maker with the given attempt budget
// (default 3).
func NewMaker(llm domain.Generator, maxAttempts int) *Maker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Maker{
		llm:         llm,
		maxAttempts: maxAttempts,
		pickAngle:   func() string { return angles[rand.Intn(len(angles))] },
	}
}

// Make generates and parses one question about topic, grounding it on
// contextChunks when any were retrieved. Returns ErrNoQuestion after the
// attempt budget is exhausted.
func (m *Maker) Make(ctx context.Context, topic string, contextChunks []string) (Question, error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		prompt := buildPrompt(topic, contextChunks, m.pickAngle())
		text, err := m.llm.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Question{}, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("question generation failed")
			continue
		}
		q, ok := parse(text)
		if !ok {
			log.Warn().Int("attempt", attempt).Msg("model output did not follow the question format")
			continue
		}
		q.Topic = topic
		return q, nil
	}
	return Question{}, ErrNoQuestion
}

func buildPrompt(topic string, contextChunks []string, angle string) string {
	if len(contextChunks) > 0 {
		return fmt.Sprintf(`You are an expert Data Science Exam Creator.
Create a multiple-choice question based STRICTLY on the provided context.

Target Topic: %q
Learning Angle: %s

### CRITICAL RULES:
1. **Clarity First:** The question must be unambiguous. Avoid double negatives.
2. **Single Truth:** There must be EXACTLY ONE correct answer.
3. **Clear Distractors:** The wrong answers must be demonstrably false.
4. **No Code Tricks:** If the question involves code, ensure the syntax is standard.

Context to use:
%s

Format:
Question: <text>
A) <option>
B) <option>
C) <option>
D) <option>
Correct Answer: <A/B/C/D>
Explanation: <Clear explanation why the correct answer is right and why others are wrong>`,
			topic, angle, strings.Join(contextChunks, "\n\n"))
	}
	return fmt.Sprintf(`You are an expert Data Science Exam Creator.
Generate a clear, high-quality multiple-choice question about: %q.

### CRITICAL RULES:
1. Avoid negative logic. Use positive framing.
2. Ensure exactly one answer is correct.
3. Focus on: %s.

Format:
Question: <text>
A) ...
B) ...
C) ...
D) ...
Correct Answer: <A/B/C/D>
Explanation: <text>`, topic, angle)
}

// The answer letter must follow the marker directly; scanning further would
// false-match the 'a' in "Explanation".
var answerLetterRe = regexp.MustCompile(`(?i)^[\s*]*([A-D])`)

// parse splits raw model output on the "Correct Answer:" marker. Everything
// before it is the question-with-choices; the letter A–D right after it is
// the answer; text after "Explanation:" is the explanation. Output missing
// the marker or the letter is rejected.
func parse(text string) (Question, bool) {
	const marker = "Correct Answer:"
	idx := strings.Index(text, marker)
	if idx < 0 {
		return Question{}, false
	}
	prompt := strings.TrimSpace(text[:idx])
	remaining := text[idx+len(marker):]

	m := answerLetterRe.FindStringSubmatch(remaining)
	if m == nil {
		return Question{}, false
	}
	letter := m[1]

	explanation := ""
	if i := strings.Index(remaining, "Explanation:"); i >= 0 {
		explanation = strings.TrimSpace(remaining[i+len("Explanation:"):])
	}
	return Question{
		Prompt:      prompt,
		Correct:     strings.ToUpper(letter),
		Explanation: explanation,
	}, true
}
