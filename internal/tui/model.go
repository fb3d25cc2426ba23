package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tutor/internal/domain"
	"tutor/internal/quiz"
	"tutor/internal/tutor"
)

// TutorPort is the TUI-facing subset of the tutor service.
type TutorPort interface {
	Ask(ctx context.Context, userID, question string, isGuest bool) (tutor.Turn, error)
	MakeQuiz(ctx context.Context, topic string) (quiz.Question, error)
	CheckAnswer(ctx context.Context, userID string, q quiz.Question, answer string, attempt int) (correct, mastered bool, err error)
	Stats(ctx context.Context, userID string) (domain.UserStats, error)
}

type phase int

const (
	phaseAsk phase = iota
	phaseQuiz
)

// Model is the Bubble Tea model for the chat session.
type Model struct {
	service  TutorPort
	userID   string
	isGuest  bool
	input    textinput.Model
	viewport viewport.Model
	phase    phase
	question quiz.Question
	attempts int
	content  string
	status   string
	stats    string
	ready    bool
}

// New creates a new chat model for one user session.
func New(service TutorPort, userID string, isGuest bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service: service,
		userID:  userID,
		isGuest: isGuest,
		input:   ti,
		viewport: vp,
		status:  "Ready. Ask a question to start learning.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + stats
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			if m.phase == phaseQuiz {
				return m.handleQuizAnswer(text), nil
			}
			return m.handleQuestion(text), nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleQuestion(question string) Model {
	ctx := context.Background()
	turn, err := m.service.Ask(ctx, m.userID, question, m.isGuest)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m
	}
	m.refreshStats(ctx)

	m.content = renderAnswer(turn.Answer)
	if turn.QuizTopic == "" {
		m.status = "Asking your first question? Knowledge Checks start next round."
		return m.showContent()
	}

	q, err := m.service.MakeQuiz(ctx, turn.QuizTopic)
	if errors.Is(err, quiz.ErrNoQuestion) {
		m.status = "Couldn't generate a valid question this time. Moving on."
		return m.showContent()
	}
	if err != nil {
		m.status = "Error: " + err.Error()
		return m.showContent()
	}

	m.phase = phaseQuiz
	m.question = q
	m.attempts = 0
	m.input.Placeholder = "Your answer (A/B/C/D)"
	m.status = fmt.Sprintf("Knowledge Check! Reviewing: %q", q.Topic)
	m.content += "\n\n" + renderQuestion(q)
	return m.showContent()
}

func (m Model) showContent() Model {
	m.viewport.SetContent(m.content)
	m.viewport.GotoTop()
	return m
}

func (m Model) handleQuizAnswer(answer string) Model {
	ctx := context.Background()
	m.attempts++
	correct, mastered, err := m.service.CheckAnswer(ctx, m.userID, m.question, answer, m.attempts)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m
	}
	if !correct {
		m.status = "Incorrect. Try again!"
		return m
	}

	feedback := correctStyle.Render("Correct! ") + m.question.Explanation
	if mastered {
		feedback += "\n\n" + masteredStyle.Render("Marked as Mastered! (Won't appear again)")
	} else {
		feedback += "\n\nGood job! Keep practicing to master this."
	}
	m.content += "\n\n" + feedback
	m.viewport.SetContent(m.content)
	m.viewport.GotoBottom()
	m.refreshStats(ctx)

	m.phase = phaseAsk
	m.question = quiz.Question{}
	m.input.Placeholder = "Ask a question and press Enter"
	m.status = "Ready for your next question."
	return m
}

func (m *Model) refreshStats(ctx context.Context) {
	st, err := m.service.Stats(ctx, m.userID)
	if err != nil {
		return
	}
	m.stats = fmt.Sprintf("asked %d · mastered %d", st.TotalQuestions, st.MasteredTopics)
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Course Tutor")
	stats := statsStyle.Render(m.stats)
	body := answerBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + stats + "\n" + body + "\n" + input + "\n" + status
}

func renderAnswer(a tutor.Answer) string {
	var b strings.Builder
	b.WriteString(hintTitleStyle.Render("TUTOR EXPLANATION"))
	b.WriteString("\n\n")
	b.WriteString(a.Hint)
	if len(a.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sourceTitleStyle.Render("Sources"))
		for i, src := range a.Sources {
			b.WriteString(fmt.Sprintf("\n%d. [%.3f] %s", i+1, src.Score, sourceLabel(src.Metadata)))
			b.WriteString("\n   " + src.Snippet(160))
		}
	}
	return b.String()
}

func sourceLabel(meta domain.ChunkMetadata) string {
	label := meta.Title
	if label == "" {
		label = meta.Source
	}
	if meta.PageNumber > 0 {
		label = fmt.Sprintf("%s (p. %d)", label, meta.PageNumber)
	}
	return label
}

func renderQuestion(q quiz.Question) string {
	return quizTitleStyle.Render("KNOWLEDGE CHECK") + "\n\n" + q.Prompt
}

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	statsStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	hintTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	sourceTitleStyle = lipgloss.NewStyle().Bold(true)
	quizTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	correctStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	masteredStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
