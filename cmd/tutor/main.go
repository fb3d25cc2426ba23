package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"tutor/internal/chunker"
	"tutor/internal/config"
	"tutor/internal/embedding"
	"tutor/internal/ingest"
	"tutor/internal/llm"
	"tutor/internal/querylog"
	"tutor/internal/quiz"
	"tutor/internal/retriever"
	"tutor/internal/tui"
	"tutor/internal/tutor"
	"tutor/internal/vectorstore"
)

const sessionIDFile = "data/session_user_id.txt"

var cfgPath string

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "tutor",
		Short: "Retrieval-backed course tutor with spaced-repetition quizzes",
		Long:  "Ingests course documents into a local vector store, answers questions with guided hints grounded on retrieved passages, and quizzes you on topics you asked about before.",
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config YAML (default: ./config.yaml, then ~/.config/tutor/config.yaml)")

	rootCmd.AddCommand(createIngestCommand())
	rootCmd.AddCommand(createChatCommand())
	rootCmd.AddCommand(createCleanupCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func newEmbedder(cfg *config.AppConfig) (*embedding.Client, error) {
	return embedding.NewClient(embedding.Config{
		BaseURL:           cfg.Embedder.BaseURL,
		APIKeyEnv:         cfg.Embedder.APIKeyEnv,
		Model:             cfg.Embedder.Model,
		Dimension:         cfg.Embedder.Dimension,
		BatchSize:         cfg.Embedder.BatchSize,
		Timeout:           time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.Embedder.RequestsPerMinute,
	})
}

func createIngestCommand() *cobra.Command {
	var course string
	var sourcePrefix string

	cmd := &cobra.Command{
		Use:   "ingest file|dir...",
		Short: "Extract, chunk, embed, and store course documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.DefaultLogger = log.Logger{Level: log.InfoLevel, Writer: &log.ConsoleWriter{ColorOutput: true}}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if course == "" {
				course = cfg.Course
			}

			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			store, err := vectorstore.Open(cfg.Store.Path, cfg.Store.CommitEvery)
			if err != nil {
				return err
			}
			defer store.Close()

			splitter := chunker.New(cfg.Chunking.MaxChars, cfg.Chunking.Overlap)
			pipeline := ingest.New(emb, store, splitter, chunker.Strategy(cfg.Chunking.Strategy), course, sourcePrefix)

			reports := pipeline.Run(cmd.Context(), args)
			failed := 0
			for _, rep := range reports {
				if rep.Err != nil {
					failed++
					fmt.Printf("FAIL  %s: %v\n", rep.Path, rep.Err)
					continue
				}
				fmt.Printf("ok    %s -> %s (%d chunks)\n", rep.Path, rep.SourceURI, rep.Chunks)
			}
			fmt.Printf("\n%d document(s), %d failed\n", len(reports), failed)
			if failed == len(reports) && failed > 0 {
				return fmt.Errorf("all documents failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "course ID to tag chunks with (default from config)")
	cmd.Flags().StringVar(&sourcePrefix, "source-prefix", "", `source URI prefix (default "local://")`)
	return cmd
}

func createChatCommand() *cobra.Command {
	var userID string
	var guest bool
	var resetUser bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive tutoring session",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Keep the TUI clean; problems surface in the status line.
			log.DefaultLogger.Level = log.ErrorLevel

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			isGuest := guest
			switch {
			case guest:
				userID = "guest-" + uuid.NewString()
			case userID == "":
				userID, err = sessionUserID(resetUser)
				if err != nil {
					return fmt.Errorf("failed to resolve session user: %w", err)
				}
			}

			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			generator, err := llm.NewClaude(llm.Config{
				APIKeyEnv:   cfg.LLM.APIKeyEnv,
				Model:       cfg.LLM.Model,
				MaxTokens:   cfg.LLM.MaxTokens,
				TimeoutSecs: cfg.LLM.TimeoutSecs,
			})
			if err != nil {
				return err
			}

			store, err := vectorstore.Open(cfg.Store.Path, cfg.Store.CommitEvery)
			if err != nil {
				return err
			}
			defer store.Close()
			queries, err := querylog.OpenWith(store.DB())
			if err != nil {
				return err
			}

			search := retriever.New(emb, store, cfg.Course)
			if err := search.Reload(cmd.Context()); err != nil {
				return err
			}
			if search.Size() == 0 {
				fmt.Println("The course corpus is empty. Run `tutor ingest` first.")
			}

			maker := quiz.NewMaker(generator, cfg.Quiz.MaxAttempts)
			svc := tutor.New(search, generator, queries, maker, cfg.RetrievalTopK, cfg.Quiz.TopK)

			m := tui.New(svc, userID, isGuest)
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return err
			}

			if isGuest {
				n, err := svc.EndGuestSession(context.Background(), userID)
				if err != nil {
					return fmt.Errorf("failed to end guest session: %w", err)
				}
				fmt.Printf("Guest session ended, %d record(s) discarded.\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID (default: persisted session ID)")
	cmd.Flags().BoolVar(&guest, "guest", false, "anonymous session, history discarded on exit")
	cmd.Flags().BoolVar(&resetUser, "reset-user", false, "discard the persisted session ID and start as a new user")
	return cmd
}

func createCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired guest query records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			queries, err := querylog.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer queries.Close()

			retention := time.Duration(cfg.GuestRetentionHours) * time.Hour
			n, err := queries.PurgeGuests(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d guest record(s) older than %s.\n", n, retention)
			return nil
		},
	}
}

// sessionUserID returns the persisted anonymous user ID, creating a fresh one
// on first run or when reset is requested.
func sessionUserID(reset bool) (string, error) {
	if !reset {
		if data, err := os.ReadFile(sessionIDFile); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(sessionIDFile), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(sessionIDFile, []byte(id+"\n"), 0o644); err != nil {
		return "", err
	}
	return id, nil
}
