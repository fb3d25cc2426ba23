package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkingConfig configures how extracted text is split into chunks.
type ChunkingConfig struct {
	Strategy string `yaml:"strategy"` // "hybrid", "window", or "page"
	MaxChars int    `yaml:"max_chars"`
	Overlap  int    `yaml:"overlap"`
}

// EmbedderConfig configures the OpenAI-compatible embeddings client.
type EmbedderConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	Dimension         int    `yaml:"dimension"`
	BatchSize         int    `yaml:"batch_size"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// StoreConfig configures the SQLite chunk and query-record store.
type StoreConfig struct {
	Path        string `yaml:"path"`
	CommitEvery int    `yaml:"commit_every"`
}

// LLMConfig configures the generation model used for hints and quizzes.
type LLMConfig struct {
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	MaxTokens   int    `yaml:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QuizConfig configures reinforcement-question generation.
type QuizConfig struct {
	TopK        int `yaml:"top_k"`
	MaxAttempts int `yaml:"max_attempts"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Course              string         `yaml:"course"`
	Chunking            ChunkingConfig `yaml:"chunking"`
	Embedder            EmbedderConfig `yaml:"embedder"`
	Store               StoreConfig    `yaml:"store"`
	LLM                 LLMConfig      `yaml:"llm"`
	RetrievalTopK       int            `yaml:"retrieval_top_k"`
	Quiz                QuizConfig     `yaml:"quiz"`
	GuestRetentionHours int            `yaml:"guest_retention_hours"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/tutor/config.yaml.
// If neither exists, it writes defaults to ~/.config/tutor/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tutor", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{Course: "DATA100"}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "hybrid"
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 1500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 300
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 64
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.RequestsPerMinute == 0 {
		cfg.Embedder.RequestsPerMinute = 60
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "tutor.db"
	}
	if cfg.Store.CommitEvery == 0 {
		cfg.Store.CommitEvery = 512
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.RetrievalTopK == 0 {
		cfg.RetrievalTopK = 5
	}
	if cfg.Quiz.TopK == 0 {
		cfg.Quiz.TopK = 3
	}
	if cfg.Quiz.MaxAttempts == 0 {
		cfg.Quiz.MaxAttempts = 3
	}
	if cfg.GuestRetentionHours == 0 {
		cfg.GuestRetentionHours = 24
	}
}
