package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/phuslu/log"
)

// Claude generates tutoring text through the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// Config configures the Claude generator. APIKeyEnv names the environment
// variable holding the key.
type Config struct {
	APIKeyEnv   string
	Model       string
	MaxTokens   int
	TimeoutSecs int
}

// NewClaude creates a generator, resolving the API key from the environment.
func NewClaude(cfg Config) (*Claude, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Claude{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
	log.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Dur("timeout", timeout).
		Msg("Claude generator initialized")
	return c, nil
}

// Generate sends a single user prompt and returns the model's text.
func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("model returned no text content")
	}

	log.Debug().
		Int("prompt_length", len(prompt)).
		Int("response_length", out.Len()).
		Dur("duration", time.Since(start)).
		Msg("generation completed")
	return out.String(), nil
}
