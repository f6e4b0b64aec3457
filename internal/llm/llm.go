// Package llm wraps the hosted completion API. The relay hands it the
// conversation window plus the new user message and stores whatever
// string comes back; provider failures surface as a fixed fallback
// reply, never as an error the webhook has to branch on.
package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/warelay-dev/warelay/internal/observability"
	"github.com/warelay-dev/warelay/pkg/session"
)

// FallbackReply is returned verbatim when the provider call fails.
const FallbackReply = "Sorry, I encountered an error processing your request. Please try again."

// ChatCompleter is the narrow slice of the OpenAI client the relay
// needs. Kept as an interface for testability.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds completion parameters.
type Config struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// Client generates replies from a system prompt, bounded history, and a
// new user turn.
type Client struct {
	api ChatCompleter
	cfg Config
	log zerolog.Logger
}

// New creates a client backed by the OpenAI API.
func New(apiKey string, cfg Config, log zerolog.Logger) *Client {
	return NewWithCompleter(openai.NewClient(apiKey), cfg, log)
}

// NewWithCompleter creates a client with a custom completer (useful for
// testing).
func NewWithCompleter(api ChatCompleter, cfg Config, log zerolog.Logger) *Client {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &Client{
		api: api,
		cfg: cfg,
		log: log.With().Str("component", "llm").Logger(),
	}
}

// Generate returns the model's reply for the given history and message.
// Any provider failure yields FallbackReply; the caller stores the
// result either way.
func (c *Client) Generate(ctx context.Context, history []session.Turn, userMessage string) string {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.cfg.SystemPrompt,
	})
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		N:           1,
	})
	if err != nil {
		observability.RecordLLMRequest("error", time.Since(start))
		c.log.Error().Err(err).Int("history", len(history)).Msg("completion failed")
		return FallbackReply
	}
	observability.RecordLLMRequest("ok", time.Since(start))

	if len(resp.Choices) == 0 {
		c.log.Error().Msg("completion returned no choices")
		return FallbackReply
	}

	content := resp.Choices[0].Message.Content
	c.log.Debug().Int("chars", len(content)).Int("prompt_tokens", resp.Usage.PromptTokens).Msg("generated reply")
	return content
}
