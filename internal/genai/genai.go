// Package genai provides the chat-completion client used to generate
// conversational replies and daily health tips.
//
// It speaks the OpenAI wire protocol; pointing the base URL at an
// OpenRouter-compatible gateway works unchanged.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// Generation parameters, matching the product's tuning.
const (
	// DefaultModel is used when no model override is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTemperature keeps replies conversational but stable.
	DefaultTemperature = 0.7
	// DefaultMaxTokens caps reply length; the persona prompt already asks
	// for under three paragraphs.
	DefaultMaxTokens = 500
)

// ErrNoChoicesReturned indicates the gateway answered without any choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an alternative OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the chat-completion service.
type Client struct {
	chat  chatService
	model string
}

// completionsAdapter adapts the openai-go client to the chatService interface.
type completionsAdapter struct {
	cli openai.Client
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// NewClient initializes a GenAI client from options, falling back to the
// OPENAI_API_KEY environment variable for the key.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Debug("genai.NewClient configured", "base_url_set", cfg.BaseURL != "", "model", cfg.Model)

	return &Client{chat: completionsAdapter{cli: openai.NewClient(reqOpts...)}, model: cfg.Model}, nil
}

// GenerateResponse runs a chat completion over the ordered message list and
// returns the generated text.
func (c *Client) GenerateResponse(ctx context.Context, msgs []models.ConversationEntry) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toParamUnion(msgs),
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateResponse completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// toParamUnion maps stored conversation entries to the request union types.
// Unknown roles are sent as user messages rather than dropped.
func toParamUnion(msgs []models.ConversationEntry) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
