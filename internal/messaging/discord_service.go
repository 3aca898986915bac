package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultDiscordAPIBase is the Discord REST API root.
const DefaultDiscordAPIBase = "https://discord.com/api/v10"

// discordRequestTimeout bounds each REST call.
const discordRequestTimeout = 15 * time.Second

// DiscordService sends messages through the Discord REST API using a bot
// token. It covers the two endpoints the bot needs: opening a DM channel and
// posting a message to a channel.
type DiscordService struct {
	httpClient *http.Client
	botToken   string
	apiBase    string
}

// DiscordOpts holds configuration options for the Discord service.
type DiscordOpts struct {
	BotToken string
	APIBase  string
}

// DiscordOption defines a configuration option for the Discord service.
type DiscordOption func(*DiscordOpts)

// WithBotToken sets the bot token.
func WithBotToken(token string) DiscordOption {
	return func(o *DiscordOpts) { o.BotToken = token }
}

// WithAPIBase overrides the REST API root (for tests).
func WithAPIBase(base string) DiscordOption {
	return func(o *DiscordOpts) { o.APIBase = base }
}

// NewDiscordService creates a Discord REST sender.
func NewDiscordService(opts ...DiscordOption) (*DiscordService, error) {
	var cfg DiscordOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("discord bot token must be provided")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultDiscordAPIBase
	}
	return &DiscordService{
		httpClient: &http.Client{Timeout: discordRequestTimeout},
		botToken:   cfg.BotToken,
		apiBase:    cfg.APIBase,
	}, nil
}

// SendDirectMessage opens (or reuses) a DM channel with the user and posts
// the message there.
func (s *DiscordService) SendDirectMessage(ctx context.Context, userID string, body string) error {
	var channel struct {
		ID string `json:"id"`
	}
	err := s.post(ctx, "/users/@me/channels", map[string]string{"recipient_id": userID}, &channel)
	if err != nil {
		return fmt.Errorf("failed to open DM channel with %s: %w", userID, err)
	}
	if err := s.SendChannelMessage(ctx, channel.ID, body); err != nil {
		return err
	}
	slog.Debug("DiscordService direct message sent", "user_id", userID)
	return nil
}

// SendChannelMessage posts a message to an existing channel.
func (s *DiscordService) SendChannelMessage(ctx context.Context, channelID string, body string) error {
	err := s.post(ctx, "/channels/"+channelID+"/messages", map[string]string{"content": body}, nil)
	if err != nil {
		return fmt.Errorf("failed to post message to channel %s: %w", channelID, err)
	}
	return nil
}

// post issues an authenticated JSON POST and optionally decodes the response.
func (s *DiscordService) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+s.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("DiscordService request rejected", "path", path, "status", resp.StatusCode, "body", string(b))
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
