package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

// HistoryWindow is how many trailing history entries accompany the system
// prompt on each completion. A context-cost control; the full history is
// always retained in storage.
const HistoryWindow = 5

// Generator produces text from an ordered message list.
type Generator interface {
	GenerateResponse(ctx context.Context, msgs []models.ConversationEntry) (string, error)
}

// Conversation handles post-onboarding messages: it maintains the rolling
// history and delegates reply generation.
type Conversation struct {
	store store.Store
	gen   Generator
}

// NewConversation creates the conversation flow.
func NewConversation(st store.Store, gen Generator) *Conversation {
	return &Conversation{store: st, gen: gen}
}

// Reply processes one post-onboarding inbound message. It appends exactly one
// user entry and one assistant entry to the history and persists the full
// (untrimmed) history. Generation failure substitutes FallbackReply; the
// conversation still advances.
func (c *Conversation) Reply(ctx context.Context, u models.User, text string, now time.Time) (string, error) {
	conv, err := c.store.GetConversation(u.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		conv = &models.Conversation{UserID: u.ID}
	}

	conv.History = append(conv.History, models.ConversationEntry{Role: models.RoleUser, Content: text})

	msgs := make([]models.ConversationEntry, 0, HistoryWindow+1)
	msgs = append(msgs, models.ConversationEntry{Role: models.RoleSystem, Content: SystemPrompt(u, now)})
	msgs = append(msgs, tail(conv.History, HistoryWindow)...)

	out, err := c.gen.GenerateResponse(ctx, msgs)
	if err != nil {
		slog.Error("Conversation.Reply generation failed, using fallback", "error", err, "user_id", u.ID)
		out = FallbackReply
	}

	conv.History = append(conv.History, models.ConversationEntry{Role: models.RoleAssistant, Content: out})
	conv.LastPromptAt = now
	if err := c.store.SaveConversation(*conv); err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}
	return out, nil
}

// SystemPrompt derives the persona prompt from the user's stored profile and
// the current date. Not cached across users.
func SystemPrompt(u models.User, now time.Time) string {
	name := u.Preferences[models.PrefName]
	if name == "" {
		name = "there"
	}
	interests := u.Preferences[models.PrefInterests]
	if interests == "" {
		interests = "health topics"
	}
	return fmt.Sprintf("You are HealthTipsDaily, a friendly and knowledgeable health assistant. "+
		"You're chatting with %s, who is interested in %s. "+
		"Provide helpful, evidence-based health information in a conversational tone. "+
		"Keep responses concise (under 3 paragraphs) and easy to understand. "+
		"If asked about serious medical concerns, remind the user to consult a healthcare professional. "+
		"Current date: %s", name, interests, now.Format("2006-01-02"))
}

// tail returns the last n entries of history.
func tail(history []models.ConversationEntry, n int) []models.ConversationEntry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
