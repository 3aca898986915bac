package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// TipGenerator produces the personalized daily health tip used by the
// delivery sweep and the Discord /healthtip command.
type TipGenerator struct {
	gen Generator
}

// NewTipGenerator creates a tip generator over the given Generator.
func NewTipGenerator(gen Generator) *TipGenerator {
	return &TipGenerator{gen: gen}
}

// TipPrompt builds the standalone prompt for a daily tip. It references the
// weekday so the model does not invent one.
func TipPrompt(u models.User, now time.Time) []models.ConversationEntry {
	name := u.Preferences[models.PrefName]
	if name == "" {
		name = "there"
	}
	interests := u.Preferences[models.PrefInterests]
	if interests == "" {
		interests = "health topics"
	}
	system := fmt.Sprintf("You are HealthTipsDaily, a friendly health assistant. "+
		"Create a short, personalized daily health tip for %s who is interested in %s. "+
		"The tip should be evidence-based, practical, and actionable. "+
		"Keep it under 3 paragraphs and make it motivational. "+
		"Today is %s, %s. Make sure to reference the correct day of the week if you mention it.",
		name, interests, now.Format("Monday"), now.Format("2006-01-02"))
	return []models.ConversationEntry{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: "Please send me today's health tip."},
	}
}

// Generate produces a tip for the user, substituting FallbackReply on
// generation failure.
func (t *TipGenerator) Generate(ctx context.Context, u models.User, now time.Time) string {
	out, err := t.gen.GenerateResponse(ctx, TipPrompt(u, now))
	if err != nil {
		slog.Error("TipGenerator.Generate failed, using fallback", "error", err, "user_id", u.ID)
		return FallbackReply
	}
	return out
}
