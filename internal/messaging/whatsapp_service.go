package messaging

import (
	"context"
	"log/slog"

	"github.com/healthtipsdaily/tipline/internal/whatsapp"
)

// WhatsAppService implements Service over the whatsmeow-based client.
type WhatsAppService struct {
	client whatsapp.Sender
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

// ValidateAndCanonicalizeRecipient applies phone-number canonicalization.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a message via the WhatsApp client. The recipient is
// canonicalized first so formatting variants reach the same device.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	to, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	slog.Debug("WhatsAppService.SendMessage", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService.SendMessage failed", "error", err, "to", to)
		return err
	}
	return nil
}
