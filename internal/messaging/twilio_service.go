package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio WhatsApp service.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp sender number, E.164
}

// TwilioOption defines a configuration option for the Twilio service.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID, overriding $TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, overriding $TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the WhatsApp sender number, overriding $TWILIO_FROM_NUMBER.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// messageCreator is the slice of the Twilio REST API the service uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService implements Service using the Twilio WhatsApp API.
type TwilioService struct {
	api  messageCreator
	from string
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a Twilio-backed WhatsApp service, falling back to
// environment variables for missing options.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio service config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("twilio WhatsApp sender number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{api: client.Api, from: "whatsapp:" + cfg.From}, nil
}

// ValidateAndCanonicalizeRecipient applies phone-number canonicalization.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message through the Twilio API. The recipient
// is canonicalized first.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	to, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("TwilioService.SendMessage failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("TwilioService message sent", "to", to)
	return nil
}
