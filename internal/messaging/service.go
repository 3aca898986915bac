// Package messaging provides pluggable outbound message delivery for
// Tipline: a whatsmeow-backed WhatsApp sender, a Twilio-backed WhatsApp
// sender and a Discord REST sender.
package messaging

import (
	"context"
	"fmt"
	"strings"
)

// Service defines a pluggable phone-number message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each service applies its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

// CanonicalizePhone normalizes a phone number to E.164-ish form: separators
// stripped, leading + required, 7 to 15 digits.
func CanonicalizePhone(recipient string) (string, error) {
	r := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return c
	}, strings.TrimSpace(recipient))

	if r == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if !strings.HasPrefix(r, "+") {
		r = "+" + r
	}
	digits := r[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("phone number must have 7 to 15 digits, got %d", len(digits))
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("phone number contains non-digit character %q", c)
		}
	}
	return r, nil
}
