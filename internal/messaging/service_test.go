package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/healthtipsdaily/tipline/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"already canonical", "+15551234567", "+15551234567", true},
		{"missing plus", "15551234567", "+15551234567", true},
		{"separators stripped", "+1 (555) 123-4567", "+15551234567", true},
		{"dots and spaces", "555.123.4567", "+5551234567", true},
		{"too short", "+123456", "", false},
		{"too long", "+1234567890123456", "", false},
		{"letters", "+1555CALLNOW", "", false},
		{"empty", "", "", false},
		{"only separators", " () -", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalizePhone(tc.input)
			if tc.ok {
				if err != nil {
					t.Fatalf("CanonicalizePhone(%q): %v", tc.input, err)
				}
				if got != tc.want {
					t.Errorf("CanonicalizePhone(%q) = %q, want %q", tc.input, got, tc.want)
				}
			} else if err == nil {
				t.Errorf("CanonicalizePhone(%q) = %q, expected error", tc.input, got)
			}
		})
	}
}

func TestWhatsAppServiceSendMessage(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	to, err := svc.ValidateAndCanonicalizeRecipient("1 555 123 4567")
	if err != nil {
		t.Fatalf("ValidateAndCanonicalizeRecipient: %v", err)
	}
	if to != "+15551234567" {
		t.Errorf("canonical = %q", to)
	}

	if err := svc.SendMessage(context.Background(), to, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.Sent) != 1 || mock.Sent[0].To != "+15551234567" || mock.Sent[0].Body != "hello" {
		t.Errorf("sent = %+v", mock.Sent)
	}
}

func TestWhatsAppServiceSendCanonicalizes(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	// A formatted recipient is canonicalized before it reaches the client.
	if err := svc.SendMessage(context.Background(), "+1 (555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.Sent) != 1 || mock.Sent[0].To != "+15551234567" {
		t.Errorf("sent = %+v, want canonical recipient", mock.Sent)
	}

	// An invalid recipient is rejected without a send attempt.
	if err := svc.SendMessage(context.Background(), "not-a-number", "hello"); err == nil {
		t.Error("expected error for invalid recipient")
	}
	if len(mock.Sent) != 1 {
		t.Errorf("sends = %d, want still 1 after rejected recipient", len(mock.Sent))
	}
}

// fakeMessageCreator records Twilio message creation calls.
type fakeMessageCreator struct {
	params *twilioApi.CreateMessageParams
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	return &twilioApi.ApiV2010Message{}, nil
}

func TestTwilioServiceSendMessage(t *testing.T) {
	fake := &fakeMessageCreator{}
	svc := &TwilioService{api: fake, from: "whatsapp:+1999"}

	// The recipient is passed formatted to prove send-path canonicalization.
	if err := svc.SendMessage(context.Background(), "+1 555-123-4567", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if fake.params == nil {
		t.Fatal("CreateMessage not called")
	}
	if got := *fake.params.To; got != "whatsapp:+15551234567" {
		t.Errorf("To = %q", got)
	}
	if got := *fake.params.From; got != "whatsapp:+1999" {
		t.Errorf("From = %q", got)
	}
	if got := *fake.params.Body; got != "hi" {
		t.Errorf("Body = %q", got)
	}
}

func TestNewTwilioServiceMissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestDiscordServiceSendDirectMessage(t *testing.T) {
	var gotAuth string
	var channelPosts []map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/users/@me/channels":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["recipient_id"] != "disc-42" {
				t.Errorf("recipient_id = %q", body["recipient_id"])
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "chan-7"})
		case "/channels/chan-7/messages":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			channelPosts = append(channelPosts, body)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	svc, err := NewDiscordService(WithBotToken("token-123"), WithAPIBase(ts.URL))
	if err != nil {
		t.Fatalf("NewDiscordService: %v", err)
	}

	if err := svc.SendDirectMessage(context.Background(), "disc-42", "your tip"); err != nil {
		t.Fatalf("SendDirectMessage: %v", err)
	}
	if gotAuth != "Bot token-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(channelPosts) != 1 || channelPosts[0]["content"] != "your tip" {
		t.Errorf("channel posts = %v", channelPosts)
	}
}

func TestDiscordServiceErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	svc, err := NewDiscordService(WithBotToken("token"), WithAPIBase(ts.URL))
	if err != nil {
		t.Fatalf("NewDiscordService: %v", err)
	}
	if err := svc.SendChannelMessage(context.Background(), "chan-1", "hi"); err == nil {
		t.Error("expected error on 403 response")
	}
}

func TestNewDiscordServiceRequiresToken(t *testing.T) {
	if _, err := NewDiscordService(); err == nil {
		t.Error("expected error without bot token")
	}
}
