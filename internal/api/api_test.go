package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/testutil"
)

func TestWhatsAppWebhookVerification(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"valid handshake", "hub_mode=subscribe&hub_verify_token=test-verify-token&hub_challenge=abc123", http.StatusOK},
		{"wrong token", "hub_mode=subscribe&hub_verify_token=wrong&hub_challenge=abc123", http.StatusForbidden},
		{"wrong mode", "hub_mode=unsubscribe&hub_verify_token=test-verify-token", http.StatusForbidden},
		{"no params", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?"+tc.query, nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			testutil.AssertHTTPStatus(t, tc.status, rr.Code, tc.name)
			if tc.status == http.StatusOK && rr.Body.String() != "abc123" {
				t.Errorf("challenge echo = %q, want abc123", rr.Body.String())
			}
		})
	}
}

func TestWhatsAppWebhookNewUserWelcome(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
		models.WhatsAppInbound{Message: "hello", From: "+15551234567", MessageID: "wamid.1"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "new user message")
	testutil.AssertJSONResponse(t, rr, "ok")

	// The welcome goes out over the WhatsApp transport.
	if len(env.WhatsApp.Sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(env.WhatsApp.Sent))
	}
	if env.WhatsApp.Sent[0].To != "+15551234567" || env.WhatsApp.Sent[0].Body != flow.WelcomeText {
		t.Errorf("sent = %+v", env.WhatsApp.Sent[0])
	}

	// User exists, greeted but nothing answered yet, and no schedule.
	stats, err := env.Store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Users != 1 {
		t.Errorf("users = %d, want 1", stats.Users)
	}
	if stats.ActiveSchedules != 0 {
		t.Errorf("schedules = %d, want none before onboarding completes", stats.ActiveSchedules)
	}

	// Both directions are audited.
	logs := env.Store.MessageLogs()
	if len(logs) != 2 {
		t.Fatalf("message logs = %d, want incoming + outgoing", len(logs))
	}
	if logs[0].Direction != models.DirectionIncoming || logs[0].ChannelMessageID != "wamid.1" {
		t.Errorf("incoming log = %+v", logs[0])
	}
	if logs[1].Direction != models.DirectionOutgoing || logs[1].Body != flow.WelcomeText {
		t.Errorf("outgoing log = %+v", logs[1])
	}
}

func TestWhatsAppWebhookOnboardingToConversation(t *testing.T) {
	env := testutil.NewTestServer()
	env.Gen.Replies = []string{"great question!"}
	mux := env.Mux()

	send := func(text string) *httptest.ResponseRecorder {
		req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
			models.WhatsAppInbound{Message: text, From: "+15551234567"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook post")
		return rr
	}

	send("hi")
	send("Ana")
	send("sleep")
	send("08:00")

	last := env.WhatsApp.Sent[len(env.WhatsApp.Sent)-1]
	if !strings.Contains(last.Body, "08:00") {
		t.Errorf("onboarding confirmation = %q", last.Body)
	}

	stats, _ := env.Store.Stats()
	if stats.ActiveSchedules != 1 {
		t.Errorf("schedules = %d, want 1 after onboarding", stats.ActiveSchedules)
	}

	// Onboarding is complete but the user is still inside the new-user
	// window, so the next message re-enters onboarding and falls through to
	// the conversation path.
	send("how much sleep do I need?")
	last = env.WhatsApp.Sent[len(env.WhatsApp.Sent)-1]
	if last.Body != "great question!" {
		t.Errorf("conversation reply = %q", last.Body)
	}
	if len(env.Gen.Calls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(env.Gen.Calls))
	}
	// Prompt carries the stored profile.
	system := env.Gen.Calls[0][0]
	if system.Role != models.RoleSystem || !strings.Contains(system.Content, "Ana") {
		t.Errorf("system prompt = %+v", system)
	}
}

func TestWhatsAppWebhookIgnoresNonMessageEvents(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
		models.WhatsAppInbound{From: "+15551234567"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "status callback")
	if len(env.WhatsApp.Sent) != 0 {
		t.Errorf("no sends expected, got %+v", env.WhatsApp.Sent)
	}
	stats, _ := env.Store.Stats()
	if stats.Users != 0 {
		t.Errorf("no user should be created for non-message events")
	}
}

func TestWhatsAppWebhookAcknowledgesBadJSON(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	// Malformed payloads are acked so the provider stops redelivering them.
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "bad JSON")
	testutil.AssertJSONResponse(t, rr, "ok")
	stats, _ := env.Store.Stats()
	if stats.Users != 0 {
		t.Errorf("no user should be created for malformed payloads")
	}
}

func TestWhatsAppWebhookAcksWhenReplySendFails(t *testing.T) {
	env := testutil.NewTestServer()
	env.WhatsApp.Err = errors.New("transport down")
	mux := env.Mux()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
		models.WhatsAppInbound{Message: "hello", From: "+15551234567", MessageID: "wamid.9"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	// The message was processed and state mutated; a failed reply send is
	// logged, not retried, and must not trigger provider redelivery.
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "send failure")
	testutil.AssertJSONResponse(t, rr, "ok")

	stats, _ := env.Store.Stats()
	if stats.Users != 1 {
		t.Errorf("users = %d, want 1", stats.Users)
	}
	logs := env.Store.MessageLogs()
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want incoming + outgoing", len(logs))
	}
}

func TestWhatsAppWebhookCanonicalizesSender(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	send := func(from string) {
		req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
			models.WhatsAppInbound{Message: "hello", From: from})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, from)
	}

	// Formatting variants of one number map to the same user row.
	send("+1 555-123-4567")
	send("+15551234567")

	stats, _ := env.Store.Stats()
	if stats.Users != 1 {
		t.Errorf("users = %d, want formatting variants deduplicated to 1", stats.Users)
	}
	for _, sent := range env.WhatsApp.Sent {
		if sent.To != "+15551234567" {
			t.Errorf("sent to %q, want canonical +15551234567", sent.To)
		}
	}
}

func TestWhatsAppWebhookIgnoresInvalidSender(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
		models.WhatsAppInbound{Message: "hello", From: "not-a-number"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "invalid sender")
	stats, _ := env.Store.Stats()
	if stats.Users != 0 {
		t.Errorf("no user should be created for an invalid sender")
	}
}

func TestWhatsAppWebhookMethodNotAllowed(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := httptest.NewRequest(http.MethodDelete, "/webhook/whatsapp", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "DELETE")
}

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestStatsEndpoint(t *testing.T) {
	env := testutil.NewTestServer()
	mux := env.Mux()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/whatsapp",
		models.WhatsAppInbound{Message: "hello", From: "+15551234567"})
	mux.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "stats")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("result = %v", resp["result"])
	}
	if result["users"].(float64) != 1 {
		t.Errorf("users = %v, want 1", result["users"])
	}
}
