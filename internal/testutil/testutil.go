// Package testutil provides common test utilities and helpers for Tipline tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/healthtipsdaily/tipline/internal/api"
	"github.com/healthtipsdaily/tipline/internal/messaging"
	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
	"github.com/healthtipsdaily/tipline/internal/whatsapp"
)

// StubGenerator implements flow.Generator with scripted replies.
type StubGenerator struct {
	Replies []string
	Err     error
	Calls   [][]models.ConversationEntry
}

// GenerateResponse records the prompt and returns the next scripted reply, or
// a fixed default when the script is exhausted.
func (g *StubGenerator) GenerateResponse(ctx context.Context, msgs []models.ConversationEntry) (string, error) {
	g.Calls = append(g.Calls, msgs)
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.Replies) > 0 {
		reply := g.Replies[0]
		g.Replies = g.Replies[1:]
		return reply, nil
	}
	return "stub reply", nil
}

// TestEnv bundles a wired test server with handles to its fakes.
type TestEnv struct {
	Server   *api.Server
	Store    *store.MemoryStore
	Gen      *StubGenerator
	WhatsApp *whatsapp.MockClient
}

// NewTestServer creates a test API server over an in-memory store, a mock
// WhatsApp sender and a scripted generator. Discord outbound is disabled.
// This centralizes the test server creation logic used across test files.
func NewTestServer() *TestEnv {
	st := store.NewMemoryStore()
	gen := &StubGenerator{}
	mock := whatsapp.NewMockClient()
	srv := api.NewServer(st, gen, messaging.NewWhatsAppService(mock), nil, "test-verify-token")
	return &TestEnv{Server: srv, Store: st, Gen: gen, WhatsApp: mock}
}

// Mux returns a mux with all server routes registered.
func (e *TestEnv) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	e.Server.Routes(mux)
	return mux
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
