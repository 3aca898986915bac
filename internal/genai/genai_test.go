package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func TestGenerateResponse_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	mock := &mockChatService{resp: mockResp}
	client := &Client{chat: mock, model: string(DefaultModel)}

	out, err := client.GenerateResponse(context.Background(), []models.ConversationEntry{
		{Role: models.RoleSystem, Content: "system prompt"},
		{Role: models.RoleUser, Content: "user prompt"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected 2 messages in request, got %d", len(mock.params.Messages))
	}
	if string(mock.params.Model) != string(DefaultModel) {
		t.Errorf("expected default model, got %s", mock.params.Model)
	}
}

func TestGenerateResponse_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: string(DefaultModel)}
	_, err := client.GenerateResponse(context.Background(), []models.ConversationEntry{
		{Role: models.RoleUser, Content: "hi"},
	})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateResponse_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{}}, model: string(DefaultModel)}
	_, err := client.GenerateResponse(context.Background(), []models.ConversationEntry{
		{Role: models.RoleUser, Content: "hi"},
	})
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}

func TestNewClient_ModelOverride(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("custom-model"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if cli.model != "custom-model" {
		t.Errorf("model = %q, want custom-model", cli.model)
	}
}
