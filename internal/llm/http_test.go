package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

func TestCompletePromptSendsBearerAndParsesChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "openai/gpt-4o-mini" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		w.Write([]byte(`{"choices": [{"message": {"content": " Bonjour "}}]}`))
	}))
	defer server.Close()

	cfg := config.Default().LLM
	cfg.Endpoint = server.URL
	cfg.APIKey = "sk-test"
	client := NewHTTPClient(cfg)

	reply, err := client.CompletePrompt(context.Background(), "translate to French, Hello", "You translate.", "openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Bonjour" {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}
}

func TestCompleteVisionPromptEncodesImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		last := req.Messages[len(req.Messages)-1]
		if !strings.Contains(string(last.Content), "data:image/png;base64,") {
			t.Errorf("expected data url in content, got %s", last.Content)
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "a screenshot"}}]}`))
	}))
	defer server.Close()

	cfg := config.Default().LLM
	cfg.Endpoint = server.URL
	client := NewHTTPClient(cfg)

	reply, err := client.CompleteVisionPrompt(context.Background(), "what is this", []byte{0x89, 0x50, 0x4e, 0x47}, "", "openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "a screenshot" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestCompletePromptSurfacesEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	cfg := config.Default().LLM
	cfg.Endpoint = server.URL
	client := NewHTTPClient(cfg)

	if _, err := client.CompletePrompt(context.Background(), "hi", "", "m"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
