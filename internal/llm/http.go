package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

type httpClient struct {
	endpoint string
	apiKey   string
	cfg      config.LLMConfig
	client   *http.Client
}

// NewHTTPClient talks to an OpenAI-compatible chat completions endpoint
// using a bearer credential.
func NewHTTPClient(cfg config.LLMConfig) Client {
	return &httpClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		cfg:      cfg,
		client:   newTransportClient(time.Duration(cfg.TimeoutMS) * time.Millisecond),
	}
}

func newTransportClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	_ = http2.ConfigureTransport(tr)
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) CompletePrompt(ctx context.Context, text, systemPrompt, model string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})
	return c.complete(ctx, model, messages)
}

func (c *httpClient) CompleteVisionPrompt(ctx context.Context, text string, image []byte, systemPrompt, model string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	parts := []contentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + encoded}},
	}
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: parts})
	return c.complete(ctx, model, messages)
}

func (c *httpClient) complete(ctx context.Context, model string, messages []chatMessage) (string, error) {
	payload := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion endpoint returned %s: %s", resp.Status, firstLine(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("completion endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Reachable reports whether the completion endpoint answers HTTP at all. Any
// response, including an auth rejection, counts as reachable.
func Reachable(ctx context.Context, cfg config.LLMConfig) (bool, string) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/models", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := newTransportClient(5 * time.Second).Do(req)
	if err != nil {
		return false, "endpoint unreachable"
	}
	resp.Body.Close()
	return true, ""
}

func firstLine(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
