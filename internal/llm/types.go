package llm

import (
	"context"
	"time"
)

// Model describes one remote model offering.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PromptPrice   string `json:"prompt_price"`
	ContextLength int    `json:"context_length"`
}

// ModelCacheEntry is one cached discovery result, keyed by credential hash.
type ModelCacheEntry struct {
	CredentialHash string
	Models         []Model
	CachedAt       time.Time
	ExpiresAt      time.Time
}

// Client defines the prompt-completion backend used by the pipelines.
type Client interface {
	CompletePrompt(ctx context.Context, text, systemPrompt, model string) (string, error)
	CompleteVisionPrompt(ctx context.Context, text string, image []byte, systemPrompt, model string) (string, error)
}
