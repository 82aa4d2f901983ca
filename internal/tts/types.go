package tts

import (
	"context"
	"time"
)

// TtsRequest contains parameters to synthesize speech.
type TtsRequest struct {
	Text  string
	Voice string
	Speed float64
}

// TtsResult is the outcome of a synthesis attempt. AudioBytes holds a
// complete WAV file when Success is true; ErrorMessage explains why when it
// is not.
type TtsResult struct {
	Success      bool
	AudioBytes   []byte
	Engine       string
	ErrorMessage string
	Elapsed      time.Duration
}

// Voice is one synthesis voice advertised by the kitten bridge.
type Voice struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Engine is the contract for producing audio from text.
type Engine interface {
	Name() string
	Available(ctx context.Context) bool
	Synthesize(ctx context.Context, req TtsRequest) (TtsResult, error)
}
