package transcribe

import "context"

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult captures recognizer output for one audio file.
type TranscriptionResult struct {
	FullText string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcriber abstracts speech-to-text backends.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (TranscriptionResult, error)
}
