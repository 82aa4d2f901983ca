package protocol

import "time"

// Mode identifies one of the six capture pipelines.
type Mode string

const (
	ModeTranscribe         Mode = "transcribe"
	ModePromptLLM          Mode = "prompt_llm"
	ModeClipboardPromptLLM Mode = "clipboard_prompt_llm"
	ModeVisionCapture      Mode = "vision_capture"
	ModeSpeechVision       Mode = "speech_vision"
	ModeClipboardTts       Mode = "clipboard_tts"
)

// Modes lists every pipeline mode in a stable order.
var Modes = []Mode{
	ModeTranscribe,
	ModePromptLLM,
	ModeClipboardPromptLLM,
	ModeVisionCapture,
	ModeSpeechVision,
	ModeClipboardTts,
}

// Valid reports whether m is a known pipeline mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// ModeEvent signals a chord transition recognized by the hotkey machine.
type ModeEvent struct {
	Mode      Mode      `json:"mode"`
	Chord     string    `json:"chord"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionCaptured announces a completed recording ready for dispatch.
type SessionCaptured struct {
	SessionID         string    `json:"session_id"`
	Mode              Mode      `json:"mode"`
	AudioPath         string    `json:"audio_path"`
	AudioBytes        int64     `json:"audio_bytes"`
	ClipboardSnapshot string    `json:"clipboard_snapshot,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	StoppedAt         time.Time `json:"stopped_at"`
}

// SessionFailed reports a capture attempt that produced no usable audio.
type SessionFailed struct {
	SessionID string    `json:"session_id"`
	Mode      Mode      `json:"mode"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineResult reports the outcome of a single pipeline run.
type PipelineResult struct {
	SessionID  string    `json:"session_id"`
	Mode       Mode      `json:"mode"`
	Transcript string    `json:"transcript,omitempty"`
	Text       string    `json:"text,omitempty"`
	Engine     string    `json:"engine,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Availability reports a component's health as seen by the announcer.
type Availability struct {
	Component string    `json:"component"`
	Available bool      `json:"available"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectModeStart       = "hotkey.mode.start"
	SubjectModeEnd         = "hotkey.mode.end"
	SubjectSessionCaptured = "record.session.captured"
	SubjectSessionFailed   = "record.session.failed"
	SubjectPipelineResult  = "pipeline.result.final"
	SubjectPipelineFailed  = "pipeline.result.error"
	SubjectAvailability    = "capability.availability"
)
