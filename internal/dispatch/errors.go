package dispatch

import (
	"errors"
	"fmt"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Stage identifies the pipeline step that produced a failure.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageLLM        Stage = "llm"
	StageVision     Stage = "vision"
	StageClipboard  Stage = "clipboard"
	StageTTS        Stage = "tts"
	StagePlayback   Stage = "playback"
	StageDeliver    Stage = "deliver"
	StageDispatch   Stage = "dispatch"
)

// PipelineError carries the failing stage so logs, notifications and the
// history row can say more than "failed".
type PipelineError struct {
	Stage Stage
	Mode  protocol.Mode
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s pipeline failed at %s: %v", e.Mode, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func stageErr(stage Stage, mode protocol.Mode, err error) error {
	return &PipelineError{Stage: stage, Mode: mode, Err: err}
}

// rootMessage strips the pipeline wrapping for user-facing notifications.
func rootMessage(err error) string {
	var perr *PipelineError
	if errors.As(err, &perr) && perr.Err != nil {
		return perr.Err.Error()
	}
	return err.Error()
}
