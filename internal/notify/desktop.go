package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Desktop shows OS notifications. Failures are logged and swallowed so a
// missing notification daemon never breaks a pipeline.
type Desktop struct {
	log *slog.Logger
}

func NewDesktop(log *slog.Logger) *Desktop {
	return &Desktop{log: log}
}

func (d *Desktop) Info(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		d.log.Debug("notification failed", slog.String("error", err.Error()))
	}
}

func (d *Desktop) Error(title, message string) {
	if err := beeep.Alert(title, message, ""); err != nil {
		d.log.Debug("alert failed", slog.String("error", err.Error()))
	}
	d.beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

// CaptureStarted plays a short rising cue when recording begins.
func (d *Desktop) CaptureStarted() { d.beep(880, 150) }

// CaptureStopped plays a lower cue when recording ends.
func (d *Desktop) CaptureStopped() { d.beep(440, 150) }

func (d *Desktop) beep(freq float64, durationMS int) {
	if err := beeep.Beep(freq, durationMS); err != nil {
		d.log.Debug("beep failed", slog.String("error", err.Error()))
	}
}
