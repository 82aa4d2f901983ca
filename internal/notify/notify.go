package notify

// Notifier surfaces short status messages and audible cues to the user.
type Notifier interface {
	Info(title, message string)
	Error(title, message string)
	CaptureStarted()
	CaptureStopped()
}
