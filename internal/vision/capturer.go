package vision

import "context"

// Capturer obtains a screen-region image as PNG bytes.
type Capturer interface {
	CaptureScreenRegion(ctx context.Context) ([]byte, error)
}
