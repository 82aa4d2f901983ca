package vision

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

type execCapturer struct {
	cmd []string
	cfg config.VisionConfig
}

// NewExecCapturer shells out to a configured screen-capture command. A
// fresh temp PNG path is appended as the final argument; the command must
// write the captured region there.
func NewExecCapturer(cfg config.VisionConfig) (Capturer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse vision command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("vision command is empty")
	}
	return &execCapturer{cmd: args, cfg: cfg}, nil
}

func (c *execCapturer) CaptureScreenRegion(ctx context.Context) ([]byte, error) {
	if c.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("cw-capture-%s.png", uuid.NewString()))
	defer os.Remove(outPath)

	args := append([]string{}, c.cmd...)
	base := args[0]
	cmdArgs := append(args[1:], outPath)

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("vision command failed: %w: %s", err, stderr.String())
	}

	image, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read captured image: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("vision command produced an empty image")
	}
	return image, nil
}
