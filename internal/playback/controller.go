package playback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// playerArgs holds the flags that keep each known player quiet and headless.
// The audio file path is appended as the final argument.
var playerArgs = map[string][]string{
	"mpv":    {"--no-video", "--really-quiet"},
	"ffplay": {"-nodisp", "-autoexit", "-loglevel", "quiet"},
	"afplay": nil,
	"aplay":  {"-q"},
	"paplay": nil,
}

// waiter is the running player process; faked in tests.
type waiter interface {
	Wait() error
	Kill() error
}

type starter func(ctx context.Context, name string, args ...string) (waiter, error)

type execProcess struct{ cmd *exec.Cmd }

func (p execProcess) Wait() error { return p.cmd.Wait() }
func (p execProcess) Kill() error { return p.cmd.Process.Kill() }

func startPlayer(ctx context.Context, name string, args ...string) (waiter, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

// Controller plays WAV clips through the first external player found on
// PATH. At most one clip plays at a time; a new Play preempts the current
// one and the preempted clip's temp file is removed before the new clip
// starts.
type Controller struct {
	players  []string
	interval time.Duration
	lookPath func(string) (string, error)
	start    starter
	log      *slog.Logger

	startMu sync.Mutex // serializes Play and Stop so last-wins holds
	mu      sync.Mutex
	current *session
}

type session struct {
	path   string
	proc   waiter
	cancel chan struct{}
	done   chan struct{}
	once   sync.Once
}

// stop asks the monitor to kill the player and blocks until its temp file
// is gone.
func (s *session) stop() {
	s.once.Do(func() { close(s.cancel) })
	<-s.done
}

func NewController(cfg config.PlaybackConfig, log *slog.Logger) *Controller {
	return &Controller{
		players:  cfg.Players,
		interval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		lookPath: exec.LookPath,
		start:    startPlayer,
		log:      log.With(slog.String("component", "playback")),
	}
}

// Play starts audio in the background and returns once the clip is handed to
// a player. Any clip already playing is stopped first.
func (c *Controller) Play(audio []byte) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	name, args, err := c.resolvePlayer()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "cw-play-*.wav")
	if err != nil {
		return fmt.Errorf("playback: temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("playback: write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("playback: write clip: %w", err)
	}

	proc, err := c.start(context.Background(), name, append(append([]string{}, args...), path)...)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("playback: start %s: %w", name, err)
	}

	s := &session{path: path, proc: proc, cancel: make(chan struct{}), done: make(chan struct{})}
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	go c.monitor(s)

	c.log.Debug("playback started", slog.String("player", name), slog.Int("bytes", len(audio)))
	return nil
}

// Stop kills the current clip, if any, and waits for its cleanup.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// Playing reports whether a clip is currently active.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Available reports whether any configured player is on PATH.
func (c *Controller) Available() (bool, string) {
	if _, _, err := c.resolvePlayer(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// monitor watches the player until it exits or is preempted. Completion is
// observed on a polling tick; preemption kills immediately. The temp file is
// removed on every path out.
func (c *Controller) monitor(s *session) {
	defer func() {
		os.Remove(s.path)
		c.mu.Lock()
		if c.current == s {
			c.current = nil
		}
		c.mu.Unlock()
		close(s.done)
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- s.proc.Wait() }()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.cancel:
			_ = s.proc.Kill()
			<-waitDone
			return
		case <-ticker.C:
			select {
			case err := <-waitDone:
				if err != nil {
					c.log.Debug("player exited with error", slog.String("error", err.Error()))
				}
				return
			default:
			}
		}
	}
}

func (c *Controller) resolvePlayer() (string, []string, error) {
	for _, name := range c.players {
		if path, err := c.lookPath(name); err == nil {
			return path, playerArgs[name], nil
		}
	}
	return "", nil, fmt.Errorf("playback: no audio player found (tried %s)", strings.Join(c.players, ", "))
}
