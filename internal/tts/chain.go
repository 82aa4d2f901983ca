package tts

import (
	"context"
	"log/slog"
	"strings"
)

// Chain tries the kitten bridge first and falls back to the operating system
// voice when the bridge is unavailable or fails.
type Chain struct {
	primary   Engine
	secondary Engine
	log       *slog.Logger
}

func NewChain(primary, secondary Engine, log *slog.Logger) *Chain {
	return &Chain{
		primary:   primary,
		secondary: secondary,
		log:       log.With(slog.String("component", "tts-chain")),
	}
}

// Generate synthesizes req with the first engine that succeeds. It always
// returns a result; every engine failure is folded into ErrorMessage rather
// than surfaced as an error or a panic.
func (c *Chain) Generate(ctx context.Context, req TtsRequest) TtsResult {
	if strings.TrimSpace(req.Text) == "" {
		return TtsResult{Success: false, ErrorMessage: "empty text"}
	}
	var failures []string
	for _, engine := range []Engine{c.primary, c.secondary} {
		if engine == nil {
			continue
		}
		if !engine.Available(ctx) {
			failures = append(failures, engine.Name()+": unavailable")
			continue
		}
		res, err := engine.Synthesize(ctx, req)
		if err != nil {
			c.log.Warn("tts engine failed",
				slog.String("engine", engine.Name()),
				slog.String("error", err.Error()))
			failures = append(failures, engine.Name()+": "+err.Error())
			continue
		}
		res.Engine = engine.Name()
		return res
	}
	msg := "no tts engine available"
	if len(failures) > 0 {
		msg = strings.Join(failures, "; ")
	}
	return TtsResult{Success: false, ErrorMessage: msg}
}
