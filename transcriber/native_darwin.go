package transcriber

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"murmur/audio"
	"murmur/config"
)

// Native bridges to the OS speech recognizer through the `hear` CLI,
// which fronts Apple's Speech framework. Requires the Speech
// Recognition permission; no network, no API key.
type Native struct {
	lang string
}

func newNative(cfg config.STTConfig) (*Native, error) {
	if _, err := exec.LookPath("hear"); err != nil {
		return nil, fmt.Errorf("native provider requires the hear CLI (brew install hear): %w", err)
	}
	return &Native{lang: cfg.Language}, nil
}

func (n *Native) Name() string { return "native" }

func (n *Native) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	start := time.Now()

	args := []string{"-d", "-i", clip.Path}
	if n.lang != "" {
		args = append(args, "-l", n.lang)
	}
	out, err := exec.CommandContext(ctx, "hear", args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("hear: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("hear: %w", err)
	}

	return &Result{
		Text:     strings.TrimSpace(string(out)),
		Provider: n.Name(),
		Duration: time.Since(start),
	}, nil
}
