package transcriber

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"murmur/audio"
	"murmur/config"
)

// LocalExec runs an on-device batch recognizer binary (whisper-cli
// style) against the clip's WAV file. No audio leaves the machine.
type LocalExec struct {
	argv      []string
	modelPath string
	lang      string
}

func newLocalExec(cfg config.STTConfig) (*LocalExec, error) {
	argv, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty recognizer command")
	}
	return &LocalExec{
		argv:      argv,
		modelPath: cfg.ModelPath,
		lang:      cfg.Language,
	}, nil
}

func (l *LocalExec) Name() string { return "localexec" }

func (l *LocalExec) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	start := time.Now()

	args := append([]string{}, l.argv[1:]...)
	if l.modelPath != "" {
		args = append(args, "-m", l.modelPath)
	}
	if l.lang != "" {
		args = append(args, "-l", l.lang)
	}
	args = append(args, "--no-timestamps", "-f", clip.Path)

	cmd := exec.CommandContext(ctx, l.argv[0], args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("recognizer %s: %w: %s", l.argv[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("recognizer %s: %w", l.argv[0], err)
	}

	return &Result{
		Text:     cleanRecognizerOutput(string(out)),
		Provider: l.Name(),
		Duration: time.Since(start),
	}, nil
}

var timestampPrefix = regexp.MustCompile(`^\[[0-9:.,>\s-]+\]\s*`)

// cleanRecognizerOutput joins the recognizer's stdout lines, dropping
// any per-segment timestamp prefixes older builds emit even with
// timestamps disabled.
func cleanRecognizerOutput(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = timestampPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
