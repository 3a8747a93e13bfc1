// Package transcriber turns finished audio clips into text. Every
// provider sits behind the same single-call contract; the pipeline
// neither knows nor cares whether the provider is a local binary, a
// sync REST endpoint, an async job queue, or a websocket stream.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"murmur/audio"
	"murmur/config"
)

// ErrTimeout reports that an async job did not reach a terminal status
// within the configured polling bound. Distinct from a provider error:
// the job may still finish server-side, we just stopped waiting.
var ErrTimeout = errors.New("transcription polling timed out")

// StatusError is a non-200 provider response.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

type Result struct {
	Text     string
	Provider string
	// Duration is wall-clock time spent in the provider.
	Duration time.Duration
	// PreCorrected marks providers that clean up text server-side, so
	// the LLM correction stage is skipped.
	PreCorrected bool
	Metrics      *NetworkMetrics
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error)
}

// New selects a provider from configuration, once at startup.
func New(cfg config.STTConfig) (Transcriber, error) {
	switch cfg.Provider {
	case "cloud":
		return newCloud(cfg)
	case "cloudasync":
		return newAsyncJob(cfg)
	case "localexec":
		return newLocalExec(cfg)
	case "native":
		return newNative(cfg)
	case "stream":
		return newStream(cfg)
	case "fake":
		return &Fake{Text: "fake transcript"}, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
