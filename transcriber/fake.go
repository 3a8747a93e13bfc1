package transcriber

import (
	"context"
	"sync"
	"time"

	"murmur/audio"
)

// Fake scripts transcription results for tests.
type Fake struct {
	Text         string
	Err          error
	Delay        time.Duration
	PreCorrected bool

	mu    sync.Mutex
	clips []*audio.Clip
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	f.mu.Lock()
	f.clips = append(f.clips, clip)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &Result{
		Text:         f.Text,
		Provider:     f.Name(),
		PreCorrected: f.PreCorrected,
	}, nil
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clips)
}

func (f *Fake) LastClip() *audio.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clips) == 0 {
		return nil
	}
	return f.clips[len(f.clips)-1]
}
