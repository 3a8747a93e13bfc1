// Package encoder turns finished PCM clips into upload payloads for
// the cloud transcription providers.
package encoder

import "fmt"

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	// Encode compresses a whole mono S16 clip.
	Encode(pcm []int16, sampleRate int) ([]byte, error)
	ContentType() string
	Ext() string
}

// New returns the encoder for a configured upload format.
func New(format string) (Encoder, error) {
	switch format {
	case "", "wav":
		return WAVEncoder{}, nil
	case "flac":
		return FlacEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown upload format %q", format)
	}
}
