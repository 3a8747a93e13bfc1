package vad

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	clipVADMode    = 3
	clipVADFrameMs = 20
)

// ClipHasSpeech classifies a finished recording. The webrtc frame scan
// decides when the sample rate supports it; otherwise an RMS frame scan
// does; when the clip is too short for either, the FailOpen policy does.
func ClipHasSpeech(cfg Config, pcm []int16, sampleRate int) bool {
	if len(pcm) == 0 {
		return false
	}
	ratio, err := webrtcSpeechRatio(pcm, sampleRate)
	if err != nil {
		r, ok := rmsSpeechRatio(cfg.Threshold, pcm, sampleRate)
		if !ok {
			return cfg.FailOpen
		}
		ratio = r
	}
	return ratio >= cfg.MinSpeechRatio
}

func webrtcSpeechRatio(pcm []int16, sampleRate int) (float64, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return 0, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return 0, err
	}
	if err := v.SetMode(clipVADMode); err != nil {
		return 0, err
	}

	frameSamples := sampleRate * clipVADFrameMs / 1000
	frame := make([]byte, frameSamples*2)
	var total, speech int
	for off := 0; off+frameSamples <= len(pcm); off += frameSamples {
		for i, s := range pcm[off : off+frameSamples] {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
		}
		active, err := v.Process(sampleRate, frame)
		if err != nil {
			continue
		}
		total++
		if active {
			speech++
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("clip shorter than one %dms frame", clipVADFrameMs)
	}
	return float64(speech) / float64(total), nil
}

func rmsSpeechRatio(threshold float64, pcm []int16, sampleRate int) (float64, bool) {
	frameSamples := sampleRate * clipVADFrameMs / 1000
	if frameSamples <= 0 {
		return 0, false
	}
	var total, speech int
	for off := 0; off+frameSamples <= len(pcm); off += frameSamples {
		rms, _ := Levels(pcm[off : off+frameSamples])
		total++
		if rms >= threshold {
			speech++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(speech) / float64(total), true
}
