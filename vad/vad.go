// Package vad classifies audio as speech or silence. The streaming
// detector runs per capture buffer on cheap RMS hysteresis and drives
// live status plus the silence watchdog; the clip detector runs once on
// a finished recording and gates transcription.
package vad

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	// Threshold is the normalized RMS level above which a buffer counts
	// as speech.
	Threshold float64
	// ActivateFrames consecutive buffers above the threshold flip the
	// detector to speech; DeactivateFrames below flip it back.
	ActivateFrames   int
	DeactivateFrames int
	// MinSpeechRatio is the whole-clip speech-frame floor below which a
	// finished recording is treated as silence.
	MinSpeechRatio float64
	// FailOpen keeps a clip when the clip detector cannot classify it.
	FailOpen bool
}

func DefaultConfig() Config {
	return Config{
		Threshold:        0.012,
		ActivateFrames:   3,
		DeactivateFrames: 25,
		MinSpeechRatio:   0.05,
		FailOpen:         true,
	}
}

// Classification is the per-buffer verdict of the streaming detector.
type Classification struct {
	Speech bool
	Level  float64
	Peak   float64
}

// Detector is the streaming detector. Classify is called from the
// device callback goroutine; the other methods from anywhere.
type Detector struct {
	cfg Config

	mu             sync.Mutex
	active         bool
	aboveRun       int
	belowRun       int
	totalFrames    int
	speechFrames   int
	tickTotal      int
	tickSpeech     int
	lastSpeechTime time.Time
}

func NewDetector(cfg Config) *Detector {
	if cfg.ActivateFrames <= 0 {
		cfg.ActivateFrames = 1
	}
	if cfg.DeactivateFrames <= 0 {
		cfg.DeactivateFrames = 1
	}
	return &Detector{cfg: cfg}
}

// Classify folds one capture buffer into the hysteresis state and
// returns the buffer's level along with the current verdict.
func (d *Detector) Classify(samples []int16) Classification {
	level, peak := Levels(samples)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames++
	if level >= d.cfg.Threshold {
		d.speechFrames++
		d.aboveRun++
		d.belowRun = 0
		if !d.active && d.aboveRun >= d.cfg.ActivateFrames {
			d.active = true
		}
		if d.active {
			d.lastSpeechTime = time.Now()
		}
	} else {
		d.belowRun++
		d.aboveRun = 0
		if d.active && d.belowRun >= d.cfg.DeactivateFrames {
			d.active = false
		}
	}

	return Classification{Speech: d.active, Level: level, Peak: peak}
}

func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Detector) LastSpeechTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSpeechTime
}

// Stats returns total and speech-classified buffer counts since the
// last Reset.
func (d *Detector) Stats() (total, speech int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrames, d.speechFrames
}

// TickRatio returns the speech-buffer ratio since the previous call.
// The silence watchdog polls it on a fixed interval.
func (d *Detector) TickRatio() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.totalFrames - d.tickTotal
	s := d.speechFrames - d.tickSpeech
	d.tickTotal, d.tickSpeech = d.totalFrames, d.speechFrames
	if t == 0 {
		return 0
	}
	return float64(s) / float64(t)
}

// Reset clears all state at session start.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	d.aboveRun = 0
	d.belowRun = 0
	d.totalFrames = 0
	d.speechFrames = 0
	d.tickTotal = 0
	d.tickSpeech = 0
	d.lastSpeechTime = time.Time{}
}

// Levels returns the normalized RMS and peak of a 16-bit sample buffer.
func Levels(samples []int16) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}
