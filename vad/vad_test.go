package vad

import (
	"math"
	"testing"
)

func genTone(freq float64, sampleRate, durationMs int) []int16 {
	n := sampleRate * durationMs / 1000
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func genSilence(sampleRate, durationMs int) []int16 {
	return make([]int16, sampleRate*durationMs/1000)
}

func feedBuffers(d *Detector, samples []int16, bufSize int) (last Classification) {
	for i := 0; i < len(samples); i += bufSize {
		end := i + bufSize
		if end > len(samples) {
			end = len(samples)
		}
		last = d.Classify(samples[i:end])
	}
	return last
}

func TestDetectorActivatesAfterConsecutiveLoudBuffers(t *testing.T) {
	d := NewDetector(Config{Threshold: 0.012, ActivateFrames: 3, DeactivateFrames: 25})

	tone := genTone(440, 16000, 20)
	c := d.Classify(tone)
	if c.Speech {
		t.Fatal("active after one loud buffer, want three")
	}
	d.Classify(tone)
	c = d.Classify(tone)
	if !c.Speech {
		t.Fatal("not active after three loud buffers")
	}
	if c.Level < 0.012 {
		t.Errorf("tone level = %f, want above threshold", c.Level)
	}
}

func TestDetectorDeactivatesAfterSilenceRun(t *testing.T) {
	d := NewDetector(Config{Threshold: 0.012, ActivateFrames: 1, DeactivateFrames: 5})

	d.Classify(genTone(440, 16000, 20))
	if !d.Active() {
		t.Fatal("not active after loud buffer")
	}

	quiet := genSilence(16000, 20)
	for i := 0; i < 4; i++ {
		if c := d.Classify(quiet); !c.Speech {
			t.Fatalf("deactivated after %d quiet buffers, want 5", i+1)
		}
	}
	if c := d.Classify(quiet); c.Speech {
		t.Fatal("still active after five quiet buffers")
	}
}

func TestDetectorBriefDipDoesNotDeactivate(t *testing.T) {
	d := NewDetector(Config{Threshold: 0.012, ActivateFrames: 1, DeactivateFrames: 25})

	tone := genTone(440, 16000, 20)
	d.Classify(tone)
	// A few quiet buffers inside a word must not flip the state.
	feedBuffers(d, genSilence(16000, 100), 320)
	if !d.Active() {
		t.Fatal("deactivated during a brief dip")
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(DefaultConfig())
	feedBuffers(d, genTone(440, 16000, 200), 320)
	d.Reset()
	if d.Active() {
		t.Error("active after reset")
	}
	if !d.LastSpeechTime().IsZero() {
		t.Error("non-zero LastSpeechTime after reset")
	}
	if total, speech := d.Stats(); total != 0 || speech != 0 {
		t.Errorf("stats = %d/%d after reset, want 0/0", speech, total)
	}
}

func TestDetectorTickRatio(t *testing.T) {
	d := NewDetector(Config{Threshold: 0.012, ActivateFrames: 1, DeactivateFrames: 25})

	feedBuffers(d, genTone(440, 16000, 100), 320)
	if r := d.TickRatio(); r != 1 {
		t.Errorf("tick ratio = %f over loud window, want 1", r)
	}
	feedBuffers(d, genSilence(16000, 100), 320)
	if r := d.TickRatio(); r != 0 {
		t.Errorf("tick ratio = %f over quiet window, want 0", r)
	}
	// No new buffers since the last tick.
	if r := d.TickRatio(); r != 0 {
		t.Errorf("tick ratio = %f with no new buffers, want 0", r)
	}
}

func TestLevels(t *testing.T) {
	rms, peak := Levels(nil)
	if rms != 0 || peak != 0 {
		t.Errorf("Levels(nil) = %f, %f, want 0, 0", rms, peak)
	}
	rms, peak = Levels(genTone(440, 16000, 100))
	if rms <= 0 || peak <= rms {
		t.Errorf("tone rms = %f, peak = %f", rms, peak)
	}
}

func TestClipSilenceIsNotSpeech(t *testing.T) {
	cfg := DefaultConfig()
	if ClipHasSpeech(cfg, genSilence(16000, 500), 16000) {
		t.Error("silence classified as speech")
	}
}

func TestClipEmptyIsNotSpeech(t *testing.T) {
	cfg := Config{FailOpen: true}
	if ClipHasSpeech(cfg, nil, 16000) {
		t.Error("empty clip classified as speech")
	}
}

func TestClipRMSFallbackOnUnsupportedRate(t *testing.T) {
	// 22050Hz is outside the frame scanner's supported rates, so the
	// RMS scan decides.
	cfg := DefaultConfig()
	if !ClipHasSpeech(cfg, genTone(440, 22050, 500), 22050) {
		t.Error("loud clip classified as silence on the fallback path")
	}
	if ClipHasSpeech(cfg, genSilence(22050, 500), 22050) {
		t.Error("silent clip classified as speech on the fallback path")
	}
}

func TestClipFailOpenPolicy(t *testing.T) {
	// Shorter than one frame at an unsupported rate: neither scan can
	// run, the policy decides.
	short := genSilence(22050, 10)
	if !ClipHasSpeech(Config{FailOpen: true}, short, 22050) {
		t.Error("unclassifiable clip dropped with FailOpen=true")
	}
	if ClipHasSpeech(Config{FailOpen: false}, short, 22050) {
		t.Error("unclassifiable clip kept with FailOpen=false")
	}
}
