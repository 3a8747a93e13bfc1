// Package doctor runs interactive environment diagnostics: input tap
// permission, microphone capture level, transcription round trip, and
// clipboard access. Each check prints PASS/FAIL; the exit code reports
// whether all of them passed.
package doctor

import (
	"context"
	"fmt"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/gesture"
	"murmur/inject"
	"murmur/transcriber"
	"murmur/vad"
)

func Run(cfg config.Config) int {
	fmt.Println("murmur doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	allPass := true

	if !checkTap(cfg.Gesture) {
		allPass = false
	}
	clip := checkMicrophone(cfg)
	if clip == nil {
		allPass = false
	} else {
		defer clip.Discard()
		if !checkTranscription(cfg, clip) {
			allPass = false
		}
	}
	if !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkTap(cfg config.GestureConfig) bool {
	fmt.Println()
	fmt.Println("[1/4] Input tap")
	fmt.Printf("Press the gesture key (%s)...\n", cfg.Key)

	var tap gesture.Tap
	switch cfg.Backend {
	case "", "gohook":
		tap = gesture.NewGohookTap()
	case "hotkey":
		hk, err := gesture.NewHotkeyTap(cfg.Key)
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
		tap = hk
	default:
		fmt.Printf("  FAIL: unknown gesture backend %q\n", cfg.Backend)
		return false
	}

	seen := make(chan struct{}, 1)
	err := tap.Install(func(ev gesture.RawEvent) {
		if ev.Key == cfg.Key {
			select {
			case seen <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		fmt.Printf("  FAIL: could not install input tap: %v\n", err)
		return false
	}
	defer tap.Uninstall()

	select {
	case <-seen:
		fmt.Println("  PASS: gesture key detected")
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for gesture key")
		return false
	}
}

func checkMicrophone(cfg config.Config) *audio.Clip {
	fmt.Println()
	fmt.Println("[2/4] Microphone")
	fmt.Println("Recording 2 seconds — say something...")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: audio context: %v\n", err)
		return nil
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		if device, err = audio.FindDevice(actx, cfg.Audio.Device); err != nil {
			fmt.Printf("  WARN: device %q not found, using default\n", cfg.Audio.Device)
		}
	}
	if device != nil && audio.IsBluetooth(device.Name) {
		fmt.Printf("  WARN: %s looks like a Bluetooth device; capture quality may be degraded\n", device.Name)
	}

	rec := audio.NewRecorder(actx, device, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
	}, vad.NewDetector(vad.DefaultConfig()), cfg.Audio.TempDir)

	if err := rec.Start(context.Background()); err != nil {
		fmt.Printf("  FAIL: start capture: %v\n", err)
		return nil
	}
	time.Sleep(2 * time.Second)
	clip, metrics, err := rec.Stop()
	if err != nil {
		fmt.Printf("  FAIL: stop capture: %v\n", err)
		return nil
	}

	fmt.Printf("  captured %.1fs, avg level %.4f, peak %.4f\n",
		metrics.Duration.Seconds(), metrics.AvgRMS, metrics.Peak)
	if metrics.Peak < 0.01 {
		fmt.Println("  FAIL: no signal from microphone (peak below 0.01)")
		clip.Discard()
		return nil
	}
	fmt.Println("  PASS: microphone captures audio")
	return clip
}

func checkTranscription(cfg config.Config, clip *audio.Clip) bool {
	fmt.Println()
	fmt.Println("[3/4] Transcription")

	trans, err := transcriber.New(cfg.STT)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("Sending clip to %s...\n", trans.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := trans.Transcribe(ctx, clip)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %q\n", result.Text)
	return true
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/4] Clipboard")

	clip := inject.SystemClipboard{}
	previous, prevErr := clip.Read()

	marker := fmt.Sprintf("murmur-doctor-%d", time.Now().UnixNano())
	if err := clip.Write(marker); err != nil {
		fmt.Printf("  FAIL: clipboard write: %v\n", err)
		return false
	}
	got, err := clip.Read()
	if prevErr == nil {
		clip.Write(previous)
	}
	if err != nil {
		fmt.Printf("  FAIL: clipboard read: %v\n", err)
		return false
	}
	if got != marker {
		fmt.Println("  FAIL: clipboard round trip mismatch")
		return false
	}
	fmt.Println("  PASS: clipboard round trip")
	return true
}
