package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"murmur/appctx"
	"murmur/audio"
	"murmur/config"
	"murmur/correct"
	"murmur/gesture"
	"murmur/inject"
	"murmur/log"
	"murmur/pipeline"
	"murmur/transcriber"
)

// runTestMode drives the full pipeline headlessly from stdin commands,
// replaying a WAV file instead of the microphone and collecting the
// injected text in-process. Commands: KEYDOWN, KEYUP, TAP, WAIT,
// SLEEP <ms>, QUIT.
func runTestMode(cfg config.Config, trans transcriber.Transcriber, corr *correct.Corrector, wavPath string) {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	actx, err := audio.NewFakeContext(wavPath, cfg.STT.Provider == "stream")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(actx, nil, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
	}, vadDetector(cfg.VAD), cfg.Audio.TempDir)

	typer := &inject.FakeTyper{}
	clip := &inject.FakeClipboard{}
	inj := inject.New(inject.Config{ChunkSize: cfg.Inject.ChunkSize}, typer, clip, inject.NewFakePaster(clip))

	orch := pipeline.New(rec, trans, corr, inj, &appctx.Fake{}, pipeline.LogHistory{}, pipelineConfig(cfg))

	recognizer := gesture.New(gesture.Config{
		Key:           cfg.Gesture.Key,
		CancelKey:     cfg.Gesture.CancelKey,
		HoldThreshold: time.Duration(cfg.Gesture.HoldThresholdMS) * time.Millisecond,
		TapWindow:     time.Duration(cfg.Gesture.TapWindowMS) * time.Millisecond,
	})
	tap := gesture.NewFake()
	if err := tap.Install(recognizer.Feed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Drive(ctx, recognizer.Intents())

	// Echo results to stdout as sessions finish.
	go func() {
		for u := range orch.Subscribe() {
			if u.Text != "" {
				fmt.Printf("TRANSCRIPT %s\n", u.Text)
			}
			if u.Event == "no_speech" {
				fmt.Println("NO_SPEECH")
			}
			if u.Err != nil {
				fmt.Printf("ERROR %v\n", u.Err)
			}
		}
	}()

	waitIdle := func() {
		// Settle into an active state first so a WAIT right after a
		// gesture does not return before the session starts.
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) && orch.State() == pipeline.Idle {
			time.Sleep(5 * time.Millisecond)
		}
		for orch.State() != pipeline.Idle {
			time.Sleep(10 * time.Millisecond)
		}
	}

	key := cfg.Gesture.Key
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "KEYDOWN":
			tap.Press(key)
		case cmd == "KEYUP":
			tap.Release(key)
		case cmd == "TAP":
			tap.Press(key)
			tap.Release(key)
		case cmd == "WAIT":
			waitIdle()
		case cmd == "QUIT":
			log.DaemonEnd(orch.Completed())
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	}
}
