package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"murmur/appctx"
	"murmur/audio"
	"murmur/config"
	"murmur/correct"
	"murmur/doctor"
	"murmur/gesture"
	"murmur/inject"
	"murmur/log"
	"murmur/login"
	"murmur/pipeline"
	"murmur/shutdown"
	"murmur/transcriber"
	"murmur/vad"
)

var version = "dev"

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "murmur.yaml"
	}
	return filepath.Join(dir, "murmur", "config.yaml")
}

func buildTap(cfg config.GestureConfig) (gesture.Tap, error) {
	switch cfg.Backend {
	case "", "gohook":
		return gesture.NewGohookTap(), nil
	case "hotkey":
		return gesture.NewHotkeyTap(cfg.Key)
	default:
		return nil, fmt.Errorf("unknown gesture backend %q", cfg.Backend)
	}
}

func buildInjector(cfg config.InjectConfig) *inject.Injector {
	return inject.New(inject.Config{
		ChunkSize: cfg.ChunkSize,
		Delay:     time.Duration(cfg.DelayMS) * time.Millisecond,
		Fallback:  cfg.Fallback,
	}, inject.NewTyper(), inject.SystemClipboard{}, inject.KeybdPaster{})
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		VAD:              vadConfig(cfg.VAD),
		Correction:       cfg.Correction.Enabled,
		CorrectionStream: cfg.Correction.Stream,
		SystemPrompt:     cfg.Correction.SystemPrompt,
		Vocabulary:       cfg.Correction.Vocabulary,
	}
}

func vadConfig(cfg config.VADConfig) vad.Config {
	return vad.Config{
		Threshold:        cfg.Threshold,
		ActivateFrames:   cfg.ActivateFrames,
		DeactivateFrames: cfg.DeactivateFrames,
		MinSpeechRatio:   cfg.MinSpeechRatio,
		FailOpen:         cfg.FailOpen,
	}
}

func vadDetector(cfg config.VADConfig) *vad.Detector {
	return vad.NewDetector(vadConfig(cfg))
}

func run() {
	configFlag := flag.String("config", "", "config file path (default: OS config dir)")
	deviceFlag := flag.String("device", "", "use named microphone device")
	setupFlag := flag.Bool("setup", false, "select microphone device interactively")
	providerFlag := flag.String("provider", "", "override stt provider (cloud, cloudasync, localexec, native, stream)")
	langFlag := flag.String("lang", "", "override transcription language code")
	formatFlag := flag.String("format", "", "override upload format (wav or flac)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	doctorFlag := flag.Bool("doctor", false, "run system diagnostics and exit")
	loginFlag := flag.String("login", "", "enable or disable launch at login (on|off)")
	tuiFlag := flag.Bool("tui", true, "run with terminal UI")
	testFlag := flag.Bool("test", false, "test mode (headless, stdin-driven, WAV file argument)")
	profileFlag := flag.String("profile", "", "enable pprof server (e.g. localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *providerFlag != "" {
		cfg.STT.Provider = *providerFlag
	}
	if *langFlag != "" {
		cfg.STT.Language = *langFlag
	}
	if *formatFlag != "" {
		cfg.STT.Format = *formatFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if *testFlag {
		cfg.STT.Provider = firstNonEmptyStr(*providerFlag, "fake")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logPath, err := log.ResolveDir(firstNonEmptyStr(*logPathFlag, cfg.LogPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n",
			time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	switch *loginFlag {
	case "":
	case "on":
		if err := login.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Launch at login enabled.")
		os.Exit(0)
	case "off":
		if err := login.Disable(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Launch at login disabled.")
		os.Exit(0)
	default:
		fmt.Fprintln(os.Stderr, "Error: -login takes on or off")
		os.Exit(1)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	trans, err := transcriber.New(cfg.STT)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var corr *correct.Corrector
	if cfg.Correction.Enabled {
		corr = correct.New(cfg.Correction)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(cfg, trans, corr, args[0])
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var selected *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		if selected, err = audio.FindDevice(actx, cfg.Audio.Device); err != nil {
			log.Warnf("device %q not found, using default: %v", cfg.Audio.Device, err)
			fmt.Fprintf(os.Stderr, "Warning: device %q not found, using default\n", cfg.Audio.Device)
		}
	} else if *setupFlag {
		if selected, err = audio.SelectDevice(actx); err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed, using default: %v\n", err)
		}
	}

	det := vadDetector(cfg.VAD)
	rec := audio.NewRecorder(actx, selected, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
	}, det, cfg.Audio.TempDir)

	orch := pipeline.New(rec, trans, corr, buildInjector(cfg.Inject),
		appctx.NewProvider(), pipeline.LogHistory{}, pipelineConfig(cfg))

	recognizer := gesture.New(gesture.Config{
		Key:           cfg.Gesture.Key,
		CancelKey:     cfg.Gesture.CancelKey,
		HoldThreshold: time.Duration(cfg.Gesture.HoldThresholdMS) * time.Millisecond,
		TapWindow:     time.Duration(cfg.Gesture.TapWindowMS) * time.Millisecond,
	})
	tap, err := buildTap(cfg.Gesture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		cancel()
		tuiQuit()
	}()

	sup := gesture.NewSupervisor(tap, recognizer.Feed)
	sup.OnError = func(err error) {
		log.Warnf("input tap install failed: %v", err)
		tuiSend(statusTextMsg{Text: "input tap unavailable: " + err.Error()})
	}
	go func() {
		if err := sup.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Errorf("input tap supervisor: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			cancel()
			tuiQuit()
		}
	}()

	log.DaemonStart(trans.Name(), cfg.Correction.Enabled)

	if *tuiFlag {
		startTUI(tuiInfo{
			Version:   version,
			Gesture:   cfg.Gesture.Key,
			Provider:  providerLabel(trans, cfg),
			Device:    deviceLabel(selected),
			Bluetooth: selected != nil && audio.IsBluetooth(selected.Name),
		}, cancel)
		go forwardUpdates(orch, rec)
	}

	go watchDevices(rootCtx, actx, rec, selected)

	orch.Drive(rootCtx, recognizer.Intents())

	log.DaemonEnd(orch.Completed())
	tuiWait()
}

func providerLabel(trans transcriber.Transcriber, cfg config.Config) string {
	label := trans.Name()
	if cfg.STT.Language != "" {
		label += " (" + cfg.STT.Language + ")"
	}
	if cfg.STT.Provider == "cloud" || cfg.STT.Provider == "cloudasync" {
		label += " " + firstNonEmptyStr(cfg.STT.Format, "wav")
	}
	return label
}

func deviceLabel(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "mic: system default"
	}
	suffix := ""
	if audio.IsBluetooth(dev.Name) {
		suffix = " (BT!)"
	}
	return "mic: " + dev.Name + suffix
}

// forwardUpdates pumps orchestrator and level subscriptions into the
// TUI until both channels are gone.
func forwardUpdates(orch *pipeline.Orchestrator, rec *audio.Recorder) {
	updates := orch.Subscribe()
	levels := rec.Levels()
	for {
		select {
		case u := <-updates:
			tuiSend(stateMsg{Update: u})
		case lv := <-levels:
			tuiSend(levelMsg{Level: lv.Level, Peak: lv.Peak, Speech: lv.Speech, Waveform: lv.Waveform})
		}
	}
}

// watchDevices polls for hotplug. A vanished selected device falls back
// to the system default; its reappearance reconnects it.
func watchDevices(ctx context.Context, actx audio.Context, rec *audio.Recorder, selected *audio.DeviceInfo) {
	preferred := ""
	if selected != nil {
		preferred = selected.Name
	}
	current := preferred

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		devices, err := actx.Devices()
		if err != nil {
			continue
		}
		names := make([]string, len(devices))
		for i := range devices {
			names[i] = devices[i].Name
		}
		if current != "" && !slices.Contains(names, current) {
			log.Info("device_disconnected: " + current)
			rec.SetDevice(nil)
			current = ""
			tuiSend(deviceMsg{Text: deviceLabel(nil)})
		} else if current == "" && preferred != "" && slices.Contains(names, preferred) {
			log.Info("device_reconnected: " + preferred)
			for i := range devices {
				if devices[i].Name == preferred {
					rec.SetDevice(&devices[i])
					current = preferred
					tuiSend(deviceMsg{Text: deviceLabel(&devices[i])})
					break
				}
			}
		}
	}
}

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
