// Package pipeline orchestrates one dictation session at a time:
// capture, speech gate, transcription, optional correction, injection.
// Every terminal outcome returns to Idle with capture released and the
// temp file gone.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/appctx"
	"murmur/audio"
	"murmur/correct"
	"murmur/gesture"
	"murmur/inject"
	"murmur/log"
	"murmur/transcriber"
	"murmur/vad"
)

type State int

const (
	Idle State = iota
	Recording
	Transcribing
	Correcting
	Injecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Correcting:
		return "correcting"
	case Injecting:
		return "injecting"
	}
	return "unknown"
}

var (
	// ErrBusy rejects a start while a session is active, with zero side
	// effects on the running session.
	ErrBusy = errors.New("a dictation session is already active")
	// ErrNoSession rejects a stop with nothing to stop.
	ErrNoSession = errors.New("no active session")
)

// Update is a non-blocking status notification for the UI layer.
type Update struct {
	State State
	// Text is the final injected text when a session completes.
	Text string
	// Event names out-of-band happenings: "silence_warning",
	// "silence_cleared", "silence_auto_stop", "no_speech", "cancelled".
	Event string
	Err   error
}

// Session is the per-session record pushed to History.
type Session struct {
	ID        string
	StartedAt time.Time
	Toggle    bool
	// Outcome is "ok", "empty", "cancelled", or "failed".
	Outcome       string
	Text          string
	Provider      string
	AudioDuration time.Duration
	Transcribe    time.Duration
	Correct       time.Duration
	Inject        time.Duration
	FirstToken    time.Duration
	AvgRMS        float64
	Peak          float64
	Corrected     bool
	Err           string
}

type History interface {
	Append(Session)
}

// LogHistory is the shipped History sink: session metrics to the
// diagnostics log, final text to the transcript log.
type LogHistory struct{}

func (LogHistory) Append(s Session) {
	log.Session(log.SessionMetrics{
		SessionID:    s.ID,
		Provider:     s.Provider,
		CaptureS:     s.AudioDuration.Seconds(),
		AvgLevel:     s.AvgRMS,
		PeakLevel:    s.Peak,
		TranscribeMs: ms(s.Transcribe),
		CorrectMs:    ms(s.Correct),
		InjectMs:     ms(s.Inject),
		FirstTokenMs: ms(s.FirstToken),
		Corrected:    s.Corrected,
		NoSpeech:     s.Outcome == "empty",
	})
	if s.Outcome == "ok" && s.Text != "" {
		log.TranscriptionText(s.Text)
	}
}

type Config struct {
	VAD vad.Config
	// MinClip discards recordings too short to hold a word.
	MinClip          time.Duration
	Correction       bool
	CorrectionStream bool
	SystemPrompt     string
	Vocabulary       []string
}

type Orchestrator struct {
	rec   *audio.Recorder
	trans transcriber.Transcriber
	corr  *correct.Corrector
	inj   *inject.Injector
	app   appctx.Provider
	hist  History
	cfg   Config

	updates chan Update

	mu        sync.Mutex
	state     State
	sctx      context.Context
	cancel    context.CancelFunc
	toggle    bool
	startedAt time.Time
	sessionID string
	completed int
}

func New(rec *audio.Recorder, trans transcriber.Transcriber, corr *correct.Corrector,
	inj *inject.Injector, app appctx.Provider, hist History, cfg Config) *Orchestrator {
	if cfg.MinClip <= 0 {
		cfg.MinClip = 100 * time.Millisecond
	}
	return &Orchestrator{
		rec:     rec,
		trans:   trans,
		corr:    corr,
		inj:     inj,
		app:     app,
		hist:    hist,
		cfg:     cfg,
		updates: make(chan Update, 32),
	}
}

// Subscribe is the status stream. Sends never block; a slow consumer
// misses updates.
func (o *Orchestrator) Subscribe() <-chan Update { return o.updates }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Completed reports how many sessions reached a terminal state.
func (o *Orchestrator) Completed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

func (o *Orchestrator) emit(u Update) {
	select {
	case o.updates <- u:
	default:
	}
}

// Drive consumes gesture intents until ctx is cancelled or the intent
// channel closes. Stops run asynchronously so a cancel intent can
// still interrupt an in-flight session.
func (o *Orchestrator) Drive(ctx context.Context, intents <-chan gesture.Intent) {
	for {
		select {
		case <-ctx.Done():
			o.Cancel()
			return
		case intent, ok := <-intents:
			if !ok {
				o.Cancel()
				return
			}
			o.handle(ctx, intent)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, intent gesture.Intent) {
	switch intent {
	case gesture.StartHold:
		if err := o.Start(ctx, false); err != nil {
			log.Warnf("hold start rejected: %v", err)
			o.emit(Update{State: o.State(), Err: err})
		}
	case gesture.ToggleStart:
		if err := o.Start(ctx, true); err != nil {
			log.Warnf("toggle start rejected: %v", err)
			o.emit(Update{State: o.State(), Err: err})
		}
	case gesture.EndHold, gesture.ToggleStop:
		go func() {
			if _, err := o.Stop(); err != nil && !errors.Is(err, ErrNoSession) {
				log.Errorf("session failed: %v", err)
			}
		}()
	case gesture.Cancel:
		o.Cancel()
	}
}

// Start begins a capture session. A second start while any session is
// active returns ErrBusy and touches nothing.
func (o *Orchestrator) Start(ctx context.Context, toggle bool) error {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return ErrBusy
	}
	sctx, cancel := context.WithCancel(ctx)
	o.state = Recording
	o.sctx = sctx
	o.cancel = cancel
	o.toggle = toggle
	o.startedAt = time.Now()
	o.sessionID = uuid.NewString()
	o.mu.Unlock()

	if err := o.rec.Start(sctx); err != nil {
		o.mu.Lock()
		o.state = Idle
		o.cancel = nil
		o.sctx = nil
		o.mu.Unlock()
		cancel()
		return fmt.Errorf("start capture: %w", err)
	}

	log.Info("recording_start")
	o.emit(Update{State: Recording})
	go o.watch(sctx, toggle)
	return nil
}

// watch runs the silence watchdog for the lifetime of the capture.
func (o *Orchestrator) watch(sctx context.Context, toggle bool) {
	mon := newSilenceMonitor(toggle)
	det := o.rec.Detector()
	ticker := time.NewTicker(watchTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sctx.Done():
			return
		case <-ticker.C:
			switch mon.Tick(det.TickRatio() >= speechMinRatio) {
			case silenceWarn, silenceRepeat:
				log.Info("no_voice_warning")
				o.emit(Update{State: Recording, Event: "silence_warning"})
			case silenceWarnClear:
				o.emit(Update{State: Recording, Event: "silence_cleared"})
			case silenceAutoStop:
				log.Info("silence_auto_stop")
				o.emit(Update{State: Recording, Event: "silence_auto_stop"})
				go o.Stop()
				return
			}
		}
	}
}

// Stop finishes the capture and runs the session to a terminal state.
// Cancellation between stages aborts cleanly; a correction failure
// degrades to injecting the raw transcript.
func (o *Orchestrator) Stop() (*Session, error) {
	o.mu.Lock()
	if o.state != Recording {
		err := ErrNoSession
		if o.state != Idle {
			err = ErrBusy
		}
		o.mu.Unlock()
		return nil, err
	}
	o.state = Transcribing
	sctx := o.sctx
	sess := &Session{ID: o.sessionID, StartedAt: o.startedAt, Toggle: o.toggle}
	o.mu.Unlock()

	log.Info("recording_stop")
	o.emit(Update{State: Transcribing})

	clip, metrics, err := o.rec.Stop()
	if err != nil {
		return o.finishErr(sess, fmt.Errorf("stop capture: %w", err))
	}
	defer clip.Discard()
	sess.AudioDuration = metrics.Duration
	sess.AvgRMS = metrics.AvgRMS
	sess.Peak = metrics.Peak

	if sctx.Err() != nil {
		return o.finishCancelled(sess)
	}

	if metrics.Duration < o.cfg.MinClip ||
		!vad.ClipHasSpeech(o.cfg.VAD, clip.PCM, clip.SampleRate) {
		log.Info("no_speech_detected")
		return o.finishEmpty(sess)
	}

	t0 := time.Now()
	result, err := o.trans.Transcribe(sctx, clip)
	sess.Transcribe = time.Since(t0)
	if err != nil {
		if sctx.Err() != nil || errors.Is(err, context.Canceled) {
			return o.finishCancelled(sess)
		}
		return o.finishErr(sess, fmt.Errorf("transcribe: %w", err))
	}
	sess.Provider = result.Provider
	if m := result.Metrics; m != nil {
		log.NetworkTiming(result.Provider, ms(m.DNS), ms(m.TLS), ms(m.TTFB), ms(m.Total), m.ConnReused)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return o.finishEmpty(sess)
	}

	if o.cfg.Correction && o.corr != nil && !result.PreCorrected {
		o.setState(Correcting)
		req := correct.Request{
			Text:         text,
			SystemPrompt: o.cfg.SystemPrompt,
			Vocabulary:   o.cfg.Vocabulary,
			Stream:       o.cfg.CorrectionStream,
		}
		if o.app != nil {
			if snap, err := o.app.Current(); err == nil {
				req.Hints = correct.ContextHints{
					AppName:     snap.AppName,
					FocusedRole: snap.FocusedRole,
					WindowTitle: snap.WindowTitle,
				}
			}
		}
		t0 = time.Now()
		res, err := o.corr.Correct(sctx, req)
		sess.Correct = time.Since(t0)
		switch {
		case err != nil && (sctx.Err() != nil || errors.Is(err, context.Canceled)):
			return o.finishCancelled(sess)
		case err != nil:
			log.Warnf("correction failed, using raw transcript: %v", err)
		case res.Text != "":
			text = res.Text
			sess.Corrected = true
			sess.FirstToken = res.FirstToken
		}
	}

	if sctx.Err() != nil {
		return o.finishCancelled(sess)
	}

	o.setState(Injecting)
	t0 = time.Now()
	if err := o.inj.Inject(text); err != nil {
		sess.Text = text
		return o.finishErr(sess, fmt.Errorf("inject: %w", err))
	}
	sess.Inject = time.Since(t0)
	sess.Text = text
	return o.finishOK(sess)
}

// Cancel aborts whatever is in flight. During capture it tears down
// audio and deletes the temp file itself; during later stages it
// cancels the session context and the in-flight Stop unwinds.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	switch o.state {
	case Idle:
		o.mu.Unlock()
		return
	case Recording:
		sess := Session{ID: o.sessionID, StartedAt: o.startedAt, Toggle: o.toggle, Outcome: "cancelled"}
		o.state = Idle
		if o.cancel != nil {
			o.cancel()
			o.cancel = nil
		}
		o.sctx = nil
		o.completed++
		o.mu.Unlock()
		o.rec.Cancel()
		log.Info("session_cancelled")
		if o.hist != nil {
			o.hist.Append(sess)
		}
		o.emit(Update{State: Idle, Event: "cancelled"})
	default:
		if o.cancel != nil {
			o.cancel()
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(Update{State: s})
}

func (o *Orchestrator) finalize(sess *Session) {
	o.mu.Lock()
	o.state = Idle
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.sctx = nil
	o.completed++
	o.mu.Unlock()
	if o.hist != nil {
		o.hist.Append(*sess)
	}
}

func (o *Orchestrator) finishOK(sess *Session) (*Session, error) {
	sess.Outcome = "ok"
	o.finalize(sess)
	o.emit(Update{State: Idle, Text: sess.Text})
	return sess, nil
}

func (o *Orchestrator) finishEmpty(sess *Session) (*Session, error) {
	sess.Outcome = "empty"
	o.finalize(sess)
	o.emit(Update{State: Idle, Event: "no_speech"})
	return sess, nil
}

func (o *Orchestrator) finishCancelled(sess *Session) (*Session, error) {
	sess.Outcome = "cancelled"
	o.finalize(sess)
	log.Info("session_cancelled")
	o.emit(Update{State: Idle, Event: "cancelled"})
	return sess, nil
}

func (o *Orchestrator) finishErr(sess *Session, err error) (*Session, error) {
	sess.Outcome = "failed"
	sess.Err = err.Error()
	o.finalize(sess)
	o.emit(Update{State: Idle, Err: err})
	return sess, err
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
