// Package gesture classifies raw global key events into recording
// intents. A single configured gesture key supports two forms: hold-to-
// talk (key held past a debounce threshold) and tap-to-toggle (two taps
// inside a short window). The recognizer runs on the input tap's
// callback goroutine and hands intents to the pipeline through a
// buffered channel; it never blocks.
package gesture

import (
	"sync"
	"sync/atomic"
	"time"
)

type Intent int

const (
	StartHold Intent = iota
	EndHold
	ToggleStart
	ToggleStop
	Cancel
)

func (i Intent) String() string {
	switch i {
	case StartHold:
		return "start_hold"
	case EndHold:
		return "end_hold"
	case ToggleStart:
		return "toggle_start"
	case ToggleStop:
		return "toggle_stop"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

type State int

const (
	Idle State = iota
	HoldPending
	WaitSecondTap
	HoldActive
	ToggleRecording
	ToggleStopping
)

type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
	// FlagChange carries a modifier flag transition; press/release is
	// inferred from FlagsDown.
	FlagChange
)

// RawEvent is one low-level key event as delivered by the input tap.
type RawEvent struct {
	Key        string
	Kind       EventKind
	FlagsDown  bool
	AutoRepeat bool
	When       time.Time
}

type Config struct {
	Key           string
	CancelKey     string
	HoldThreshold time.Duration
	TapWindow     time.Duration
}

const (
	defaultHoldThreshold = 300 * time.Millisecond
	defaultTapWindow     = 300 * time.Millisecond
)

// Recognizer is the single owned gesture state object. Only Feed (on
// the tap goroutine) and the timer callbacks mutate it, both under one
// mutex, so a transition that arms a timer always invalidates the
// previous one before the new state is visible.
type Recognizer struct {
	cfg Config

	mu       sync.Mutex
	state    State
	keyDown  bool
	timer    *time.Timer
	timerSeq uint64

	intents chan Intent
	dropped atomic.Uint64
}

func New(cfg Config) *Recognizer {
	if cfg.HoldThreshold <= 0 {
		cfg.HoldThreshold = defaultHoldThreshold
	}
	if cfg.TapWindow <= 0 {
		cfg.TapWindow = defaultTapWindow
	}
	return &Recognizer{
		cfg:     cfg,
		intents: make(chan Intent, 8),
	}
}

// Intents returns the channel the pipeline consumes. If the consumer
// falls behind, intents are dropped rather than blocking the tap.
func (r *Recognizer) Intents() <-chan Intent { return r.intents }

// Dropped reports how many intents were discarded on a full channel.
func (r *Recognizer) Dropped() uint64 { return r.dropped.Load() }

func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset cancels any pending timer and returns to Idle without emitting.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimer()
	r.state = Idle
	r.keyDown = false
}

// Feed consumes one raw event. Safe to call from the tap callback; it
// does no I/O and never blocks.
func (r *Recognizer) Feed(ev RawEvent) {
	if ev.AutoRepeat {
		return
	}

	pressed := ev.Kind == KeyDown
	if ev.Kind == FlagChange {
		pressed = ev.FlagsDown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Key == r.cfg.CancelKey && r.cfg.CancelKey != "" {
		if pressed {
			r.cancelTimer()
			r.state = Idle
			r.keyDown = false
			r.emit(Cancel)
		}
		return
	}
	if ev.Key != r.cfg.Key {
		return
	}
	// Repeated flag snapshots with no edge carry no information.
	if pressed == r.keyDown {
		return
	}
	r.keyDown = pressed

	switch r.state {
	case Idle:
		if pressed {
			r.state = HoldPending
			r.armTimer(r.cfg.HoldThreshold)
		}
	case HoldPending:
		if !pressed {
			// Released before the threshold: first tap of a
			// potential double-tap.
			r.cancelTimer()
			r.state = WaitSecondTap
			r.armTimer(r.cfg.TapWindow)
		}
	case WaitSecondTap:
		if pressed {
			r.cancelTimer()
			r.state = ToggleRecording
			r.emit(ToggleStart)
		}
	case HoldActive:
		if !pressed {
			r.state = Idle
			r.emit(EndHold)
		}
	case ToggleRecording:
		if pressed {
			r.state = ToggleStopping
		}
	case ToggleStopping:
		if !pressed {
			r.state = Idle
			r.emit(ToggleStop)
		}
	}
}

// armTimer invalidates any outstanding timer and starts a new one for
// the current state. Callers hold r.mu.
func (r *Recognizer) armTimer(d time.Duration) {
	r.timerSeq++
	seq := r.timerSeq
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, func() { r.onTimeout(seq) })
}

func (r *Recognizer) cancelTimer() {
	r.timerSeq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Recognizer) onTimeout(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A newer event won the race against this timer.
	if seq != r.timerSeq {
		return
	}
	switch r.state {
	case HoldPending:
		r.state = HoldActive
		r.emit(StartHold)
	case WaitSecondTap:
		// Lone tap, window closed without a second press.
		r.state = Idle
	}
}

func (r *Recognizer) emit(i Intent) {
	select {
	case r.intents <- i:
	default:
		r.dropped.Add(1)
	}
}
