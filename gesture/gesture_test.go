package gesture

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testKey = "rightalt"

func newTestRecognizer() *Recognizer {
	return New(Config{
		Key:           testKey,
		CancelKey:     "escape",
		HoldThreshold: 50 * time.Millisecond,
		TapWindow:     50 * time.Millisecond,
	})
}

func expectIntent(t *testing.T, r *Recognizer, want Intent) {
	t.Helper()
	select {
	case got := <-r.Intents():
		if got != want {
			t.Fatalf("intent = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func expectNoIntent(t *testing.T, r *Recognizer, within time.Duration) {
	t.Helper()
	select {
	case got := <-r.Intents():
		t.Fatalf("unexpected intent %v", got)
	case <-time.After(within):
	}
}

func TestHoldEmitsStartOnceAndEndOnRelease(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, StartHold)
	if s := r.State(); s != HoldActive {
		t.Fatalf("state = %v, want HoldActive", s)
	}
	// Still held: no further intents.
	expectNoIntent(t, r, 80*time.Millisecond)

	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, EndHold)
	if s := r.State(); s != Idle {
		t.Fatalf("state = %v, want Idle", s)
	}
}

func TestDoubleTapTogglesOnThenOff(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, ToggleStart)
	if s := r.State(); s != ToggleRecording {
		t.Fatalf("state = %v, want ToggleRecording", s)
	}
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})

	// Further press/release while toggled stops.
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, ToggleStop)
	if s := r.State(); s != Idle {
		t.Fatalf("state = %v, want Idle", s)
	}
}

func TestLoneTapExpiresSilently(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectNoIntent(t, r, 120*time.Millisecond)
	if s := r.State(); s != Idle {
		t.Fatalf("state = %v, want Idle after tap window", s)
	}
}

func TestReleaseBeforeThresholdNeverEmitsHold(t *testing.T) {
	r := newTestRecognizer()

	// Quick tap: the release must win the race against the hold timer.
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	time.Sleep(80 * time.Millisecond)
	select {
	case got := <-r.Intents():
		t.Fatalf("unexpected intent %v after quick tap", got)
	default:
	}
}

func TestAutoRepeatDiscarded(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	for i := 0; i < 5; i++ {
		r.Feed(RawEvent{Key: testKey, Kind: KeyDown, AutoRepeat: true})
	}
	expectIntent(t, r, StartHold)
	expectNoIntent(t, r, 80*time.Millisecond)
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, EndHold)
}

func TestFlagChangeEvents(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: FlagChange, FlagsDown: true})
	// Duplicate flag snapshot, no edge.
	r.Feed(RawEvent{Key: testKey, Kind: FlagChange, FlagsDown: true})
	expectIntent(t, r, StartHold)
	r.Feed(RawEvent{Key: testKey, Kind: FlagChange, FlagsDown: false})
	expectIntent(t, r, EndHold)
}

func TestOtherKeysIgnored(t *testing.T) {
	r := newTestRecognizer()
	r.Feed(RawEvent{Key: "a", Kind: KeyDown})
	r.Feed(RawEvent{Key: "a", Kind: KeyUp})
	expectNoIntent(t, r, 80*time.Millisecond)
	if s := r.State(); s != Idle {
		t.Fatalf("state = %v, want Idle", s)
	}
}

func TestCancelKey(t *testing.T) {
	r := newTestRecognizer()

	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, StartHold)
	r.Feed(RawEvent{Key: "escape", Kind: KeyDown})
	expectIntent(t, r, Cancel)
	if s := r.State(); s != Idle {
		t.Fatalf("state = %v, want Idle after cancel", s)
	}
}

func TestHoldToggleHoldCycles(t *testing.T) {
	r := newTestRecognizer()

	// Cycle 1: hold.
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, StartHold)
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, EndHold)

	// Cycle 2: double tap.
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, ToggleStart)
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, ToggleStop)

	// Cycle 3: hold again.
	r.Feed(RawEvent{Key: testKey, Kind: KeyDown})
	expectIntent(t, r, StartHold)
	r.Feed(RawEvent{Key: testKey, Kind: KeyUp})
	expectIntent(t, r, EndHold)
}

func TestSupervisorRetriesTransientFailure(t *testing.T) {
	tap := NewFake()
	tap.FailInstalls(errors.New("device busy"), errors.New("device busy"))

	sup := NewSupervisor(tap, func(RawEvent) {})
	sup.baseDelay = time.Millisecond
	sup.maxDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for tap.Installs() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := tap.Installs(); got < 3 {
		t.Fatalf("installs = %d, want >= 3", got)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after successful install", err)
	}
}

func TestSupervisorGivesUpAfterRetryBudget(t *testing.T) {
	tap := NewFake()
	for i := 0; i < 20; i++ {
		tap.FailInstalls(errors.New("device busy"))
	}
	sup := NewSupervisor(tap, func(RawEvent) {})
	sup.baseDelay = time.Millisecond
	sup.maxDelay = 2 * time.Millisecond
	sup.maxRetries = 3

	if err := sup.Run(context.Background()); err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if got := tap.Installs(); got != 3 {
		t.Fatalf("installs = %d, want 3", got)
	}
}

func TestSupervisorKeepsRetryingOnPermissionDenied(t *testing.T) {
	tap := NewFake()
	for i := 0; i < 10; i++ {
		tap.FailInstalls(ErrPermission)
	}
	var seen int
	sup := NewSupervisor(tap, func(RawEvent) {})
	sup.baseDelay = time.Millisecond
	sup.maxDelay = 2 * time.Millisecond
	sup.maxRetries = 3
	sup.OnError = func(err error) {
		if errors.Is(err, ErrPermission) {
			seen++
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for tap.Installs() < 6 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// Well past maxRetries and still going: permission errors do not
	// consume the transient budget.
	if got := tap.Installs(); got < 6 {
		t.Fatalf("installs = %d, want >= 6", got)
	}
	cancel()
	<-done
	if seen == 0 {
		t.Error("OnError never observed the permission failure")
	}
}
