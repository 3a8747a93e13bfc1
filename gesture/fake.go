package gesture

import (
	"sync"
	"time"
)

// FakeTap scripts raw events for tests.
type FakeTap struct {
	mu          sync.Mutex
	feed        func(RawEvent)
	installErrs []error
	installs    int
}

func NewFake() *FakeTap { return &FakeTap{} }

// FailInstalls queues errors returned by the next Install calls.
func (f *FakeTap) FailInstalls(errs ...error) {
	f.mu.Lock()
	f.installErrs = append(f.installErrs, errs...)
	f.mu.Unlock()
}

func (f *FakeTap) Install(feed func(RawEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs++
	if len(f.installErrs) > 0 {
		err := f.installErrs[0]
		f.installErrs = f.installErrs[1:]
		return err
	}
	f.feed = feed
	return nil
}

func (f *FakeTap) Uninstall() {
	f.mu.Lock()
	f.feed = nil
	f.mu.Unlock()
}

func (f *FakeTap) Installs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs
}

func (f *FakeTap) Emit(ev RawEvent) {
	f.mu.Lock()
	feed := f.feed
	f.mu.Unlock()
	if feed != nil {
		if ev.When.IsZero() {
			ev.When = time.Now()
		}
		feed(ev)
	}
}

func (f *FakeTap) Press(key string)   { f.Emit(RawEvent{Key: key, Kind: KeyDown}) }
func (f *FakeTap) Release(key string) { f.Emit(RawEvent{Key: key, Kind: KeyUp}) }
