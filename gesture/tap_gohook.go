package gesture

import (
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// GohookTap adapts the gohook global event hook into the Tap contract.
// gohook delivers every key on the system; translation to key names
// happens here so the recognizer only ever sees names.
type GohookTap struct {
	mu      sync.Mutex
	done    chan struct{}
	running bool
}

func NewGohookTap() *GohookTap { return &GohookTap{} }

func (t *GohookTap) Install(feed func(RawEvent)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	events := hook.Start()
	if events == nil {
		return ErrPermission
	}

	names := keycodeNames()
	done := make(chan struct{})
	t.done = done
	t.running = true

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				raw, match := translate(ev, names)
				if match {
					feed(raw)
				}
			}
		}
	}()
	return nil
}

func (t *GohookTap) Uninstall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.done)
	hook.End()
	t.running = false
}

// keycodeNames inverts gohook's name->keycode table once per install.
func keycodeNames() map[uint16]string {
	names := make(map[uint16]string, len(hook.Keycode))
	for name, code := range hook.Keycode {
		if _, taken := names[code]; !taken {
			names[code] = name
		}
	}
	return names
}

func translate(ev hook.Event, names map[uint16]string) (RawEvent, bool) {
	var kind EventKind
	switch ev.Kind {
	case hook.KeyDown, hook.KeyHold:
		kind = KeyDown
	case hook.KeyUp:
		kind = KeyUp
	default:
		return RawEvent{}, false
	}
	name, ok := names[ev.Keycode]
	if !ok {
		return RawEvent{}, false
	}
	return RawEvent{
		Key:        name,
		Kind:       kind,
		AutoRepeat: ev.Kind == hook.KeyHold,
		When:       time.Now(),
	}, true
}
