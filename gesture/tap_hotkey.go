package gesture

import (
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// HotkeyTap backs the Tap contract with a registered system hotkey
// instead of a raw event hook. Useful where the hook needs
// accessibility permission the user has not granted; a registered
// hotkey still delivers clean down/up pairs for the gesture key.
// It cannot observe other keys, so the cancel key is unavailable on
// this backend.
type HotkeyTap struct {
	key  string
	mods []hotkey.Modifier
	code hotkey.Key

	mu   sync.Mutex
	hk   *hotkey.Hotkey
	done chan struct{}
}

func NewHotkeyTap(key string) (*HotkeyTap, error) {
	mods, code, err := parseHotkey(key)
	if err != nil {
		return nil, err
	}
	return &HotkeyTap{key: key, mods: mods, code: code}, nil
}

func (t *HotkeyTap) Install(feed func(RawEvent)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hk != nil {
		return nil
	}

	hk := hotkey.New(t.mods, t.code)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %q: %w", t.key, err)
	}

	done := make(chan struct{})
	t.hk = hk
	t.done = done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-hk.Keydown():
				feed(RawEvent{Key: t.key, Kind: KeyDown})
			case <-hk.Keyup():
				feed(RawEvent{Key: t.key, Kind: KeyUp})
			}
		}
	}()
	return nil
}

func (t *HotkeyTap) Uninstall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hk == nil {
		return
	}
	close(t.done)
	t.hk.Unregister()
	t.hk = nil
}

func parseHotkey(spec string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(spec), "+")
	var mods []hotkey.Modifier
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "ctrl":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		default:
			return nil, 0, fmt.Errorf("unsupported modifier %q", p)
		}
	}
	code, ok := hotkeyKeys[parts[len(parts)-1]]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported hotkey key %q", parts[len(parts)-1])
	}
	return mods, code, nil
}

var hotkeyKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace,
	"f13":   hotkey.KeyF13,
	"f14":   hotkey.KeyF14,
	"f15":   hotkey.KeyF15,
	"f16":   hotkey.KeyF16,
	"f17":   hotkey.KeyF17,
	"f18":   hotkey.KeyF18,
	"f19":   hotkey.KeyF19,
}
