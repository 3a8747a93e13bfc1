package inject

import (
	"runtime"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// SystemClipboard is the real clipboard.
type SystemClipboard struct{}

func (SystemClipboard) Read() (string, error)   { return cb.ReadAll() }
func (SystemClipboard) Write(text string) error { return cb.WriteAll(text) }

// KeybdPaster sends the platform paste chord with a synthetic
// keystroke (cmd+V on darwin, ctrl+V elsewhere).
type KeybdPaster struct{}

func (KeybdPaster) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}
