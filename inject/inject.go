// Package inject places finished text into the focused application,
// either by synthetic typing in paced chunks or by a clipboard paste
// that restores the previous clipboard contents.
package inject

import (
	"fmt"
	"time"
)

// Typer performs synthetic typing of one chunk of text. Platforms
// without a usable typer return nil from NewTyper and injection goes
// through the clipboard.
type Typer interface {
	TypeText(text string) error
}

// Paster sends the platform paste chord.
type Paster interface {
	Paste() error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

type Config struct {
	// ChunkSize caps the UTF-16 code units typed per synthetic event
	// batch; long bursts get dropped by some apps.
	ChunkSize int
	// Delay paces consecutive chunks.
	Delay time.Duration
	// Fallback forces the clipboard path unconditionally.
	Fallback bool
}

type Injector struct {
	cfg    Config
	typer  Typer
	clip   Clipboard
	paster Paster
}

func New(cfg Config, typer Typer, clip Clipboard, paster Paster) *Injector {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 20
	}
	return &Injector{cfg: cfg, typer: typer, clip: clip, paster: paster}
}

// Inject types text into the focused app. Typing failures degrade to
// the clipboard paste; empty text is a no-op.
func (i *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}
	if i.cfg.Fallback || i.typer == nil {
		return i.pasteViaClipboard(text)
	}

	chunks := chunkUTF16(text, i.cfg.ChunkSize)
	for n, chunk := range chunks {
		if err := i.typer.TypeText(chunk); err != nil {
			// The focused app rejected synthetic input; paste what is
			// left in one shot.
			rest := ""
			for _, c := range chunks[n:] {
				rest += c
			}
			if pasteErr := i.pasteViaClipboard(rest); pasteErr != nil {
				return fmt.Errorf("typing failed (%v), paste fallback: %w", err, pasteErr)
			}
			return nil
		}
		if i.cfg.Delay > 0 && n < len(chunks)-1 {
			time.Sleep(i.cfg.Delay)
		}
	}
	return nil
}

func (i *Injector) pasteViaClipboard(text string) error {
	if i.clip == nil || i.paster == nil {
		return fmt.Errorf("clipboard injection unavailable")
	}

	prev, prevErr := i.clip.Read()
	if err := i.clip.Write(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if err := i.paster.Paste(); err != nil {
		return fmt.Errorf("paste chord: %w", err)
	}
	// Give the target app a beat to consume the clipboard before the
	// previous contents come back.
	time.Sleep(150 * time.Millisecond)
	if prevErr == nil {
		if err := i.clip.Write(prev); err != nil {
			return fmt.Errorf("restore clipboard: %w", err)
		}
	}
	return nil
}

// chunkUTF16 splits text into chunks of at most limit UTF-16 code
// units, never inside a surrogate pair.
func chunkUTF16(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}
	var chunks []string
	var cur []rune
	units := 0
	for _, r := range text {
		w := 1
		if r > 0xFFFF {
			w = 2
		}
		if units+w > limit && units > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
			units = 0
		}
		cur = append(cur, r)
		units += w
	}
	if len(cur) > 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}
