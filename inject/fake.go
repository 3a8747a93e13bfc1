package inject

import "sync"

// FakeTyper records typed chunks.
type FakeTyper struct {
	Err error

	mu     sync.Mutex
	chunks []string
}

func (f *FakeTyper) TypeText(text string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	f.chunks = append(f.chunks, text)
	f.mu.Unlock()
	return nil
}

func (f *FakeTyper) Chunks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chunks...)
}

func (f *FakeTyper) Typed() string {
	var out string
	for _, c := range f.Chunks() {
		out += c
	}
	return out
}

// FakeClipboard is an in-memory clipboard.
type FakeClipboard struct {
	mu      sync.Mutex
	content string
	history []string
}

func (f *FakeClipboard) Read() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *FakeClipboard) Write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = text
	f.history = append(f.history, text)
	return nil
}

func (f *FakeClipboard) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

// FakePaster records paste chords and captures the clipboard at paste
// time, like a real target app would.
type FakePaster struct {
	clip *FakeClipboard

	mu     sync.Mutex
	pasted []string
}

func NewFakePaster(clip *FakeClipboard) *FakePaster {
	return &FakePaster{clip: clip}
}

func (f *FakePaster) Paste() error {
	content, _ := f.clip.Read()
	f.mu.Lock()
	f.pasted = append(f.pasted, content)
	f.mu.Unlock()
	return nil
}

func (f *FakePaster) Pasted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pasted...)
}
