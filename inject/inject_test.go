package inject

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"
)

func TestChunkUTF16RespectsLimit(t *testing.T) {
	text := strings.Repeat("abcde ", 10)
	chunks := chunkUTF16(text, 20)
	var rebuilt string
	for _, c := range chunks {
		if n := len(utf16.Encode([]rune(c))); n > 20 {
			t.Errorf("chunk %q is %d UTF-16 units", c, n)
		}
		rebuilt += c
	}
	if rebuilt != text {
		t.Errorf("rebuilt = %q, want %q", rebuilt, text)
	}
}

func TestChunkUTF16NeverSplitsSurrogatePairs(t *testing.T) {
	// Each emoji is one rune but two UTF-16 code units, so odd limits
	// cannot be filled exactly.
	text := "a🎤b🎤🎤c" + strings.Repeat("🎤", 5)
	for limit := 1; limit <= 5; limit++ {
		var rebuilt string
		for _, c := range chunkUTF16(text, limit) {
			if !utf8.ValidString(c) {
				t.Fatalf("limit %d: chunk %q is not valid UTF-8", limit, c)
			}
			if n := len(utf16.Encode([]rune(c))); n > limit && len([]rune(c)) > 1 {
				t.Errorf("limit %d: chunk %q is %d units", limit, c, n)
			}
			rebuilt += c
		}
		if rebuilt != text {
			t.Errorf("limit %d: rebuilt = %q, want %q", limit, rebuilt, text)
		}
	}
}

func TestInjectTypesInOrder(t *testing.T) {
	typer := &FakeTyper{}
	inj := New(Config{ChunkSize: 4}, typer, nil, nil)

	if err := inj.Inject("hello world"); err != nil {
		t.Fatal(err)
	}
	if got := typer.Typed(); got != "hello world" {
		t.Errorf("typed = %q", got)
	}
	if len(typer.Chunks()) < 3 {
		t.Errorf("chunks = %v, want several", typer.Chunks())
	}
}

func TestInjectEmptyIsNoOp(t *testing.T) {
	typer := &FakeTyper{}
	inj := New(Config{}, typer, nil, nil)
	if err := inj.Inject(""); err != nil {
		t.Fatal(err)
	}
	if len(typer.Chunks()) != 0 {
		t.Errorf("chunks = %v, want none", typer.Chunks())
	}
}

func TestInjectFallsBackToClipboardOnTypingError(t *testing.T) {
	typer := &FakeTyper{Err: errors.New("rejected")}
	clip := &FakeClipboard{}
	clip.Write("previous contents")
	paster := NewFakePaster(clip)
	inj := New(Config{ChunkSize: 4}, typer, clip, paster)

	if err := inj.Inject("hello world"); err != nil {
		t.Fatal(err)
	}
	if got := paster.Pasted(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("pasted = %v", got)
	}
	if content, _ := clip.Read(); content != "previous contents" {
		t.Errorf("clipboard not restored: %q", content)
	}
}

func TestInjectForcedClipboardPath(t *testing.T) {
	typer := &FakeTyper{}
	clip := &FakeClipboard{}
	clip.Write("keep me")
	paster := NewFakePaster(clip)
	inj := New(Config{Fallback: true}, typer, clip, paster)

	if err := inj.Inject("dictated text"); err != nil {
		t.Fatal(err)
	}
	if len(typer.Chunks()) != 0 {
		t.Error("typer used despite forced fallback")
	}
	if got := paster.Pasted(); len(got) != 1 || got[0] != "dictated text" {
		t.Errorf("pasted = %v", got)
	}
	if content, _ := clip.Read(); content != "keep me" {
		t.Errorf("clipboard not restored: %q", content)
	}
}

func TestInjectWithoutClipboardFails(t *testing.T) {
	inj := New(Config{}, nil, nil, nil)
	if err := inj.Inject("text"); err == nil {
		t.Error("expected error with no typer and no clipboard")
	}
}
