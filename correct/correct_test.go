package correct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"murmur/config"
)

func testConfig(endpoint string) config.CorrectionConfig {
	return config.CorrectionConfig{
		Endpoint:    endpoint,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		MaxTokens:   256,
		Temperature: 0.1,
	}
}

func decodeChat(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return body
}

func TestCorrectBuffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		body := decodeChat(t, r)
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", body["model"])
		}
		if _, streaming := body["stream"]; streaming {
			t.Error("stream flag set in buffered mode")
		}
		msgs := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want 2", len(msgs))
		}
		user := msgs[1].(map[string]any)
		if user["content"] != "helo wrold" {
			t.Errorf("user content = %v", user["content"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Hello world."}},
			},
		})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	result, err := c.Correct(context.Background(), Request{Text: "helo wrold"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Hello world." {
		t.Errorf("text = %q", result.Text)
	}
	if result.FirstToken != 0 {
		t.Errorf("first token latency = %v in buffered mode", result.FirstToken)
	}
}

func TestCorrectStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeChat(t, r)
		if body["stream"] != true {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"Hello", " world", "."}
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": chunk}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	result, err := c.Correct(context.Background(), Request{Text: "helo wrold", Stream: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Hello world." {
		t.Errorf("text = %q", result.Text)
	}
	if result.FirstToken <= 0 {
		t.Error("first token latency not recorded")
	}
}

func TestStreamingAndBufferedAgree(t *testing.T) {
	const want = "The quick brown fox."
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeChat(t, r)
		if body["stream"] == true {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(want, " ") {
				payload, _ := json.Marshal(map[string]any{
					"choices": []map[string]any{
						{"delta": map[string]string{"content": word}},
					},
				})
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": want}},
			},
		})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	buffered, err := c.Correct(context.Background(), Request{Text: "the quick brown fox"})
	if err != nil {
		t.Fatal(err)
	}
	streamed, err := c.Correct(context.Background(), Request{Text: "the quick brown fox", Stream: true})
	if err != nil {
		t.Fatal(err)
	}
	if buffered.Text != streamed.Text {
		t.Errorf("buffered %q != streamed %q", buffered.Text, streamed.Text)
	}
}

func TestCorrectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "context length exceeded"},
		})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Correct(context.Background(), Request{Text: "x"})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want ServerError", err)
	}
	if serverErr.Message != "context length exceeded" {
		t.Errorf("message = %q", serverErr.Message)
	}
}

func TestCorrectOpaqueHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Correct(context.Background(), Request{Text: "x"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want HTTPError", err)
	}
	if httpErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d", httpErr.Status)
	}
}

func TestCorrectCancellation(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Correct(ctx, Request{Text: "x"})
		errCh <- err
	}()
	<-started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSystemPromptCarriesHintsAndVocabulary(t *testing.T) {
	var sysPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeChat(t, r)
		msgs := body["messages"].([]any)
		sysPrompt = msgs[0].(map[string]any)["content"].(string)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Correct(context.Background(), Request{
		Text:       "x",
		Hints:      ContextHints{AppName: "Mail", FocusedRole: "text area", WindowTitle: "Re: hello"},
		Vocabulary: []string{"Kubernetes", "zerolog"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Mail", "text area", "Re: hello", "Kubernetes", "zerolog"} {
		if !strings.Contains(sysPrompt, want) {
			t.Errorf("system prompt missing %q: %q", want, sysPrompt)
		}
	}
}
