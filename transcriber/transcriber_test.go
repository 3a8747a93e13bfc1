package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"murmur/audio"
	"murmur/config"
)

func testClip() *audio.Clip {
	pcm := make([]int16, 16000) // 1s of silence
	return &audio.Clip{PCM: pcm, SampleRate: 16000, Duration: time.Second}
}

func cloudConfig(endpoint string) config.STTConfig {
	return config.STTConfig{
		Provider: "cloud",
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "whisper-large-v3-turbo",
		Language: "en",
		Format:   "wav",
	}
}

func TestCloudTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return // connection warmup
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3-turbo" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		if _, hdr, err := r.FormFile("file"); err != nil {
			t.Errorf("file part: %v", err)
		} else if hdr.Filename != "audio.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	c, err := newCloud(cloudConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	result, err := c.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q", result.Text)
	}
	if result.Provider != "cloud" {
		t.Errorf("provider = %q", result.Provider)
	}
	if result.Metrics == nil || result.Metrics.Total <= 0 {
		t.Error("missing network metrics")
	}
}

func TestCloudNon200IsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := newCloud(cloudConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Transcribe(context.Background(), testClip())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", statusErr.Status)
	}
}

func TestCloudRespectsCancellation(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := newCloud(cloudConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Transcribe(ctx, testClip())
		errCh <- err
	}()
	<-started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Transcribe did not return after cancellation")
	}
}

func asyncConfig(endpoint string, maxAttempts int) config.STTConfig {
	return config.STTConfig{
		Provider: "cloudasync",
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "slam-1",
		Format:   "wav",
		Poll:     config.PollConfig{IntervalMS: 5, MaxAttempts: maxAttempts},
	}
}

// asyncServer scripts an upload/job/poll/transcript sequence. Statuses
// are returned one per poll; the last repeats.
func asyncServer(t *testing.T, statuses []string, tokens []string) *httptest.Server {
	t.Helper()
	polls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			json.NewEncoder(w).Encode(map[string]string{"id": "file-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/transcriptions":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			if req["file_id"] != "file-1" {
				t.Errorf("file_id = %v", req["file_id"])
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/transcriptions/job-1":
			status := statuses[min(polls, len(statuses)-1)]
			polls++
			json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": status})
		case r.Method == http.MethodGet && r.URL.Path == "/transcriptions/job-1/transcript":
			toks := make([]map[string]string, len(tokens))
			for i, tok := range tokens {
				toks[i] = map[string]string{"text": tok}
			}
			json.NewEncoder(w).Encode(map[string]any{"tokens": toks})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func TestAsyncJobPollsToCompletion(t *testing.T) {
	srv := asyncServer(t, []string{"queued", "queued", "completed"}, []string{"hello", " world"})
	defer srv.Close()

	a, err := newAsyncJob(asyncConfig(srv.URL, 10))
	if err != nil {
		t.Fatal(err)
	}
	result, err := a.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q", result.Text)
	}
	if result.Provider != "cloudasync" {
		t.Errorf("provider = %q", result.Provider)
	}
}

func TestAsyncJobBoundedPollingTimesOut(t *testing.T) {
	srv := asyncServer(t, []string{"queued"}, nil)
	defer srv.Close()

	a, err := newAsyncJob(asyncConfig(srv.URL, 3))
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Transcribe(context.Background(), testClip())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Error("timeout should not be a StatusError")
	}
}

func TestAsyncJobErrorStatusIsStatusError(t *testing.T) {
	srv := asyncServer(t, []string{"queued", "error"}, nil)
	defer srv.Close()

	a, err := newAsyncJob(asyncConfig(srv.URL, 10))
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Transcribe(context.Background(), testClip())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
}

func TestAsyncJobCancellationStopsPolling(t *testing.T) {
	srv := asyncServer(t, []string{"queued"}, nil)
	defer srv.Close()

	a, err := newAsyncJob(asyncConfig(srv.URL, 1000))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := a.Transcribe(ctx, testClip())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not stop after cancellation")
	}
}

func TestStreamTranscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("encoding"); got != "linear16" {
			t.Errorf("encoding = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var audioBytes int
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				audioBytes += len(data)
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				break
			}
		}
		if audioBytes == 0 {
			t.Error("no audio received before finalize")
		}
		final := map[string]any{
			"type":     "Results",
			"is_final": true,
			"channel": map[string]any{
				"alternatives": []map[string]string{{"transcript": "hello world"}},
			},
		}
		conn.WriteJSON(final)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	s, err := newStream(config.STTConfig{
		Provider: "stream",
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:   "test-key",
		Model:    "nova-3",
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := s.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q", result.Text)
	}
	select {
	case partial := <-s.Partials():
		if partial != "hello world" {
			t.Errorf("partial = %q", partial)
		}
	default:
		t.Error("no partial delivered")
	}
}

func TestNewDispatch(t *testing.T) {
	cases := []struct {
		cfg  config.STTConfig
		name string
	}{
		{cloudConfig("https://example.com"), "cloud"},
		{asyncConfig("https://example.com", 3), "cloudasync"},
		{config.STTConfig{Provider: "localexec", Command: "whisper-cli -t 4"}, "localexec"},
		{config.STTConfig{Provider: "stream", Endpoint: "wss://example.com/listen"}, "stream"},
		{config.STTConfig{Provider: "fake"}, "fake"},
	}
	for _, tc := range cases {
		tr, err := New(tc.cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", tc.cfg.Provider, err)
		}
		if tr.Name() != tc.name {
			t.Errorf("Name() = %q, want %q", tr.Name(), tc.name)
		}
	}
	if _, err := New(config.STTConfig{Provider: "telepathy"}); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestCleanRecognizerOutput(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello world\n", "hello world"},
		{"[00:00:00.000 --> 00:00:02.500]  hello\n[00:00:02.500 --> 00:00:04.000]  world\n", "hello world"},
		{"\n\n  spaced  \n", "spaced"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := cleanRecognizerOutput(tc.in); got != tc.want {
			t.Errorf("cleanRecognizerOutput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")
	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q", got)
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want ?", got)
	}
}
