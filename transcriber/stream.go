package transcriber

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"murmur/audio"
	"murmur/config"
)

const streamChunkBytes = 8192

// Stream is the websocket streaming provider (deepgram-style listen
// endpoint). The clip is sent in paced binary chunks; interim
// transcripts surface on Partials while the call is in flight and the
// finals are joined into the result.
type Stream struct {
	endpoint string
	apiKey   string
	model    string
	lang     string
	partials chan string
}

func newStream(cfg config.STTConfig) (*Stream, error) {
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("stream endpoint: %w", err)
	}
	return &Stream{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		lang:     cfg.Language,
		partials: make(chan string, 16),
	}, nil
}

func (s *Stream) Name() string { return "stream" }

// Partials delivers interim transcripts. Sends are non-blocking.
func (s *Stream) Partials() <-chan string { return s.partials }

type streamResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *Stream) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	start := time.Now()

	endpoint, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("stream endpoint: %w", err)
	}
	q := endpoint.Query()
	if s.model != "" {
		q.Set("model", s.model)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", clip.SampleRate))
	q.Set("channels", "1")
	if s.lang != "" {
		q.Set("language", s.lang)
	}
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	defer conn.Close()

	// Cancellation forces the blocked reader off the socket.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	readErr := make(chan error, 1)
	var finals []string
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var resp streamResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			var transcript string
			if len(resp.Channel.Alternatives) > 0 {
				transcript = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
			}
			if transcript == "" {
				continue
			}
			if resp.IsFinal {
				finals = append(finals, transcript)
			}
			select {
			case s.partials <- transcript:
			default:
			}
		}
	}()

	pcmBytes := make([]byte, len(clip.PCM)*2)
	for i, sample := range clip.PCM {
		binary.LittleEndian.PutUint16(pcmBytes[i*2:], uint16(sample))
	}
	for off := 0; off < len(pcmBytes); off += streamChunkBytes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(off+streamChunkBytes, len(pcmBytes))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcmBytes[off:end]); err != nil {
			return nil, fmt.Errorf("stream send: %w", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("stream finalize: %w", err)
	}

	// The server closes the socket once the final transcript is out.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-readErr:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// An abrupt close after finalize still ends the stream; only
			// fail when nothing was transcribed.
			if len(finals) == 0 {
				return nil, fmt.Errorf("stream read: %w", err)
			}
		}
	}

	return &Result{
		Text:     strings.Join(finals, " "),
		Provider: s.Name(),
		Duration: time.Since(start),
	}, nil
}
