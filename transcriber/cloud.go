package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/encoder"
)

// Cloud is the synchronous multipart REST provider (whisper-style
// endpoints: Groq, OpenAI, any compatible server).
type Cloud struct {
	client       *TracedClient
	apiURL       string
	apiKey       string
	model        string
	lang         string
	enc          encoder.Encoder
	preCorrected bool
}

func newCloud(cfg config.STTConfig) (*Cloud, error) {
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}
	c := &Cloud{
		client:       NewTracedClient(cfg.Endpoint),
		apiURL:       cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		lang:         cfg.Language,
		enc:          enc,
		preCorrected: cfg.Corrected,
	}
	go c.client.Warm()
	return c, nil
}

func (c *Cloud) Name() string { return "cloud" }

type cloudResponse struct {
	Text string `json:"text"`
}

func (c *Cloud) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	start := time.Now()

	payload, err := c.enc.Encode(clip.PCM, clip.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	body := newMultipartBody()
	body.WriteField("model", c.model)
	body.WriteField("response_format", "json")
	if c.lang != "" {
		body.WriteField("language", c.lang)
	}
	if err := body.WriteFile("file", "audio."+c.enc.Ext(), c.enc.ContentType(), payload); err != nil {
		return nil, err
	}
	body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", body.ContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud transcription: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: c.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed cloudResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("cloud response parse: %w", err)
	}

	return &Result{
		Text:         parsed.Text,
		Provider:     c.Name(),
		Duration:     time.Since(start),
		PreCorrected: c.preCorrected,
		Metrics:      resp.Metrics,
	}, nil
}
