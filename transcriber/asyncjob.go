package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/encoder"
)

// AsyncJob is the job-queue REST provider: upload the audio, create a
// transcription job, poll it to a terminal status, then fetch the
// transcript. Polling is bounded; exceeding the bound is ErrTimeout,
// not a provider error.
type AsyncJob struct {
	client  *TracedClient
	baseURL string
	apiKey  string
	model   string
	lang    string
	enc     encoder.Encoder

	interval    time.Duration
	maxAttempts int
}

func newAsyncJob(cfg config.STTConfig) (*AsyncJob, error) {
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.Poll.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	maxAttempts := cfg.Poll.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	a := &AsyncJob{
		client:      NewTracedClient(cfg.Endpoint),
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		lang:        cfg.Language,
		enc:         enc,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
	go a.client.Warm()
	return a, nil
}

func (a *AsyncJob) Name() string { return "cloudasync" }

type asyncFileResponse struct {
	ID string `json:"id"`
}

type asyncJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type asyncTranscriptResponse struct {
	Tokens []struct {
		Text string `json:"text"`
	} `json:"tokens"`
	Text string `json:"text"`
}

func (a *AsyncJob) Transcribe(ctx context.Context, clip *audio.Clip) (*Result, error) {
	start := time.Now()

	fileID, err := a.upload(ctx, clip)
	if err != nil {
		return nil, err
	}
	jobID, status, err := a.createJob(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if status, err = a.poll(ctx, jobID, status); err != nil {
		return nil, err
	}
	if status != "completed" {
		return nil, ErrTimeout
	}

	text, metrics, err := a.fetchTranscript(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:     text,
		Provider: a.Name(),
		Duration: time.Since(start),
		Metrics:  metrics,
	}, nil
}

func (a *AsyncJob) upload(ctx context.Context, clip *audio.Clip) (string, error) {
	payload, err := a.enc.Encode(clip.PCM, clip.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode upload: %w", err)
	}

	body := newMultipartBody()
	if err := body.WriteFile("file", "audio."+a.enc.Ext(), a.enc.ContentType(), payload); err != nil {
		return "", err
	}
	body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/files", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", body.ContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &StatusError{Provider: a.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed asyncFileResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("upload response parse: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("upload response missing file id")
	}
	return parsed.ID, nil
}

func (a *AsyncJob) createJob(ctx context.Context, fileID string) (id, status string, err error) {
	payload := map[string]any{
		"file_id": fileID,
		"model":   a.model,
	}
	if a.lang != "" {
		payload["language_hints"] = []string{a.lang}
	}
	raw, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcriptions", bytes.NewReader(raw))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("create job: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", &StatusError{Provider: a.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed asyncJobResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", "", fmt.Errorf("job response parse: %w", err)
	}
	if parsed.ID == "" {
		return "", "", fmt.Errorf("job response missing id")
	}
	return parsed.ID, parsed.Status, nil
}

// poll re-reads the job until it is terminal or the attempt bound runs
// out. The returned status is the last one observed.
func (a *AsyncJob) poll(ctx context.Context, jobID, status string) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		switch status {
		case "completed":
			return status, nil
		case "error", "failed":
			return status, &StatusError{Provider: a.Name(), Status: http.StatusOK, Body: "job " + jobID + " failed"}
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(a.interval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcriptions/"+jobID, nil)
		if err != nil {
			return status, err
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return status, fmt.Errorf("poll job: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return status, &StatusError{Provider: a.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
		}

		var parsed asyncJobResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return status, fmt.Errorf("poll response parse: %w", err)
		}
		if parsed.Error != "" {
			return parsed.Status, &StatusError{Provider: a.Name(), Status: http.StatusOK, Body: parsed.Error}
		}
		status = parsed.Status
	}

	return status, nil
}

func (a *AsyncJob) fetchTranscript(ctx context.Context, jobID string) (string, *NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcriptions/"+jobID+"/transcript", nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch transcript: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, &StatusError{Provider: a.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var parsed asyncTranscriptResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", nil, fmt.Errorf("transcript parse: %w", err)
	}
	if parsed.Text != "" {
		return parsed.Text, resp.Metrics, nil
	}
	parts := make([]string, 0, len(parsed.Tokens))
	for _, tok := range parsed.Tokens {
		parts = append(parts, tok.Text)
	}
	return strings.Join(parts, ""), resp.Metrics, nil
}
