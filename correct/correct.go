// Package correct cleans up raw transcripts with a chat-completion
// model: punctuation, casing, obvious mistranscriptions. The dictated
// meaning is never rewritten; failures here degrade to the raw text
// upstream.
package correct

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/config"
)

const defaultSystemPrompt = "You are a dictation cleanup assistant. Fix punctuation, " +
	"capitalization, and obvious speech-to-text errors in the user's dictated text. " +
	"Do not change the meaning, do not add or remove content, do not answer questions " +
	"in the text. Return only the corrected text."

// ServerError is a decodable error payload from the completion
// endpoint.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "correction server: " + e.Message }

// HTTPError is a non-200 response without a decodable error payload.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("correction HTTP %d: %s", e.Status, e.Body)
}

// ContextHints describe the injection target so the model can match
// register (an email body reads differently from a terminal).
type ContextHints struct {
	AppName     string
	FocusedRole string
	WindowTitle string
}

type Request struct {
	Text         string
	SystemPrompt string
	Hints        ContextHints
	Vocabulary   []string
	Stream       bool
}

type Result struct {
	Text     string
	Duration time.Duration
	// FirstToken is the latency to the first streamed content token;
	// zero in buffered mode.
	FirstToken time.Duration
}

type Corrector struct {
	client      *http.Client
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

func New(cfg config.CorrectionConfig) *Corrector {
	return &Corrector{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Corrector) systemPrompt(req Request) string {
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	var extra []string
	if req.Hints.AppName != "" {
		hint := "The text will be inserted into " + req.Hints.AppName
		if req.Hints.FocusedRole != "" {
			hint += " (" + req.Hints.FocusedRole + ")"
		}
		if req.Hints.WindowTitle != "" {
			hint += ", window: " + req.Hints.WindowTitle
		}
		extra = append(extra, hint+".")
	}
	if len(req.Vocabulary) > 0 {
		extra = append(extra, "Preferred spellings: "+strings.Join(req.Vocabulary, ", ")+".")
	}
	if len(extra) == 0 {
		return prompt
	}
	return prompt + "\n" + strings.Join(extra, "\n")
}

// Correct returns the cleaned-up text. Streaming and buffered modes
// produce the same final text; streaming additionally reports
// first-token latency.
func (c *Corrector) Correct(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt(req)},
			{Role: "user", Content: req.Text},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      req.Stream,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("correction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	if req.Stream {
		text, firstToken, err := readStream(resp.Body, start)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, Duration: time.Since(start), FirstToken: firstToken}, nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("correction response: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("correction response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, &ServerError{Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("correction response has no choices")
	}
	return &Result{
		Text:     strings.TrimSpace(parsed.Choices[0].Message.Content),
		Duration: time.Since(start),
	}, nil
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Error != nil {
		return &ServerError{Message: parsed.Error.Message}
	}
	return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
}

// readStream scans SSE frames, accumulating delta content until the
// [DONE] sentinel or EOF.
func readStream(body io.Reader, start time.Time) (string, time.Duration, error) {
	var sb strings.Builder
	var firstToken time.Duration

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if firstToken == 0 {
			firstToken = time.Since(start)
		}
		sb.WriteString(content)
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("correction stream: %w", err)
	}
	return strings.TrimSpace(sb.String()), firstToken, nil
}
