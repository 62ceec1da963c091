package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ErrRunTimeout is returned when the engine does not finish a run within
// the configured deadline.
var ErrRunTimeout = errors.New("assistant run timed out")

// OpenAIClient implements Engine against the OpenAI Assistants API.
// A run is computed asynchronously server-side; Converse polls its status
// until completion, bounded by RunTimeout.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
}

// OpenAIOption customizes the client.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = url }
}

// WithPollInterval overrides the run polling interval.
func WithPollInterval(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.pollInterval = d }
}

// WithRunTimeout overrides the run deadline.
func WithRunTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.runTimeout = d }
}

// NewOpenAIClient creates an Assistants API client.
func NewOpenAIClient(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &OpenAIClient{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: time.Second,
		runTimeout:   90 * time.Second,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// CreateThread opens a new dialogue thread.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	var thread threadResponse
	if err := c.do(ctx, http.MethodPost, "/threads", nil, &thread); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// Converse sends one turn into a thread and waits for the reply.
func (c *OpenAIClient) Converse(ctx context.Context, text, threadID, personaID string) (*Result, error) {
	if threadID == "" {
		id, err := c.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		threadID = id
		c.logger.Info("new thread created", "thread_id", threadID)
	}

	msgBody := map[string]string{"role": "user", "content": text}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", msgBody, nil); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	var run runResponse
	runBody := map[string]string{"assistant_id": personaID}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", runBody, &run); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	if err := c.waitForRun(ctx, threadID, &run); err != nil {
		return nil, err
	}

	var list messageListResponse
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	transcript := Transcript{}
	for _, msg := range list.Data {
		for _, content := range msg.Content {
			if content.Type != "" && content.Type != "text" {
				continue
			}
			transcript.Messages = append(transcript.Messages, TranscriptMessage{
				Role: msg.Role,
				Text: content.Text.Value,
			})
		}
	}

	reply := ""
	for _, msg := range transcript.Messages {
		if msg.Role == "assistant" {
			reply = StripDataBlock(msg.Text)
			break
		}
	}
	if reply == "" {
		c.logger.Error("assistant returned no reply", "thread_id", threadID, "run_id", run.ID)
	}

	return &Result{
		ReplyText:  reply,
		ThreadID:   threadID,
		Transcript: transcript,
	}, nil
}

// waitForRun polls run status until it leaves the in-progress states.
func (c *OpenAIClient) waitForRun(ctx context.Context, threadID string, run *runResponse) error {
	deadline := time.NewTimer(c.runTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case "queued", "in_progress", "cancelling":
		case "completed":
			return nil
		default:
			return fmt.Errorf("run %s finished with status %s", run.ID, run.Status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s (run %s)", ErrRunTimeout, c.runTimeout, run.ID)
		case <-ticker.C:
		}

		if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, run); err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
	}
}

func (c *OpenAIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
