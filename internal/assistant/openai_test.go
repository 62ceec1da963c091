package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStripDataBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no block", "Здравствуйте!", "Здравствуйте!"},
		{"trailing block", "Спасибо!\n```json\n{\"a\": 1}\n```", "Спасибо!"},
		{"block only", "```json\n{}\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripDataBlock(tt.in); got != tt.want {
				t.Errorf("StripDataBlock(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// assistantsStub fakes the minimal Assistants API surface Converse touches.
func assistantsStub(t *testing.T, pollsUntilDone int32) *httptest.Server {
	t.Helper()
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"id": "thread-1"})
	})
	mux.HandleFunc("POST /threads/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode message body: %v", err)
		}
		if body["role"] != "user" {
			t.Errorf("Expected user role, got %q", body["role"])
		}
		writeJSON(t, w, map[string]string{"id": "msg-1"})
	})
	mux.HandleFunc("POST /threads/thread-1/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode run body: %v", err)
		}
		if body["assistant_id"] != "asst-1" {
			t.Errorf("Expected assistant asst-1, got %q", body["assistant_id"])
		}
		writeJSON(t, w, map[string]string{"id": "run-1", "status": "queued"})
	})
	mux.HandleFunc("GET /threads/thread-1/runs/run-1", func(w http.ResponseWriter, _ *http.Request) {
		status := "in_progress"
		if atomic.AddInt32(&polls, 1) >= pollsUntilDone {
			status = "completed"
		}
		writeJSON(t, w, map[string]string{"id": "run-1", "status": status})
	})
	mux.HandleFunc("GET /threads/thread-1/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{
					"role": "assistant",
					"content": []map[string]any{{
						"type": "text",
						"text": map[string]string{"value": "Здравствуйте! Как вас зовут?\n```json\n{\"x\": 1}\n```"},
					}},
				},
				{
					"role": "user",
					"content": []map[string]any{{
						"type": "text",
						"text": map[string]string{"value": "Здравствуйте"},
					}},
				},
			},
		})
	})

	return httptest.NewServer(mux)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestConverse(t *testing.T) {
	srv := assistantsStub(t, 2)
	defer srv.Close()

	c := NewOpenAIClient("key", nil,
		WithBaseURL(srv.URL),
		WithPollInterval(time.Millisecond),
		WithRunTimeout(time.Second),
	)

	result, err := c.Converse(context.Background(), "Здравствуйте", "", "asst-1")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}

	if result.ThreadID != "thread-1" {
		t.Errorf("Expected thread-1, got %q", result.ThreadID)
	}
	// The machine-readable tail must be stripped from the user-facing reply.
	if result.ReplyText != "Здравствуйте! Как вас зовут?" {
		t.Errorf("Unexpected reply text: %q", result.ReplyText)
	}
	if len(result.Transcript.Messages) != 2 {
		t.Fatalf("Expected 2 transcript messages, got %d", len(result.Transcript.Messages))
	}
	if result.Transcript.Messages[0].Role != "assistant" {
		t.Errorf("Expected newest-first transcript, got %q first", result.Transcript.Messages[0].Role)
	}
}

func TestConverseRunTimeout(t *testing.T) {
	// Run never completes.
	srv := assistantsStub(t, 1<<30)
	defer srv.Close()

	c := NewOpenAIClient("key", nil,
		WithBaseURL(srv.URL),
		WithPollInterval(time.Millisecond),
		WithRunTimeout(20*time.Millisecond),
	)

	_, err := c.Converse(context.Background(), "Здравствуйте", "thread-1", "asst-1")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestCreateThread(t *testing.T) {
	srv := assistantsStub(t, 1)
	defer srv.Close()

	c := NewOpenAIClient("key", nil, WithBaseURL(srv.URL))

	id, err := c.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if id != "thread-1" {
		t.Errorf("Expected thread-1, got %q", id)
	}
}
