// Package assistant adapts the external conversational engine.
package assistant

import (
	"context"
	"strings"
)

// TranscriptMessage is one message of a dialogue thread transcript.
type TranscriptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Transcript is the full thread transcript, newest message first.
type Transcript struct {
	Messages []TranscriptMessage `json:"messages"`
}

// Result is the outcome of one conversational turn.
type Result struct {
	ReplyText  string
	ThreadID   string
	Transcript Transcript
}

// Engine is the conversational engine contract: an opaque multi-turn
// request/response function keyed by a thread handle and a persona handle.
type Engine interface {
	// CreateThread opens a new dialogue thread and returns its handle.
	CreateThread(ctx context.Context) (string, error)

	// Converse sends one turn into a thread under the given persona and
	// returns the reply plus the full transcript. An empty threadID opens
	// a new thread.
	Converse(ctx context.Context, text, threadID, personaID string) (*Result, error)
}

// StripDataBlock removes a trailing fenced data block from reply text so
// the machine-readable tail is never shown to the user.
func StripDataBlock(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
