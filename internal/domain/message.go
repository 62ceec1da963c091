package domain

import (
	"encoding/json"
	"time"
)

// Message is one append-only row in the conversation log.
// Content is a JSON payload (see InboundContent / BotContent); rows are
// never mutated after creation.
type Message struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Content         string    `json:"content"`
	IsCreatedByUser bool      `json:"is_created_by_user"`
	FrontID         string    `json:"front_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// InboundContent is the client-supplied message payload.
type InboundContent struct {
	Text     string `json:"text,omitempty"`
	Audio    string `json:"audio,omitempty"` // base64-encoded
	Language string `json:"language,omitempty"`
}

// HasAudio reports whether the payload carries an audio recording.
func (c InboundContent) HasAudio() bool {
	return c.Audio != ""
}

// BotContent is the persisted shape of a bot reply.
type BotContent struct {
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"` // base64-encoded mp3
}

// Encode renders the bot content as the stored JSON string.
func (c BotContent) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Only unmarshalable types can fail here; BotContent has none.
		return `{"text":""}`
	}
	return string(data)
}

// InboundRecord is one unit of work handed to the orchestrator by the
// delivery boundary.
type InboundRecord struct {
	UserID    string         `json:"user_id"`
	Content   InboundContent `json:"content"`
	MessageID string         `json:"message_id"`
	FrontID   string         `json:"front_id,omitempty"`
}
