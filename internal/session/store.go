// Package session provides the ephemeral per-user conversation state store.
package session

import (
	"context"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

// Store holds per-user dialogue coordination state: the conversation state,
// the dialogue thread handle, the assistant persona handle and the set of
// already-processed delivery message ids. All values are opaque handles;
// nothing here interprets their content.
//
// Absent keys read as zero values, never as errors.
type Store interface {
	// GetState returns the conversation state for a user key.
	GetState(ctx context.Context, userID string) (domain.ConversationState, error)

	// SetState stores the conversation state for a user key.
	SetState(ctx context.Context, userID string, state domain.ConversationState) error

	// GetThread returns the dialogue thread handle for a user key.
	GetThread(ctx context.Context, userID string) (string, error)

	// SetThread stores the dialogue thread handle for a user key.
	SetThread(ctx context.Context, userID, threadID string) error

	// GetAssistant returns the assistant persona handle for a user key.
	GetAssistant(ctx context.Context, userID string) (string, error)

	// SetAssistant stores the assistant persona handle for a user key.
	SetAssistant(ctx context.Context, userID, assistantID string) error

	// MarkProcessed records a delivery message id as handled. Idempotent.
	MarkProcessed(ctx context.Context, userID, messageID string) error

	// IsProcessed reports whether a delivery message id was already handled.
	IsProcessed(ctx context.Context, userID, messageID string) (bool, error)

	// Clear atomically removes all session state for a user key: state,
	// thread handle, assistant handle and the processed-id set.
	Clear(ctx context.Context, userID string) error

	// AcquireLock takes the per-user turn lease. It returns false without
	// error when another turn currently holds the lease.
	AcquireLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the per-user turn lease.
	ReleaseLock(ctx context.Context, userID string) error

	// Close releases store resources.
	Close() error
}
