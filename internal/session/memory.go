package session

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

type memoryEntry struct {
	state     domain.ConversationState
	thread    string
	assistant string
	processed map[string]struct{}
	touchedAt time.Time

	lockedUntil time.Time
}

// MemoryStore implements Store in process memory. It is used by tests and
// as the fallback when no Redis address is configured. Entries expire
// after the configured TTL of inactivity.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-memory session store.
func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// StartJanitor runs periodic expiry of abandoned sessions until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expire()
			}
		}
	}()
}

func (s *MemoryStore) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for key, e := range s.entries {
		if e.touchedAt.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

// entry returns the live entry for a user key, creating it when asked.
// Caller must hold s.mu.
func (s *MemoryStore) entry(userID string, create bool) *memoryEntry {
	e, ok := s.entries[userID]
	if ok && s.ttl > 0 && e.touchedAt.Before(s.now().Add(-s.ttl)) {
		delete(s.entries, userID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memoryEntry{processed: make(map[string]struct{})}
		s.entries[userID] = e
	}
	e.touchedAt = s.now()
	return e
}

// GetState returns the conversation state for a user key.
func (s *MemoryStore) GetState(_ context.Context, userID string) (domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(userID, false); e != nil {
		return e.state, nil
	}
	return domain.StateNone, nil
}

// SetState stores the conversation state for a user key.
func (s *MemoryStore) SetState(_ context.Context, userID string, state domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(userID, true).state = state
	return nil
}

// GetThread returns the dialogue thread handle for a user key.
func (s *MemoryStore) GetThread(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(userID, false); e != nil {
		return e.thread, nil
	}
	return "", nil
}

// SetThread stores the dialogue thread handle for a user key.
func (s *MemoryStore) SetThread(_ context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(userID, true).thread = threadID
	return nil
}

// GetAssistant returns the assistant persona handle for a user key.
func (s *MemoryStore) GetAssistant(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(userID, false); e != nil {
		return e.assistant, nil
	}
	return "", nil
}

// SetAssistant stores the assistant persona handle for a user key.
func (s *MemoryStore) SetAssistant(_ context.Context, userID, assistantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(userID, true).assistant = assistantID
	return nil
}

// MarkProcessed records a delivery message id as handled.
func (s *MemoryStore) MarkProcessed(_ context.Context, userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(userID, true).processed[messageID] = struct{}{}
	return nil
}

// IsProcessed reports whether a delivery message id was already handled.
func (s *MemoryStore) IsProcessed(_ context.Context, userID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(userID, false); e != nil {
		_, ok := e.processed[messageID]
		return ok, nil
	}
	return false, nil
}

// Clear atomically removes all session state for a user key. A held turn
// lease survives; the turn that cleared the session still owns it.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil
	}
	if !e.lockedUntil.After(s.now()) {
		delete(s.entries, userID)
		return nil
	}
	e.state = domain.StateNone
	e.thread = ""
	e.assistant = ""
	e.processed = make(map[string]struct{})
	e.touchedAt = s.now()
	return nil
}

// AcquireLock takes the per-user turn lease.
func (s *MemoryStore) AcquireLock(_ context.Context, userID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(userID, true)
	now := s.now()
	if e.lockedUntil.After(now) {
		return false, nil
	}
	e.lockedUntil = now.Add(ttl)
	return true, nil
}

// ReleaseLock releases the per-user turn lease.
func (s *MemoryStore) ReleaseLock(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(userID, false); e != nil {
		e.lockedUntil = time.Time{}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
