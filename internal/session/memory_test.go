package session

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

func TestMemoryStateRoundTrip(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	state, err := s.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state != domain.StateNone {
		t.Errorf("Expected empty state for unknown user, got %q", state)
	}

	if err := s.SetState(ctx, "u1", domain.StateAwaitingResponse); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	state, err = s.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state != domain.StateAwaitingResponse {
		t.Errorf("Expected awaiting_response, got %q", state)
	}
}

func TestMemoryClearRemovesEverything(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	if err := s.SetState(ctx, "u1", domain.StateResponseReceived); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := s.SetThread(ctx, "u1", "thread-1"); err != nil {
		t.Fatalf("SetThread failed: %v", err)
	}
	if err := s.SetAssistant(ctx, "u1", "asst-1"); err != nil {
		t.Fatalf("SetAssistant failed: %v", err)
	}
	if err := s.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	state, _ := s.GetState(ctx, "u1")
	if state != domain.StateNone {
		t.Errorf("Expected state cleared, got %q", state)
	}
	thread, _ := s.GetThread(ctx, "u1")
	if thread != "" {
		t.Errorf("Expected thread cleared, got %q", thread)
	}
	assistantID, _ := s.GetAssistant(ctx, "u1")
	if assistantID != "" {
		t.Errorf("Expected assistant cleared, got %q", assistantID)
	}
	processed, _ := s.IsProcessed(ctx, "u1", "m1")
	if processed {
		t.Error("Expected processed set cleared")
	}
}

func TestMemoryClearKeepsHeldLease(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	if err := s.SetState(ctx, "u1", domain.StateResponseReceived); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	// A terminal turn clears the session before releasing its lease; no
	// waiter may slip in between the two.
	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	state, _ := s.GetState(ctx, "u1")
	if state != domain.StateNone {
		t.Errorf("Expected state cleared, got %q", state)
	}
	ok, err = s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if ok {
		t.Error("Expected held lease to survive Clear")
	}

	if err := s.ReleaseLock(ctx, "u1"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	ok, err = s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil || !ok {
		t.Errorf("Expected lease free after release, got %v, %v", ok, err)
	}
}

func TestMemoryProcessedSet(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	processed, err := s.IsProcessed(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if processed {
		t.Error("Expected unknown message to be unprocessed")
	}

	if err := s.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	// Idempotent insertion.
	if err := s.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	processed, err = s.IsProcessed(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !processed {
		t.Error("Expected message to be processed")
	}

	other, _ := s.IsProcessed(ctx, "u2", "m1")
	if other {
		t.Error("Processed set must be scoped per user key")
	}
}

func TestMemoryLock(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected to acquire free lock")
	}

	ok, err = s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if ok {
		t.Error("Expected second acquire to fail while lease is held")
	}

	// A different user key is independent.
	ok, err = s.AcquireLock(ctx, "u2", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("Expected lock for another user to be free")
	}

	if err := s.ReleaseLock(ctx, "u1"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	ok, err = s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("Expected to reacquire after release")
	}
}

func TestMemoryLockLeaseExpires(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	ok, err := s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}

	// A crashed holder never releases; the lease must expire on its own.
	current = current.Add(2 * time.Minute)
	ok, err = s.AcquireLock(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("Expected expired lease to be reacquirable")
	}
}

func TestMemoryEntriesExpire(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	if err := s.SetState(ctx, "u1", domain.StateAwaitingResponse); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	current = current.Add(2 * time.Minute)
	state, err := s.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state != domain.StateNone {
		t.Errorf("Expected abandoned session to expire, got %q", state)
	}
}
