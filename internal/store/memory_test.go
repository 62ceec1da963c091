package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

func TestUserLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	got, err := s.GetUser(ctx, "77011234567")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Fatal("Expected nil for unknown user")
	}

	user := &domain.User{UserID: "77011234567", Language: "ru", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser(ctx, user); err == nil {
		t.Error("Expected error on duplicate CreateUser")
	}

	got, err = s.GetUser(ctx, "77011234567")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Language != "ru" {
		t.Fatalf("Unexpected user: %+v", got)
	}

	if err := s.DeleteUser(ctx, "77011234567"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	got, _ = s.GetUser(ctx, "77011234567")
	if got != nil {
		t.Error("Expected user gone after delete")
	}
}

func TestUpdateUserField(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.CreateUser(ctx, &domain.User{UserID: "u1"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := s.UpdateUserField(ctx, "u1", "city", "Алматы"); err != nil {
		t.Fatalf("UpdateUserField failed: %v", err)
	}
	birthdate := time.Date(1990, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpdateUserField(ctx, "u1", "birthdate", birthdate); err != nil {
		t.Fatalf("UpdateUserField failed: %v", err)
	}

	user, _ := s.GetUser(ctx, "u1")
	if user.City != "Алматы" {
		t.Errorf("Expected city update, got %q", user.City)
	}
	if user.Birthdate == nil || !user.Birthdate.Equal(birthdate) {
		t.Errorf("Expected birthdate update, got %v", user.Birthdate)
	}

	err := s.UpdateUserField(ctx, "u1", "password", "x")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("Expected ErrUnknownField, got %v", err)
	}

	// Updating a missing user must not create one.
	if err := s.UpdateUserField(ctx, "ghost", "city", "Астана"); err != nil {
		t.Fatalf("UpdateUserField failed: %v", err)
	}
	if got, _ := s.GetUser(ctx, "ghost"); got != nil {
		t.Error("Expected no user created by field update")
	}
}

func TestGetUserReturnsCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.CreateUser(ctx, &domain.User{UserID: "u1", City: "Алматы"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	first, _ := s.GetUser(ctx, "u1")
	first.City = "mutated"

	second, _ := s.GetUser(ctx, "u1")
	if second.City != "Алматы" {
		t.Errorf("Store state leaked through returned pointer: %q", second.City)
	}
}

func TestListMessagesLimit(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := &domain.Message{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Content:   "msg",
			CreatedAt: time.Date(2025, 6, 1, 10, i, 0, 0, time.UTC),
		}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}
	if err := s.CreateMessage(ctx, &domain.Message{ID: "other", UserID: "u2"}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	// Limit keeps the most recent rows, still ordered oldest first.
	if msgs[0].ID != "c" || msgs[2].ID != "e" {
		t.Errorf("Unexpected window: %q .. %q", msgs[0].ID, msgs[2].ID)
	}

	all, err := s.ListMessages(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Expected all 5 messages with zero limit, got %d", len(all))
	}
}

func TestCreateMessageDuplicateID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	msg := &domain.Message{ID: "m1", UserID: "u1", Content: "first"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	err := s.CreateMessage(ctx, &domain.Message{ID: "m1", UserID: "u1", Content: "redelivered"})
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("Expected ErrDuplicateMessage, got %v", err)
	}

	msgs, _ := s.ListMessages(ctx, "u1", 0)
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Errorf("Duplicate insert must not touch the stored row: %+v", msgs)
	}
}

func TestDeleteUserCascadesSurveys(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.CreateUser(ctx, &domain.User{UserID: "u1"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateSurvey(ctx, &domain.Survey{SurveyID: "s1", UserID: "u1"}); err != nil {
		t.Fatalf("CreateSurvey failed: %v", err)
	}
	if err := s.CreateSurvey(ctx, &domain.Survey{SurveyID: "s2", UserID: "u2"}); err != nil {
		t.Fatalf("CreateSurvey failed: %v", err)
	}

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	surveys, err := s.ListSurveys(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSurveys failed: %v", err)
	}
	if len(surveys) != 0 {
		t.Errorf("Expected surveys gone with their user, got %d", len(surveys))
	}

	others, _ := s.ListSurveys(ctx, "u2")
	if len(others) != 1 {
		t.Errorf("Expected other user's surveys untouched, got %d", len(others))
	}
}
