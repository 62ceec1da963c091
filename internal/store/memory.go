package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

// MemoryStore implements Repository in memory. It backs tests and
// development runs without a database file.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	messages []*domain.Message
	surveys  []*domain.Survey
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*domain.User),
	}
}

// GetUser retrieves a user by their user ID.
func (s *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

// CreateUser inserts a new user row.
func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UserID]; ok {
		return fmt.Errorf("user %s already exists", user.UserID)
	}
	copied := *user
	s.users[user.UserID] = &copied
	return nil
}

// UpdateUserField updates a single profile column for a user.
func (s *MemoryStore) UpdateUserField(_ context.Context, userID, field string, value any) error {
	if !IsUserField(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil
	}

	switch field {
	case "birthdate":
		if t, ok := value.(time.Time); ok {
			user.Birthdate = &t
		}
	case "username":
		user.Username = fmt.Sprint(value)
	case "firstname":
		user.Firstname = fmt.Sprint(value)
	case "lastname":
		user.Lastname = fmt.Sprint(value)
	case "fio":
		user.FIO = fmt.Sprint(value)
	case "menstrual_cycle":
		user.MenstrualCycle = fmt.Sprint(value)
	case "country":
		user.Country = fmt.Sprint(value)
	case "city":
		user.City = fmt.Sprint(value)
	case "medication":
		user.Medication = fmt.Sprint(value)
	case "medication_name":
		user.MedicationName = fmt.Sprint(value)
	case "const_medication":
		user.ConstMedication = fmt.Sprint(value)
	case "const_medication_name":
		user.ConstMedicationName = fmt.Sprint(value)
	case "reminder_time":
		user.ReminderTime = fmt.Sprint(value)
	case "language":
		user.Language = fmt.Sprint(value)
	case "role":
		user.Role = fmt.Sprint(value)
	}
	user.UpdatedAt = time.Now()
	return nil
}

// DeleteUser removes a user and their surveys.
func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	kept := s.surveys[:0]
	for _, sv := range s.surveys {
		if sv.UserID != userID {
			kept = append(kept, sv)
		}
	}
	s.surveys = kept
	return nil
}

// ListUsers retrieves all users.
func (s *MemoryStore) ListUsers(_ context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		copied := *u
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// CreateMessage appends a message row.
func (s *MemoryStore) CreateMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return fmt.Errorf("insert message %s: %w", msg.ID, ErrDuplicateMessage)
		}
	}
	copied := *msg
	s.messages = append(s.messages, &copied)
	return nil
}

// ListMessages retrieves up to limit most recent messages for a user, oldest first.
func (s *MemoryStore) ListMessages(_ context.Context, userID string, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []*domain.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			copied := *m
			msgs = append(msgs, &copied)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// CreateSurvey inserts a survey row.
func (s *MemoryStore) CreateSurvey(_ context.Context, survey *domain.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *survey
	s.surveys = append(s.surveys, &copied)
	return nil
}

// ListSurveys retrieves all surveys for a user, oldest first.
func (s *MemoryStore) ListSurveys(_ context.Context, userID string) ([]*domain.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var surveys []*domain.Survey
	for _, sv := range s.surveys {
		if sv.UserID == userID {
			copied := *sv
			surveys = append(surveys, &copied)
		}
	}
	return surveys, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
