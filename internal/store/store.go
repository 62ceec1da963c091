// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
)

// ErrUnknownField is returned by UpdateUserField for columns outside the
// user profile whitelist.
var ErrUnknownField = errors.New("unknown user field")

// ErrDuplicateMessage is returned by CreateMessage when a row with the same
// message id already exists. Redelivered messages hit this instead of
// overwriting the log.
var ErrDuplicateMessage = errors.New("duplicate message id")

// Repository defines the interface for persisting users, messages and surveys.
//
// Lookups return (nil, nil) when no row matches.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateUserField updates a single profile column for a user.
	// Unknown fields return ErrUnknownField.
	UpdateUserField(ctx context.Context, userID, field string, value any) error

	// DeleteUser removes a user and, by cascade, their surveys.
	DeleteUser(ctx context.Context, userID string) error

	// ListUsers retrieves all users.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// CreateMessage appends a message row. Messages are never updated;
	// an already-stored id returns ErrDuplicateMessage.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages retrieves up to limit most recent messages for a user,
	// oldest first. limit <= 0 means no limit.
	ListMessages(ctx context.Context, userID string, limit int) ([]*domain.Message, error)

	// CreateSurvey inserts a survey row.
	CreateSurvey(ctx context.Context, survey *domain.Survey) error

	// ListSurveys retrieves all surveys for a user, oldest first.
	ListSurveys(ctx context.Context, userID string) ([]*domain.Survey, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// userFields whitelists the profile columns the extractor may update.
var userFields = map[string]struct{}{
	"username":              {},
	"firstname":             {},
	"lastname":              {},
	"fio":                   {},
	"birthdate":             {},
	"menstrual_cycle":       {},
	"country":               {},
	"city":                  {},
	"medication":            {},
	"medication_name":       {},
	"const_medication":      {},
	"const_medication_name": {},
	"reminder_time":         {},
	"language":              {},
	"role":                  {},
}

// IsUserField reports whether field is an updatable user profile column.
func IsUserField(field string) bool {
	_, ok := userFields[field]
	return ok
}
