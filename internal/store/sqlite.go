package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT,
		firstname TEXT,
		lastname TEXT,
		fio TEXT,
		birthdate TEXT,
		menstrual_cycle TEXT,
		country TEXT,
		city TEXT,
		medication TEXT,
		medication_name TEXT,
		const_medication TEXT,
		const_medication_name TEXT,
		reminder_time TEXT,
		language TEXT,
		role TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_created_by_user INTEGER NOT NULL DEFAULT 1,
		front_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, created_at);

	CREATE TABLE IF NOT EXISTS surveys (
		survey_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		headache_today TEXT,
		medicament_today TEXT,
		pain_intensity INTEGER NOT NULL DEFAULT 0,
		pain_area TEXT,
		area_detail TEXT,
		pain_type TEXT,
		comments TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_surveys_user ON surveys(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `user_id, username, firstname, lastname, fio, birthdate,
	menstrual_cycle, country, city, medication, medication_name,
	const_medication, const_medication_name, reminder_time, language, role,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var username, firstname, lastname, fio, birthdate sql.NullString
	var cycle, country, city, med, medName, constMed, constMedName sql.NullString
	var reminder, language, role sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &username, &firstname, &lastname, &fio, &birthdate,
		&cycle, &country, &city, &med, &medName, &constMed, &constMedName,
		&reminder, &language, &role, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	user.Firstname = firstname.String
	user.Lastname = lastname.String
	user.FIO = fio.String
	user.MenstrualCycle = cycle.String
	user.Country = country.String
	user.City = city.String
	user.Medication = med.String
	user.MedicationName = medName.String
	user.ConstMedication = constMed.String
	user.ConstMedicationName = constMedName.String
	user.ReminderTime = reminder.String
	user.Language = language.String
	user.Role = role.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	if birthdate.Valid && birthdate.String != "" {
		if bd, err := time.Parse("2006-01-02", birthdate.String); err == nil {
			user.Birthdate = &bd
		} else {
			slog.Warn("stored birthdate is malformed", "user_id", user.UserID, "value", birthdate.String)
		}
	}

	return &user, nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, firstname, lastname, fio, birthdate,
		menstrual_cycle, country, city, medication, medication_name,
		const_medication, const_medication_name, reminder_time, language, role,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var birthdate any
	if user.Birthdate != nil {
		birthdate = user.Birthdate.Format("2006-01-02")
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, nullable(user.Username), nullable(user.Firstname),
		nullable(user.Lastname), nullable(user.FIO), birthdate,
		nullable(user.MenstrualCycle), nullable(user.Country), nullable(user.City),
		nullable(user.Medication), nullable(user.MedicationName),
		nullable(user.ConstMedication), nullable(user.ConstMedicationName),
		nullable(user.ReminderTime), nullable(user.Language), nullable(user.Role),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUserField updates a single profile column for a user.
func (s *SQLiteStore) UpdateUserField(ctx context.Context, userID, field string, value any) error {
	if !IsUserField(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	if t, ok := value.(time.Time); ok {
		value = t.Format("2006-01-02")
	}

	// Column name comes from the whitelist, never from caller input.
	query := `UPDATE users SET ` + field + ` = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, value, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", field, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateUserField affected 0 rows", "user_id", userID, "field", field)
	}
	return nil
}

// DeleteUser removes a user and their surveys.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListUsers retrieves all users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// CreateMessage appends a message row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (id, user_id, content, is_created_by_user, front_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.Content, msg.IsCreatedByUser,
		nullable(msg.FrontID), msg.CreatedAt.Unix(),
	)
	if isUniqueViolation(err, "messages.id") {
		return fmt.Errorf("insert message %s: %w", msg.ID, ErrDuplicateMessage)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// isUniqueViolation checks for a SQLite unique-constraint failure on the
// given column. The driver exposes no typed error for this.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// ListMessages retrieves up to limit most recent messages for a user, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, user_id, content, is_created_by_user, front_id, created_at
		FROM messages WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var frontID sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Content, &msg.IsCreatedByUser, &frontID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.FrontID = frontID.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CreateSurvey inserts a survey row.
func (s *SQLiteStore) CreateSurvey(ctx context.Context, survey *domain.Survey) error {
	query := `
	INSERT INTO surveys (survey_id, user_id, headache_today, medicament_today,
		pain_intensity, pain_area, area_detail, pain_type, comments,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		survey.SurveyID, survey.UserID,
		nullable(survey.HeadacheToday), nullable(survey.MedicamentToday),
		survey.PainIntensity, nullable(survey.PainArea), nullable(survey.AreaDetail),
		nullable(survey.PainType), nullable(survey.Comments),
		survey.CreatedAt.Unix(), survey.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert survey: %w", err)
	}
	return nil
}

// ListSurveys retrieves all surveys for a user, oldest first.
func (s *SQLiteStore) ListSurveys(ctx context.Context, userID string) ([]*domain.Survey, error) {
	query := `
		SELECT survey_id, user_id, headache_today, medicament_today,
		       pain_intensity, pain_area, area_detail, pain_type, comments,
		       created_at, updated_at
		FROM surveys WHERE user_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query surveys: %w", err)
	}
	defer closeRows(rows, "surveys")

	var surveys []*domain.Survey
	for rows.Next() {
		var sv domain.Survey
		var headache, medicament, area, areaDetail, painType, comments sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&sv.SurveyID, &sv.UserID, &headache, &medicament,
			&sv.PainIntensity, &area, &areaDetail, &painType, &comments,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan survey row: %w", err)
		}
		sv.HeadacheToday = headache.String
		sv.MedicamentToday = medicament.String
		sv.PainArea = area.String
		sv.AreaDetail = areaDetail.String
		sv.PainType = painType.String
		sv.Comments = comments.String
		sv.CreatedAt = time.Unix(createdAt, 0)
		sv.UpdatedAt = time.Unix(updatedAt, 0)
		surveys = append(surveys, &sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate surveys: %w", err)
	}
	return surveys, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "table", what, "error", err)
	}
}
