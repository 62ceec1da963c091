// Package dialog implements the per-user conversation state machine and the
// structured-response extractor.
package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/assistant"
	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
	"github.com/google/uuid"
)

// dataFence marks the machine-readable tail of a terminal assistant reply.
const dataFence = "```json"

// birthdatePrimaryLayout matches the format the assistant is prompted to
// produce; the lenient layouts cover what it produces in practice.
const birthdatePrimaryLayout = "2 January 2006"

var birthdateFallbackLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"2 Jan 2006",
}

// StructuredUpdate is the normalized field mapping extracted from a
// terminal transcript.
type StructuredUpdate struct {
	Fields map[string]any
}

// Extractor parses the fenced data block out of a transcript and commits
// the extracted fields to the entity store, routed by persona.
type Extractor struct {
	repo              store.Repository
	onboardingPersona string
	logger            *slog.Logger
	now               func() time.Time
}

// NewExtractor creates a response extractor. Updates extracted under
// onboardingPersona go to the user profile; everything else becomes a
// survey row.
func NewExtractor(repo store.Repository, onboardingPersona string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		repo:              repo,
		onboardingPersona: onboardingPersona,
		logger:            logger,
		now:               time.Now,
	}
}

// TerminalReached reports whether any transcript message carries a fenced
// data block. The full opening fence is required so a reply merely
// mentioning json cannot end a live session.
func TerminalReached(transcript assistant.Transcript) bool {
	for _, msg := range transcript.Messages {
		if strings.Contains(msg.Text, dataFence) {
			return true
		}
	}
	return false
}

// Extract locates and normalizes the fenced data block. It returns
// (nil, nil) when no block is present; parse failures are returned as
// errors and must be treated as recoverable.
func (e *Extractor) Extract(transcript assistant.Transcript) (*StructuredUpdate, error) {
	raw, ok := findDataBlock(transcript)
	if !ok {
		return nil, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("parse data block: %w", err)
	}

	e.normalize(fields)
	return &StructuredUpdate{Fields: fields}, nil
}

// findDataBlock scans transcript messages in order for the first one with a
// fenced data block and cuts the substring between the opening fence and
// the LAST closing fence. Replies may contain earlier unrelated fenced
// snippets, so the last fence wins.
func findDataBlock(transcript assistant.Transcript) (string, bool) {
	for _, msg := range transcript.Messages {
		start := strings.Index(msg.Text, dataFence)
		if start == -1 {
			continue
		}
		end := strings.LastIndex(msg.Text, "```")
		if end <= start {
			return "", false
		}
		return strings.TrimSpace(msg.Text[start+len(dataFence) : end]), true
	}
	return "", false
}

// normalize coerces the typed fields in place, dropping values that fail
// to parse.
func (e *Extractor) normalize(fields map[string]any) {
	if raw, ok := fields["birthdate"]; ok {
		str := strings.TrimSpace(fmt.Sprint(raw))
		if str == "" {
			delete(fields, "birthdate")
		} else if bd, err := parseBirthdate(str); err != nil {
			e.logger.Error("failed to parse birthdate", "value", str, "error", err)
			delete(fields, "birthdate")
		} else {
			fields["birthdate"] = bd
		}
	}

	if raw, ok := fields["reminder_time"]; ok {
		str := strings.TrimSpace(fmt.Sprint(raw))
		if _, err := time.Parse("15:04", str); err != nil {
			e.logger.Error("failed to parse reminder_time", "value", str, "error", err)
			delete(fields, "reminder_time")
		} else {
			fields["reminder_time"] = str
		}
	}

	if _, ok := fields["pain_intensity"]; ok {
		fields["pain_intensity"] = coerceInt(fields["pain_intensity"])
	}
}

func parseBirthdate(str string) (time.Time, error) {
	if bd, err := time.Parse(birthdatePrimaryLayout, str); err == nil {
		return bd, nil
	}
	for _, layout := range birthdateFallbackLayouts {
		if bd, err := time.Parse(layout, str); err == nil {
			return bd, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", str)
}

// coerceInt converts the extracted pain intensity to an integer, defaulting
// to 0 for absent or empty values.
func coerceInt(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return int(v)
	case int:
		return v
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Commit routes the extracted fields by persona: the onboarding persona
// updates the user profile field by field; any other persona produces a
// new survey row.
func (e *Extractor) Commit(ctx context.Context, update *StructuredUpdate, personaID, userID string) error {
	if update == nil || len(update.Fields) == 0 {
		return nil
	}

	if personaID == e.onboardingPersona {
		e.applyProfileUpdate(ctx, update, userID)
		return nil
	}
	return e.insertSurvey(ctx, update, userID)
}

// applyProfileUpdate writes each field separately; one bad field must not
// block the others.
func (e *Extractor) applyProfileUpdate(ctx context.Context, update *StructuredUpdate, userID string) {
	for field, value := range update.Fields {
		if field == "userid" {
			continue
		}
		if !store.IsUserField(field) {
			e.logger.Warn("skipping unknown profile field", "user_id", userID, "field", field)
			continue
		}
		if err := e.repo.UpdateUserField(ctx, userID, field, value); err != nil {
			e.logger.Error("failed to update profile field", "user_id", userID, "field", field, "error", err)
			continue
		}
		e.logger.Info("profile field updated", "user_id", userID, "field", field)
	}
}

func (e *Extractor) insertSurvey(ctx context.Context, update *StructuredUpdate, userID string) error {
	now := e.now()
	survey := &domain.Survey{
		SurveyID:        uuid.NewString(),
		UserID:          userID,
		HeadacheToday:   stringField(update.Fields, "headache_today"),
		MedicamentToday: stringField(update.Fields, "medicament_today"),
		PainIntensity:   coerceInt(update.Fields["pain_intensity"]),
		PainArea:        stringField(update.Fields, "pain_area"),
		AreaDetail:      stringField(update.Fields, "area_detail"),
		PainType:        stringField(update.Fields, "pain_type"),
		Comments:        stringField(update.Fields, "comments"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.repo.CreateSurvey(ctx, survey); err != nil {
		return fmt.Errorf("insert survey: %w", err)
	}
	e.logger.Info("survey saved", "user_id", userID, "survey_id", survey.SurveyID)
	return nil
}

func stringField(fields map[string]any, key string) string {
	value, ok := fields[key]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
