// Package domain contains core domain types for the Em-Guide backend.
package domain

import (
	"time"
)

// User represents a registered bot user and their onboarding profile.
// Profile fields stay empty until the onboarding dialogue fills them in.
type User struct {
	UserID              string     `json:"userid"`
	Username            string     `json:"username,omitempty"`
	Firstname           string     `json:"firstname,omitempty"`
	Lastname            string     `json:"lastname,omitempty"`
	FIO                 string     `json:"fio,omitempty"`
	Birthdate           *time.Time `json:"birthdate,omitempty"`
	MenstrualCycle      string     `json:"menstrual_cycle,omitempty"`
	Country             string     `json:"country,omitempty"`
	City                string     `json:"city,omitempty"`
	Medication          string     `json:"medication,omitempty"`
	MedicationName      string     `json:"medication_name,omitempty"`
	ConstMedication     string     `json:"const_medication,omitempty"`
	ConstMedicationName string     `json:"const_medication_name,omitempty"`
	ReminderTime        string     `json:"reminder_time,omitempty"` // HH:MM
	Language            string     `json:"language,omitempty"`
	Role                string     `json:"role,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DefaultLanguage is used when a user has no stored language preference.
const DefaultLanguage = "ru"

// EffectiveLanguage returns the user's stored language or the default.
func (u *User) EffectiveLanguage() string {
	if u == nil || u.Language == "" {
		return DefaultLanguage
	}
	return u.Language
}
