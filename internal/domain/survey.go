package domain

import (
	"time"
)

// Survey is one daily symptom report extracted from a finished dialogue.
// Rows cascade-delete with their owning user.
type Survey struct {
	SurveyID        string    `json:"survey_id"`
	UserID          string    `json:"userid"`
	HeadacheToday   string    `json:"headache_today,omitempty"`
	MedicamentToday string    `json:"medicament_today,omitempty"`
	PainIntensity   int       `json:"pain_intensity"`
	PainArea        string    `json:"pain_area,omitempty"`
	AreaDetail      string    `json:"area_detail,omitempty"`
	PainType        string    `json:"pain_type,omitempty"`
	Comments        string    `json:"comments,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
