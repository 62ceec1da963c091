// Package stats exports survey statistics for a user.
package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
)

const timeLayout = "2006-01-02 15:04"

// Record is one survey row shaped for export. Labels match the report the
// bot has always produced for the care team; Number is the 1-based ordinal
// of the survey within the user's history.
type Record struct {
	Number          int    `json:"Номер"`
	CreatedAt       string `json:"Дата создания"`
	UpdatedAt       string `json:"Дата обновления"`
	HeadacheToday   string `json:"Головная боль сегодня"`
	MedicamentToday string `json:"Принимали ли медикаменты"`
	PainIntensity   int    `json:"Интенсивность боли"`
	PainArea        string `json:"Область боли"`
	AreaDetail      string `json:"Детали области"`
	PainType        string `json:"Тип боли"`
	Comments        string `json:"Комментарии"`
}

// Service builds survey exports from the entity store.
type Service struct {
	repo store.Repository
}

// NewService creates a statistics service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// Records returns all survey rows for a user shaped for export.
func (s *Service) Records(ctx context.Context, userID string) ([]Record, error) {
	surveys, err := s.repo.ListSurveys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}

	records := make([]Record, 0, len(surveys))
	for i, sv := range surveys {
		records = append(records, Record{
			Number:          i + 1,
			CreatedAt:       sv.CreatedAt.Format(timeLayout),
			UpdatedAt:       sv.UpdatedAt.Format(timeLayout),
			HeadacheToday:   sv.HeadacheToday,
			MedicamentToday: sv.MedicamentToday,
			PainIntensity:   sv.PainIntensity,
			PainArea:        sv.PainArea,
			AreaDetail:      sv.AreaDetail,
			PainType:        sv.PainType,
			Comments:        sv.Comments,
		})
	}
	return records, nil
}

// WriteCSV renders the user's survey records as a CSV table.
func (s *Service) WriteCSV(ctx context.Context, userID string, w io.Writer) error {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"Номер", "Дата создания", "Дата обновления",
		"Головная боль сегодня", "Принимали ли медикаменты",
		"Интенсивность боли", "Область боли", "Детали области",
		"Тип боли", "Комментарии",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Number), r.CreatedAt, r.UpdatedAt,
			r.HeadacheToday, r.MedicamentToday,
			strconv.Itoa(r.PainIntensity), r.PainArea, r.AreaDetail,
			r.PainType, r.Comments,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
