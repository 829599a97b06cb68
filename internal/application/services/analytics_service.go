package services

import (
	"context"

	"github.com/dealsight/backend/internal/domain/repositories"
)

// reportFields are the category fields the analytics report covers.
var reportFields = []string{"industry", "main_pain_point", "discovery_source", "use_case"}

// CategoriesReport aggregates categorization counts and closure rates per
// category field.
type CategoriesReport struct {
	Fields map[string][]repositories.FieldCount `json:"fields"`
}

// AnalyticsService produces groupby-count reports over categorizations.
type AnalyticsService struct {
	categorizations repositories.CategorizationRepository
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(categorizations repositories.CategorizationRepository) *AnalyticsService {
	return &AnalyticsService{categorizations: categorizations}
}

// Categories builds the category distribution report.
func (s *AnalyticsService) Categories(ctx context.Context) (*CategoriesReport, error) {
	report := &CategoriesReport{Fields: make(map[string][]repositories.FieldCount, len(reportFields))}
	for _, field := range reportFields {
		counts, err := s.categorizations.CountByField(ctx, field)
		if err != nil {
			return nil, err
		}
		report.Fields[field] = counts
	}
	return report, nil
}
