package services

import (
	"context"

	"github.com/guptaanant682/memorybank-backend/internal/analytics"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// AnalyticsService exposes growth and summary reporting to the API.
type AnalyticsService interface {
	Evolution(ctx context.Context, daysBack int) (analytics.EvolutionReport, error)
	KnowledgeSummary(ctx context.Context, topN int) (analytics.Summary, error)
}

type analyticsService struct {
	log  *logger.Logger
	core *analytics.Service
}

func NewAnalyticsService(baseLog *logger.Logger, core *analytics.Service) AnalyticsService {
	return &analyticsService{
		log:  baseLog.With("service", "AnalyticsService"),
		core: core,
	}
}

func (s *analyticsService) Evolution(ctx context.Context, daysBack int) (analytics.EvolutionReport, error) {
	return s.core.Evolution(ctx, daysBack)
}

func (s *analyticsService) KnowledgeSummary(ctx context.Context, topN int) (analytics.Summary, error) {
	return s.core.KnowledgeSummary(ctx, topN)
}
