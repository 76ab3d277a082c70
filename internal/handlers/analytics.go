package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/services"
)

type AnalyticsHandler struct {
	log       *logger.Logger
	analytics services.AnalyticsService
}

func NewAnalyticsHandler(log *logger.Logger, analytics services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		log:       log.With("handler", "AnalyticsHandler"),
		analytics: analytics,
	}
}

// GET /api/knowledge-summary
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	sum, err := h.analytics.KnowledgeSummary(c.Request.Context(), intQuery(c, "top", 10))
	if err != nil {
		RespondFault(c, "summary_failed", err)
		return
	}
	RespondOK(c, sum)
}

// GET /api/analytics/evolution
func (h *AnalyticsHandler) GetEvolution(c *gin.Context) {
	report, err := h.analytics.Evolution(c.Request.Context(), intQuery(c, "days", 30))
	if err != nil {
		RespondFault(c, "evolution_failed", err)
		return
	}
	RespondOK(c, report)
}
