package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/services"
)

type QueryHandler struct {
	log   *logger.Logger
	query services.QueryService
}

func NewQueryHandler(log *logger.Logger, query services.QueryService) *QueryHandler {
	return &QueryHandler{
		log:   log.With("handler", "QueryHandler"),
		query: query,
	}
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// POST /api/query
func (h *QueryHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.query.Ask(c.Request.Context(), req.Question)
	if err != nil {
		RespondFault(c, "query_failed", err)
		return
	}
	RespondOK(c, res)
}

// POST /api/query/context
// Raw ranked context without answer generation.
func (h *QueryHandler) RetrieveContext(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.query.Retrieve(c.Request.Context(), req.Question)
	if err != nil {
		RespondFault(c, "retrieval_failed", err)
		return
	}
	RespondOK(c, res)
}
