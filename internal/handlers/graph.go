package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/services"
)

type GraphHandler struct {
	log   *logger.Logger
	graph services.GraphService
}

func NewGraphHandler(log *logger.Logger, graph services.GraphService) *GraphHandler {
	return &GraphHandler{
		log:   log.With("handler", "GraphHandler"),
		graph: graph,
	}
}

// GET /api/knowledge-graph
func (h *GraphHandler) GetGraph(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	minWeight := floatQuery(c, "min_weight", 1)
	view, err := h.graph.View(c.Request.Context(), limit, minWeight)
	if err != nil {
		RespondFault(c, "graph_view_failed", err)
		return
	}
	RespondOK(c, view)
}

// GET /api/knowledge-graph/concepts/:name/related
func (h *GraphHandler) GetRelated(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		RespondError(c, http.StatusBadRequest, "missing_concept", nil)
		return
	}
	related, err := h.graph.Related(c.Request.Context(), name, intQuery(c, "limit", 10))
	if err != nil {
		RespondFault(c, "concept_not_found", err)
		return
	}
	RespondOK(c, gin.H{"concept": name, "related": related})
}

// GET /api/knowledge-graph/path/:start/:end
func (h *GraphHandler) GetPath(c *gin.Context) {
	start, end := c.Param("start"), c.Param("end")
	if start == "" || end == "" {
		RespondError(c, http.StatusBadRequest, "missing_concept", nil)
		return
	}
	path, err := h.graph.Path(c.Request.Context(), start, end, intQuery(c, "depth", 4))
	if err != nil {
		RespondFault(c, "path_query_failed", err)
		return
	}
	RespondOK(c, gin.H{"start": start, "end": end, "path": path, "found": len(path) > 0})
}

func floatQuery(c *gin.Context, name string, def float64) float64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}
