package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/services"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	log       *logger.Logger
	ingestion services.IngestionService
}

func NewDocumentHandler(log *logger.Logger, ingestion services.IngestionService) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		ingestion: ingestion,
	}
}

type uploadTextRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// POST /api/documents
func (h *DocumentHandler) UploadText(c *gin.Context) {
	var req uploadTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	doc, err := h.ingestion.UploadText(c.Request.Context(), req.Title, req.Content)
	if err != nil {
		RespondFault(c, "upload_failed", err)
		return
	}
	RespondAccepted(c, gin.H{"document": doc})
}

// POST /api/documents/media
// Multipart upload; audio is transcribed and images are captioned before
// entering the same pipeline as text.
func (h *DocumentHandler) UploadMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	doc, err := h.ingestion.UploadMedia(c.Request.Context(), fileHeader.Filename, mimeType, data)
	if err != nil {
		RespondFault(c, "media_upload_failed", err)
		return
	}
	RespondAccepted(c, gin.H{"document": doc})
}

// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	docs, err := h.ingestion.List(c.Request.Context(), limit, offset)
	if err != nil {
		RespondFault(c, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}

// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.ingestion.Get(c.Request.Context(), id)
	if err != nil {
		RespondFault(c, "document_not_found", err)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.ingestion.Delete(c.Request.Context(), id); err != nil {
		RespondFault(c, "delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/documents/:id/reprocess
// Resumes a failed document from its recorded stage.
func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.ingestion.Reprocess(c.Request.Context(), id); err != nil {
		RespondFault(c, "reprocess_failed", err)
		return
	}
	doc, err := h.ingestion.Get(c.Request.Context(), id)
	if err != nil {
		RespondFault(c, "document_not_found", err)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
