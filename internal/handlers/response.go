package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// RespondFault maps the shared error taxonomy onto HTTP statuses: missing
// resources are 404, transient upstream failures 503, the rest 400.
func RespondFault(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, faults.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		RespondError(c, http.StatusNotFound, code, err)
	case faults.IsTransient(err):
		RespondError(c, http.StatusServiceUnavailable, code, err)
	default:
		RespondError(c, http.StatusBadRequest, code, err)
	}
}
