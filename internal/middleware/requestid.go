package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/ctxutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

const requestIDHeader = "X-Request-ID"

type RequestIDMiddleware struct {
	log *logger.Logger
}

func NewRequestIDMiddleware(log *logger.Logger) *RequestIDMiddleware {
	return &RequestIDMiddleware{log: log.With("middleware", "RequestID")}
}

// Handler stamps every request with an id, threads it through the request
// context for log correlation and echoes it back in the response header.
func (m *RequestIDMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{RequestID: id})
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, id)

		c.Next()

		if len(c.Errors) > 0 {
			m.log.Warn("request finished with errors",
				"request_id", id,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"errors", c.Errors.String(),
			)
		}
	}
}
