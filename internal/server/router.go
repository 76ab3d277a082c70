package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/guptaanant682/memorybank-backend/internal/handlers"
	"github.com/guptaanant682/memorybank-backend/internal/middleware"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
)

type RouterConfig struct {
	RequestID        *middleware.RequestIDMiddleware
	DocumentHandler  *handlers.DocumentHandler
	QueryHandler     *handlers.QueryHandler
	GraphHandler     *handlers.GraphHandler
	AnalyticsHandler *handlers.AnalyticsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
		AllowCredentials: true,
	}))
	if cfg.RequestID != nil {
		router.Use(cfg.RequestID.Handler())
	}

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Documents
		api.POST("/documents", cfg.DocumentHandler.UploadText)
		api.POST("/documents/media", cfg.DocumentHandler.UploadMedia)
		api.GET("/documents", cfg.DocumentHandler.ListDocuments)
		api.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
		api.DELETE("/documents/:id", cfg.DocumentHandler.DeleteDocument)
		api.POST("/documents/:id/reprocess", cfg.DocumentHandler.ReprocessDocument)

		// Query
		api.POST("/query", cfg.QueryHandler.Ask)
		api.POST("/query/context", cfg.QueryHandler.RetrieveContext)

		// Knowledge graph
		api.GET("/knowledge-graph", cfg.GraphHandler.GetGraph)
		api.GET("/knowledge-graph/concepts/:name/related", cfg.GraphHandler.GetRelated)
		api.GET("/knowledge-graph/path/:start/:end", cfg.GraphHandler.GetPath)

		// Analytics
		api.GET("/knowledge-summary", cfg.AnalyticsHandler.GetSummary)
		api.GET("/analytics/evolution", cfg.AnalyticsHandler.GetEvolution)
	}

	return router
}
