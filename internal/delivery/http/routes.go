package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medicompare/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.GET("/providers", handler.ListProviders)

		analyses := v1.Group("/analyses")
		{
			analyses.GET("", handler.ListAnalyses)
			analyses.GET("/search", handler.SearchAnalyses)
			analyses.GET("/categories", handler.ListCategories)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.DELETE("/:id", handler.DeleteSession)

			sessions.POST("/:id/queries", handler.SubmitQuery)
			sessions.POST("/:id/ocr/lines", handler.SubmitLines)
			sessions.POST("/:id/ocr/image", handler.SubmitImage)

			sessions.GET("/:id/pending", handler.ListPending)
			sessions.PATCH("/:id/pending/:itemId", handler.EditPending)
			sessions.GET("/:id/pending/:itemId/suggestions", handler.PendingSuggestions)
			sessions.POST("/:id/pending/:itemId/pick", handler.PickSuggestion)
			sessions.DELETE("/:id/pending/:itemId", handler.DismissPending)

			sessions.GET("/:id/table", handler.GetTable)
			sessions.DELETE("/:id/table/:index", handler.RemoveEntry)
			sessions.GET("/:id/savings", handler.GetSavings)
			sessions.GET("/:id/export", handler.ExportTable)
		}
	}

	return router
}
