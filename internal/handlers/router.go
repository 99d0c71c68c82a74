package handlers

import (
	"log/slog"

	"github.com/ascholar/testing-service/internal/export"
	"github.com/ascholar/testing-service/internal/services"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
}

func NewHandlerManager(
	engine services.AttemptEngine,
	exporter export.ResultsExporter,
	logger *slog.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(engine, exporter, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(CandidateAuth())
	{
		tests := v1.Group("/tests")
		{
			tests.POST("/:test_id/register", hm.attemptHandler.Register)
			tests.GET("/:test_id/results/export", hm.attemptHandler.ExportResults)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("", hm.attemptHandler.ListMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.GET("/:id/remaining-time", hm.attemptHandler.GetRemainingTime)
			attempts.POST("/:id/start", hm.attemptHandler.Start)
			attempts.POST("/:id/answers", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitTest)
			attempts.POST("/:id/flags", hm.attemptHandler.RecordFlag)
			attempts.POST("/:id/review", hm.attemptHandler.ApplyReview)
		}
	}
}
