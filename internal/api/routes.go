package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/api/handlers"
	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/middleware"
	"github.com/Mosas2000/sprintfund/internal/services"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// SetupRoutes registers every HTTP endpoint on the router.
func SetupRoutes(router *gin.Engine, cfg *config.Config, pipeline *services.Pipeline, redis *database.RedisClient, logger *logrus.Logger) {
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h := handlers.NewHandler(pipeline, redis, logger, Version)

	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/proposals", h.GetProposals)
		v1.GET("/voters", h.GetVoters)
		v1.GET("/timeseries", h.GetTimeSeries)
		v1.GET("/anomalies", h.GetAnomalies)
		v1.GET("/insights", h.GetInsights)
		v1.GET("/recommendations", h.GetRecommendations)
		v1.POST("/refresh", h.TriggerRefresh)
	}
}
