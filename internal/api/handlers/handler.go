package handlers

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/services"
)

// Handler carries the shared dependencies of all HTTP endpoints.
type Handler struct {
	Pipeline  *services.Pipeline
	Redis     *database.RedisClient
	Logger    *logrus.Logger
	Version   string
	StartedAt time.Time
}

// NewHandler creates the endpoint dependency bundle.
func NewHandler(pipeline *services.Pipeline, redis *database.RedisClient, logger *logrus.Logger, version string) *Handler {
	return &Handler{
		Pipeline:  pipeline,
		Redis:     redis,
		Logger:    logger,
		Version:   version,
		StartedAt: time.Now(),
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
