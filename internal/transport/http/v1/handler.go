// Package v1 provides the HTTP API of the sprint orchestrator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/checkpoint"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/phase"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/repository"
)

// Handler handles HTTP requests.
type Handler struct {
	store       repository.Store
	runner      *phase.Runner
	checkpoints *checkpoint.Store
	registry    *registry.Registry
}

// NewHandler creates a new handler.
func NewHandler(store repository.Store, runner *phase.Runner, checkpoints *checkpoint.Store, reg *registry.Registry) *Handler {
	return &Handler{
		store:       store,
		runner:      runner,
		checkpoints: checkpoints,
		registry:    reg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sprints", h.StartSprint)
	e.GET("/v1/sprints/:sprint_id", h.GetSprint)
	e.GET("/v1/sprints/:sprint_id/events", h.GetSprintEvents)
	e.GET("/v1/sprints/:sprint_id/checkpoints", h.GetSprintCheckpoints)
	e.POST("/v1/sprints/:sprint_id/checkpoints/:checkpoint_id/restore", h.RestoreCheckpoint)

	e.GET("/v1/agents", h.ListAgents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
