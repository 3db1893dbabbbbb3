package v1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// StartSprintRequest is the body for POST /v1/sprints.
type StartSprintRequest struct {
	Goal string `json:"goal"`
}

// StartSprintResponse acknowledges an accepted sprint.
type StartSprintResponse struct {
	SprintID string              `json:"sprint_id"`
	Status   domain.SprintStatus `json:"status"`
}

// StartSprint creates a sprint and launches the workflow asynchronously.
// POST /v1/sprints
func (h *Handler) StartSprint(c echo.Context) error {
	var req StartSprintRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Goal == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "goal is required"})
	}

	sprint := &domain.Sprint{
		SprintID:  "sprint_" + uuid.New().String()[:8],
		Goal:      req.Goal,
		Status:    domain.SprintStatusCreated,
		StartedAt: time.Now(),
	}
	if err := h.store.CreateSprint(c.Request().Context(), sprint); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// The request context dies with the response; the workflow gets its own.
	go h.runner.Start(context.Background(), sprint.SprintID)

	return c.JSON(http.StatusAccepted, StartSprintResponse{
		SprintID: sprint.SprintID,
		Status:   sprint.Status,
	})
}

// GetSprint returns a sprint by id.
// GET /v1/sprints/:sprint_id
func (h *Handler) GetSprint(c echo.Context) error {
	sprint, err := h.store.GetSprint(c.Request().Context(), c.Param("sprint_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if sprint == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "sprint not found"})
	}
	return c.JSON(http.StatusOK, sprint)
}

// GetSprintEvents replays the sprint timeline in sequence order.
// GET /v1/sprints/:sprint_id/events
func (h *Handler) GetSprintEvents(c echo.Context) error {
	sprintID := c.Param("sprint_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterSeq := int64(0)
	if s := c.QueryParam("after_seq"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			afterSeq = val
		}
	}

	events, err := h.store.ListTimelineEvents(c.Request().Context(), sprintID, afterSeq, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
