package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// GetSprintCheckpoints returns the checkpoint history ordered by creation.
// GET /v1/sprints/:sprint_id/checkpoints
func (h *Handler) GetSprintCheckpoints(c echo.Context) error {
	history, err := h.checkpoints.WorkflowHistory(c.Request().Context(), c.Param("sprint_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"checkpoints": history,
	})
}

// RestoreCheckpoint forks a new ACTIVE checkpoint from an existing one.
// POST /v1/sprints/:sprint_id/checkpoints/:checkpoint_id/restore
func (h *Handler) RestoreCheckpoint(c echo.Context) error {
	ctx := c.Request().Context()
	checkpointID := c.Param("checkpoint_id")

	existing, err := h.checkpoints.Get(ctx, checkpointID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if existing == nil || existing.SprintID != c.Param("sprint_id") {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "checkpoint not found"})
	}

	forked, err := h.checkpoints.Restore(ctx, checkpointID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	h.runner.Announce(ctx, forked.SprintID, domain.EventTypeCheckpointRestored, forked.CheckpointID, map[string]interface{}{
		"checkpoint_id": forked.CheckpointID,
		"restored_from": checkpointID,
	})
	return c.JSON(http.StatusOK, forked)
}

// ListAgents returns the registered agent descriptors.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	type agentView struct {
		Name     string `json:"name"`
		Kind     string `json:"kind"`
		Provider string `json:"provider,omitempty"`
		Model    string `json:"model,omitempty"`
		Enabled  bool   `json:"enabled"`
	}
	descs := h.registry.List()
	out := make([]agentView, 0, len(descs))
	for _, d := range descs {
		out = append(out, agentView{
			Name:     d.Name,
			Kind:     string(d.Kind),
			Provider: d.Provider,
			Model:    d.Model,
			Enabled:  d.Enabled,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": out,
	})
}
