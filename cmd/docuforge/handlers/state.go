package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
)

// StateHandler exposes the observable app state over HTTP.
type StateHandler struct {
	c *container.Container
}

// NewStateHandler creates a new state handler.
func NewStateHandler(c *container.Container) *StateHandler {
	return &StateHandler{c: c}
}

// Get returns the whole state bag.
// GET /api/v1/state
func (h *StateHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.c.AppState.Snapshot())
}

// Update applies a set of key changes.
// PATCH /api/v1/state
func (h *StateHandler) Update(c echo.Context) error {
	var changes map[string]any
	if err := c.Bind(&changes); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	if err := h.c.AppState.Update(c.Request().Context(), changes); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, h.c.AppState.Snapshot())
}

type processingModeRequest struct {
	Mode string `json:"mode"`
}

// SetProcessingMode switches between single and bulk mode.
// PUT /api/v1/state/processing-mode
func (h *StateHandler) SetProcessingMode(c echo.Context) error {
	var req processingModeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	if err := h.c.AppState.SetProcessingMode(c.Request().Context(), req.Mode); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"processingMode": req.Mode})
}
