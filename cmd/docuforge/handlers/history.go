package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
	"github.com/docuforge/docuforge/cmd/docuforge/service"
)

// HistoryHandler exposes the per-service history rings and the optional
// durable archive.
type HistoryHandler struct {
	c *container.Container
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(c *container.Container) *HistoryHandler {
	return &HistoryHandler{c: c}
}

func (h *HistoryHandler) ringFor(name string) *service.HistoryRing {
	switch name {
	case "storage":
		return h.c.Storage.History()
	case "compression":
		return h.c.Compression.History()
	case "conversion":
		return h.c.Conversion.History()
	case "ocr":
		return h.c.OCR.History()
	case "ai":
		return h.c.AI.History()
	case "cloud":
		return h.c.Cloud.History()
	case "orchestrator":
		return h.c.Orchestrator.History()
	default:
		return nil
	}
}

// Service returns the in-memory history ring of one service.
// GET /api/v1/history/:service
func (h *HistoryHandler) Service(c echo.Context) error {
	ring := h.ringFor(c.Param("service"))
	if ring == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "unknown service"})
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": ring.Entries()})
}

// Archive returns the newest archived operations across restarts.
// GET /api/v1/history?limit=50
func (h *HistoryHandler) Archive(c echo.Context) error {
	if h.c.HistoryRepo == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "history archive not configured"})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.c.HistoryRepo.Recent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
