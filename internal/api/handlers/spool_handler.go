package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/inletmail/inlet/internal/api/response"
	"github.com/inletmail/inlet/internal/queue"
)

// SpoolHandler exposes read-only spool introspection
type SpoolHandler struct {
	spool *queue.Spool
}

// NewSpoolHandler creates a new SpoolHandler
func NewSpoolHandler(spool *queue.Spool) *SpoolHandler {
	return &SpoolHandler{spool: spool}
}

// Stats handles GET /api/spool
func (h *SpoolHandler) Stats(c echo.Context) error {
	count, err := h.spool.Count()
	if err != nil {
		return response.InternalError(c, "failed to inspect spool")
	}

	return response.Success(c, map[string]interface{}{
		"pending": count,
		"dir":     h.spool.Dir(),
	})
}

// List handles GET /api/spool/messages
func (h *SpoolHandler) List(c echo.Context) error {
	ids, err := h.spool.List()
	if err != nil {
		return response.InternalError(c, "failed to list spool")
	}
	if ids == nil {
		ids = []string{}
	}

	return response.Success(c, ids)
}
