package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/inletmail/inlet/internal/api/response"
	"github.com/inletmail/inlet/internal/repository"
)

// LoggedMailHandler exposes the delivery audit trail
type LoggedMailHandler struct {
	loggedRepo repository.LoggedMailRepository
}

// NewLoggedMailHandler creates a new LoggedMailHandler
func NewLoggedMailHandler(loggedRepo repository.LoggedMailRepository) *LoggedMailHandler {
	return &LoggedMailHandler{loggedRepo: loggedRepo}
}

// List handles GET /api/logged-mails
func (h *LoggedMailHandler) List(c echo.Context) error {
	limit, offset := pagination(c)

	logged, total, err := h.loggedRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list logged mails")
	}

	return response.Paginated(c, logged, total, limit, offset)
}

// Count handles GET /api/logged-mails/count
func (h *LoggedMailHandler) Count(c echo.Context) error {
	count, err := h.loggedRepo.Count(c.Request().Context())
	if err != nil {
		return response.InternalError(c, "failed to count logged mails")
	}

	return response.Success(c, map[string]int64{"count": count})
}
