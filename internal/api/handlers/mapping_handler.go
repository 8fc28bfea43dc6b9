package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inletmail/inlet/internal/api/response"
	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/repository"
)

// MappingHandler handles routing-rule HTTP requests
type MappingHandler struct {
	mappingRepo   repository.MappingRepository
	defaultDomain string
}

// NewMappingHandler creates a new MappingHandler. Rules created without an
// explicit domain fall under defaultDomain.
func NewMappingHandler(mappingRepo repository.MappingRepository, defaultDomain string) *MappingHandler {
	return &MappingHandler{mappingRepo: mappingRepo, defaultDomain: defaultDomain}
}

// CreateMappingRequest represents the request body for creating a rule
type CreateMappingRequest struct {
	UserID               uint   `json:"user_id"`
	EmailUser            string `json:"email_user"`
	EmailDomain          string `json:"email_domain"`
	Transport            string `json:"transport"`
	Destination          string `json:"destination"`
	Separator            string `json:"separator"`
	RecipientHeaderOrder string `json:"recipient_header_order"`
}

// Create handles POST /api/mappings
func (h *MappingHandler) Create(c echo.Context) error {
	var req CreateMappingRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.EmailUser == "" {
		return response.BadRequest(c, "email_user is required")
	}
	if req.EmailDomain == "" {
		req.EmailDomain = h.defaultDomain
	}
	if req.EmailDomain == "" {
		return response.BadRequest(c, "email_domain is required")
	}

	mapping := &models.Mapping{
		UserID:               req.UserID,
		EmailUser:            req.EmailUser,
		EmailDomain:          req.EmailDomain,
		Transport:            models.TransportKind(req.Transport),
		Destination:          req.Destination,
		Separator:            req.Separator,
		RecipientHeaderOrder: req.RecipientHeaderOrder,
	}

	if err := h.mappingRepo.Save(c.Request().Context(), mapping); err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, mapping)
}

// List handles GET /api/mappings
func (h *MappingHandler) List(c echo.Context) error {
	limit, offset := pagination(c)

	mappings, total, err := h.mappingRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list mappings")
	}

	return response.Paginated(c, mappings, total, limit, offset)
}

// Get handles GET /api/mappings/:id
func (h *MappingHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid mapping ID")
	}

	mapping, err := h.mappingRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mapping not found")
		}
		return response.InternalError(c, "failed to get mapping")
	}

	return response.Success(c, mapping)
}

// Update handles PUT /api/mappings/:id
func (h *MappingHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid mapping ID")
	}

	mapping, err := h.mappingRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mapping not found")
		}
		return response.InternalError(c, "failed to get mapping")
	}

	var req CreateMappingRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.EmailUser != "" {
		mapping.EmailUser = req.EmailUser
	}
	if req.EmailDomain != "" {
		mapping.EmailDomain = req.EmailDomain
	}
	if req.Transport != "" {
		mapping.Transport = models.TransportKind(req.Transport)
	}
	if req.Destination != "" {
		mapping.Destination = req.Destination
	}
	mapping.Separator = req.Separator
	mapping.RecipientHeaderOrder = req.RecipientHeaderOrder

	if err := h.mappingRepo.Save(c.Request().Context(), mapping); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, mapping)
}

// Delete handles DELETE /api/mappings/:id
func (h *MappingHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid mapping ID")
	}

	if err := h.mappingRepo.Delete(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mapping not found")
		}
		return response.InternalError(c, "failed to delete mapping")
	}

	return response.NoContent(c)
}

func pagination(c echo.Context) (limit, offset int) {
	limit = 20
	offset = 0

	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
