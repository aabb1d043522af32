package accessroles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-ai/meridian/internal/acl"
	"github.com/meridian-ai/meridian/internal/platform/httpx"
)

// Handler exposes the role registry over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers access role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listByResourceType)
	r.Get("/{identifier}", h.getByIdentifier)
	r.Get("/label", h.labelForPermissions)
}

type roleResponse struct {
	Identifier   string       `json:"identifier"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	ResourceType string       `json:"resourceType"`
	PermBits     acl.PermBits `json:"permBits"`
}

func toRoleResponse(role AccessRole) roleResponse {
	return roleResponse{
		Identifier:   role.Identifier,
		Name:         role.Name,
		Description:  role.Description,
		ResourceType: role.ResourceType,
		PermBits:     role.PermBits,
	}
}

func (h *Handler) listByResourceType(w http.ResponseWriter, r *http.Request) {
	resourceType := r.URL.Query().Get("resourceType")
	if resourceType == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resourceType query parameter required")
		return
	}
	roles, err := h.service.RolesForResourceType(r.Context(), resourceType)
	if err != nil {
		h.logger.Error("list access roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) getByIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	role, err := h.service.RoleByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get access role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

// labelForPermissions resolves a bit mask to its display role.
func (h *Handler) labelForPermissions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resourceType := query.Get("resourceType")
	raw := query.Get("permBits")
	value, err := strconv.ParseUint(raw, 10, 32)
	if resourceType == "" || err != nil || value == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resourceType and positive permBits required")
		return
	}
	role, err := h.service.RoleForPermissions(r.Context(), resourceType, acl.PermBits(value))
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("label permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}
