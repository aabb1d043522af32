package acl

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ai/meridian/internal/platform/httpx"
	"github.com/meridian-ai/meridian/internal/shared"
)

// Handler exposes the permission call surface over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/grant", h.grant)
	r.Post("/revoke", h.revoke)
	r.Post("/modify", h.modify)
	r.Post("/bulk", h.bulkUpdate)
	r.Delete("/resource/{resourceType}/{resourceID}", h.removeAll)

	r.Get("/check", h.check)
	r.Get("/effective", h.effective)
	r.Post("/effective/batch", h.effectiveBatch)
	r.Get("/accessible", h.accessible)
	r.Get("/public", h.public)
	r.Get("/entries", h.entries)
}

type entryResponse struct {
	PrincipalType  PrincipalType `json:"principalType"`
	PrincipalID    string        `json:"principalId,omitempty"`
	ResourceType   string        `json:"resourceType"`
	ResourceID     string        `json:"resourceId"`
	PermBits       PermBits      `json:"permBits"`
	RoleIdentifier string        `json:"roleIdentifier,omitempty"`
	GrantedBy      string        `json:"grantedBy"`
	GrantedAt      time.Time     `json:"grantedAt"`
	InheritedFrom  string        `json:"inheritedFrom,omitempty"`
}

func toEntryResponse(entry Entry) entryResponse {
	return entryResponse{
		PrincipalType:  entry.PrincipalType,
		PrincipalID:    entry.PrincipalID,
		ResourceType:   entry.ResourceType,
		ResourceID:     entry.ResourceID,
		PermBits:       entry.PermBits,
		RoleIdentifier: entry.RoleIdentifier,
		GrantedBy:      entry.GrantedBy,
		GrantedAt:      entry.GrantedAt,
		InheritedFrom:  entry.InheritedFrom,
	}
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Identity{}, false
	}
	return identity, true
}

// canManage gates write endpoints: administrators always may, everyone else
// needs the SHARE bit on the target resource.
func (h *Handler) canManage(w http.ResponseWriter, r *http.Request, identity shared.Identity, resourceType, resourceID string) bool {
	if identity.IsAdministrator() {
		return true
	}
	allowed, err := h.service.CheckPermission(r.Context(), identity.UserID, identity.SystemRole, resourceType, resourceID, PermShare)
	if err != nil {
		h.respondErr(w, err)
		return false
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case isValidation(err):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrEntryNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	default:
		h.logger.Error("permission request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type grantRequest struct {
	PrincipalType  PrincipalType `json:"principalType" validate:"required"`
	PrincipalID    string        `json:"principalId"`
	ResourceType   string        `json:"resourceType" validate:"required"`
	ResourceID     string        `json:"resourceId" validate:"required"`
	PermBits       PermBits      `json:"permBits"`
	RoleIdentifier string        `json:"roleIdentifier"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.canManage(w, r, identity, req.ResourceType, req.ResourceID) {
		return
	}
	entry, err := h.service.GrantPermission(r.Context(), GrantInput{
		PrincipalType:  req.PrincipalType,
		PrincipalID:    req.PrincipalID,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		Bits:           req.PermBits,
		GrantedBy:      identity.UserID,
		RoleIdentifier: req.RoleIdentifier,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

type revokeRequest struct {
	PrincipalType PrincipalType `json:"principalType" validate:"required"`
	PrincipalID   string        `json:"principalId"`
	ResourceType  string        `json:"resourceType" validate:"required"`
	ResourceID    string        `json:"resourceId" validate:"required"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.canManage(w, r, identity, req.ResourceType, req.ResourceID) {
		return
	}
	deleted, err := h.service.RevokePermission(r.Context(), req.PrincipalType, req.PrincipalID, req.ResourceType, req.ResourceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type modifyRequest struct {
	PrincipalType PrincipalType `json:"principalType" validate:"required"`
	PrincipalID   string        `json:"principalId"`
	ResourceType  string        `json:"resourceType" validate:"required"`
	ResourceID    string        `json:"resourceId" validate:"required"`
	AddBits       PermBits      `json:"addBits"`
	RemoveBits    PermBits      `json:"removeBits"`
}

func (h *Handler) modify(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req modifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.canManage(w, r, identity, req.ResourceType, req.ResourceID) {
		return
	}
	entry, err := h.service.ModifyPermissionBits(r.Context(), req.PrincipalType, req.PrincipalID, req.ResourceType, req.ResourceID, req.AddBits, req.RemoveBits)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if entry == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"entry": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": toEntryResponse(*entry)})
}

type bulkRequest struct {
	ResourceType string `json:"resourceType" validate:"required"`
	ResourceID   string `json:"resourceId" validate:"required"`
	Updated      []struct {
		PrincipalType  PrincipalType `json:"principalType" validate:"required"`
		PrincipalID    string        `json:"principalId"`
		RoleIdentifier string        `json:"roleIdentifier"`
	} `json:"updated" validate:"dive"`
	Revoked []struct {
		PrincipalType PrincipalType `json:"principalType" validate:"required"`
		PrincipalID   string        `json:"principalId"`
	} `json:"revoked" validate:"dive"`
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.canManage(w, r, identity, req.ResourceType, req.ResourceID) {
		return
	}
	updated := make([]BulkPrincipalUpdate, len(req.Updated))
	for i, item := range req.Updated {
		updated[i] = BulkPrincipalUpdate{
			PrincipalType:  item.PrincipalType,
			PrincipalID:    item.PrincipalID,
			RoleIdentifier: item.RoleIdentifier,
		}
	}
	revoked := make([]BulkPrincipalRevoke, len(req.Revoked))
	for i, item := range req.Revoked {
		revoked[i] = BulkPrincipalRevoke{PrincipalType: item.PrincipalType, PrincipalID: item.PrincipalID}
	}
	result, err := h.service.BulkUpdateResourcePermissions(r.Context(), req.ResourceType, req.ResourceID, updated, revoked, identity.UserID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) removeAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")
	if !h.canManage(w, r, identity, resourceType, resourceID) {
		return
	}
	deleted, err := h.service.RemoveAllPermissions(r.Context(), resourceType, resourceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func requiredBitsParam(r *http.Request) (PermBits, error) {
	raw := r.URL.Query().Get("required")
	if raw == "" {
		return 0, fmt.Errorf("%w: required query parameter missing", ErrInvalidPermBits)
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPermBits, raw)
	}
	return PermBits(value), nil
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	required, err := requiredBitsParam(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	query := r.URL.Query()
	allowed, err := h.service.CheckPermission(r.Context(), identity.UserID, identity.SystemRole,
		query.Get("resourceType"), query.Get("resourceId"), required)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	bits, err := h.service.EffectivePermissions(r.Context(), identity.UserID, identity.SystemRole,
		query.Get("resourceType"), query.Get("resourceId"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]PermBits{"permBits": bits})
}

type effectiveBatchRequest struct {
	ResourceType string   `json:"resourceType" validate:"required"`
	ResourceIDs  []string `json:"resourceIds" validate:"required"`
}

func (h *Handler) effectiveBatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req effectiveBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ResourcePermissionsMap(r.Context(), identity.UserID, identity.SystemRole, req.ResourceType, req.ResourceIDs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": result})
}

func (h *Handler) accessible(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	required, err := requiredBitsParam(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	ids, err := h.service.AccessibleResources(r.Context(), identity.UserID, identity.SystemRole,
		r.URL.Query().Get("resourceType"), required)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"resourceIds": ids})
}

func (h *Handler) public(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	required, err := requiredBitsParam(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	ids, err := h.service.PubliclyAccessibleResources(r.Context(), r.URL.Query().Get("resourceType"), required)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"resourceIds": ids})
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	entries, err := h.service.ResourceEntries(r.Context(), identity.UserID, identity.SystemRole,
		query.Get("resourceType"), query.Get("resourceId"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]entryResponse, len(entries))
	for i, entry := range entries {
		out[i] = toEntryResponse(entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}
