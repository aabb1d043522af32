package acl

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-ai/meridian/internal/resources"
	"github.com/meridian-ai/meridian/internal/shared"
)

// Guard builds request middleware protecting resource routes. The response
// contract is ordered: 401 without an authenticated identity, 404 when the
// resource cannot be resolved, unconditional allow for the resource author
// or an administrator, 403 when the ACL check fails.
type Guard struct {
	Service *Service
	Lookups *resources.LookupRegistry
	Logger  *slog.Logger
}

// Require returns middleware enforcing required bits on the resource
// identified by the idParam URL parameter.
func (g Guard) Require(resourceType string, required PermBits, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			externalID := chi.URLParam(r, idParam)
			if externalID == "" {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}

			lookup, ok := g.Lookups.For(resourceType)
			if !ok {
				if g.Logger != nil {
					g.Logger.Error("no resource lookup registered", slog.String("resource_type", resourceType))
				}
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			resource, err := lookup.Resolve(r.Context(), externalID)
			if err != nil {
				if !errors.Is(err, resources.ErrUnknownResource) && g.Logger != nil {
					g.Logger.Error("resource lookup failed", slog.String("resource_type", resourceType), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}

			// Author and administrator bypass the ACL entirely.
			if resource.AuthorID == identity.UserID || identity.IsAdministrator() {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := g.Service.CheckPermission(r.Context(), identity.UserID, identity.SystemRole, resourceType, resource.ID, required)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("permission check failed", slog.String("resource_type", resourceType), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
