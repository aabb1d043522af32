package acl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/meridian/internal/resources"
	"github.com/meridian-ai/meridian/internal/shared"
)

type stubLookup struct {
	byID map[string]resources.Resource
}

func (l stubLookup) Resolve(ctx context.Context, externalID string) (resources.Resource, error) {
	res, ok := l.byID[externalID]
	if !ok {
		return resources.Resource{}, resources.ErrUnknownResource
	}
	return res, nil
}

func newGuardRouter(t *testing.T, svc *Service, required PermBits) *chi.Mux {
	t.Helper()
	lookups := resources.NewLookupRegistry()
	lookups.Register(resources.TypeAgent, stubLookup{byID: map[string]resources.Resource{
		"a1": {ID: "a1", AuthorID: "author"},
	}})

	guard := Guard{
		Service: svc,
		Lookups: lookups,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	r := chi.NewRouter()
	r.With(guard.Require(resources.TypeAgent, required, "agentID")).
		Get("/agents/{agentID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	return r
}

func doGuarded(router http.Handler, path string, identity *shared.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if identity != nil {
		sess := &shared.Session{}
		sess.SetIdentity(*identity)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGuardUnauthenticated(t *testing.T) {
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/a1", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardUnknownResource(t *testing.T) {
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/missing", &shared.Identity{UserID: "u1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuardResolutionPrecedesAuthorization(t *testing.T) {
	// Even an administrator sees 404 for an unresolvable resource: the
	// not-found check runs before any bypass or ACL consultation.
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/missing", &shared.Identity{UserID: "root", SystemRole: shared.SystemRoleAdministrator})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuardAuthorBypass(t *testing.T) {
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermDelete)

	rec := doGuarded(router, "/agents/a1", &shared.Identity{UserID: "author"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardAdministratorBypass(t *testing.T) {
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermDelete)

	rec := doGuarded(router, "/agents/a1", &shared.Identity{UserID: "root", SystemRole: shared.SystemRoleAdministrator})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardDeniesWithoutGrant(t *testing.T) {
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/a1", &shared.Identity{UserID: "u1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardAllowsWithGrant(t *testing.T) {
	repo := newMemoryEntryRepo()
	svc := newTestService(repo, &memoryGroups{}, nil)
	_, err := svc.GrantPermission(context.Background(), GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u1",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
		GrantedBy:     "author",
	})
	require.NoError(t, err)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/a1", &shared.Identity{UserID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardDeniesOnBrokenStore(t *testing.T) {
	svc := newTestService(failingEntryRepo{}, &memoryGroups{}, nil)
	router := newGuardRouter(t, svc, PermView)

	rec := doGuarded(router, "/agents/a1", &shared.Identity{UserID: "u1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
