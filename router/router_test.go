package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"collabdoc/internal/access"
	"collabdoc/internal/document/repository"
	"collabdoc/internal/document/service"
	"collabdoc/internal/metrics"
	"collabdoc/internal/moderation"
	flagrepo "collabdoc/internal/moderation/repository"
	"collabdoc/internal/review"
	"collabdoc/internal/version"
	"collabdoc/middleware"
	"collabdoc/socket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "router-secret"

func setup(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	docs := repository.NewMemoryRepository()
	flags := flagrepo.NewMemoryRepository()
	store := version.NewStore(docs)
	policy := access.NewClassificationPolicy(2)
	auth := middleware.NewAuthenticator(secret)
	hub := socket.NewHub(store, auth, policy, m)
	t.Cleanup(hub.Shutdown)

	svc := service.NewDocumentService(store, moderation.NewRegistry(flags), moderation.NewAggregator(flags, m),
		review.NewWorkflow(docs, flags, m), policy, hub)
	return Setup(svc, hub, auth, reg, "*")
}

func TestRoutes(t *testing.T) {
	h := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents?docId=x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "level": 2}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"title":"t","content":"abc"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "collabdoc_rooms_active")
}
