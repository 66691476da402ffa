package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestMountRoutes_Surfaces(t *testing.T) {
	s := testServer(t)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/entitlement", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	s.AdminRouteRegistrars = append(s.AdminRouteRegistrars, func(r chi.Router) {
		r.Get("/analytics/distribution", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	s.MountRoutes()

	do := func(path string, headers map[string]string) int {
		req := httptest.NewRequest("GET", path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr.Code
	}

	// Health is public.
	assert.Equal(t, http.StatusOK, do("/health", nil))

	// The /v1 tree requires a forwarded account identity.
	assert.Equal(t, http.StatusUnauthorized, do("/v1/entitlement", nil))
	assert.Equal(t, http.StatusOK, do("/v1/entitlement", map[string]string{"X-Account-ID": "acct_1"}))

	// The admin tree requires the shared key; an account header alone is
	// not enough.
	assert.Equal(t, http.StatusForbidden, do("/v1/admin/analytics/distribution", map[string]string{"X-Account-ID": "acct_1"}))
	assert.Equal(t, http.StatusOK, do("/v1/admin/analytics/distribution", map[string]string{"X-Admin-Key": "admin-key-test"}))
}

func TestMountRoutes_RequestIDOnEveryResponse(t *testing.T) {
	s := testServer(t)
	s.MountRoutes()

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
