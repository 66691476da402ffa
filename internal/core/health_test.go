package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	name string
	err  error
}

func (p fakeProbe) Name() string                  { return p.name }
func (p fakeProbe) Check(_ context.Context) error { return p.err }

func TestHandleHealth_NoProbes(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	s.HandleHealth(rr, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		fakeProbe{name: "database"},
		fakeProbe{name: "generator"},
	}

	rr := httptest.NewRecorder()
	s.HandleHealth(rr, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["generator"].Status)
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		fakeProbe{name: "database", err: errors.New("connection refused")},
		fakeProbe{name: "generator"},
	}

	rr := httptest.NewRecorder()
	s.HandleHealth(rr, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["database"].Status)
	assert.Equal(t, "connection refused", resp.Components["database"].Message)
	assert.Equal(t, "healthy", resp.Components["generator"].Status)
}
