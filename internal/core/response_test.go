package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)

	JSON(rr, req, http.StatusOK, APIResponse{Data: map[string]string{"key": "value"}})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"key":"value"}}`, rr.Body.String())
}

func TestError_AppError(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_abc"))

	appErr := types.NewAppErrorWithDetails(
		types.ErrCodeQuotaExceeded,
		"token quota exhausted",
		nil,
		map[string]any{"tokens_remaining": 0},
	)
	Error(rr, req, appErr)

	assert.Equal(t, http.StatusForbidden, rr.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeQuotaExceeded), resp.Error.Code)
	assert.Equal(t, "token quota exhausted", resp.Error.Message)
	assert.Equal(t, "req_abc", resp.Error.RequestID)
	assert.Contains(t, resp.Error.Details, "tokens_remaining")
}

func TestError_WrappedAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)

	inner := types.NewAppError(types.ErrCodeNotFoundAccount, "no ledger entry", nil)
	Error(rr, req, fmt.Errorf("loading snapshot: %w", inner))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestError_UnknownErrorIsNotLeaked(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)

	Error(rr, req, fmt.Errorf("pq: connection refused on host db-internal"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "db-internal")

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

type decodeTarget struct {
	Name string `json:"name"`
}

func decodeRequest(t *testing.T, body string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return rr, req
}

func TestDecodeJSON_Valid(t *testing.T) {
	rr, req := decodeRequest(t, `{"name":"inkwell"}`)

	var dst decodeTarget
	require.NoError(t, DecodeJSON(rr, req, &dst))
	assert.Equal(t, "inkwell", dst.Name)
}

func TestDecodeJSON_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"unknown field", `{"name":"a","rogue":true}`},
		{"wrong type", `{"name":123}`},
		{"empty body", ``},
		{"trailing value", `{"name":"a"}{"name":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, req := decodeRequest(t, tt.body)

			var dst decodeTarget
			err := DecodeJSON(rr, req, &dst)
			require.Error(t, err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
		})
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	big := bytes.Repeat([]byte("a"), maxRequestBodySize+1)
	body := `{"name":"` + string(big) + `"}`
	rr, req := decodeRequest(t, body)

	var dst decodeTarget
	err := DecodeJSON(rr, req, &dst)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
}
