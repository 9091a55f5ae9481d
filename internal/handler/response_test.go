package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/circuitpad/internal/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", apperror.ValidationFailed("name", "name is required"), http.StatusBadRequest, "validation_error", "name is required"},
		{"invalid query", apperror.InvalidQuery("package_id", "bad id"), http.StatusBadRequest, "invalid_query_params", "bad id"},
		{"not found wrapped", fmt.Errorf("loading: %w", apperror.NotFound("package", "x")), http.StatusNotFound, "not_found", ""},
		{"forbidden", apperror.Forbidden("not yours"), http.StatusForbidden, "forbidden", "not yours"},
		{"conflict", apperror.Conflict("package", "alice/x"), http.StatusConflict, "conflict", ""},
		{"unauthorized", apperror.Unauthorized("log in"), http.StatusUnauthorized, "unauthorized", "log in"},
		{
			"custom code",
			apperror.ValidationFailed("package_id", "cannot fork your own package").WithCode(apperror.CodeCannotForkOwnPackage),
			http.StatusBadRequest, "cannot_fork_own_package", "cannot fork your own package",
		},
		{"internal", errors.New("sql: database is locked"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.False(t, resp.OK)
			assert.Equal(t, tt.wantCode, resp.Error.ErrorCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}
		})
	}
}

func TestWriteOK(t *testing.T) {
	rr := httptest.NewRecorder()
	writeOK(rr, http.StatusCreated, "package", map[string]string{"package_id": "p1"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"ok":true,"package":{"package_id":"p1"}}`, rr.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name      string
		body      string
		wantField string
		wantErr   bool
	}{
		{"ok with unknown fields", `{"name":"x","extra":1}`, "", false},
		{"empty body", ``, "body", true},
		{"malformed", `{"name":`, "body", true},
		{"too large", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "body", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestFirst(t *testing.T) {
	assert.Equal(t, "b", first("", "  ", " b ", "c"))
	assert.Equal(t, "", first("", " "))
}
