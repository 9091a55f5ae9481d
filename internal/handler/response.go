package handler

// RESPONSE ENVELOPE:
// Every JSON endpoint answers with the same outer shape so clients can check
// one field before looking at anything else:
//
//	success: {"ok": true, "package": {...}}
//	failure: {"ok": false, "error": {"error_code": "package_not_found", "message": "...", "field": "..."}}
//
// The entity key ("package", "package_files", ...) names what the endpoint
// returns. error_code is machine-readable and stable; message is for humans.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/auth"
)

// maxBodyBytes bounds request bodies. A release file may be 1 MiB of text,
// which grows by a third as base64.
const maxBodyBytes = 4 << 20

// ErrorBody is the "error" member of a failed response.
type ErrorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
}

// ErrorResponse is the full body of a failed response.
type ErrorResponse struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything written after that is ignored by net/http.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeOK wraps value in the success envelope under key.
func writeOK(w http.ResponseWriter, status int, key string, value any) {
	writeJSON(w, status, map[string]any{"ok": true, key: value})
}

// writeError maps a domain error to an HTTP status and the error envelope.
//
// errors.Is walks the wrap chain, so a service returning
// fmt.Errorf("creating package: %w", apperror.Conflict(...)) still maps to 409.
// Errors that are not *AppError are internal: their text may contain SQL or
// file paths, so the client only sees a generic message.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: ErrorBody{ErrorCode: apperror.CodeInternal, Message: "An internal error occurred"},
		})
		return
	}

	status, code := http.StatusInternalServerError, apperror.CodeInternal
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, code = http.StatusBadRequest, apperror.CodeValidation
	case errors.Is(err, apperror.ErrNotFound):
		status, code = http.StatusNotFound, apperror.CodeNotFound
	case errors.Is(err, apperror.ErrForbidden):
		status, code = http.StatusForbidden, apperror.CodeForbidden
	case errors.Is(err, apperror.ErrConflict):
		status, code = http.StatusConflict, apperror.CodeConflict
	case errors.Is(err, apperror.ErrUnauthorized):
		status, code = http.StatusUnauthorized, apperror.CodeUnauthorized
	}
	if appErr.Code != "" {
		code = appErr.Code
	}

	writeJSON(w, status, ErrorResponse{
		Error: ErrorBody{ErrorCode: code, Message: appErr.Message, Field: appErr.Field},
	})
}

// decodeJSON reads a size-limited JSON body into dst. Unknown fields are
// allowed so older clients keep working when the API grows.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", fmt.Sprintf("request body must be %d bytes or less", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// viewer returns the authenticated account ID, or "" for anonymous requests.
func viewer(r *http.Request) string {
	id, _ := auth.AccountIDFromContext(r.Context())
	return id
}

// first returns the first non-empty value. Snippets are packages, so most
// endpoints accept snippet_id as an alias for package_id.
func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.InvalidQuery(name, name+" must be true or false")
	}
	return v, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.InvalidQuery(name, name+" must be an integer")
	}
	return v, nil
}
