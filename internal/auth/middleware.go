package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the cookie the browser flow stores the session token in.
const CookieName = "token"

type contextKey string

const accountIDKey contextKey = "accountID"

var errNoToken = errors.New("auth: no token in request")

// RequireAuth rejects requests without a valid token with 401 and an error
// body in the same shape the handlers use. The account ID is stored in the
// request context for AccountIDFromContext.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := extractAccountID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"ok":false,"error":{"error_code":"unauthorized","message":"valid authentication required"}}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

// OptionalAuth attaches the account ID when a valid token is present and
// otherwise lets the request through anonymously. Read endpoints use it so
// owners can see their private packages.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID, err := extractAccountID(r, tokens); err == nil {
				r = r.WithContext(WithAccountID(r.Context(), accountID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAccountID returns a copy of ctx carrying accountID.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountIDFromContext returns the authenticated account, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// extractAccountID reads "Authorization: Bearer <token>" first and falls back
// to the session cookie set by the GitHub login flow.
func extractAccountID(r *http.Request, tokens *TokenService) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errNoToken
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", errNoToken
	}
	return tokens.Validate(cookie.Value)
}
